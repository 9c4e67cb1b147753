package blelink

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"tinygo.org/x/bluetooth"
)

// Config names the four characteristics and the advertised identity of
// the GATT service (spec.md section 4.5: "UUIDs are parameters of the
// build, identical on both peers").
type Config struct {
	LocalName      string
	ServiceUUID    string
	CommandRXUUID  string
	ResponseTXUUID string
	StatusUUID     string
	MTUInfoUUID    string
}

// Handlers are the callbacks a Peripheral implementation invokes as BLE
// events arrive. They must not block: the real implementation calls them
// from the BLE stack's own event goroutine.
type Handlers struct {
	// OnCommandWrite fires for every write to Command-RX, carrying the raw
	// fragment frame and the connection's current effective MTU.
	OnCommandWrite func(frame []byte, mtu int)
	// OnConnect/OnDisconnect track the link's connection lifecycle for the
	// disconnect monitor (spec.md section 4.5).
	OnConnect    func()
	OnDisconnect func()
}

// Peripheral abstracts the BLE peripheral role so internal/blelink.Server
// can be exercised without real hardware, mirroring the teacher's
// Adapter/Connection/Characteristic trio (internal/ble/adapter.go) but for
// the peripheral side instead of the central side.
type Peripheral interface {
	// Configure registers the four characteristics and wires handlers.
	// Must be called before Advertise.
	Configure(cfg Config, h Handlers) error
	// Advertise starts an advertisement announcing the service UUID and
	// local name, and keeps it running. TinygoPeripheral uses the
	// adapter's default advertisement type, so centrals can connect.
	Advertise() error
	// NotifyResponse pushes a fragment on the Response-TX characteristic.
	NotifyResponse(data []byte) error
	// NotifyStatus pushes the current status byte on the Status characteristic.
	NotifyStatus(code byte) error
	// ReadStatus returns the status byte last written via NotifyStatus,
	// for the Status characteristic's read access.
	ReadStatus() byte
	// ReadMTUInfo returns the current negotiated MTU, little-endian u16
	// on the wire, for the MTU-Info characteristic's read access.
	ReadMTUInfo() uint16
	// ConnectedDeviceCount reports how many centrals are currently
	// connected, used by the disconnect poll.
	ConnectedDeviceCount() int
	// Stop tears down advertising and the GATT service.
	Stop() error
}

// TinygoPeripheral implements Peripheral against tinygo.org/x/bluetooth's
// peripheral API, the same module the teacher depends on for the central
// role (internal/ble/corebluetooth.go) generalized here to AddService/
// CharacteristicConfig instead of Connect/DiscoverCharacteristic.
type TinygoPeripheral struct {
	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement

	responseTX bluetooth.Characteristic
	status     bluetooth.Characteristic
	mtuInfo    bluetooth.Characteristic

	statusByte atomic.Uint32
	mtu        atomic.Uint32
	connected  atomic.Int32

	cfg Config
}

// NewTinygoPeripheral wraps bluetooth.DefaultAdapter.
func NewTinygoPeripheral() *TinygoPeripheral {
	p := &TinygoPeripheral{adapter: bluetooth.DefaultAdapter}
	p.mtu.Store(initialMTU)
	return p
}

func (p *TinygoPeripheral) Configure(cfg Config, h Handlers) error {
	p.cfg = cfg
	if err := p.adapter.Enable(); err != nil {
		return fmt.Errorf("blelink: enable adapter: %w", err)
	}

	serviceUUID, err := bluetooth.ParseUUID(cfg.ServiceUUID)
	if err != nil {
		return fmt.Errorf("blelink: parse service uuid: %w", err)
	}
	rxUUID, err := bluetooth.ParseUUID(cfg.CommandRXUUID)
	if err != nil {
		return fmt.Errorf("blelink: parse command-rx uuid: %w", err)
	}
	txUUID, err := bluetooth.ParseUUID(cfg.ResponseTXUUID)
	if err != nil {
		return fmt.Errorf("blelink: parse response-tx uuid: %w", err)
	}
	statusUUID, err := bluetooth.ParseUUID(cfg.StatusUUID)
	if err != nil {
		return fmt.Errorf("blelink: parse status uuid: %w", err)
	}
	mtuUUID, err := bluetooth.ParseUUID(cfg.MTUInfoUUID)
	if err != nil {
		return fmt.Errorf("blelink: parse mtu-info uuid: %w", err)
	}

	var commandRX bluetooth.Characteristic
	err = p.adapter.AddService(&bluetooth.Service{
		UUID: serviceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &commandRX,
				UUID:   rxUUID,
				Flags:  bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicWriteWithoutResponsePermission,
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					if mtu, err := client.GetMTU(); err == nil {
						p.updateMTU(int(mtu))
					}
					if h.OnCommandWrite != nil {
						h.OnCommandWrite(value, int(p.mtu.Load()))
					}
				},
			},
			{
				Handle: &p.responseTX,
				UUID:   txUUID,
				Flags:  bluetooth.CharacteristicNotifyPermission,
			},
			{
				Handle: &p.status,
				UUID:   statusUUID,
				Value:  []byte{0x00},
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			},
			{
				Handle: &p.mtuInfo,
				UUID:   mtuUUID,
				Value:  []byte{23, 0},
				Flags:  bluetooth.CharacteristicReadPermission,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("blelink: add service: %w", err)
	}

	p.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			p.connected.Add(1)
			if h.OnConnect != nil {
				h.OnConnect()
			}
			return
		}
		p.connected.Add(-1)
		p.resetMTU()
		if h.OnDisconnect != nil {
			h.OnDisconnect()
		}
	})

	return nil
}

// updateMTU records a newly negotiated ATT MTU if it exceeds the one
// already stored (spec.md section 4.5: "mtu never decreases within a
// connection") and republishes it on the MTU-Info characteristic so a
// GATT read reflects the real negotiated value instead of the BLE
// default.
func (p *TinygoPeripheral) updateMTU(mtu int) {
	for {
		current := p.mtu.Load()
		if mtu <= int(current) {
			return
		}
		if p.mtu.CompareAndSwap(current, uint32(mtu)) {
			break
		}
	}
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(mtu))
	// Best-effort: the MTU-Info characteristic is read-only advisory
	// data, not load-bearing for any protocol decision.
	_, _ = p.mtuInfo.Write(buf)
}

// resetMTU restores the default ATT MTU on disconnect (spec.md section
// 3: "mtu ... resets to 23 on disconnect"); the next connection
// renegotiates from scratch.
func (p *TinygoPeripheral) resetMTU() {
	p.mtu.Store(initialMTU)
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, initialMTU)
	_, _ = p.mtuInfo.Write(buf) // best-effort, same as updateMTU
}

func (p *TinygoPeripheral) Advertise() error {
	serviceUUID, err := bluetooth.ParseUUID(p.cfg.ServiceUUID)
	if err != nil {
		return fmt.Errorf("blelink: parse service uuid: %w", err)
	}
	p.adv = p.adapter.DefaultAdvertisement()
	err = p.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    p.cfg.LocalName,
		ServiceUUIDs: []bluetooth.UUID{serviceUUID},
	})
	if err != nil {
		return fmt.Errorf("blelink: configure advertisement: %w", err)
	}
	if err := p.adv.Start(); err != nil {
		return fmt.Errorf("blelink: start advertisement: %w", err)
	}
	return nil
}

func (p *TinygoPeripheral) NotifyResponse(data []byte) error {
	_, err := p.responseTX.Write(data)
	return err
}

func (p *TinygoPeripheral) NotifyStatus(code byte) error {
	p.statusByte.Store(uint32(code))
	_, err := p.status.Write([]byte{code})
	return err
}

func (p *TinygoPeripheral) ReadStatus() byte {
	return byte(p.statusByte.Load())
}

func (p *TinygoPeripheral) ReadMTUInfo() uint16 {
	return uint16(p.mtu.Load())
}

func (p *TinygoPeripheral) ConnectedDeviceCount() int {
	return int(p.connected.Load())
}

func (p *TinygoPeripheral) Stop() error {
	if p.adv != nil {
		return p.adv.Stop()
	}
	return nil
}

var _ Peripheral = (*TinygoPeripheral)(nil)
