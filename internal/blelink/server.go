// Package blelink implements the GATT server (spec.md section 4.5): the
// four-characteristic service surface, MTU tracking, fragment
// reassembly/chunking, and the disconnect monitor, dispatching decoded
// application messages as ConnectionEvents for internal/dispatch to
// consume.
package blelink

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pelidan/prontafon/internal/blelink/reassembly"
	"github.com/pelidan/prontafon/internal/pairing"
	"github.com/pelidan/prontafon/internal/protocol"
)

// initialMTU is the BLE default ATT MTU before any negotiation.
const initialMTU = 23

// disconnectDebounce matches spec.md section 4.5: a disconnect signal
// within this long of the last successful pairing is treated as a race
// with an immediate reconnect and ignored.
const disconnectDebounce = 500 * time.Millisecond

const (
	pollIntervalAuthenticated = 1 * time.Second
	pollIntervalIdle          = 5 * time.Second
)

// Server owns one connection's ServerState and drives the GATT service
// described in spec.md section 4.5. One Server handles one peripheral
// connection slot; the daemon runs a single instance.
type Server struct {
	log *slog.Logger

	peripheral    Peripheral
	machine       *pairing.Machine
	trust         pairing.TrustStore
	localDeviceID string
	cfg           Config

	mu          sync.RWMutex
	mtu         int
	reassembler *reassembly.Reassembler

	notifyMu sync.Mutex // serializes whole-message fragment sequences on Response-TX

	authFailures *authFailureTracker

	events  chan ConnectionEvent
	stopCh  chan struct{}
	stopped sync.Once
}

// NewServer constructs a Server in the initial AwaitingPair state.
// trust may be nil to disable auto-accept.
func NewServer(log *slog.Logger, localDeviceID string, peripheral Peripheral, trust pairing.TrustStore, cfg Config) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:           log,
		peripheral:    peripheral,
		machine:       pairing.NewMachine(localDeviceID),
		trust:         trust,
		localDeviceID: localDeviceID,
		cfg:           cfg,
		mtu:           initialMTU,
		reassembler:   reassembly.NewReassembler(),
		authFailures:  newAuthFailureTracker(),
		events:        make(chan ConnectionEvent, 32),
		stopCh:        make(chan struct{}),
	}
}

// Events returns the channel the dispatcher consumes ConnectionEvents
// from.
func (s *Server) Events() <-chan ConnectionEvent {
	return s.events
}

// Snapshot exposes the pairing machine's read-only state for callers
// and tests that inspect the pairing status.
func (s *Server) Snapshot() pairing.Snapshot {
	return s.machine.Snapshot()
}

// MTU returns the current negotiated MTU.
func (s *Server) MTU() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mtu
}

// Start configures the peripheral, begins advertising, and launches the
// disconnect poll loop. It does not block.
func (s *Server) Start() error {
	handlers := Handlers{
		OnCommandWrite: s.handleCommandWrite,
		OnConnect:      s.handleConnect,
		OnDisconnect:   s.handleNotifyDisconnect,
	}
	if err := s.peripheral.Configure(s.cfg, handlers); err != nil {
		return err
	}
	if err := s.peripheral.Advertise(); err != nil {
		return err
	}
	go s.disconnectPollLoop()
	return nil
}

// Stop tears down the poll loop and the advertisement.
func (s *Server) Stop() error {
	s.stopped.Do(func() { close(s.stopCh) })
	return s.peripheral.Stop()
}

// AcceptPairing completes the pending pairing (user-driven or
// auto-accept), sends PAIR_ACK, updates the Status characteristic, and
// emits Connected (spec.md section 4.4: "user_accept -> Authenticated
// ... emit Connected", scenario 1). This is the only place EventConnected
// is emitted: the link-level connect (handleConnect) fires before
// pairing and authentication, which is not what "Connected" means here.
func (s *Server) AcceptPairing() error {
	env, err := s.machine.Accept()
	if err != nil {
		// On a handshake failure Accept still returns a
		// PAIR_ACK{status:error} for the peer and sets StatusError.
		if env.Type == protocol.TypePairAck {
			if sendErr := s.sendEnvelope(env); sendErr != nil {
				s.log.Warn("blelink: send PAIR_ACK failed", "err", sendErr)
			}
			_ = s.notifyStatus()
		}
		return err
	}
	if sendErr := s.sendEnvelope(env); sendErr != nil {
		s.log.Warn("blelink: send PAIR_ACK failed", "err", sendErr)
	}
	snap := s.machine.Snapshot()
	s.emit(ConnectionEvent{Kind: EventConnected, DeviceID: snap.DeviceID, DeviceName: snap.DeviceName})
	return s.notifyStatus()
}

// RejectPairing declines the pending pairing request with reason.
func (s *Server) RejectPairing(reason string) error {
	env, err := s.machine.Reject(reason)
	if err != nil {
		return err
	}
	if sendErr := s.sendEnvelope(env); sendErr != nil {
		s.log.Warn("blelink: send PAIR_ACK failed", "err", sendErr)
	}
	return s.notifyStatus()
}

func (s *Server) handleCommandWrite(frame []byte, mtu int) {
	s.mu.Lock()
	if mtu > s.mtu {
		s.mtu = mtu
	}
	payload, ok := s.reassembler.ProcessPacket(frame)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.handleMessage(payload)
}

func (s *Server) handleMessage(raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		s.log.Warn("blelink: malformed envelope, dropping", "err", err)
		return
	}

	switch msg.Type {
	case protocol.TypePairReq:
		s.handlePairReq(msg)
	case protocol.TypeText, protocol.TypeWord, protocol.TypeCommand:
		s.handleDataMessage(msg)
	case protocol.TypeHeartbeat:
		// Liveness only; nothing to do beyond having observed a write.
	case protocol.TypeAck:
		// The peer acknowledging something we sent; no action required.
	default:
		s.log.Warn("blelink: unhandled envelope type, dropping", "type", msg.Type)
	}
}

func (s *Server) handlePairReq(msg protocol.Envelope) {
	var payload protocol.PairReqPayload
	if err := protocol.DecodePayload(msg, &payload); err != nil {
		s.log.Warn("blelink: malformed PAIR_REQ payload", "err", err)
		return
	}

	ack, err := s.machine.HandlePairReq(payload, msg.TimestampMs)
	if err != nil {
		s.log.Warn("blelink: PAIR_REQ rejected", "err", err)
		return
	}
	// ACK is sent before the PairRequested event is handled, so the
	// phone's own request does not time out while a human decides.
	if sendErr := s.sendEnvelope(ack); sendErr != nil {
		s.log.Warn("blelink: send ACK failed", "err", sendErr)
	}
	if sendErr := s.notifyStatus(); sendErr != nil {
		s.log.Warn("blelink: notify status failed", "err", sendErr)
	}

	if s.trust != nil && s.trust.IsTrusted(payload.DeviceID) {
		if err := s.AcceptPairing(); err != nil {
			s.log.Warn("blelink: auto-accept failed", "err", err)
		}
		return
	}

	s.emit(ConnectionEvent{
		Kind:       EventPairRequested,
		DeviceID:   payload.DeviceID,
		DeviceName: payload.DeviceName,
	})
}

func (s *Server) handleDataMessage(msg protocol.Envelope) {
	if err := s.machine.RequireAuthenticated(); err != nil {
		s.log.Warn("blelink: data message before authentication, dropping", "type", msg.Type)
		return
	}
	if s.machine.SeenRecently(msg.ID) {
		return
	}

	crypto := s.machine.Crypto()
	if crypto == nil {
		return
	}
	if err := protocol.VerifyAndDecrypt(&msg, crypto); err != nil {
		s.recordAuthFailure(err)
		return
	}
	s.authFailures.Reset()

	switch msg.Type {
	case protocol.TypeText:
		var p protocol.TextPayload
		if err := protocol.DecodePayload(msg, &p); err != nil {
			s.log.Warn("blelink: malformed TEXT payload", "err", err)
			return
		}
		s.emit(ConnectionEvent{Kind: EventTextReceived, Text: p.Text})

	case protocol.TypeWord:
		var p protocol.WordPayload
		if err := protocol.DecodePayload(msg, &p); err != nil {
			s.log.Warn("blelink: malformed WORD payload", "err", err)
			return
		}
		s.emit(ConnectionEvent{Kind: EventWordReceived, Word: p.Word, Seq: p.Seq, Session: p.Session})

	case protocol.TypeCommand:
		var p protocol.CommandPayload
		if err := protocol.DecodePayload(msg, &p); err != nil {
			s.log.Warn("blelink: malformed COMMAND payload", "err", err)
			return
		}
		s.emit(ConnectionEvent{Kind: EventCommandReceived, Command: p.Code})
	}
}

func (s *Server) recordAuthFailure(cause error) {
	s.log.Warn("blelink: auth/decrypt failure", "err", cause)
	if s.authFailures.Record(time.Now()) {
		s.log.Warn("blelink: repeated auth failures, forcing disconnect")
		s.forceDisconnect()
	}
}

// handleConnect fires when a central joins at the BLE link layer, before
// pairing or authentication. It does not emit EventConnected: that event
// means "authenticated session established" (spec.md section 4.4) and is
// emitted from AcceptPairing instead, once pairing actually completes.
func (s *Server) handleConnect() {
	s.log.Debug("blelink: link connected, awaiting pairing")
}

// handleNotifyDisconnect is the callback path fired by the peripheral's
// own connection-lost signal (spec.md section 4.5, path 2).
func (s *Server) handleNotifyDisconnect() {
	s.debouncedDisconnect()
}

func (s *Server) emit(ev ConnectionEvent) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn("blelink: event channel full, dropping event", "kind", ev.Kind.String())
	}
}

func (s *Server) notifyStatus() error {
	code := byte(s.machine.Snapshot().StatusCode)
	if err := s.peripheral.NotifyStatus(code); err != nil {
		s.debouncedDisconnect()
		return err
	}
	return nil
}

func (s *Server) sendEnvelope(env protocol.Envelope) error {
	body, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	s.mu.RLock()
	mtu := s.mtu
	s.mu.RUnlock()

	frames := reassembly.Chunk(body, mtu)

	// Hold the notify path for the whole message: fragments of one
	// message must leave Response-TX without interleaving another
	// message's fragments (spec.md section 5).
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	for _, f := range frames {
		if err := s.peripheral.NotifyResponse(f); err != nil {
			s.debouncedDisconnect()
			return err
		}
	}
	return nil
}
