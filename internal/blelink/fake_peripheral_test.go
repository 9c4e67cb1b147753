package blelink

import "sync"

// fakePeripheral is an in-memory Peripheral double, grounded on the
// teacher's mock_adapter_test.go pattern (a hand-rolled fake satisfying
// the Adapter/Connection/Characteristic interfaces for unit tests without
// real hardware).
type fakePeripheral struct {
	mu sync.Mutex

	cfg      Config
	handlers Handlers

	advertised bool
	stopped    bool

	responses [][]byte
	statuses  []byte

	mtu int

	connectedCount int

	failNextNotify bool
}

func newFakePeripheral() *fakePeripheral {
	return &fakePeripheral{mtu: initialMTU}
}

func (f *fakePeripheral) Configure(cfg Config, h Handlers) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	f.handlers = h
	return nil
}

func (f *fakePeripheral) Advertise() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advertised = true
	return nil
}

func (f *fakePeripheral) NotifyResponse(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNextNotify {
		f.failNextNotify = false
		return errNotifyFailed
	}
	f.responses = append(f.responses, append([]byte(nil), data...))
	return nil
}

func (f *fakePeripheral) NotifyStatus(code byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNextNotify {
		f.failNextNotify = false
		return errNotifyFailed
	}
	f.statuses = append(f.statuses, code)
	return nil
}

func (f *fakePeripheral) ReadStatus() byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return 0
	}
	return f.statuses[len(f.statuses)-1]
}

func (f *fakePeripheral) ReadMTUInfo() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint16(f.mtu)
}

func (f *fakePeripheral) ConnectedDeviceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectedCount
}

func (f *fakePeripheral) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

// write simulates a central writing a fragment to Command-RX.
func (f *fakePeripheral) write(frame []byte, mtu int) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	if h.OnCommandWrite != nil {
		h.OnCommandWrite(frame, mtu)
	}
}

func (f *fakePeripheral) connect() {
	f.mu.Lock()
	f.connectedCount++
	h := f.handlers
	f.mu.Unlock()
	if h.OnConnect != nil {
		h.OnConnect()
	}
}

func (f *fakePeripheral) disconnect() {
	f.mu.Lock()
	f.connectedCount--
	h := f.handlers
	f.mu.Unlock()
	if h.OnDisconnect != nil {
		h.OnDisconnect()
	}
}

func (f *fakePeripheral) sentResponses() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.responses...)
}

var errNotifyFailed = &notifyError{"simulated notify failure"}

type notifyError struct{ msg string }

func (e *notifyError) Error() string { return e.msg }

var _ Peripheral = (*fakePeripheral)(nil)
