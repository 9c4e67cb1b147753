// Package pairing implements the pairing and session state machine
// (spec.md section 4.4): AwaitingPair -> Authenticated, the pending
// handshake held between a PAIR_REQ and the user's accept/reject
// decision, and session crypto lifetime.
package pairing

import (
	"crypto/ecdh"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pelidan/prontafon/internal/cryptoctx"
	"github.com/pelidan/prontafon/internal/protocol"
)

// State is the pairing/session state (spec.md section 3).
type State int

const (
	AwaitingPair State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "Authenticated"
	}
	return "AwaitingPair"
}

// StatusCode is the single-byte value exposed on the Status characteristic.
type StatusCode byte

const (
	StatusIdle            StatusCode = 0x00
	StatusAwaitingPairing StatusCode = 0x01
	StatusPaired          StatusCode = 0x02
	StatusError           StatusCode = 0xFF
)

// ErrUnauthorizedState is returned when a data message arrives before
// pairing completes.
var ErrUnauthorizedState = errors.New("pairing: data message received before authentication")

// ErrHandshakeFailed is returned when an accept fails to derive session keys.
var ErrHandshakeFailed = cryptoctx.ErrHandshakeFailed

// ErrNoPendingPairing is returned by Accept/Reject when there is no
// outstanding PAIR_REQ to answer.
var ErrNoPendingPairing = errors.New("pairing: no pending pairing request")

// replayCacheSize is the bounded LRU size recommended by spec.md sections
// 4.4 and 9 for duplicate-id suppression.
const replayCacheSize = 128

// PendingPairing holds data captured between a PAIR_REQ and a user
// accept/reject decision.
type PendingPairing struct {
	PeerID        string
	PeerName      string
	PeerPublicKey *ecdh.PublicKey
	LocalKeypair  *ecdh.PrivateKey
}

// zeroize drops the pending pairing's references to the ephemeral local
// key pair and the peer public key; it is called on the accept, reject
// and disconnect paths. The private key bytes themselves are not
// overwritten and stay in memory until the garbage collector frees them.
func (p *PendingPairing) zeroize() {
	p.LocalKeypair = nil
	p.PeerPublicKey = nil
}

// TrustStore is consulted for the auto-accept policy (spec.md section
// 4.4): if a device is already trusted, PAIR_REQ is accepted without a
// user prompt.
type TrustStore interface {
	IsTrusted(deviceID string) bool
}

// Machine drives the pairing/session state machine for one connection.
// It is safe for concurrent use; callers outside the BLE event loop
// (e.g. serve's interactive pairing prompt, through Server.AcceptPairing
// and Server.RejectPairing) may call Accept/Reject directly.
type Machine struct {
	mu              sync.RWMutex
	state           State
	statusCode      StatusCode
	crypto          *cryptoctx.Context
	deviceID        string
	deviceName      string
	pending         *PendingPairing
	lastConnectedAt time.Time
	localDeviceID   string

	replay *lru.Cache[string, struct{}]
}

// NewMachine creates a Machine in the AwaitingPair state. localDeviceID
// identifies this desktop in the KDF device-id ordering (spec.md 4.3).
func NewMachine(localDeviceID string) *Machine {
	cache, _ := lru.New[string, struct{}](replayCacheSize)
	return &Machine{
		state:         AwaitingPair,
		statusCode:    StatusIdle,
		localDeviceID: localDeviceID,
		replay:        cache,
	}
}

// Snapshot is a read-only copy of state fields safe to inspect without
// holding the Machine's lock further (spec.md section 9: "copy small
// fields out under the lock, perform I/O outside").
type Snapshot struct {
	State         State
	StatusCode    StatusCode
	DeviceID      string
	DeviceName    string
	Authenticated bool
}

// Snapshot returns a consistent copy of the machine's small fields.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		State:         m.state,
		StatusCode:    m.statusCode,
		DeviceID:      m.deviceID,
		DeviceName:    m.deviceName,
		Authenticated: m.state == Authenticated,
	}
}

// Crypto returns the session crypto context, or nil if not authenticated.
func (m *Machine) Crypto() *cryptoctx.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.crypto
}

// HandlePairReq validates a PAIR_REQ, records it as the pending pairing,
// and returns the ACK envelope for the caller to send back immediately,
// before it emits the PairRequested event, so the phone's own request
// does not time out.
func (m *Machine) HandlePairReq(payload protocol.PairReqPayload, originalTimestampMs int64) (protocol.Envelope, error) {
	if err := payload.Validate(); err != nil {
		return protocol.Envelope{}, err
	}
	rawPub, err := base64.StdEncoding.DecodeString(payload.PublicKey)
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("%w: invalid public_key encoding", ErrHandshakeFailed)
	}
	peerPub, err := cryptoctx.ParsePublicKey(rawPub)
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("%w", ErrHandshakeFailed)
	}
	localKeypair, err := cryptoctx.GenerateKeyPair()
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("pairing: generate keypair: %w", err)
	}

	m.mu.Lock()
	m.deviceID = payload.DeviceID
	m.deviceName = payload.DeviceName
	m.statusCode = StatusAwaitingPairing
	m.pending = &PendingPairing{
		PeerID:        payload.DeviceID,
		PeerName:      payload.DeviceName,
		PeerPublicKey: peerPub,
		LocalKeypair:  localKeypair,
	}
	m.mu.Unlock()

	return protocol.Ack(originalTimestampMs), nil
}

// Accept completes pairing: derives the shared session key and
// transitions to Authenticated. Returns the PAIR_ACK envelope to send.
func (m *Machine) Accept() (protocol.Envelope, error) {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	if pending == nil {
		m.mu.Unlock()
		return protocol.Envelope{}, ErrNoPendingPairing
	}

	crypto, err := cryptoctx.Derive(pending.LocalKeypair, pending.PeerPublicKey, pending.PeerID, m.localDeviceID)
	localPub := pending.LocalKeypair.PublicKey()
	pending.zeroize()
	if err != nil {
		m.statusCode = StatusError
		m.mu.Unlock()
		payload := protocol.PairAckPayload{DeviceID: m.localDeviceID, Status: "error", Reason: "handshake failed"}
		body, _ := protocol.EncodePayload(payload)
		return protocol.New(protocol.TypePairAck, body), ErrHandshakeFailed
	}

	m.crypto = crypto
	m.state = Authenticated
	m.statusCode = StatusPaired
	m.lastConnectedAt = time.Now()
	m.mu.Unlock()

	payload := protocol.PairAckPayload{
		DeviceID:  m.localDeviceID,
		Status:    "ok",
		PublicKey: base64.StdEncoding.EncodeToString(localPub.Bytes()),
	}
	body, err := protocol.EncodePayload(payload)
	if err != nil {
		return protocol.Envelope{}, err
	}
	return protocol.New(protocol.TypePairAck, body), nil
}

// Reject declines the pending pairing request, replying PAIR_ACK{status:error}.
func (m *Machine) Reject(reason string) (protocol.Envelope, error) {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	if pending != nil {
		pending.zeroize()
	}
	m.statusCode = StatusIdle
	m.mu.Unlock()

	if pending == nil {
		return protocol.Envelope{}, ErrNoPendingPairing
	}

	payload := protocol.PairAckPayload{DeviceID: m.localDeviceID, Status: "error", Reason: reason}
	body, err := protocol.EncodePayload(payload)
	if err != nil {
		return protocol.Envelope{}, err
	}
	return protocol.New(protocol.TypePairAck, body), nil
}

// HandleDisconnect resets the machine to AwaitingPair, clearing crypto,
// device id, and any pending pairing (spec.md's disconnect transition).
// It returns true exactly once per Authenticated->AwaitingPair edge so
// callers can emit exactly one Disconnected event even if both detection
// paths fire concurrently.
func (m *Machine) HandleDisconnect() (emitDisconnected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wasAuthenticated := m.state == Authenticated
	m.state = AwaitingPair
	m.crypto = nil
	m.deviceID = ""
	m.deviceName = ""
	if m.pending != nil {
		m.pending.zeroize()
		m.pending = nil
	}
	m.statusCode = StatusIdle
	m.lastConnectedAt = time.Time{}
	if m.replay != nil {
		m.replay.Purge()
	}
	return wasAuthenticated
}

// LastConnectedAt returns the time of the last successful pairing, used
// by the GATT server's disconnect debounce.
func (m *Machine) LastConnectedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastConnectedAt
}

// RequireAuthenticated returns ErrUnauthorizedState unless the machine is
// currently Authenticated. Data-type messages (TEXT/WORD/COMMAND) must
// call this before processing.
func (m *Machine) RequireAuthenticated() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Authenticated {
		return ErrUnauthorizedState
	}
	return nil
}

// SeenRecently reports whether id was already recorded in the replay
// cache and records it if not, implementing the bounded-LRU duplicate-id
// suppression spec.md sections 4.4/9 recommend.
func (m *Machine) SeenRecently(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replay == nil {
		return false
	}
	if _, ok := m.replay.Get(id); ok {
		return true
	}
	m.replay.Add(id, struct{}{})
	return false
}
