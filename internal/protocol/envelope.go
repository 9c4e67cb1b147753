// Package protocol implements the JSON message envelope exchanged between
// the phone and the desktop once fragments have been reassembled by
// internal/blelink/reassembly.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType is the envelope's type discriminant.
type MessageType string

const (
	TypePairReq   MessageType = "PAIR_REQ"
	TypePairAck   MessageType = "PAIR_ACK"
	TypeText      MessageType = "TEXT"
	TypeWord      MessageType = "WORD"
	TypeCommand   MessageType = "COMMAND"
	TypeHeartbeat MessageType = "HEARTBEAT"
	TypeAck       MessageType = "ACK"
)

// ErrMalformedEnvelope is returned by Decode on invalid JSON, an unknown
// type, or missing fields required for the decoded type.
var ErrMalformedEnvelope = errors.New("protocol: malformed envelope")

// Envelope is the on-wire message record described in spec.md section 3.
// Payload holds raw JSON for plaintext types and base64 ciphertext for
// authenticated types (TEXT/WORD/COMMAND); callers decode/encode the
// typed payload separately with DecodePayload / EncodePayload.
type Envelope struct {
	Type            MessageType `json:"type"`
	ID              string      `json:"id"`
	TimestampMs     int64       `json:"timestamp_ms"`
	Payload         string      `json:"payload"`
	Signature       string      `json:"signature,omitempty"`
	CiphertextNonce string      `json:"ciphertext_nonce,omitempty"`
}

// New builds an envelope with a fresh id and current timestamp for the
// given type and already-serialized payload string.
func New(t MessageType, payload string) Envelope {
	return Envelope{
		Type:        t,
		ID:          uuid.NewString(),
		TimestampMs: time.Now().UnixMilli(),
		Payload:     payload,
	}
}

// Encode serializes msg to JSON, assigning ID and TimestampMs if unset.
func Encode(msg Envelope) ([]byte, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.TimestampMs == 0 {
		msg.TimestampMs = time.Now().UnixMilli()
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode: %w", err)
	}
	return b, nil
}

// Decode parses a JSON envelope, validating that the required fields for
// its type are present.
func Decode(data []byte) (Envelope, error) {
	var msg Envelope
	if err := json.Unmarshal(data, &msg); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if msg.ID == "" {
		return Envelope{}, fmt.Errorf("%w: missing id", ErrMalformedEnvelope)
	}
	switch msg.Type {
	case TypePairReq, TypePairAck, TypeText, TypeWord, TypeCommand, TypeHeartbeat, TypeAck:
	default:
		return Envelope{}, fmt.Errorf("%w: unknown type %q", ErrMalformedEnvelope, msg.Type)
	}
	return msg, nil
}

// PairReqPayload is the PAIR_REQ payload shape.
type PairReqPayload struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name,omitempty"`
	PublicKey  string `json:"public_key"`
}

// Validate checks the invariants spec.md requires of a PAIR_REQ payload.
func (p PairReqPayload) Validate() error {
	if p.DeviceID == "" {
		return fmt.Errorf("%w: PAIR_REQ missing device_id", ErrMalformedEnvelope)
	}
	if p.PublicKey == "" {
		return fmt.Errorf("%w: PAIR_REQ missing public_key", ErrMalformedEnvelope)
	}
	return nil
}

// PairAckPayload is the PAIR_ACK payload shape.
type PairAckPayload struct {
	DeviceID  string `json:"device_id"`
	Status    string `json:"status"` // "ok" or "error"
	PublicKey string `json:"public_key,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// WordPayload is the WORD payload shape.
type WordPayload struct {
	Word    string  `json:"word"`
	Seq     *uint64 `json:"seq,omitempty"`
	Session string  `json:"session"`
}

// TextPayload is the TEXT payload shape: a complete recognized utterance.
type TextPayload struct {
	Text string `json:"text"`
}

// CommandPayload is the COMMAND payload shape: a command code the phone
// has already resolved (e.g. a dedicated UI button), bypassing the
// word-stream matcher entirely.
type CommandPayload struct {
	Code string `json:"code"`
}

// AckPayload echoes the original message's timestamp.
type AckPayload struct {
	TimestampMs int64 `json:"timestamp_ms"`
}

// DecodePayload unmarshals the envelope's Payload field (assumed to be
// plaintext JSON) into v.
func DecodePayload(msg Envelope, v interface{}) error {
	if err := json.Unmarshal([]byte(msg.Payload), v); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrMalformedEnvelope, err)
	}
	return nil
}

// EncodePayload marshals v to JSON and returns it as a string suitable
// for Envelope.Payload.
func EncodePayload(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("protocol: encode payload: %w", err)
	}
	return string(b), nil
}

// Ack builds an ACK envelope echoing the given timestamp.
func Ack(originalTimestampMs int64) Envelope {
	payload, _ := EncodePayload(AckPayload{TimestampMs: originalTimestampMs})
	return New(TypeAck, payload)
}
