package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/pelidan/prontafon/internal/cryptoctx"
)

// ErrAuthFailed is returned by VerifyAndDecrypt on signature mismatch.
var ErrAuthFailed = errors.New("protocol: signature verification failed")

// requiresCrypto reports whether t is one of the message types that are
// authenticated-encrypted rather than sent in the clear.
func requiresCrypto(t MessageType) bool {
	switch t {
	case TypeText, TypeWord, TypeCommand:
		return true
	default:
		return false
	}
}

// SignAndEncrypt mutates msg in place: its Payload becomes base64
// ciphertext, CiphertextNonce is set, and Signature is computed over
// type || id || timestamp_ms || ciphertext.
func SignAndEncrypt(msg *Envelope, crypto *cryptoctx.Context) error {
	if !requiresCrypto(msg.Type) {
		return nil
	}
	ciphertext, nonce, err := crypto.Encrypt([]byte(msg.Payload))
	if err != nil {
		return fmt.Errorf("protocol: encrypt: %w", err)
	}
	msg.Payload = base64.StdEncoding.EncodeToString(ciphertext)
	msg.CiphertextNonce = base64.StdEncoding.EncodeToString(nonce)
	msg.Signature = base64.StdEncoding.EncodeToString(crypto.Sign(signingInput(*msg)))
	return nil
}

// VerifyAndDecrypt is the inverse of SignAndEncrypt: it verifies the
// signature, decrypts Payload in place, and clears Signature/CiphertextNonce.
// It returns ErrAuthFailed on signature mismatch and cryptoctx.ErrDecryptFailed
// on bad ciphertext.
func VerifyAndDecrypt(msg *Envelope, crypto *cryptoctx.Context) error {
	if !requiresCrypto(msg.Type) {
		return nil
	}
	sig, err := base64.StdEncoding.DecodeString(msg.Signature)
	if err != nil {
		return fmt.Errorf("%w: bad signature encoding", ErrAuthFailed)
	}
	if !crypto.Verify(signingInput(*msg), sig) {
		return ErrAuthFailed
	}
	ciphertext, err := base64.StdEncoding.DecodeString(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: bad ciphertext encoding", cryptoctx.ErrDecryptFailed)
	}
	nonce, err := base64.StdEncoding.DecodeString(msg.CiphertextNonce)
	if err != nil {
		return fmt.Errorf("%w: bad nonce encoding", cryptoctx.ErrDecryptFailed)
	}
	plaintext, err := crypto.Decrypt(ciphertext, nonce)
	if err != nil {
		return err
	}
	msg.Payload = string(plaintext)
	msg.Signature = ""
	msg.CiphertextNonce = ""
	return nil
}

// signingInput builds the byte string that Sign/Verify operate over:
// type || id || timestamp_ms || ciphertext (the base64 ciphertext as it
// currently sits in msg.Payload).
func signingInput(msg Envelope) []byte {
	b := make([]byte, 0, len(msg.Type)+len(msg.ID)+20+len(msg.Payload))
	b = append(b, msg.Type...)
	b = append(b, msg.ID...)
	b = fmt.Appendf(b, "%d", msg.TimestampMs)
	b = append(b, msg.Payload...)
	return b
}
