// Package cryptoctx provides the per-session cryptographic primitives for
// the BLE pairing protocol: Curve25519 ECDH key agreement, HKDF-SHA256
// key derivation, ChaCha20-Poly1305 authenticated encryption, and
// HMAC-SHA256 signing.
package cryptoctx

import (
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrDecryptFailed is returned when ciphertext fails to authenticate.
var ErrDecryptFailed = errors.New("cryptoctx: decrypt failed")

// ErrHandshakeFailed is returned when ECDH produces an invalid shared point.
var ErrHandshakeFailed = errors.New("cryptoctx: handshake failed")

// kdfInfo is the HKDF context label, fixed for this protocol version.
const kdfInfo = "prontafon-session-v1"

// GenerateKeyPair creates an ephemeral Curve25519 (X25519) key pair for
// one pairing attempt.
func GenerateKeyPair() (*ecdh.PrivateKey, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cryptoctx: generate key pair: %w", err)
	}
	return priv, nil
}

// ParsePublicKey parses a 32-byte raw X25519 public key.
func ParsePublicKey(raw []byte) (*ecdh.PublicKey, error) {
	pub, err := ecdh.X25519().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parse public key: %v", ErrHandshakeFailed, err)
	}
	return pub, nil
}

// Context holds the two derived session keys and performs all
// authenticated-encryption and signing operations for one session.
type Context struct {
	encKey []byte // 32 bytes, ChaCha20-Poly1305 key
	macKey []byte // 32 bytes, HMAC-SHA256 key
}

// Derive performs ECDH between the local private key and the peer's
// public key, then derives k_enc and k_mac via HKDF-SHA256. deviceA and
// deviceB are the two peers' device IDs; they are sorted lexicographically
// before being mixed into the KDF info so both sides derive identical
// keys regardless of who is "local" and who is "peer".
func Derive(local *ecdh.PrivateKey, peer *ecdh.PublicKey, deviceA, deviceB string) (*Context, error) {
	shared, err := local.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("%w: ecdh: %v", ErrHandshakeFailed, err)
	}
	if allZero(shared) {
		return nil, fmt.Errorf("%w: zero shared secret", ErrHandshakeFailed)
	}

	ids := []string{deviceA, deviceB}
	sort.Strings(ids)
	info := []byte(kdfInfo + "|" + strings.Join(ids, "|"))

	reader := hkdf.New(sha256.New, shared, nil, info)
	keys := make([]byte, 64)
	if _, err := io.ReadFull(reader, keys); err != nil {
		return nil, fmt.Errorf("cryptoctx: hkdf: %w", err)
	}
	return &Context{
		encKey: keys[:32],
		macKey: keys[32:],
	}, nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// Encrypt authenticated-encrypts plaintext with a fresh random 96-bit
// nonce, returning ciphertext (tag included) and nonce separately.
func (c *Context) Encrypt(plaintext []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.New(c.encKey)
	if err != nil {
		return nil, nil, fmt.Errorf("cryptoctx: new aead: %w", err)
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("cryptoctx: random nonce: %w", err)
	}
	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt is the inverse of Encrypt; it returns ErrDecryptFailed on tag
// mismatch.
func (c *Context) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(c.encKey)
	if err != nil {
		return nil, fmt.Errorf("cryptoctx: new aead: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// Sign computes an HMAC-SHA256 tag over data.
func (c *Context) Sign(data []byte) []byte {
	mac := hmac.New(sha256.New, c.macKey)
	mac.Write(data)
	return mac.Sum(nil)
}

// Verify constant-time compares tag against the HMAC-SHA256 of data.
func (c *Context) Verify(data, tag []byte) bool {
	expected := c.Sign(data)
	return subtle.ConstantTimeCompare(expected, tag) == 1
}
