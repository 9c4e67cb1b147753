package cryptoctx

import (
	"bytes"
	"testing"
)

func TestDeriveProducesMatchingKeysBothSides(t *testing.T) {
	phonePriv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	desktopPriv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	phoneCtx, err := Derive(phonePriv, desktopPriv.PublicKey(), "phone-1", "desktop-1")
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	desktopCtx, err := Derive(desktopPriv, phonePriv.PublicKey(), "phone-1", "desktop-1")
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}

	if !bytes.Equal(phoneCtx.encKey, desktopCtx.encKey) {
		t.Error("derived enc keys differ between peers")
	}
	if !bytes.Equal(phoneCtx.macKey, desktopCtx.macKey) {
		t.Error("derived mac keys differ between peers")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	priv, _ := GenerateKeyPair()
	peer, _ := GenerateKeyPair()
	ctx, err := Derive(priv, peer.PublicKey(), "a", "b")
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}

	plaintext := []byte("the quick brown fox")
	ciphertext, nonce, err := ctx.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	got, err := ctx.Decrypt(ciphertext, nonce)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Decrypt() = %q, want %q", got, plaintext)
	}
}

func TestDecryptFailsOnTamperedCiphertext(t *testing.T) {
	priv, _ := GenerateKeyPair()
	peer, _ := GenerateKeyPair()
	ctx, _ := Derive(priv, peer.PublicKey(), "a", "b")

	ciphertext, nonce, err := ctx.Encrypt([]byte("hello"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	ciphertext[0] ^= 0xFF
	if _, err := ctx.Decrypt(ciphertext, nonce); err != ErrDecryptFailed {
		t.Errorf("Decrypt() error = %v, want ErrDecryptFailed", err)
	}
}

func TestEncryptNonceUniqueness(t *testing.T) {
	priv, _ := GenerateKeyPair()
	peer, _ := GenerateKeyPair()
	ctx, _ := Derive(priv, peer.PublicKey(), "a", "b")

	_, nonce1, _ := ctx.Encrypt([]byte("hello"))
	_, nonce2, _ := ctx.Encrypt([]byte("hello"))
	if bytes.Equal(nonce1, nonce2) {
		t.Error("two Encrypt() calls produced the same nonce")
	}
}

func TestSignVerify(t *testing.T) {
	priv, _ := GenerateKeyPair()
	peer, _ := GenerateKeyPair()
	ctx, _ := Derive(priv, peer.PublicKey(), "a", "b")

	data := []byte("message to authenticate")
	tag := ctx.Sign(data)
	if !ctx.Verify(data, tag) {
		t.Error("Verify() rejected a valid tag")
	}
	tag[0] ^= 0xFF
	if ctx.Verify(data, tag) {
		t.Error("Verify() accepted a tampered tag")
	}
}

func TestDeriveOrderIndependentOfDeviceIDArgOrder(t *testing.T) {
	priv, _ := GenerateKeyPair()
	peer, _ := GenerateKeyPair()
	ctx1, err := Derive(priv, peer.PublicKey(), "zzz", "aaa")
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	ctx2, err := Derive(priv, peer.PublicKey(), "aaa", "zzz")
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	if !bytes.Equal(ctx1.encKey, ctx2.encKey) {
		t.Error("device id argument order changed derived keys")
	}
}
