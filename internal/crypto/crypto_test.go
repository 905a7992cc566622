package crypto

import (
	"crypto/ed25519"
	"testing"
)

func TestUIDDerivation(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	uid, err := UID(kp.SigningPublic)
	if err != nil {
		t.Fatalf("UID() error = %v", err)
	}
	if len(uid) != uidBytes*2 {
		t.Errorf("UID length = %d, want %d", len(uid), uidBytes*2)
	}

	// Deterministic: same public key always derives the same UID.
	uid2, err := UID(kp.SigningPublic)
	if err != nil {
		t.Fatalf("UID() second call error = %v", err)
	}
	if uid != uid2 {
		t.Errorf("UID is not deterministic: %s != %s", uid, uid2)
	}
}

func TestSharedSecretAgreement(t *testing.T) {
	alice, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	bob, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	aliceSide, err := SharedSecret(alice.ExchangeSecret, bob.ExchangePublic)
	if err != nil {
		t.Fatalf("SharedSecret(alice) error = %v", err)
	}
	bobSide, err := SharedSecret(bob.ExchangeSecret, alice.ExchangePublic)
	if err != nil {
		t.Fatalf("SharedSecret(bob) error = %v", err)
	}

	if string(aliceSide) != string(bobSide) {
		t.Error("DeriveShared(a.sec, b.pub) != DeriveShared(b.sec, a.pub)")
	}
}

func TestAEADRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	plaintext := []byte("hello")
	sealed, err := Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if len(sealed.Nonce) != 24 {
		t.Errorf("nonce length = %d, want 24", len(sealed.Nonce))
	}

	got, err := Decrypt(key, sealed)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if string(got) != string(plaintext) {
		t.Errorf("Decrypt(Encrypt(m)) = %q, want %q", got, plaintext)
	}
}

func TestAEADTamperDetection(t *testing.T) {
	key := make([]byte, 32)
	sealed, err := Encrypt(key, []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*SealedPayload)
	}{
		{"flip nonce byte", func(s *SealedPayload) { s.Nonce[0] ^= 0xFF }},
		{"flip ciphertext byte", func(s *SealedPayload) { s.Ciphertext[0] ^= 0xFF }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tampered := &SealedPayload{
				Nonce:      append([]byte(nil), sealed.Nonce...),
				Ciphertext: append([]byte(nil), sealed.Ciphertext...),
			}
			tt.mutate(tampered)

			if _, err := Decrypt(key, tampered); err == nil {
				t.Error("Decrypt() succeeded on tampered input, want error")
			}
		})
	}
}

func TestTokenSignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	payload := TokenPayload{
		IP:          "127.0.0.1:18080",
		SigningPub:  kp.SigningPublic,
		ExchangePub: kp.ExchangePublic[:],
		ExpiryMs:    9999999999999,
	}

	tok, err := SignToken(kp.SigningSecret, payload)
	if err != nil {
		t.Fatalf("SignToken() error = %v", err)
	}

	if err := VerifyToken(tok); err != nil {
		t.Errorf("VerifyToken() error = %v, want nil", err)
	}
}

func TestTokenVerifyRejectsTamperedPayload(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	payload := TokenPayload{
		IP:          "127.0.0.1:18080",
		SigningPub:  kp.SigningPublic,
		ExchangePub: kp.ExchangePublic[:],
		ExpiryMs:    9999999999999,
	}

	tok, err := SignToken(kp.SigningSecret, payload)
	if err != nil {
		t.Fatalf("SignToken() error = %v", err)
	}

	tok.Payload.IP = "10.0.0.1:9999"

	if err := VerifyToken(tok); err == nil {
		t.Error("VerifyToken() succeeded on tampered payload, want error")
	}
}

func TestTokenVerifyRejectsBadSignatureLength(t *testing.T) {
	kp, _ := GenerateKeyPair()
	tok := &SignedToken{
		Payload: TokenPayload{
			IP:          "127.0.0.1:18080",
			SigningPub:  kp.SigningPublic,
			ExchangePub: kp.ExchangePublic[:],
			ExpiryMs:    9999999999999,
		},
		Signature: []byte{1, 2, 3},
	}

	if err := VerifyToken(tok); err == nil {
		t.Error("VerifyToken() succeeded with malformed signature, want error")
	}
}

func TestDeriveX25519FromEd25519Consistency(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	derived, err := DeriveX25519FromEd25519(kp.SigningSecret)
	if err != nil {
		t.Fatalf("DeriveX25519FromEd25519() error = %v", err)
	}

	allZero := true
	for _, b := range derived {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		t.Error("derived X25519 key is all zeros")
	}
}

func TestEd25519PubToX25519NonZero(t *testing.T) {
	_, pub, _ := ed25519.GenerateKey(nil)
	out, err := ed25519PubToX25519(pub)
	if err != nil {
		t.Fatalf("ed25519PubToX25519() error = %v", err)
	}

	allZero := true
	for _, b := range out {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		t.Error("converted X25519 public key is all zeros")
	}
}
