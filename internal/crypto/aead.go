package crypto

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/pure2p/pure2p/internal/perror"
)

// SealedPayload is the wire form of an AEAD-encrypted payload: a random
// 192-bit nonce and the ciphertext (which includes the 128-bit Poly1305
// tag). It is CBOR-encoded by the wire package when message_type
// encrypted=true.
type SealedPayload struct {
	Nonce      []byte `cbor:"nonce"`
	Ciphertext []byte `cbor:"ciphertext"`
}

// Encrypt seals plaintext under k using XChaCha20-Poly1305 with a fresh
// random 24-byte nonce. There is no associated data: the envelope fields
// that need authenticity (from_uid, to_uid, message_type) are outside the
// sealed payload and are not covered by this call.
func Encrypt(k, plaintext []byte) (*SealedPayload, error) {
	aead, err := chacha20poly1305.NewX(k)
	if err != nil {
		return nil, perror.Wrap(perror.Crypto, "init aead cipher", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, perror.Wrap(perror.Crypto, "generate nonce", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)
	return &SealedPayload{Nonce: nonce, Ciphertext: ciphertext}, nil
}

// Decrypt opens a SealedPayload under k. Any failure — wrong key, tampered
// nonce, tampered ciphertext, truncated input — collapses to a single
// opaque error; it never reveals which.
func Decrypt(k []byte, sealed *SealedPayload) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(k)
	if err != nil {
		return nil, perror.Wrap(perror.Crypto, "init aead cipher", err)
	}

	if len(sealed.Nonce) != aead.NonceSize() {
		return nil, perror.New(perror.Crypto, "decryption failed")
	}

	plaintext, err := aead.Open(nil, sealed.Nonce, sealed.Ciphertext, nil)
	if err != nil {
		return nil, perror.New(perror.Crypto, "decryption failed")
	}
	return plaintext, nil
}
