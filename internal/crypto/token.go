package crypto

import (
	"crypto/ed25519"

	"github.com/fxamacker/cbor/v2"

	"github.com/pure2p/pure2p/internal/perror"
)

// TokenPayload is the signed body of a contact token: everything a
// recipient needs to reach us and verify further messages from us.
type TokenPayload struct {
	IP          string `cbor:"ip"`
	SigningPub  []byte `cbor:"pubkey"`
	ExchangePub []byte `cbor:"x25519_pubkey"`
	ExpiryMs    int64  `cbor:"expiry"`
}

// SignedToken is the outer envelope carried as the contact token: the
// payload plus a detached Ed25519 signature over its canonical CBOR
// encoding.
type SignedToken struct {
	Payload   TokenPayload `cbor:"payload"`
	Signature []byte       `cbor:"signature"`
}

// SignToken CBOR-encodes payload and signs the encoding with secret,
// producing the envelope that gets base64url-encoded for manual exchange.
func SignToken(secret ed25519.PrivateKey, payload TokenPayload) (*SignedToken, error) {
	encoded, err := cbor.Marshal(payload)
	if err != nil {
		return nil, perror.Wrap(perror.Codec, "encode token payload", err)
	}

	sig := ed25519.Sign(secret, encoded)
	return &SignedToken{Payload: payload, Signature: sig}, nil
}

// VerifyToken re-encodes tok.Payload and checks tok.Signature against it
// under the payload's own signing public key. A mismatch, a signature of
// the wrong length, or a payload that fails to re-encode all fail the
// same opaque way: a single Crypto error that does not distinguish cause.
func VerifyToken(tok *SignedToken) error {
	if len(tok.Payload.SigningPub) != ed25519.PublicKeySize {
		return perror.New(perror.Crypto, "invalid token signature")
	}
	if len(tok.Signature) != ed25519.SignatureSize {
		return perror.New(perror.Crypto, "invalid token signature")
	}

	encoded, err := cbor.Marshal(tok.Payload)
	if err != nil {
		return perror.New(perror.Crypto, "invalid token signature")
	}

	if !ed25519.Verify(tok.Payload.SigningPub, encoded, tok.Signature) {
		return perror.New(perror.Crypto, "invalid token signature")
	}
	return nil
}
