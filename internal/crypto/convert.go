package crypto

import (
	"crypto/ed25519"
	"crypto/sha512"

	"filippo.io/edwards25519"

	"github.com/pure2p/pure2p/internal/perror"
)

// ed25519SeedToX25519 hashes an Ed25519 private key's 32-byte seed with
// SHA-512 and clamps the result, producing the X25519 private key the
// same identity would use under the hash-derivation convention.
func ed25519SeedToX25519(priv ed25519.PrivateKey) ([32]byte, error) {
	var out [32]byte
	seed := priv.Seed()
	if len(seed) != ed25519.SeedSize {
		return out, perror.New(perror.Crypto, "invalid ed25519 seed length")
	}

	h := sha512.Sum512(seed)
	copy(out[:], h[:32])
	clamp(&out)
	return out, nil
}

// ed25519PubToX25519 converts a raw Ed25519 public key (a point on the
// Edwards curve) to its X25519 Montgomery u-coordinate.
func ed25519PubToX25519(pub ed25519.PublicKey) ([32]byte, error) {
	var out [32]byte
	if len(pub) != ed25519.PublicKeySize {
		return out, perror.New(perror.Crypto, "invalid ed25519 public key length")
	}

	point, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return out, perror.Wrap(perror.Crypto, "invalid ed25519 point", err)
	}
	copy(out[:], point.BytesMontgomery())
	return out, nil
}
