// Package crypto provides the signing keypair, key-exchange keypair, UID
// derivation, shared-secret computation, and authenticated encryption that
// every other subsystem builds identity and confidentiality on top of.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/pure2p/pure2p/internal/perror"
)

const uidBytes = 16

// KeyPair is the identity's dual keypair: an Edwards25519 signing pair
// and a Montgomery X25519 key-exchange pair. Neither ever changes for the
// life of an identity.
type KeyPair struct {
	SigningPublic  ed25519.PublicKey
	SigningSecret  ed25519.PrivateKey
	ExchangePublic [32]byte
	ExchangeSecret [32]byte
}

// GenerateKeyPair creates a fresh signing keypair and a fresh,
// independently-generated X25519 key-exchange keypair. The two are not
// derived from one another: the key-exchange secret is its own
// cryptographically random scalar, and its public half is computed by
// scalar multiplication with the curve base point, per the identity
// model's invariant that both pairs come straight from a secure RNG.
func GenerateKeyPair() (*KeyPair, error) {
	signPub, signSec, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, perror.Wrap(perror.Crypto, "generate signing keypair", err)
	}

	var kxSec [32]byte
	if _, err := rand.Read(kxSec[:]); err != nil {
		return nil, perror.Wrap(perror.Crypto, "generate key-exchange secret", err)
	}
	clamp(&kxSec)

	kxPub, err := curve25519.X25519(kxSec[:], curve25519.Basepoint)
	if err != nil {
		return nil, perror.Wrap(perror.Crypto, "derive key-exchange public key", err)
	}

	kp := &KeyPair{SigningPublic: signPub, SigningSecret: signSec, ExchangeSecret: kxSec}
	copy(kp.ExchangePublic[:], kxPub)
	return kp, nil
}

// clamp applies the standard X25519 scalar clamp (RFC 7748 §5).
func clamp(k *[32]byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}

// UID derives the identity's stable identifier: the lowercase hex of the
// first 16 bytes of SHA-256(signing public key). Fails only if hashing the
// key produced an unexpected digest length, which cannot happen with
// SHA-256 — kept as a returned error rather than a panic because every
// other crypto operation in this package surfaces failure the same way.
func UID(signingPub ed25519.PublicKey) (string, error) {
	sum := sha256.Sum256(signingPub)
	if len(sum) < uidBytes {
		return "", perror.New(perror.Crypto, "hash too short for UID derivation")
	}
	return hex.EncodeToString(sum[:uidBytes]), nil
}

// MustUID is UID without the error return, for call sites that already
// know signingPub is well-formed (e.g. freshly generated keys).
func MustUID(signingPub ed25519.PublicKey) string {
	uid, err := UID(signingPub)
	if err != nil {
		panic(fmt.Sprintf("crypto: UID derivation failed: %v", err))
	}
	return uid
}

// SharedSecret computes the X25519 ECDH shared secret between our
// key-exchange secret and a peer's key-exchange public key. The same pair
// of identities always derives the same k: there is no ephemerality,
// per the product's fixed-long-term-secret design.
func SharedSecret(mySecret, theirPublic [32]byte) ([]byte, error) {
	shared, err := curve25519.X25519(mySecret[:], theirPublic[:])
	if err != nil {
		return nil, perror.Wrap(perror.Crypto, "derive shared secret", err)
	}
	return shared, nil
}

// DeriveX25519FromEd25519 is an alternate key-exchange key derivation that
// converts an Ed25519 keypair's seed into an X25519 private key via
// SHA-512 hash-and-clamp. It is not used to produce an identity's actual
// key-exchange keypair (see GenerateKeyPair) — it exists so tests and
// diagnostics can cross-check that two independently-generated identities
// still interoperate under the conversion some peers in the wild may use.
func DeriveX25519FromEd25519(signingSecret ed25519.PrivateKey) ([32]byte, error) {
	return ed25519SeedToX25519(signingSecret)
}
