package messaging

import (
	"encoding/base64"

	"github.com/pure2p/pure2p/internal/crypto"
	"github.com/pure2p/pure2p/internal/perror"
	"github.com/pure2p/pure2p/internal/wire"
)

// EncodeContactToken produces the base64url(CBOR(SignedToken)) string
// shared out of band as a contact token.
func EncodeContactToken(token *crypto.SignedToken) (string, error) {
	encoded, err := wire.Marshal(wire.CBOR, token)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(encoded), nil
}

// DecodeContactToken reverses EncodeContactToken.
func DecodeContactToken(tokenB64 string) (*crypto.SignedToken, error) {
	raw, err := base64.URLEncoding.DecodeString(tokenB64)
	if err != nil {
		return nil, perror.Wrap(perror.Codec, "decode base64url contact token", err)
	}

	var token crypto.SignedToken
	if err := wire.Unmarshal(wire.CBOR, raw, &token); err != nil {
		return nil, err
	}
	return &token, nil
}
