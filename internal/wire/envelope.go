// Package wire defines the protocol messages exchanged between nodes and
// their CBOR/JSON codecs. Types here are pure data: no I/O, no storage, no
// crypto beyond what callers pass in as already-sealed bytes.
package wire

import (
	"github.com/pure2p/pure2p/internal/perror"
)

// EnvelopeVersion is the only MessageEnvelope version this build speaks.
// A received envelope with any other version is a hard reject.
const EnvelopeVersion = 1

// Message type strings. The set is extensible; these are the two the
// core system understands today.
const (
	MessageTypeText       = "text"
	MessageTypeDeleteChat = "delete_chat"
)

// MessageEnvelope is the signed/encrypted unit exchanged between nodes.
// Payload is either plaintext UTF-8 (when Encrypted is false) or a
// CBOR-encoded crypto.SealedPayload (when Encrypted is true); wire does
// not interpret it either way.
type MessageEnvelope struct {
	Version     int    `cbor:"version" json:"version"`
	ID          string `cbor:"id" json:"id"`
	FromUID     string `cbor:"from_uid" json:"from_uid"`
	ToUID       string `cbor:"to_uid" json:"to_uid"`
	TimestampMs int64  `cbor:"timestamp_ms" json:"timestamp_ms"`
	MessageType string `cbor:"message_type" json:"message_type"`
	Encrypted   bool   `cbor:"encrypted" json:"encrypted"`
	Payload     []byte `cbor:"payload" json:"payload"`
}

// Validate checks the envelope's structural invariants. It does not
// verify cryptographic authenticity; that happens one layer up once the
// payload has been decrypted.
func (e *MessageEnvelope) Validate() error {
	if e.Version != EnvelopeVersion {
		return perror.New(perror.Validation, "unsupported envelope version")
	}
	if e.ID == "" {
		return perror.New(perror.Validation, "envelope missing id")
	}
	if e.FromUID == "" || e.ToUID == "" {
		return perror.New(perror.Validation, "envelope missing from_uid or to_uid")
	}
	if e.MessageType == "" {
		return perror.New(perror.Validation, "envelope missing message_type")
	}
	return nil
}

// PingRequest carries a base64url(CBOR(SignedContactToken)) string so it
// can ride inside either a CBOR or JSON transport body without nested
// binary-in-binary ambiguity.
type PingRequest struct {
	ContactToken string `cbor:"contact_token" json:"contact_token"`
}

// PingResponse is returned by the reciprocal-import handshake.
type PingResponse struct {
	UID    string `cbor:"uid" json:"uid"`
	Status string `cbor:"status" json:"status"`
}

// StatusOK is the only successful PingResponse.Status value.
const StatusOK = "ok"

// MessageRequest is the body accepted by the primary /message endpoint.
type MessageRequest struct {
	FromUID     string `cbor:"from_uid" json:"from_uid"`
	MessageType string `cbor:"message_type" json:"message_type"`
	Payload     []byte `cbor:"payload" json:"payload"`
}
