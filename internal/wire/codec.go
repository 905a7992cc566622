package wire

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"

	"github.com/pure2p/pure2p/internal/perror"
)

// Encoding selects the wire format a transport uses for a given body.
// Production traffic uses CBOR; Encoding debug is for local tooling and
// log inspection.
type Encoding int

const (
	CBOR Encoding = iota
	JSON
)

// Marshal encodes v in the given encoding.
func Marshal(enc Encoding, v interface{}) ([]byte, error) {
	switch enc {
	case CBOR:
		b, err := cbor.Marshal(v)
		if err != nil {
			return nil, perror.Wrap(perror.Codec, "cbor marshal", err)
		}
		return b, nil
	case JSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, perror.Wrap(perror.Codec, "json marshal", err)
		}
		return b, nil
	default:
		return nil, perror.New(perror.Codec, "unknown wire encoding")
	}
}

// Unmarshal decodes b into v using the given encoding.
func Unmarshal(enc Encoding, b []byte, v interface{}) error {
	switch enc {
	case CBOR:
		if err := cbor.Unmarshal(b, v); err != nil {
			return perror.Wrap(perror.Codec, "cbor unmarshal", err)
		}
		return nil
	case JSON:
		if err := json.Unmarshal(b, v); err != nil {
			return perror.Wrap(perror.Codec, "json unmarshal", err)
		}
		return nil
	default:
		return perror.New(perror.Codec, "unknown wire encoding")
	}
}

// ContentType returns the HTTP content-type string for enc.
func ContentType(enc Encoding) string {
	if enc == JSON {
		return "application/json"
	}
	return "application/cbor"
}

// EncodingFromContentType maps an incoming request's Content-Type header
// to an Encoding, defaulting to CBOR when the header is absent or
// unrecognized (production default).
func EncodingFromContentType(contentType string) Encoding {
	if contentType == "application/json" {
		return JSON
	}
	return CBOR
}
