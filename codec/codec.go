// Package codec turns a message header into bytes and back.
//
// Only the header goes through a codec. Bulk payloads are raw bytes and are
// never encoded; the protocol package streams them after the header.
package codec

import (
	"github.com/pkg/errors"

	"sdr-rpc/message"
)

var (
	// ErrMalformed is returned when the bytes are not a well-formed header.
	ErrMalformed = errors.New("malformed message header")
	// ErrUnknownKind is returned when the header names a kind this side does not speak.
	ErrUnknownKind = errors.New("unknown message kind")
	// ErrPayloadConflict is returned when a header carries both an inline and a bulk payload.
	ErrPayloadConflict = errors.New("message carries both inline and bulk payload")
)

type Codec interface {
	Encode(msg *message.Message) ([]byte, error)
	Decode(data []byte) (*message.Message, error)
}

// Default is the codec both ends use. The header format is fixed; there is no negotiation.
var Default Codec = JSONCodec{}

// Validate checks the invariants every decoded or to-be-encoded header must hold.
func Validate(msg *message.Message) error {
	if !msg.Kind.Valid() {
		return errors.Wrapf(ErrUnknownKind, "kind %q", msg.Kind)
	}
	if msg.Kind.IsRequest() && msg.Name == "" {
		return errors.Wrapf(ErrMalformed, "%s request without name", msg.Kind)
	}
	if msg.DataLen != nil && *msg.DataLen < 0 {
		return errors.Wrapf(ErrMalformed, "negative data_len %d", *msg.DataLen)
	}
	if msg.Multipart && msg.DataLen == nil {
		return errors.Wrap(ErrMalformed, "multipart header without data_len")
	}
	if len(msg.Data) > 0 && (msg.DataLen != nil || msg.Bulk != nil) && !msg.Multipart {
		return ErrPayloadConflict
	}
	return nil
}
