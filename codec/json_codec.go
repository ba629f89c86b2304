package codec

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"sdr-rpc/message"
)

// JSONCodec encodes headers as compact JSON text.
// Human-readable on the wire, which keeps packet captures debuggable.
type JSONCodec struct{}

func (JSONCodec) Encode(msg *message.Message) ([]byte, error) {
	if err := Validate(msg); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func (JSONCodec) Decode(data []byte) (*message.Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	msg := &message.Message{}
	if err := dec.Decode(msg); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	if dec.More() {
		return nil, errors.Wrap(ErrMalformed, "trailing data after header")
	}
	if err := Validate(msg); err != nil {
		return nil, err
	}
	return msg, nil
}
