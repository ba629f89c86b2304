package codec

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"

	"sdr-rpc/message"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	cdc := JSONCodec{}

	original := message.New(message.KindPropertySet, "center_freq", json.RawMessage(`6000000`))

	data, err := cdc.Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := cdc.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.Kind != original.Kind {
		t.Errorf("Kind mismatch: got %s, want %s", decoded.Kind, original.Kind)
	}
	if decoded.Name != original.Name {
		t.Errorf("Name mismatch: got %s, want %s", decoded.Name, original.Name)
	}
	if string(decoded.Data) != string(original.Data) {
		t.Errorf("Data mismatch: got %s, want %s", decoded.Data, original.Data)
	}
	if decoded.Timestamp != original.Timestamp {
		t.Errorf("Timestamp mismatch: got %v, want %v", decoded.Timestamp, original.Timestamp)
	}
}

func TestJSONCodecDeclaredLength(t *testing.T) {
	cdc := JSONCodec{}
	n := 0
	msg := message.NewBulkResponse(nil)
	msg.DataLen = &n

	data, err := cdc.Encode(msg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := cdc.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.DataLen == nil || *decoded.DataLen != 0 {
		t.Fatalf("expected declared length 0, got %v", decoded.DataLen)
	}
	if !decoded.Succeeded() {
		t.Fatal("expected success flag to survive")
	}
}

func TestJSONCodecRejects(t *testing.T) {
	cdc := JSONCodec{}
	cases := []struct {
		name string
		in   string
		want error
	}{
		{"garbage", `not json`, ErrMalformed},
		{"trailing", `{"kind":"ack"}{"kind":"ack"}`, ErrMalformed},
		{"unknown kind", `{"kind":"reboot","name":"x"}`, ErrUnknownKind},
		{"nameless request", `{"kind":"method"}`, ErrMalformed},
		{"negative length", `{"kind":"response","data_len":-1}`, ErrMalformed},
		{"two payloads", `{"kind":"response","data":[1],"data_len":4}`, ErrPayloadConflict},
		{"multipart without length", `{"kind":"method","name":"x","multipart":true}`, ErrMalformed},
	}
	for _, tc := range cases {
		_, err := cdc.Decode([]byte(tc.in))
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}
