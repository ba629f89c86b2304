package message

import (
	"encoding/json"
	"testing"
)

func TestKindValid(t *testing.T) {
	for _, k := range []Kind{KindMethodCall, KindPropertyGet, KindPropertySet, KindResponse, KindACK, KindNAK} {
		if !k.Valid() {
			t.Errorf("kind %q should be valid", k)
		}
	}
	if Kind("multipart").Valid() {
		t.Error("unknown kind reported valid")
	}
	if !KindPropertySet.IsRequest() || KindResponse.IsRequest() {
		t.Error("IsRequest mismatch")
	}
}

func TestSucceeded(t *testing.T) {
	cases := []struct {
		name string
		msg  *Message
		want bool
	}{
		{"ack", NewACK(), true},
		{"nak", NewNAK(CodePermissionDenied, "nope"), false},
		{"response", NewResponse(json.RawMessage(`1`)), true},
		{"bulk response", NewBulkResponse(nil), true},
		{"failure", NewFailure(CodeDeviceError, "usb"), false},
		{"request", New(KindMethodCall, "get_gains", nil), false},
	}
	for _, tc := range cases {
		if got := tc.msg.Succeeded(); got != tc.want {
			t.Errorf("%s: Succeeded() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestBulkNotSerialized(t *testing.T) {
	msg := NewBulkResponse([]byte{1, 2, 3})
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if _, ok := decoded["Bulk"]; ok {
		t.Fatalf("bulk payload leaked into header: %s", data)
	}
	if !msg.HasBulk() {
		t.Fatal("expected HasBulk")
	}
}
