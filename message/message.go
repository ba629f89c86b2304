// Package message defines the unit of wire exchange between an SDR client and server.
//
// A Message is a small structured header, optionally followed by a bulk payload
// whose byte length is declared in the header before the transfer starts.
//
//   - On request:  Kind is method/prop_get/prop_set, Name is set, Data holds the inline argument.
//   - On response: Kind is response/ack/nak, Data or Bulk holds the result, Code/Error describe failures.
package message

import (
	"encoding/json"
	"time"
)

// Kind identifies what a message asks for or answers with.
type Kind string

const (
	KindMethodCall  Kind = "method"   // Client → Server: invoke a whitelisted method
	KindPropertyGet Kind = "prop_get" // Client → Server: read a whitelisted property
	KindPropertySet Kind = "prop_set" // Client → Server: write a whitelisted property
	KindResponse    Kind = "response" // Server → Client: result of a call
	KindACK         Kind = "ack"      // Either side: go ahead / bare success
	KindNAK         Kind = "nak"      // Either side: refused
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindMethodCall, KindPropertyGet, KindPropertySet, KindResponse, KindACK, KindNAK:
		return true
	}
	return false
}

// IsRequest reports whether k is sent by a client to start an exchange.
func (k Kind) IsRequest() bool {
	return k == KindMethodCall || k == KindPropertyGet || k == KindPropertySet
}

// Code classifies a failed exchange so the client can map it back to an error category.
type Code string

const (
	CodePermissionDenied Code = "permission_denied"
	CodeInvalidArgument  Code = "invalid_argument"
	CodeDeviceError      Code = "device_error"
	CodeProtocolError    Code = "protocol_error"
	CodeTimeout          Code = "timeout"
	CodeRateLimited      Code = "rate_limited"
	CodeInternal         Code = "internal"
)

// Message is the header exchanged for every request, response and acknowledgement.
//
// At most one payload slot is used: Data (inline JSON) or Bulk (raw bytes).
// DataLen is filled in by the protocol layer from len(Bulk) when sending and
// from the peer's declaration when receiving.
type Message struct {
	Kind      Kind            `json:"kind"`
	Name      string          `json:"name,omitempty"` // Method or property name, empty for response/ack/nak
	Timestamp float64         `json:"timestamp"`      // Seconds since epoch, diagnostic only
	Data      json.RawMessage `json:"data,omitempty"`
	DataLen   *int            `json:"data_len,omitempty"`  // Declared bulk length, nil when no bulk follows
	Multipart bool            `json:"multipart,omitempty"` // Header-of-header: the real header follows as bulk
	Success   *bool           `json:"success,omitempty"`   // Set on responses
	OK        *bool           `json:"ok,omitempty"`        // Set on ack/nak
	Code      Code            `json:"code,omitempty"`
	Error     string          `json:"error,omitempty"`
	Transient bool            `json:"transient,omitempty"` // Failure may succeed if repeated

	Bulk []byte `json:"-"`
}

func now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func boolPtr(b bool) *bool { return &b }

// New returns a request of the given kind with its timestamp set.
func New(kind Kind, name string, data json.RawMessage) *Message {
	return &Message{Kind: kind, Name: name, Timestamp: now(), Data: data}
}

// NewACK returns a positive acknowledgement.
func NewACK() *Message {
	return &Message{Kind: KindACK, Timestamp: now(), OK: boolPtr(true)}
}

// NewNAK returns a negative acknowledgement carrying a failure code.
func NewNAK(code Code, reason string) *Message {
	return &Message{Kind: KindNAK, Timestamp: now(), OK: boolPtr(false), Code: code, Error: reason}
}

// NewResponse returns a successful response with an inline result (may be nil).
func NewResponse(data json.RawMessage) *Message {
	return &Message{Kind: KindResponse, Timestamp: now(), Success: boolPtr(true), Data: data}
}

// NewBulkResponse returns a successful response whose result is sent as a bulk payload.
func NewBulkResponse(bulk []byte) *Message {
	if bulk == nil {
		bulk = []byte{}
	}
	return &Message{Kind: KindResponse, Timestamp: now(), Success: boolPtr(true), Bulk: bulk}
}

// NewFailure returns a response reporting that the call reached the device but failed.
func NewFailure(code Code, reason string) *Message {
	return &Message{Kind: KindResponse, Timestamp: now(), Success: boolPtr(false), Code: code, Error: reason}
}

// Succeeded reports the outcome of a response, ack or nak.
func (m *Message) Succeeded() bool {
	switch m.Kind {
	case KindResponse:
		return m.Success != nil && *m.Success
	case KindACK:
		return m.OK == nil || *m.OK
	case KindNAK:
		return false
	}
	return false
}

// Failed reports whether m is a failure response or NAK carrying code.
func (m *Message) Failed(code Code) bool {
	return !m.Succeeded() && m.Code == code
}

// HasBulk reports whether a bulk payload is declared or attached.
func (m *Message) HasBulk() bool {
	return m.DataLen != nil || m.Bulk != nil
}
