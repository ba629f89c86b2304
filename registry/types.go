package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/pkg/errors"

	"sdr-rpc/device"
)

// ArgType accepts one shape of wire argument.
type ArgType interface {
	Name() string
	Parse(raw json.RawMessage) (any, error)
}

var (
	Int          ArgType = intType{}                  // integral JSON number -> int
	Count        ArgType = intType{nonNegative: true} // non-negative integral JSON number -> int
	Float        ArgType = floatType{}                // any JSON number -> float64
	String       ArgType = stringType{}               // JSON string -> string
	Bool         ArgType = boolType{}                 // JSON boolean -> bool
	AutoGain     ArgType = autoGainType{}             // "auto" -> device.AutoGain
	SamplingMode ArgType = directSamplingType{}       // "i", "q", "off" -> device.DirectSampling
)

// MaxCount accepts a non-negative integral JSON number no larger than limit.
func MaxCount(limit int) ArgType { return intType{nonNegative: true, bounded: true, max: limit} }

// Default accepts a null or missing argument and substitutes v.
func Default(v any) ArgType { return defaultType{v: v} }

var errNotNumber = errors.New("not a number")

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func parseNumber(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return 0, errNotNumber
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}

type intType struct {
	nonNegative bool
	bounded     bool
	max         int
}

func (t intType) Name() string {
	if t.bounded {
		return fmt.Sprintf("count<=%d", t.max)
	}
	if t.nonNegative {
		return "count"
	}
	return "int"
}

func (t intType) Parse(raw json.RawMessage) (any, error) {
	f, err := parseNumber(raw)
	if err != nil {
		return nil, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return nil, errors.Errorf("%v is not an int", f)
	}
	if t.nonNegative && f < 0 {
		return nil, errors.Errorf("%v is negative", f)
	}
	if t.bounded && f > float64(t.max) {
		return nil, errors.Errorf("%v exceeds %d", f, t.max)
	}
	return int(f), nil
}

type floatType struct{}

func (floatType) Name() string { return "float" }

func (floatType) Parse(raw json.RawMessage) (any, error) {
	f, err := parseNumber(raw)
	if err != nil {
		return nil, err
	}
	return f, nil
}

type stringType struct{}

func (stringType) Name() string { return "string" }

func (stringType) Parse(raw json.RawMessage) (any, error) {
	var s string
	if isNull(raw) {
		return nil, errors.New("null is not a string")
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return s, nil
}

type boolType struct{}

func (boolType) Name() string { return "bool" }

func (boolType) Parse(raw json.RawMessage) (any, error) {
	var b bool
	if isNull(raw) {
		return nil, errors.New("null is not a bool")
	}
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	return b, nil
}

type autoGainType struct{}

func (autoGainType) Name() string { return `"auto"` }

func (autoGainType) Parse(raw json.RawMessage) (any, error) {
	s, err := String.Parse(raw)
	if err != nil {
		return nil, err
	}
	if s.(string) != "auto" {
		return nil, errors.Errorf("%q is not auto", s)
	}
	return device.AutoGain, nil
}

type directSamplingType struct{}

func (directSamplingType) Name() string { return `"i"|"q"|"off"` }

func (directSamplingType) Parse(raw json.RawMessage) (any, error) {
	s, err := String.Parse(raw)
	if err != nil {
		return nil, err
	}
	return device.ParseDirectSampling(s.(string))
}

type defaultType struct{ v any }

func (defaultType) Name() string { return "null" }

func (t defaultType) Parse(raw json.RawMessage) (any, error) {
	if !isNull(raw) {
		return nil, errors.New("not null")
	}
	return t.v, nil
}
