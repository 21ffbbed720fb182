package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind discriminates the payload of a Value.
type ValueKind int

const (
	KindString ValueKind = iota
	KindBool
	KindNumber
)

// Value is a single extension entry: exactly one of string, bool, or number.
// Extension maps carry broker-specific metadata (native status strings,
// day-trading flags, idempotency tokens) without widening the core model.
type Value struct {
	Kind ValueKind
	Str  string
	Bool bool
	Num  float64
}

// StringValue returns a string-kinded Value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// BoolValue returns a bool-kinded Value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// NumberValue returns a number-kinded Value.
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// MarshalJSON encodes the underlying scalar directly, without a wrapper
// object.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindNumber:
		return []byte(strconv.FormatFloat(v.Num, 'f', -1, 64)), nil
	default:
		return nil, fmt.Errorf("unknown extension value kind %d", v.Kind)
	}
}

// UnmarshalJSON decodes a bare JSON scalar. Null, objects, and arrays are
// not valid extension values.
func (v *Value) UnmarshalJSON(data []byte) error {
	// Unmarshal treats null as a no-op on a string target, so it has to be
	// rejected explicitly.
	if string(bytes.TrimSpace(data)) == "null" {
		return fmt.Errorf("extension value must be a string, bool, or number, got null")
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = StringValue(s)
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = BoolValue(b)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*v = NumberValue(n)
		return nil
	}
	return fmt.Errorf("extension value must be a string, bool, or number, got %s", data)
}

// Extensions is an open-ended key-value side channel for broker-specific
// metadata.
type Extensions map[string]Value
