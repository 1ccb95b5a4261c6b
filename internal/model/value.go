package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// Kind is the type tag of a Value.
type Kind uint8

const (
	// KindUnavailable marks a metric that was not collected. It is the zero
	// Kind so an unset Value never reads as zero.
	KindUnavailable Kind = iota
	KindNumber
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "unavailable"
	}
}

// Value is a single metric value: a number, a string, a bool, or
// unavailable with a reason.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
}

// Number returns a numeric value. NaN and infinities cannot be encoded
// and are reported as unavailable.
func Number(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Unavailable("not a finite number")
	}
	return Value{kind: KindNumber, num: v}
}

// Int returns a numeric value holding an integer.
func Int(v int64) Value {
	return Number(float64(v))
}

func String(v string) Value {
	return Value{kind: KindString, str: v}
}

func Bool(v bool) Value {
	return Value{kind: KindBool, b: v}
}

// Unavailable returns a value recording why the metric is missing.
func Unavailable(reason string) Value {
	return Value{kind: KindUnavailable, str: reason}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) Available() bool {
	return v.kind != KindUnavailable
}

// Reason returns why the value is unavailable, or "" when it is available.
func (v Value) Reason() string {
	if v.kind != KindUnavailable {
		return ""
	}
	return v.str
}

func (v Value) Float() (float64, bool) {
	return v.num, v.kind == KindNumber
}

func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

func (v Value) BoolValue() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return fmt.Sprintf("%g", v.num)
	case KindString:
		return v.str
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	default:
		return "unavailable(" + v.str + ")"
	}
}

type unavailableWire struct {
	Unavailable bool   `json:"unavailable" cbor:"unavailable"`
	Reason      string `json:"reason,omitempty" cbor:"reason,omitempty"`
}

func (v Value) scalar() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindBool:
		return v.b
	default:
		return unavailableWire{Unavailable: true, Reason: v.str}
	}
}

func valueFromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Unavailable(""), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int64:
		return Int(t), nil
	case uint64:
		return Number(float64(t)), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case map[string]any:
		flag, _ := t["unavailable"].(bool)
		if !flag {
			return Value{}, fmt.Errorf("object metric value without unavailable marker")
		}
		reason, _ := t["reason"].(string)
		return Unavailable(reason), nil
	default:
		return Value{}, fmt.Errorf("unsupported metric value type %T", raw)
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.scalar())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := valueFromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalCBOR implements cbor.Marshaler.
func (v Value) MarshalCBOR() ([]byte, error) {
	enc, err := cborEncMode()
	if err != nil {
		return nil, err
	}
	return enc.Marshal(v.scalar())
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (v *Value) UnmarshalCBOR(data []byte) error {
	dec, err := cborDecMode()
	if err != nil {
		return err
	}
	var raw any
	if err := dec.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := valueFromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
