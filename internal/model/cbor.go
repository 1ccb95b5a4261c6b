package models

import (
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Core Deterministic Encoding (RFC 8949 §4.2): the same payload always
// produces the same bytes, which keeps idempotency keys stable.
var cborEncMode = sync.OnceValues(func() (cbor.EncMode, error) {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	return opts.EncMode()
})

var cborDecMode = sync.OnceValues(func() (cbor.DecMode, error) {
	return cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
})

// MarshalCBOR encodes v with the deterministic encoder.
func MarshalCBOR(v any) ([]byte, error) {
	enc, err := cborEncMode()
	if err != nil {
		return nil, err
	}
	return enc.Marshal(v)
}

// UnmarshalCBOR decodes data into v.
func UnmarshalCBOR(data []byte, v any) error {
	dec, err := cborDecMode()
	if err != nil {
		return err
	}
	return dec.Unmarshal(data, v)
}
