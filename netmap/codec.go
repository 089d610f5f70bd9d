package netmap

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("netmap: cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthForbidden,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxNestedLevels:   16,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("netmap: cbor dec mode: %v", err))
	}
}

// Marshal returns the canonical (core deterministic) CBOR encoding of v.
//
// Every byte sequence that is hashed or signed passes through Marshal.
func Marshal(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, WrapError(KindInternal, "NM-CODEC-001", "canonical encoding failed", err)
	}
	return b, nil
}

// Unmarshal strictly decodes data into v and requires data to already be in
// canonical form: unknown fields, duplicate keys, indefinite lengths, trailing
// bytes and non-canonical encodings are all rejected as malformed.
func Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return NewError(KindMalformed, "NM-CODEC-002", "empty input")
	}
	if err := decMode.Unmarshal(data, v); err != nil {
		return WrapError(KindMalformed, "NM-CODEC-003", "input does not match schema", err)
	}
	canon, err := encMode.Marshal(v)
	if err != nil {
		return WrapError(KindMalformed, "NM-CODEC-004", "re-encoding failed", err)
	}
	if !bytes.Equal(canon, data) {
		return NewError(KindMalformed, "NM-CODEC-005", "input is not canonical")
	}
	return nil
}
