// Package codec wraps CBOR encoding so the rest of the module does not
// import fxamacker/cbor directly. Cities on constrained hosts may push
// telemetry as CBOR instead of JSON.
package codec

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// ContentType is the media type used for CBOR request bodies.
const ContentType = "application/cbor"

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v. Unknown fields are rejected, matching the
// strict JSON decoding on the HTTP API.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Decode reads a single CBOR item from r into v.
func Decode(r io.Reader, v any) error {
	return decMode.NewDecoder(r).Decode(v)
}
