package mmd

import (
	"errors"
	"fmt"
)

// Decoding errors. Every failure returned by the parsers is a *DecodeError
// wrapping one of these, so errors.Is can be used on the result.
var (
	ErrUnexpectedEOD       = errors.New("unexpected end of data")
	ErrInvalidIndexWidth   = errors.New("invalid index width")
	ErrUnsupportedEncoding = errors.New("unsupported text encoding")
	ErrUnknownKindTag      = errors.New("unrecognized kind tag")
	ErrInvalidMagic        = errors.New("invalid magic")
	ErrInvalidLength       = errors.New("invalid length")
)

// DecodeError describes where decoding stopped.
type DecodeError struct {
	Offset int64  // stream offset of the failed read
	Record string // record kind, e.g. "bone"
	Index  int    // record index within its section, -1 when not applicable
	Field  string
	Err    error
}

func (e *DecodeError) Error() string {
	rec := e.Record
	if e.Index >= 0 {
		rec = fmt.Sprintf("%s[%d]", e.Record, e.Index)
	}
	if e.Field != "" {
		rec += "." + e.Field
	}
	return fmt.Sprintf("mmd: %s at offset %d: %v", rec, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
