// Package romerr defines the sentinel error taxonomy shared by every layer
// of romedit, from the bit-level codec up through the patch engine.
//
// Callers wrap one of these with fmt.Errorf("%w: detail", romerr.ErrX) and
// check with errors.Is. The wrapping keeps a stable, documented error
// surface even as the detail message format changes.
package romerr

import "errors"

var (
	// ErrOutOfBounds is returned when a bit offset falls outside the
	// backing buffer.
	ErrOutOfBounds = errors.New("romedit: offset out of bounds")

	// ErrValueOverflow is returned when a value will not fit in a field's
	// declared width.
	ErrValueOverflow = errors.New("romedit: value overflows field width")

	// ErrInvalidEncoding is returned when a byte sequence can't be
	// represented faithfully by a codec (e.g. a BCD nibble above 9).
	ErrInvalidEncoding = errors.New("romedit: invalid encoding")

	// ErrPointerOutOfRange is returned when a resolved pointer falls
	// outside its target table.
	ErrPointerOutOfRange = errors.New("romedit: pointer out of range")

	// ErrUnparseableValue is returned when textual input doesn't match a
	// field's type.
	ErrUnparseableValue = errors.New("romedit: unparseable value")

	// ErrSchemaError is returned when a map is inconsistent or
	// unresolvable.
	ErrSchemaError = errors.New("romedit: schema error")

	// ErrPatchFormatError is returned when an IPS/IPST payload is
	// malformed.
	ErrPatchFormatError = errors.New("romedit: patch format error")

	// ErrPatchExpandsROM is returned when a patch writes past the end of
	// the image it's being applied to.
	ErrPatchExpandsROM = errors.New("romedit: patch expands ROM")

	// ErrUnknownReference is returned when a cross-reference name doesn't
	// resolve to any entity row.
	ErrUnknownReference = errors.New("romedit: unknown reference")
)

// Warning reports whether err belongs to the class of errors that §7 of the
// spec treats as warnings during dump and fatal errors during build:
// ValueOverflow, InvalidEncoding and PointerOutOfRange.
func Warning(err error) bool {
	return errors.Is(err, ErrValueOverflow) ||
		errors.Is(err, ErrInvalidEncoding) ||
		errors.Is(err, ErrPointerOutOfRange)
}
