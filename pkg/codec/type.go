package codec

import (
	"fmt"

	"github.com/romedit/romedit/internal/romerr"
	"github.com/romedit/romedit/pkg/bitio"
)

// StrCodec is satisfied by *textcodec.Codec; it's redeclared here (matching
// bitio.StrCodec) so callers of this package don't need to import bitio
// just to pass a codec through.
type StrCodec = bitio.StrCodec

// Type is a primitive type descriptor: a Kind plus how it resolves
// endianness. Types are immutable once built; derived types (e.g. a
// game-specific pointer type with a zero-point adjustment) wrap a base Type
// rather than mutating it.
type Type struct {
	Name        string
	Kind        Kind
	ForceEndian bool
	Endian      bitio.Endian // meaningful only if ForceEndian

	// ZeroAdjust, when non-nil, is subtracted from the decoded integer on
	// read and added back before encoding on write. This implements the
	// "zero point" hook described in SPEC_FULL.md's domain stack for
	// game-specific pointer types.
	ZeroAdjust *int64
}

func (t *Type) resolveEndian(fieldEndian bitio.Endian) bitio.Endian {
	if t.ForceEndian {
		return t.Endian
	}
	return fieldEndian
}

// Decode reads a value of this type at offsetBits within bs. widthBits is
// the field's declared width; fieldEndian is used unless the type forces its
// own (uintbe/uintle/nbcdbe/nbcdle). codec is required for FixedString and
// TerminatedString kinds and ignored otherwise. It returns the decoded value
// and the number of bits actually consumed (equal to widthBits except for
// TerminatedString, whose length isn't known until the terminator is seen).
func (t *Type) Decode(bs *bitio.Bitstream, offsetBits, widthBits int, fieldEndian bitio.Endian, tc StrCodec) (Value, int, error) {
	endian := t.resolveEndian(fieldEndian)

	switch t.Kind {
	case KindInt:
		i, err := bs.ReadInt(offsetBits, widthBits, endian)
		if err != nil {
			return Value{}, 0, err
		}
		return t.adjustDecoded(IntValue(i)), widthBits, nil

	case KindUint:
		u, err := bs.ReadUint(offsetBits, widthBits, endian)
		if err != nil {
			return Value{}, 0, err
		}
		return t.adjustDecoded(UintValue(u)), widthBits, nil

	case KindBCD:
		u, err := bs.ReadBCD(offsetBits, widthBits, endian)
		if err != nil && !romerrIsInvalidEncoding(err) {
			return Value{}, 0, err
		}
		return BCDValue(u), widthBits, err

	case KindBytes:
		if widthBits%8 != 0 {
			return Value{}, 0, fmt.Errorf("%w: bytes type width %d is not byte-aligned", romerr.ErrSchemaError, widthBits)
		}
		b, err := bs.ReadBytes(offsetBits, widthBits/8)
		if err != nil {
			return Value{}, 0, err
		}
		return BytesValue(b), widthBits, nil

	case KindBits:
		b, err := bs.ReadBits(offsetBits, widthBits)
		if err != nil {
			return Value{}, 0, err
		}
		return BitsValue(toLSB0(b)), widthBits, nil

	case KindFixedString:
		if tc == nil {
			return Value{}, 0, fmt.Errorf("%w: str field has no codec", romerr.ErrSchemaError)
		}
		if widthBits%8 != 0 {
			return Value{}, 0, fmt.Errorf("%w: str type width %d is not byte-aligned", romerr.ErrSchemaError, widthBits)
		}
		s, err := bs.ReadStr(offsetBits, widthBits/8, tc)
		if err != nil {
			return Value{}, 0, err
		}
		return StrValue(s), widthBits, nil

	case KindTerminatedString:
		if tc == nil {
			return Value{}, 0, fmt.Errorf("%w: strz field has no codec", romerr.ErrSchemaError)
		}
		s, consumedBytes, err := bs.ReadStrz(offsetBits, tc)
		if err != nil {
			return Value{}, 0, err
		}
		return StrzValue(s), consumedBytes * 8, nil

	default:
		return Value{}, 0, fmt.Errorf("%w: unknown type kind %d", romerr.ErrSchemaError, t.Kind)
	}
}

// Encode writes v at offsetBits within bs, returning the number of bits
// written (meaningful for TerminatedString, whose encoded length includes
// the terminator).
func (t *Type) Encode(bs *bitio.Bitstream, offsetBits, widthBits int, fieldEndian bitio.Endian, tc StrCodec, v Value) (int, error) {
	endian := t.resolveEndian(fieldEndian)
	v = t.adjustForEncode(v)

	switch t.Kind {
	case KindInt:
		if err := bs.WriteInt(offsetBits, widthBits, endian, v.Int); err != nil {
			return 0, err
		}
		return widthBits, nil

	case KindUint:
		if err := bs.WriteUint(offsetBits, widthBits, endian, v.Uint); err != nil {
			return 0, err
		}
		return widthBits, nil

	case KindBCD:
		if err := bs.WriteBCD(offsetBits, widthBits, endian, v.Uint); err != nil {
			return 0, err
		}
		return widthBits, nil

	case KindBytes:
		if len(v.Bytes)*8 != widthBits {
			return 0, fmt.Errorf("%w: %d bytes doesn't fill %d-bit field", romerr.ErrValueOverflow, len(v.Bytes), widthBits)
		}
		if err := bs.WriteBytes(offsetBits, v.Bytes); err != nil {
			return 0, err
		}
		return widthBits, nil

	case KindBits:
		if len(v.Bits) != widthBits {
			return 0, fmt.Errorf("%w: %d bits doesn't fill %d-bit field", romerr.ErrValueOverflow, len(v.Bits), widthBits)
		}
		if err := bs.WriteBits(offsetBits, toLSB0(v.Bits)); err != nil {
			return 0, err
		}
		return widthBits, nil

	case KindFixedString:
		if tc == nil {
			return 0, fmt.Errorf("%w: str field has no codec", romerr.ErrSchemaError)
		}
		if err := bs.WriteStr(offsetBits, widthBits/8, tc, v.Str); err != nil {
			return 0, err
		}
		return widthBits, nil

	case KindTerminatedString:
		if tc == nil {
			return 0, fmt.Errorf("%w: strz field has no codec", romerr.ErrSchemaError)
		}
		n, err := bs.WriteStrz(offsetBits, tc, v.Str)
		if err != nil {
			return 0, err
		}
		return n * 8, nil

	default:
		return 0, fmt.Errorf("%w: unknown type kind %d", romerr.ErrSchemaError, t.Kind)
	}
}

func (t *Type) adjustDecoded(v Value) Value {
	if t.ZeroAdjust == nil {
		return v
	}
	switch v.Kind {
	case KindInt:
		v.Int -= *t.ZeroAdjust
	case KindUint, KindBCD:
		v.Uint = uint64(int64(v.Uint) - *t.ZeroAdjust)
	}
	return v
}

func (t *Type) adjustForEncode(v Value) Value {
	if t.ZeroAdjust == nil {
		return v
	}
	switch v.Kind {
	case KindInt:
		v.Int += *t.ZeroAdjust
	case KindUint, KindBCD:
		v.Uint = uint64(int64(v.Uint) + *t.ZeroAdjust)
	}
	return v
}

func romerrIsInvalidEncoding(err error) bool {
	return err != nil && romerr.Warning(err)
}

// toLSB0 reverses bit order within each 8-bit group of a bit array produced
// (or consumed) by Bitstream's msb0 convention, yielding (or accepting) the
// lsb0 numbering that bitfields use: bits[0] is the least significant bit of
// the field's first byte. It is its own inverse.
func toLSB0(bits []byte) []byte {
	out := make([]byte, len(bits))
	for i := 0; i < len(bits); i += 8 {
		group := 8
		if len(bits)-i < group {
			group = len(bits) - i
		}
		for j := 0; j < group; j++ {
			out[i+j] = bits[i+group-1-j]
		}
	}
	return out
}
