package codec

import (
	"fmt"

	"github.com/romedit/romedit/internal/romerr"
)

// BitfieldCodec renders a Bits value as a mnemonic letter string: one
// character per bit, lowercase when the bit is clear and uppercase when set.
// A '?' position in the mnemonic string displays as '0'/'1' instead of a
// letter. It is grounded on the original implementation's BinCodec
// (romlib/primitives.py), carried into SPEC_FULL.md's supplemented
// features.
type BitfieldCodec struct {
	mnemonic string
}

// NewBitfieldCodec builds a BitfieldCodec from a per-bit mnemonic string,
// one character per flag, in the same bit order as the struct's fields
// (lsb0: mnemonic[0] is bit 0). Repeated non-'?' letters are a SchemaError.
func NewBitfieldCodec(mnemonic string) (*BitfieldCodec, error) {
	seen := make(map[byte]bool)
	for i := 0; i < len(mnemonic); i++ {
		c := mnemonic[i]
		if c == '?' {
			continue
		}
		lower := toLower(c)
		if seen[lower] {
			return nil, fmt.Errorf("%w: bitfield mnemonic %q has a repeated letter %q", romerr.ErrSchemaError, mnemonic, string(c))
		}
		seen[lower] = true
	}
	return &BitfieldCodec{mnemonic: mnemonic}, nil
}

func toLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

// Encode renders bits (0/1 per entry, same length and order as the
// mnemonic) as a display string.
func (c *BitfieldCodec) Encode(bits []byte) (string, error) {
	if len(bits) != len(c.mnemonic) {
		return "", fmt.Errorf("%w: %d bits doesn't match mnemonic length %d", romerr.ErrValueOverflow, len(bits), len(c.mnemonic))
	}
	out := make([]byte, len(bits))
	for i, bit := range bits {
		ch := c.mnemonic[i]
		if ch == '?' {
			if bit != 0 {
				out[i] = '1'
			} else {
				out[i] = '0'
			}
			continue
		}
		if bit != 0 {
			out[i] = toUpper(ch)
		} else {
			out[i] = toLower(ch)
		}
	}
	return string(out), nil
}

// Decode parses a display string back into a bit array.
func (c *BitfieldCodec) Decode(text string) ([]byte, error) {
	if len(text) != len(c.mnemonic) {
		return nil, fmt.Errorf("%w: bitfield text %q doesn't match mnemonic length %d", romerr.ErrUnparseableValue, text, len(c.mnemonic))
	}
	out := make([]byte, len(text))
	for i := 0; i < len(text); i++ {
		ch := c.mnemonic[i]
		got := text[i]
		if ch == '?' {
			switch got {
			case '1':
				out[i] = 1
			case '0':
				out[i] = 0
			default:
				return nil, fmt.Errorf("%w: expected 0/1 at position %d of %q", romerr.ErrUnparseableValue, i, text)
			}
			continue
		}
		switch {
		case got == toUpper(ch):
			out[i] = 1
		case got == toLower(ch):
			out[i] = 0
		default:
			return nil, fmt.Errorf("%w: expected %q/%q at position %d of %q", romerr.ErrUnparseableValue, toLower(ch), toUpper(ch), i, text)
		}
	}
	return out, nil
}
