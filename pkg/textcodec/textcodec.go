// Package textcodec implements byte<->character translation tables used by
// str/strz fields: a map-defined table of byte sequences to symbolic
// characters, plus an optional multi-byte terminator sequence for
// null-terminated strings.
//
// Decoding is greedy-longest-match: at each position, the codec tries the
// longest byte sequence it knows about first. A byte that matches no entry
// is rendered as a hex escape "\xNN", which the encoder reverses exactly, so
// encode(decode(b)) == b for byte strings, known or not, that contain no
// terminator sequence (decoding stops at the terminator).
package textcodec

import (
	"fmt"
	"strings"

	"github.com/romedit/romedit/internal/romerr"
)

// Entry maps one byte sequence to one symbolic character (or short string).
type Entry struct {
	Bytes []byte
	Char  string
}

// Codec is an immutable byte<->char translation table.
type Codec struct {
	decodeMap  map[string]string
	encodeMap  map[string][]byte
	maxByteLen int
	maxCharLen int
	terminator []byte
}

// New builds a Codec from entries and an optional terminator sequence.
// Duplicate byte sequences or duplicate characters are a SchemaError: the
// map must define a bijection.
func New(entries []Entry, terminator []byte) (*Codec, error) {
	c := &Codec{
		decodeMap: make(map[string]string, len(entries)),
		encodeMap: make(map[string][]byte, len(entries)),
	}
	for _, e := range entries {
		if len(e.Bytes) == 0 {
			return nil, fmt.Errorf("%w: codec entry with empty byte sequence", romerr.ErrSchemaError)
		}
		bkey := string(e.Bytes)
		if _, dup := c.decodeMap[bkey]; dup {
			return nil, fmt.Errorf("%w: duplicate codec byte sequence %x", romerr.ErrSchemaError, e.Bytes)
		}
		if _, dup := c.encodeMap[e.Char]; dup {
			return nil, fmt.Errorf("%w: duplicate codec character %q", romerr.ErrSchemaError, e.Char)
		}
		c.decodeMap[bkey] = e.Char
		c.encodeMap[e.Char] = e.Bytes
		if len(e.Bytes) > c.maxByteLen {
			c.maxByteLen = len(e.Bytes)
		}
		if len(e.Char) > c.maxCharLen {
			c.maxCharLen = len(e.Char)
		}
	}
	c.terminator = append([]byte{}, terminator...)
	return c, nil
}

// Terminator returns the codec's configured terminator sequence, or nil if
// it has none.
func (c *Codec) Terminator() []byte {
	if len(c.terminator) == 0 {
		return nil
	}
	return append([]byte{}, c.terminator...)
}

// DecodeTo decodes raw greedily from the start, stopping either when raw is
// exhausted (for fixed-length str fields) or when the configured terminator
// is matched (for strz fields, which have none stop only at end of buffer).
// The returned consumed count includes the terminator bytes, if any matched.
func (c *Codec) DecodeTo(raw []byte) (string, int) {
	var sb strings.Builder
	i := 0
	for i < len(raw) {
		if len(c.terminator) > 0 && i+len(c.terminator) <= len(raw) &&
			string(raw[i:i+len(c.terminator)]) == string(c.terminator) {
			i += len(c.terminator)
			return sb.String(), i
		}

		matched := false
		maxL := c.maxByteLen
		if rem := len(raw) - i; rem < maxL {
			maxL = rem
		}
		for l := maxL; l >= 1; l-- {
			if ch, ok := c.decodeMap[string(raw[i:i+l])]; ok {
				sb.WriteString(ch)
				i += l
				matched = true
				break
			}
		}
		if !matched {
			sb.WriteString(fmt.Sprintf("\\x%02X", raw[i]))
			i++
		}
	}
	return sb.String(), i
}

// Encode reverses DecodeTo: known characters map back to their byte
// sequence, and "\xNN" hex escapes map back to the literal byte NN. Any
// other text returns ErrUnparseableValue.
func (c *Codec) Encode(text string) ([]byte, error) {
	var out []byte
	i := 0
	for i < len(text) {
		if b, n, ok := decodeHexEscape(text[i:]); ok {
			out = append(out, b)
			i += n
			continue
		}

		matched := false
		maxL := c.maxCharLen
		if rem := len(text) - i; rem < maxL {
			maxL = rem
		}
		for l := maxL; l >= 1; l-- {
			if bs, ok := c.encodeMap[text[i:i+l]]; ok {
				out = append(out, bs...)
				i += l
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w: no codec entry for %q at position %d", romerr.ErrUnparseableValue, text[i:], i)
		}
	}
	return out, nil
}

func decodeHexEscape(s string) (b byte, consumed int, ok bool) {
	if len(s) < 4 || s[0] != '\\' || s[1] != 'x' {
		return 0, 0, false
	}
	hi, ok1 := hexDigit(s[2])
	lo, ok2 := hexDigit(s[3])
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return hi<<4 | lo, 4, true
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}
