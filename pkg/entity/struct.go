package entity

import (
	"fmt"
	"strconv"

	"github.com/romedit/romedit/internal/romerr"
	"github.com/romedit/romedit/pkg/bitio"
	"github.com/romedit/romedit/pkg/codec"
	"github.com/romedit/romedit/pkg/rommap"
)

// DefaultEndian is used for fields whose type doesn't force its own
// (uintbe/uintle/nbcdbe/nbcdle); the map format has no separate per-field
// endian column.
const DefaultEndian = bitio.BigEndian

// Struct is a view over a shared Bitstream at a fixed bit offset: it has no
// storage of its own, so many Structs (table rows, entity members) can
// address the same underlying ROM buffer simultaneously.
type Struct struct {
	schema    *Schema
	def       *rommap.StructDef
	bs        *bitio.Bitstream
	baseBits  int
	rootBits  int // offset of the containing ROM buffer's own origin, for Origin: root fields
}

// NewStruct builds a Struct view at baseBits within bs. rootBits is the
// offset fields declared with Origin: root measure from (normally 0).
func NewStruct(schema *Schema, def *rommap.StructDef, bs *bitio.Bitstream, baseBits, rootBits int) *Struct {
	return &Struct{schema: schema, def: def, bs: bs, baseBits: baseBits, rootBits: rootBits}
}

// Def returns the struct's schema definition.
func (s *Struct) Def() *rommap.StructDef { return s.def }

func (s *Struct) field(id string) (rommap.FieldDef, error) {
	for _, f := range s.def.Fields {
		if f.ID == id {
			return f, nil
		}
	}
	return rommap.FieldDef{}, fmt.Errorf("%w: struct %q has no field %q", romerr.ErrSchemaError, s.def.ID, id)
}

func (s *Struct) offsetFor(f rommap.FieldDef) int {
	if f.Origin == rommap.OriginRoot {
		return s.rootBits + f.OffsetBits
	}
	return s.baseBits + f.OffsetBits
}

func (s *Struct) typeFor(f rommap.FieldDef) (*codec.Type, error) {
	t, ok := s.schema.Registry.Lookup(f.Type)
	if !ok {
		return nil, fmt.Errorf("%w: field %q has unknown type %q", romerr.ErrSchemaError, f.ID, f.Type)
	}
	return t, nil
}

// Get decodes the named field. For str/strz fields it resolves the codec
// named by the field's Ref column.
func (s *Struct) Get(id string) (codec.Value, error) {
	f, err := s.field(id)
	if err != nil {
		return codec.Value{}, err
	}
	t, err := s.typeFor(f)
	if err != nil {
		return codec.Value{}, err
	}

	var tc codec.StrCodec
	if t.Kind == codec.KindFixedString || t.Kind == codec.KindTerminatedString {
		tc, err = s.schema.fieldCodec(f)
		if err != nil {
			return codec.Value{}, err
		}
	}

	v, _, err := t.Decode(s.bs, s.offsetFor(f), f.SizeBits, DefaultEndian, tc)
	return v, err
}

// Set encodes v into the named field.
func (s *Struct) Set(id string, v codec.Value) error {
	f, err := s.field(id)
	if err != nil {
		return err
	}
	t, err := s.typeFor(f)
	if err != nil {
		return err
	}

	var tc codec.StrCodec
	if t.Kind == codec.KindFixedString || t.Kind == codec.KindTerminatedString {
		tc, err = s.schema.fieldCodec(f)
		if err != nil {
			return err
		}
	}

	_, err = t.Encode(s.bs, s.offsetFor(f), f.SizeBits, DefaultEndian, tc, v)
	return err
}

// IsPresent reports whether an optional field is present, per §4.4's
// sentinel convention: a field declared with sentinel=N is absent when its
// raw integer value equals N.
func (s *Struct) IsPresent(id string) (bool, error) {
	f, err := s.field(id)
	if err != nil {
		return false, err
	}
	if !f.Optional {
		return true, nil
	}
	if !f.HasSentinel {
		return true, nil
	}
	v, err := s.Get(id)
	if err != nil {
		return false, err
	}
	return v.AsInt64() != f.Sentinel, nil
}

// Display renders the named field for human consumption: an enum-typed
// field (Display: "enum:<id>") renders its symbolic name, a cross-reference
// field (a non-str/strz field with a Ref) renders the referenced row's
// name, and everything else falls back to its plain decoded value. A
// bitfield struct's mnemonic is rendered by BitfieldText, not by Display.
//
// A warning-class decode error (value overflow, invalid encoding, pointer
// out of range) doesn't stop rendering: Display still returns its
// best-effort text alongside the error, leaving the decision of whether to
// treat it as fatal to the caller (§7's strict mode).
func (s *Struct) Display(id string) (string, error) {
	f, err := s.field(id)
	if err != nil {
		return "", err
	}
	v, warn := s.Get(id)
	if warn != nil && !romerr.Warning(warn) {
		return "", warn
	}

	if e, eerr := s.schema.fieldEnum(f); eerr != nil {
		return "", eerr
	} else if e != nil {
		return e.Render(v.AsInt64()), warn
	}

	// A non-str/strz field with a Ref is a cross-reference (§3, §4.5): its
	// rendered form is the target table's row name, not its raw integer.
	if f.Ref != "" && f.Type != "str" && f.Type != "strz" {
		idx, ierr := s.schema.refIndex(f.Ref)
		if ierr != nil {
			return "", ierr
		}
		name, nerr := idx.Name(int(v.AsInt64()))
		if nerr != nil {
			if !romerr.Warning(nerr) {
				return "", nerr
			}
			return fmt.Sprintf("%d", v.AsInt64()), nerr
		}
		return name, warn
	}

	switch v.Kind {
	case codec.KindBytes:
		return fmt.Sprintf("%x", v.Bytes), warn
	case codec.KindFixedString, codec.KindTerminatedString:
		return v.Str, warn
	default:
		return fmt.Sprintf("%d", v.AsInt64()), warn
	}
}

// DisplayHex renders an int/uint/BCD field as zero-padded hex, the digit
// width derived from the field's bit width (ceil(bits/8)*2 digits) rather
// than a fixed width, matching the original UInt.hex/BCD.hex helpers.
func (s *Struct) DisplayHex(id string) (string, error) {
	f, err := s.field(id)
	if err != nil {
		return "", err
	}
	v, warn := s.Get(id)
	if warn != nil && !romerr.Warning(warn) {
		return "", warn
	}
	switch v.Kind {
	case codec.KindInt, codec.KindUint, codec.KindBCD:
		digits := (f.SizeBits + 7) / 8 * 2
		mask := uint64(1)<<uint(f.SizeBits) - 1
		if f.SizeBits >= 64 {
			mask = ^uint64(0)
		}
		return fmt.Sprintf("%0*x", digits, uint64(v.AsInt64())&mask), warn
	default:
		return "", fmt.Errorf("%w: field %q is not an integer type", romerr.ErrSchemaError, id)
	}
}

// SetDisplay parses text the same way Display rendered it and writes the
// result back: an enum-typed field resolves text through the enum first, a
// cross-reference field resolves text as a row name of the referenced
// table, and everything else is parsed as a plain integer, byte string or
// codec text according to the field's Kind.
func (s *Struct) SetDisplay(id, text string) error {
	f, err := s.field(id)
	if err != nil {
		return err
	}
	t, err := s.typeFor(f)
	if err != nil {
		return err
	}

	if e, eerr := s.schema.fieldEnum(f); eerr != nil {
		return eerr
	} else if e != nil {
		n, perr := e.Parse(text)
		if perr != nil {
			return perr
		}
		return s.Set(id, valueForKind(t.Kind, n))
	}

	if f.Ref != "" && f.Type != "str" && f.Type != "strz" {
		idx, ierr := s.schema.refIndex(f.Ref)
		if ierr != nil {
			return ierr
		}
		i, rerr := idx.Resolve(text)
		if rerr != nil {
			return rerr
		}
		return s.Set(id, valueForKind(t.Kind, int64(i)))
	}

	switch t.Kind {
	case codec.KindFixedString, codec.KindTerminatedString:
		return s.Set(id, codec.Value{Kind: t.Kind, Str: text})
	case codec.KindBytes:
		b, perr := parseHexBytes(text)
		if perr != nil {
			return perr
		}
		return s.Set(id, codec.BytesValue(b))
	default:
		n, perr := strconv.ParseInt(text, 0, 64)
		if perr != nil {
			return fmt.Errorf("%w: %q is not a valid integer for field %q", romerr.ErrUnparseableValue, text, id)
		}
		return s.Set(id, valueForKind(t.Kind, n))
	}
}

func valueForKind(k codec.Kind, n int64) codec.Value {
	if k == codec.KindInt {
		return codec.IntValue(n)
	}
	return codec.UintValue(uint64(n))
}

func parseHexBytes(text string) ([]byte, error) {
	if len(text)%2 != 0 {
		return nil, fmt.Errorf("%w: odd-length hex string %q", romerr.ErrUnparseableValue, text)
	}
	out := make([]byte, len(text)/2)
	for i := range out {
		v, err := strconv.ParseUint(text[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", romerr.ErrUnparseableValue, err)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// BitfieldText renders the whole struct as a mnemonic string, valid only
// when Def().Bitfield is true.
func (s *Struct) BitfieldText() (string, error) {
	if !s.def.Bitfield {
		return "", fmt.Errorf("%w: struct %q is not a bitfield struct", romerr.ErrSchemaError, s.def.ID)
	}
	bc, ok := s.schema.Bitfields[s.def.ID]
	if !ok {
		return "", fmt.Errorf("%w: struct %q has no compiled bitfield codec", romerr.ErrSchemaError, s.def.ID)
	}
	bin, _ := s.schema.Registry.Lookup("bin")
	v, _, err := bin.Decode(s.bs, s.baseBits, len(s.def.Fields), DefaultEndian, nil)
	if err != nil {
		return "", err
	}
	return bc.Encode(v.Bits)
}

// SetBitfieldText parses text with the struct's mnemonic codec and writes
// the resulting bits back, valid only when Def().Bitfield is true.
func (s *Struct) SetBitfieldText(text string) error {
	if !s.def.Bitfield {
		return fmt.Errorf("%w: struct %q is not a bitfield struct", romerr.ErrSchemaError, s.def.ID)
	}
	bc, ok := s.schema.Bitfields[s.def.ID]
	if !ok {
		return fmt.Errorf("%w: struct %q has no compiled bitfield codec", romerr.ErrSchemaError, s.def.ID)
	}
	bits, err := bc.Decode(text)
	if err != nil {
		return err
	}
	bin, _ := s.schema.Registry.Lookup("bin")
	_, err = bin.Encode(s.bs, s.baseBits, len(s.def.Fields), DefaultEndian, nil, codec.BitsValue(bits))
	return err
}
