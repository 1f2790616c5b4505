// Package codec implements the primitive type registry described in
// SPEC_FULL.md §4.2: a map from type name to decode/encode behaviour, keyed
// by a short string because the schema that picks a field's type is itself
// data (a map directory), not Go source. The registry is created fresh per
// ROM load (never a global), so concurrent loads of different maps never
// share state or interfere with each other's custom type registrations.
package codec

// Kind identifies which primitive variant a Type decodes to. It mirrors the
// variant list in SPEC_FULL.md's design notes (Integer, BCD, Bytes, Bits,
// FixedString, TerminatedString); Pointer and Enum live one layer up, as
// wrappers applied by the schema/struct engine around an Int or Uint Type.
type Kind int

const (
	KindInt Kind = iota
	KindUint
	KindBCD
	KindBytes
	KindBits
	KindFixedString
	KindTerminatedString
)

// Value is a decoded primitive. Exactly one of its fields is meaningful,
// selected by Kind.
type Value struct {
	Kind  Kind
	Int   int64
	Uint  uint64
	Bytes []byte
	Bits  []byte
	Str   string
}

func IntValue(i int64) Value    { return Value{Kind: KindInt, Int: i} }
func UintValue(u uint64) Value  { return Value{Kind: KindUint, Uint: u} }
func BCDValue(u uint64) Value   { return Value{Kind: KindBCD, Uint: u} }
func BytesValue(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }
func BitsValue(b []byte) Value  { return Value{Kind: KindBits, Bits: b} }
func StrValue(s string) Value   { return Value{Kind: KindFixedString, Str: s} }
func StrzValue(s string) Value  { return Value{Kind: KindTerminatedString, Str: s} }

// AsInt64 returns the value's integer interpretation regardless of whether
// it was decoded as a signed, unsigned or BCD integer. It is used by display
// formatting and by cross-reference / pointer resolution, which only care
// about the numeric value.
func (v Value) AsInt64() int64 {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindUint, KindBCD:
		return int64(v.Uint)
	default:
		return 0
	}
}
