// Package rommap implements the declarative map loader described in
// SPEC_FULL.md §4 and §6: it reads a map directory's TSV/TBL files into a
// compiled, immutable schema that pkg/rom and pkg/entity then build runtime
// tables and entities from.
//
// Units: struct field offsets and sizes are expressed in bits (matching the
// "width is expressed in bits" rule in the data model), so that sub-byte
// bitfield fields can share a byte. Table offsets, counts and strides are
// expressed in bytes, matching the glossary's "stride: fixed distance in
// bytes". This resolves an otherwise-unstated unit ambiguity in the map
// file format; see DESIGN.md.
package rommap

// Origin selects whether a field's offset is relative to its struct's base
// (Parent) or to the start of the ROM (Root), per §4.4's "origin
// semantics".
type Origin int

const (
	OriginParent Origin = iota
	OriginRoot
)

// FieldDef is one row of a structs/*.tsv file.
type FieldDef struct {
	ID         string
	Name       string
	Type       string
	OffsetBits int
	SizeBits   int
	Origin     Origin
	Ref        string // codec id for a str/strz field; otherwise the target table id of a cross-reference
	Display    string
	Comment    string

	// Optional and Sentinel resolve §4.4's "optional trailing fields":
	// declared by putting the token "optional" (and, for a sentinel
	// value, "sentinel=0xNN") in the comment column. See DESIGN.md.
	Optional    bool
	HasSentinel bool
	Sentinel    int64
}

// StructDef is one structs/<name>.tsv file: an ordered field list plus the
// struct's own identity.
type StructDef struct {
	ID     string
	Fields []FieldDef

	// Bitfield is true when the struct has at least one field and every
	// field is a one-bit "bin" field; such a struct is rendered via a
	// single mnemonic string
	// (§4.3's Bitfield).
	Bitfield bool
}

// SizeBits returns the struct's total size: the end of its last field.
func (s *StructDef) SizeBits() int {
	max := 0
	for _, f := range s.Fields {
		if f.Origin != OriginParent {
			continue
		}
		end := f.OffsetBits + f.SizeBits
		if end > max {
			max = end
		}
	}
	return max
}

// TableDef is one row of tables.tsv.
type TableDef struct {
	ID         string
	Name       string
	Type       string // struct id, or a primitive type name for scalar tables
	OffsetBits int     // offset of item 0, in bits (converted from the byte column on load)
	Count      int
	StrideBits int
	IndexID    string // id of the index table, if this table is pointer-indexed
	Comment    string
}

// EnumDef is one enums/<name>.tsv file: value -> name.
type EnumDef struct {
	ID      string
	Entries map[int64]string
}

// CodecDef is one codecs/<name>.tbl file.
type CodecDef struct {
	ID         string
	Entries    []TextEntry
	Terminator []byte
}

// TextEntry mirrors textcodec.Entry without importing pkg/textcodec, so the
// schema package stays independent of the codec construction details.
type TextEntry struct {
	Bytes []byte
	Char  string
}

// EntityDef is one row of entities.tsv: a named join of table ids.
type EntityDef struct {
	Name      string
	TableIDs  []string
}

// Map is the fully parsed, immutable map: every declaration from a map
// directory, before compilation into runtime registries and layouts.
type Map struct {
	ROMName    string
	ROMSize    int64
	ROMSHA1    string
	MapVersion string
	HeaderSize int // optional fixed header length in bytes, stripped before ROM-offset 0

	Structs  map[string]*StructDef
	Tables   map[string]*TableDef
	Enums    map[string]*EnumDef
	Codecs   map[string]*CodecDef
	Entities []*EntityDef

	// Pointers declares zero-point-adjusted integer types registered on
	// top of a built-in, e.g. "ptr16" wrapping "uintle" with a zero point
	// of 0x8000. Declared in rom.tsv as "pointer.<name>" = "<base>:<zero>".
	Pointers map[string]PointerTypeDef
}

// PointerTypeDef describes a derived pointer type (§4.2's registry
// extension hook).
type PointerTypeDef struct {
	Name      string
	BaseType  string
	ZeroPoint int64
}
