package entity

import (
	"testing"

	"github.com/romedit/romedit/pkg/bitio"
	"github.com/romedit/romedit/pkg/codec"
	"github.com/romedit/romedit/pkg/rommap"
)

func testSchema(t *testing.T, m *rommap.Map) *Schema {
	t.Helper()
	s, err := Compile(m)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return s
}

func TestStructGetSet(t *testing.T) {
	t.Parallel()

	m := &rommap.Map{
		Structs: map[string]*rommap.StructDef{
			"monster": {
				ID: "monster",
				Fields: []rommap.FieldDef{
					{ID: "hp", Type: "uint", OffsetBits: 0, SizeBits: 8},
					{ID: "atk", Type: "uint", OffsetBits: 8, SizeBits: 8},
				},
			},
		},
	}
	schema := testSchema(t, m)
	bs := bitio.New(make([]byte, 2))
	s := NewStruct(schema, m.Structs["monster"], bs, 0, 0)

	if err := s.Set("hp", codec.UintValue(42)); err != nil {
		t.Fatalf("Set hp: %v", err)
	}
	if err := s.Set("atk", codec.UintValue(7)); err != nil {
		t.Fatalf("Set atk: %v", err)
	}
	hp, err := s.Get("hp")
	if err != nil || hp.Uint != 42 {
		t.Fatalf("Get hp = %+v, %v", hp, err)
	}
	if bs.Bytes()[0] != 42 || bs.Bytes()[1] != 7 {
		t.Fatalf("raw bytes = %v", bs.Bytes())
	}
}

func TestStructDisplayHex(t *testing.T) {
	t.Parallel()

	m := &rommap.Map{
		Structs: map[string]*rommap.StructDef{
			"ptr": {
				ID: "ptr",
				Fields: []rommap.FieldDef{
					{ID: "addr", Type: "uint", OffsetBits: 0, SizeBits: 20},
				},
			},
		},
	}
	schema := testSchema(t, m)
	bs := bitio.New(make([]byte, 3))
	s := NewStruct(schema, m.Structs["ptr"], bs, 0, 0)

	if err := s.Set("addr", codec.UintValue(0xABCDE)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	text, err := s.DisplayHex("addr")
	if err != nil {
		t.Fatalf("DisplayHex: %v", err)
	}
	// 20 bits -> ceil(20/8)*2 = 6 hex digits.
	if text != "0abcde" {
		t.Fatalf("DisplayHex = %q, want %q", text, "0abcde")
	}
}

func TestStructOptionalSentinel(t *testing.T) {
	t.Parallel()

	m := &rommap.Map{
		Structs: map[string]*rommap.StructDef{
			"item": {
				ID: "item",
				Fields: []rommap.FieldDef{
					{ID: "held", Type: "uint", OffsetBits: 0, SizeBits: 8, Optional: true, HasSentinel: true, Sentinel: 0xFF},
				},
			},
		},
	}
	schema := testSchema(t, m)
	bs := bitio.New([]byte{0xFF})
	s := NewStruct(schema, m.Structs["item"], bs, 0, 0)

	present, err := s.IsPresent("held")
	if err != nil {
		t.Fatalf("IsPresent: %v", err)
	}
	if present {
		t.Fatalf("expected sentinel value to report absent")
	}

	bs.Bytes()[0] = 3
	present, err = s.IsPresent("held")
	if err != nil || !present {
		t.Fatalf("IsPresent after write = %v, %v", present, err)
	}
}

func TestStructBitfieldTextRoundTrip(t *testing.T) {
	t.Parallel()

	m := &rommap.Map{
		Structs: map[string]*rommap.StructDef{
			"flags": {
				ID:       "flags",
				Bitfield: true,
				Fields: []rommap.FieldDef{
					{ID: "a", Type: "bin", OffsetBits: 0, SizeBits: 1},
					{ID: "b", Type: "bin", OffsetBits: 1, SizeBits: 1},
					{ID: "c", Type: "bin", OffsetBits: 2, SizeBits: 1},
					{ID: "d", Type: "bin", OffsetBits: 3, SizeBits: 1},
					{ID: "e", Type: "bin", OffsetBits: 4, SizeBits: 1},
					{ID: "f", Type: "bin", OffsetBits: 5, SizeBits: 1},
					{ID: "g", Type: "bin", OffsetBits: 6, SizeBits: 1},
					{ID: "h", Type: "bin", OffsetBits: 7, SizeBits: 1},
				},
			},
		},
	}
	schema := testSchema(t, m)
	bs := bitio.New([]byte{0x15}) // bits 0,2,4 set (lsb0): a,c,e
	s := NewStruct(schema, m.Structs["flags"], bs, 0, 0)

	text, err := s.BitfieldText()
	if err != nil {
		t.Fatalf("BitfieldText: %v", err)
	}
	if text != "AbCdEfgh" {
		t.Fatalf("got %q", text)
	}

	if err := s.SetBitfieldText("abCDefgh"); err != nil {
		t.Fatalf("SetBitfieldText: %v", err)
	}
	if bs.Bytes()[0] != 0x0C {
		t.Fatalf("got %#x, want 0x0c", bs.Bytes()[0])
	}
}

func TestStructDisplayEnum(t *testing.T) {
	t.Parallel()

	m := &rommap.Map{
		Enums: map[string]*rommap.EnumDef{
			"species": {ID: "species", Entries: map[int64]string{0: "Goblin", 1: "Orc"}},
		},
		Structs: map[string]*rommap.StructDef{
			"monster": {ID: "monster", Fields: []rommap.FieldDef{
				{ID: "species", Type: "uint", OffsetBits: 0, SizeBits: 8, Display: "enum:species"},
			}},
		},
	}
	schema := testSchema(t, m)
	bs := bitio.New([]byte{1})
	s := NewStruct(schema, m.Structs["monster"], bs, 0, 0)

	text, err := s.Display("species")
	if err != nil || text != "Orc" {
		t.Fatalf("Display = %q, %v", text, err)
	}

	if err := s.SetDisplay("species", "Goblin"); err != nil {
		t.Fatalf("SetDisplay: %v", err)
	}
	if bs.Bytes()[0] != 0 {
		t.Fatalf("got %d, want 0", bs.Bytes()[0])
	}

	if err := s.SetDisplay("species", "42"); err != nil {
		t.Fatalf("SetDisplay pass-through: %v", err)
	}
	if bs.Bytes()[0] != 42 {
		t.Fatalf("got %d, want 42", bs.Bytes()[0])
	}
}

func TestTableDirectStride(t *testing.T) {
	t.Parallel()

	m := &rommap.Map{
		Structs: map[string]*rommap.StructDef{
			"row": {ID: "row", Fields: []rommap.FieldDef{{ID: "v", Type: "uint", OffsetBits: 0, SizeBits: 8}}},
		},
		Tables: map[string]*rommap.TableDef{
			"species": {ID: "species", Type: "row", OffsetBits: 8, Count: 3, StrideBits: 8},
		},
	}
	schema := testSchema(t, m)
	bs := bitio.New([]byte{0x00, 10, 20, 30})

	table, err := NewTable(schema, m.Tables["species"], bs, nil)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("Len = %d", table.Len())
	}
	row, err := table.Row(1)
	if err != nil {
		t.Fatalf("Row(1): %v", err)
	}
	v, err := row.Get("v")
	if err != nil || v.Uint != 20 {
		t.Fatalf("row 1 v = %+v, %v", v, err)
	}

	if _, err := table.Row(3); err == nil {
		t.Fatalf("expected out-of-range error for row 3")
	}
}

func TestTablePointerIndexed(t *testing.T) {
	t.Parallel()

	m := &rommap.Map{
		Structs: map[string]*rommap.StructDef{
			"row": {ID: "row", Fields: []rommap.FieldDef{{ID: "v", Type: "uint", OffsetBits: 0, SizeBits: 8}}},
		},
		Tables: map[string]*rommap.TableDef{
			"ptrs": {ID: "ptrs", Type: "uint", OffsetBits: 0, Count: 2, StrideBits: 8},
			"data": {ID: "data", Type: "row", OffsetBits: 8, Count: 2, StrideBits: 8, IndexID: "ptrs"},
		},
	}
	schema := testSchema(t, m)
	// data's declared offset (1 byte) is added to each index entry, so
	// ptrs[0]=4 resolves to byte 1+4=5 and ptrs[1]=5 resolves to byte 6.
	bs := bitio.New([]byte{4, 5, 0, 0, 0, 111, 222})

	ptrs, err := NewTable(schema, m.Tables["ptrs"], bs, nil)
	if err != nil {
		t.Fatalf("NewTable ptrs: %v", err)
	}
	data, err := NewTable(schema, m.Tables["data"], bs, ptrs)
	if err != nil {
		t.Fatalf("NewTable data: %v", err)
	}

	row0, err := data.Row(0)
	if err != nil {
		t.Fatalf("Row(0): %v", err)
	}
	v, err := row0.Get("v")
	if err != nil || v.Uint != 111 {
		t.Fatalf("row0.v = %+v, %v", v, err)
	}

	row1, err := data.Row(1)
	if err != nil {
		t.Fatalf("Row(1): %v", err)
	}
	v, err = row1.Get("v")
	if err != nil || v.Uint != 222 {
		t.Fatalf("row1.v = %+v, %v", v, err)
	}
}

func TestRefIndexResolveAndName(t *testing.T) {
	t.Parallel()

	m := &rommap.Map{
		Codecs: map[string]*rommap.CodecDef{
			"ascii": {ID: "ascii", Entries: []rommap.TextEntry{
				{Bytes: []byte{'G'}, Char: "G"},
				{Bytes: []byte{'o'}, Char: "o"},
				{Bytes: []byte{'b'}, Char: "b"},
				{Bytes: []byte{'O'}, Char: "O"},
				{Bytes: []byte{'r'}, Char: "r"},
				{Bytes: []byte{'c'}, Char: "c"},
				{Bytes: []byte{' '}, Char: " "},
			}},
		},
		Structs: map[string]*rommap.StructDef{
			"species": {ID: "species", Fields: []rommap.FieldDef{
				{ID: "name", Type: "str", Ref: "ascii", OffsetBits: 0, SizeBits: 24},
			}},
		},
		Tables: map[string]*rommap.TableDef{
			"species": {ID: "species", Type: "species", OffsetBits: 0, Count: 2, StrideBits: 24},
		},
	}
	schema := testSchema(t, m)
	bs := bitio.New([]byte("Gob" + "Orc"))

	table, err := NewTable(schema, m.Tables["species"], bs, nil)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	idx, err := BuildRefIndex(table, "name")
	if err != nil {
		t.Fatalf("BuildRefIndex: %v", err)
	}
	i, err := idx.Resolve("Orc")
	if err != nil || i != 1 {
		t.Fatalf("Resolve(Orc) = %d, %v", i, err)
	}
	name, err := idx.Name(0)
	if err != nil || name != "Gob" {
		t.Fatalf("Name(0) = %q, %v", name, err)
	}
	if _, err := idx.Resolve("Dragon"); err == nil {
		t.Fatalf("expected unknown reference error")
	}
}

func TestStructDisplayCrossReference(t *testing.T) {
	t.Parallel()

	m := &rommap.Map{
		Codecs: map[string]*rommap.CodecDef{
			"ascii": {ID: "ascii", Entries: []rommap.TextEntry{
				{Bytes: []byte{'G'}, Char: "G"},
				{Bytes: []byte{'o'}, Char: "o"},
				{Bytes: []byte{'b'}, Char: "b"},
				{Bytes: []byte{'O'}, Char: "O"},
				{Bytes: []byte{'r'}, Char: "r"},
				{Bytes: []byte{'c'}, Char: "c"},
			}},
		},
		Structs: map[string]*rommap.StructDef{
			"species": {ID: "species", Fields: []rommap.FieldDef{
				{ID: "name", Type: "str", Ref: "ascii", OffsetBits: 0, SizeBits: 24},
			}},
			"monster": {ID: "monster", Fields: []rommap.FieldDef{
				{ID: "species", Type: "uint", Ref: "species", OffsetBits: 0, SizeBits: 8},
			}},
		},
		Tables: map[string]*rommap.TableDef{
			"species": {ID: "species", Type: "species", OffsetBits: 0, Count: 2, StrideBits: 24},
		},
	}
	schema := testSchema(t, m)
	speciesBS := bitio.New([]byte("GobOrc"))

	speciesTable, err := NewTable(schema, m.Tables["species"], speciesBS, nil)
	if err != nil {
		t.Fatalf("NewTable species: %v", err)
	}
	// A cross-reference field resolves against the table it names, so it
	// needs to find speciesTable through the schema the same way pkg/rom
	// wires up r.Tables after building every table.
	schema.Tables = map[string]*Table{"species": speciesTable}

	monsterBS := bitio.New(make([]byte, 1))
	monster := NewStruct(schema, m.Structs["monster"], monsterBS, 0, 0)

	if err := monster.Set("species", codec.UintValue(1)); err != nil {
		t.Fatalf("Set species: %v", err)
	}
	text, err := monster.Display("species")
	if err != nil || text != "Orc" {
		t.Fatalf("Display(species) = %q, %v", text, err)
	}

	if err := monster.SetDisplay("species", "Gob"); err != nil {
		t.Fatalf("SetDisplay(species, Gob): %v", err)
	}
	v, err := monster.Get("species")
	if err != nil || v.AsInt64() != 0 {
		t.Fatalf("species after SetDisplay = %+v, %v", v, err)
	}

	if err := monster.SetDisplay("species", "Dragon"); err == nil {
		t.Fatalf("expected unknown reference error for Dragon")
	}
}
