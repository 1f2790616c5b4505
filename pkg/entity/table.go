package entity

import (
	"fmt"

	"github.com/romedit/romedit/internal/romerr"
	"github.com/romedit/romedit/pkg/bitio"
	"github.com/romedit/romedit/pkg/codec"
	"github.com/romedit/romedit/pkg/rommap"
)

// Table is a runtime view over a tables.tsv declaration: either a direct
// fixed-stride array, or, when IndexID names another table, pointer-indexed
// (each row's offset is read from the index table rather than computed from
// a stride).
type Table struct {
	schema *Schema
	def    *rommap.TableDef
	bs     *bitio.Bitstream
	rowDef *rommap.StructDef // nil for scalar (non-struct) tables
	index  *Table            // nil unless pointer-indexed
}

// NewTable builds a Table from its declaration. If def.IndexID is set,
// index must be the already-built index table (a direct table of pointer
// values, one per row).
func NewTable(schema *Schema, def *rommap.TableDef, bs *bitio.Bitstream, index *Table) (*Table, error) {
	t := &Table{schema: schema, def: def, bs: bs, index: index}
	if sd, ok := schema.Map.Structs[def.Type]; ok {
		t.rowDef = sd
	}
	if def.IndexID != "" && index == nil {
		return nil, fmt.Errorf("%w: table %q is pointer-indexed but its index table wasn't built first", romerr.ErrSchemaError, def.ID)
	}
	return t, nil
}

// Len returns the table's row count.
func (t *Table) Len() int { return t.def.Count }

// Def returns the table's schema declaration.
func (t *Table) Def() *rommap.TableDef { return t.def }

// RowDef returns the struct definition shared by every row, or nil when the
// table holds a primitive (scalar) type instead of a struct.
func (t *Table) RowDef() *rommap.StructDef { return t.rowDef }

// rowOffsetBits returns the bit offset of row i's data.
func (t *Table) rowOffsetBits(i int) (int, error) {
	if i < 0 || i >= t.def.Count {
		return 0, fmt.Errorf("%w: row %d out of range for table %q of length %d", romerr.ErrPointerOutOfRange, i, t.def.ID, t.def.Count)
	}
	if t.index == nil {
		return t.def.OffsetBits + i*t.def.StrideBits, nil
	}

	typ, ok := t.schema.Registry.Lookup(t.index.def.Type)
	if !ok {
		return 0, fmt.Errorf("%w: index table %q has unknown pointer type %q", romerr.ErrSchemaError, t.index.def.ID, t.index.def.Type)
	}
	idxOffsetBits, err := t.index.rowOffsetBits(i)
	if err != nil {
		return 0, err
	}
	v, _, err := typ.Decode(t.bs, idxOffsetBits, t.index.def.StrideBits, DefaultEndian, nil)
	if err != nil {
		return 0, err
	}
	target := int64(t.def.OffsetBits) + v.AsInt64()*8
	if target < 0 || target > int64(t.bs.Len())*8 {
		return 0, fmt.Errorf("%w: row %d pointer resolves to out-of-range offset %d", romerr.ErrPointerOutOfRange, i, target)
	}
	return int(target), nil
}

// Row returns a Struct view over row i. It's only valid for tables whose
// Type names a struct; scalar (primitive-typed) tables should use
// ScalarAt instead.
func (t *Table) Row(i int) (*Struct, error) {
	if t.rowDef == nil {
		return nil, fmt.Errorf("%w: table %q has scalar type %q, not a struct", romerr.ErrSchemaError, t.def.ID, t.def.Type)
	}
	off, err := t.rowOffsetBits(i)
	if err != nil {
		return nil, err
	}
	return NewStruct(t.schema, t.rowDef, t.bs, off, 0), nil
}

// ScalarAt decodes row i of a scalar (primitive-typed) table.
func (t *Table) ScalarAt(i int) (codec.Value, error) {
	if t.rowDef != nil {
		return codec.Value{}, fmt.Errorf("%w: table %q has struct type %q, not scalar", romerr.ErrSchemaError, t.def.ID, t.def.Type)
	}
	typ, ok := t.schema.Registry.Lookup(t.def.Type)
	if !ok {
		return codec.Value{}, fmt.Errorf("%w: table %q has unknown type %q", romerr.ErrSchemaError, t.def.ID, t.def.Type)
	}
	off, err := t.rowOffsetBits(i)
	if err != nil {
		return codec.Value{}, err
	}
	v, _, err := typ.Decode(t.bs, off, t.def.StrideBits, DefaultEndian, nil)
	return v, err
}

// SetScalarAt encodes v into row i of a scalar table.
func (t *Table) SetScalarAt(i int, v codec.Value) error {
	if t.rowDef != nil {
		return fmt.Errorf("%w: table %q has struct type %q, not scalar", romerr.ErrSchemaError, t.def.ID, t.def.Type)
	}
	typ, ok := t.schema.Registry.Lookup(t.def.Type)
	if !ok {
		return fmt.Errorf("%w: table %q has unknown type %q", romerr.ErrSchemaError, t.def.ID, t.def.Type)
	}
	off, err := t.rowOffsetBits(i)
	if err != nil {
		return err
	}
	_, err = typ.Encode(t.bs, off, t.def.StrideBits, DefaultEndian, nil, v)
	return err
}
