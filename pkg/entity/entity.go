package entity

import (
	"fmt"

	"github.com/romedit/romedit/internal/romerr"
	"github.com/romedit/romedit/pkg/codec"
	"github.com/romedit/romedit/pkg/rommap"
)

// Entity is a named join of tables by row index, per §4.6: accessing field
// id on row i looks it up in each joined table in declaration order and
// returns the first match, so two tables may share a field id only if the
// caller means to shadow one with the other.
type Entity struct {
	def    *rommap.EntityDef
	tables []*Table
}

// NewEntity joins tables (already built, in the same order as
// def.TableIDs) into an Entity. The joined tables need not have equal
// length; Len returns the shortest, since a row only exists where every
// joined table has one.
func NewEntity(def *rommap.EntityDef, tables []*Table) (*Entity, error) {
	if len(tables) != len(def.TableIDs) {
		return nil, fmt.Errorf("%w: entity %q declares %d tables but %d were built", romerr.ErrSchemaError, def.Name, len(def.TableIDs), len(tables))
	}
	return &Entity{def: def, tables: tables}, nil
}

// Def returns the entity's schema declaration.
func (e *Entity) Def() *rommap.EntityDef { return e.def }

// Tables returns the entity's joined tables, in declaration order.
func (e *Entity) Tables() []*Table { return e.tables }

// Len returns the number of rows common to every joined table.
func (e *Entity) Len() int {
	n := -1
	for _, t := range e.tables {
		if n < 0 || t.Len() < n {
			n = t.Len()
		}
	}
	if n < 0 {
		return 0
	}
	return n
}

// Row returns the member Struct for each of the entity's joined tables at
// row i, in table-declaration order.
func (e *Entity) Row(i int) ([]*Struct, error) {
	if i < 0 || i >= e.Len() {
		return nil, fmt.Errorf("%w: row %d out of range for entity %q of length %d", romerr.ErrPointerOutOfRange, i, e.def.Name, e.Len())
	}
	rows := make([]*Struct, len(e.tables))
	for j, t := range e.tables {
		r, err := t.Row(i)
		if err != nil {
			return nil, err
		}
		rows[j] = r
	}
	return rows, nil
}

// Get looks up field id across the entity's joined tables in declaration
// order and returns the first table whose struct defines it.
func (e *Entity) Get(i int, id string) (codec.Value, error) {
	rows, err := e.Row(i)
	if err != nil {
		return codec.Value{}, err
	}
	for _, r := range rows {
		if v, gerr := r.Get(id); gerr == nil || !isUnknownField(gerr) {
			return v, gerr
		}
	}
	return codec.Value{}, fmt.Errorf("%w: entity %q has no field %q in any joined table", romerr.ErrSchemaError, e.def.Name, id)
}

func isUnknownField(err error) bool {
	return err != nil && !romerr.Warning(err)
}

// RefIndex resolves cross-reference names to row indices for one table, per
// §4.6's "cross-reference resolution via a name map built before writes".
// It's built once per table from the field named by nameField (conventionally
// "name") and reused for every reference into that table.
type RefIndex struct {
	table     *Table
	nameField string
	byName    map[string]int
}

// BuildRefIndex scans every row of table, decoding nameField as a string,
// and returns a RefIndex that looks names back up to row indices. A row
// whose name is empty or a duplicate of an earlier row is skipped: the
// first row with a given name wins, matching declaration order being the
// canonical source of truth.
func BuildRefIndex(table *Table, nameField string) (*RefIndex, error) {
	idx := &RefIndex{table: table, nameField: nameField, byName: make(map[string]int, table.Len())}
	for i := 0; i < table.Len(); i++ {
		row, err := table.Row(i)
		if err != nil {
			return nil, err
		}
		v, err := row.Get(nameField)
		if err != nil {
			return nil, err
		}
		if v.Str == "" {
			continue
		}
		if _, dup := idx.byName[v.Str]; dup {
			continue
		}
		idx.byName[v.Str] = i
	}
	return idx, nil
}

// Resolve returns the row index for name, or ErrUnknownReference.
func (idx *RefIndex) Resolve(name string) (int, error) {
	i, ok := idx.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q not found in table %q by field %q", romerr.ErrUnknownReference, name, idx.table.def.ID, idx.nameField)
	}
	return i, nil
}

// Name returns the name at row i, the inverse of Resolve.
func (idx *RefIndex) Name(i int) (string, error) {
	row, err := idx.table.Row(i)
	if err != nil {
		return "", err
	}
	v, err := row.Get(idx.nameField)
	if err != nil {
		return "", err
	}
	return v.Str, nil
}
