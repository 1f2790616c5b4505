package rom

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/romedit/romedit/internal/romerr"
	"github.com/romedit/romedit/internal/tsv"
	"github.com/romedit/romedit/pkg/entity"
	"github.com/romedit/romedit/pkg/rommap"
)

// FieldWarning is a warning-class error (romerr.Warning: value overflow,
// invalid encoding, pointer out of range) tied to the entity, row and
// field it came from during a Dump or Load pass. Field is empty for a
// bitfield struct's whole-row warning, since a bitfield has no single
// offending field id. It implements logger.FieldWarning so cmd/romedit can
// log a warning as entity/row/field attributes instead of a flattened
// string.
type FieldWarning struct {
	Entity string
	Row    int
	Field  string
	Err    error
}

func (w FieldWarning) Error() string {
	if w.Field == "" {
		return fmt.Sprintf("entity %q row %d: %v", w.Entity, w.Row, w.Err)
	}
	return fmt.Sprintf("entity %q row %d field %q: %v", w.Entity, w.Row, w.Field, w.Err)
}

func (w FieldWarning) Unwrap() error { return w.Err }

// Fields satisfies logger.FieldWarning.
func (w FieldWarning) Fields() (entity string, row int, field string) {
	return w.Entity, w.Row, w.Field
}

// Dump writes one dir/<entity>.tsv per declared entity, one row per joined
// index, per §4.8's "one <entity>.tsv per entity" dump directory format.
// After a leading "row" index column, the column headers are the union of
// the joined tables' field ids, in table-declaration order; a field id already contributed by an earlier
// table in the join is not repeated, matching Entity.Get's first-match
// precedence.
//
// A warning-class field (value overflow, invalid encoding, pointer out of
// range) still gets a best-effort cell under strict=false, and is added to
// the returned warnings so a caller can log it; strict=true promotes it to
// a fatal dump error instead, per §7.
func (r *ROM) Dump(dir string, strict bool) ([]error, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var warnings []error
	for name, e := range r.Entities {
		w, err := r.dumpOneEntity(dir, name, e, strict)
		warnings = append(warnings, w...)
		if err != nil {
			return warnings, fmt.Errorf("dumping entity %q: %w", name, err)
		}
	}
	return warnings, nil
}

// entityColumns is the union of the joined tables' field ids, in
// declaration order, deduplicated on first occurrence.
func entityColumns(e *entity.Entity) []string {
	var columns []string
	seen := make(map[string]bool)
	for _, t := range e.Tables() {
		rowDef := t.RowDef()
		if rowDef == nil {
			continue
		}
		if rowDef.Bitfield {
			id := rowDef.Fields[0].ID
			if !seen[id] {
				seen[id] = true
				columns = append(columns, id)
			}
			continue
		}
		for _, fd := range rowDef.Fields {
			if seen[fd.ID] {
				continue
			}
			seen[fd.ID] = true
			columns = append(columns, fd.ID)
		}
	}
	return columns
}

func (r *ROM) dumpOneEntity(dir, name string, e *entity.Entity, strict bool) ([]error, error) {
	f, err := os.Create(filepath.Join(dir, name+".tsv"))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	columns := entityColumns(e)
	w := tsv.NewWriter(f, append([]string{"row"}, columns...))
	if err := w.WriteHeader(); err != nil {
		return nil, err
	}

	var warnings []error
	for i := 0; i < e.Len(); i++ {
		members, err := e.Row(i)
		if err != nil {
			return warnings, err
		}
		tsvRow := tsv.Row{"row": strconv.Itoa(i)}
		for _, s := range members {
			def := s.Def()
			if def.Bitfield {
				id := def.Fields[0].ID
				if _, already := tsvRow[id]; already {
					continue
				}
				text, err := s.BitfieldText()
				if err != nil {
					return warnings, err
				}
				tsvRow[id] = text
				continue
			}
			for _, fd := range def.Fields {
				if _, already := tsvRow[fd.ID]; already {
					continue
				}
				present, err := s.IsPresent(fd.ID)
				if err != nil {
					return warnings, err
				}
				if !present {
					tsvRow[fd.ID] = ""
					continue
				}
				text, err := s.Display(fd.ID)
				if err != nil {
					if !romerr.Warning(err) || strict {
						return warnings, err
					}
					warnings = append(warnings, FieldWarning{Entity: name, Row: i, Field: fd.ID, Err: err})
				}
				tsvRow[fd.ID] = text
			}
		}
		if err := w.WriteRow(tsvRow); err != nil {
			return warnings, err
		}
	}
	return warnings, nil
}

// Load reads dir/<entity>.tsv for every declared entity and writes the
// decoded values back into the ROM's working buffer, the inverse of Dump. A
// missing file for a declared entity is left untouched; a column that names
// no field of the entity is ignored, and a column that doesn't parse for
// its field's type is always a hard error. A warning-class encode error (a value too wide for its field)
// leaves that field untouched under strict=false, adding it to the
// returned warnings; strict=true promotes it to a fatal build error
// instead, per §7.
//
// Cross-reference fields are applied in a second pass, after every entity's
// own fields (including the "name" column other entities may reference)
// have already been written, per §4.5's "referenced entities are resolved
// before referencing entities" and its allowance for cycles via a two-pass
// load: which of two entities' files happens to be read first no longer
// matters.
func (r *ROM) Load(dir string, strict bool) ([]error, error) {
	type loadedEntity struct {
		entity *entity.Entity
		rows   []tsv.Row
	}
	loaded := make(map[string]loadedEntity, len(r.Entities))
	for name, e := range r.Entities {
		path := filepath.Join(dir, name+".tsv")
		rows, err := tsv.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading entity %q: %w", name, err)
		}
		if rows == nil {
			continue
		}
		loaded[name] = loadedEntity{entity: e, rows: rows}
	}

	var warnings []error
	for _, refPass := range []bool{false, true} {
		for name, le := range loaded {
			w, err := r.loadOneEntity(name, le.entity, le.rows, strict, refPass)
			warnings = append(warnings, w...)
			if err != nil {
				return warnings, fmt.Errorf("loading entity %q: %w", name, err)
			}
		}
	}
	return warnings, nil
}

// isCrossRef reports whether fd is a cross-reference field: its Ref names
// another table rather than a str/strz codec (§4.4's Ref overload,
// validated in pkg/rommap).
func isCrossRef(fd rommap.FieldDef) bool {
	return fd.Ref != "" && fd.Type != "str" && fd.Type != "strz"
}

func (r *ROM) loadOneEntity(name string, e *entity.Entity, rows []tsv.Row, strict, refPass bool) ([]error, error) {
	var warnings []error
	for _, tr := range rows {
		i, err := strconv.Atoi(tr["row"])
		if err != nil {
			return warnings, fmt.Errorf("entity %q: bad row index %q: %w", name, tr["row"], err)
		}

		members, err := e.Row(i)
		if err != nil {
			return warnings, err
		}
		assigned := make(map[string]bool)
		for _, s := range members {
			def := s.Def()
			if def.Bitfield {
				id := def.Fields[0].ID
				if assigned[id] {
					continue
				}
				assigned[id] = true
				if refPass {
					continue // a bitfield struct has no cross-reference fields
				}
				text, ok := tr[id]
				if !ok || text == "" {
					continue
				}
				if err := s.SetBitfieldText(text); err != nil {
					if !romerr.Warning(err) || strict {
						return warnings, err
					}
					warnings = append(warnings, FieldWarning{Entity: name, Row: i, Err: err})
				}
				continue
			}
			for _, fd := range def.Fields {
				if assigned[fd.ID] {
					continue
				}
				assigned[fd.ID] = true
				if isCrossRef(fd) != refPass {
					continue
				}
				text, ok := tr[fd.ID]
				if !ok || (text == "" && fd.Optional) {
					continue
				}
				if err := s.SetDisplay(fd.ID, text); err != nil {
					if !romerr.Warning(err) || strict {
						return warnings, err
					}
					warnings = append(warnings, FieldWarning{Entity: name, Row: i, Field: fd.ID, Err: err})
				}
			}
		}
	}
	return warnings, nil
}
