package rommap

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/romedit/romedit/internal/romerr"
)

// validate checks the cross-references between a Map's declarations that
// can't be checked while each file is parsed in isolation: struct types
// used by tables, index tables, and the tables an entity joins all have to
// exist by the time the map is compiled (SPEC_FULL.md §4.5, §4.6).
//
// Tables are walked in sorted id order so that, when a map has more than
// one bad reference, which one gets reported first doesn't depend on Go's
// randomized map iteration.
func validate(m *Map) error {
	tableIDs := maps.Keys(m.Tables)
	slices.Sort(tableIDs)
	for _, id := range tableIDs {
		td := m.Tables[id]
		if _, ok := m.Structs[td.Type]; !ok {
			if _, ok := m.Pointers[td.Type]; !ok && !isPrimitiveName(td.Type) {
				return fmt.Errorf("%w: table %q references unknown struct type %q", romerr.ErrSchemaError, id, td.Type)
			}
		}
		if td.IndexID != "" {
			if _, ok := m.Tables[td.IndexID]; !ok {
				return fmt.Errorf("%w: table %q references unknown index table %q", romerr.ErrSchemaError, id, td.IndexID)
			}
		}
	}

	structIDs := maps.Keys(m.Structs)
	slices.Sort(structIDs)
	for _, sid := range structIDs {
		sd := m.Structs[sid]
		for _, f := range sd.Fields {
			if f.Ref == "" {
				continue
			}
			// Ref is overloaded by field type (SPEC_FULL.md §4.4): a
			// str/strz field names the text codec it decodes with, any
			// other field names the table it cross-references.
			if f.Type == "str" || f.Type == "strz" {
				if _, ok := m.Codecs[f.Ref]; !ok {
					return fmt.Errorf("%w: struct %q field %q references unknown codec %q", romerr.ErrSchemaError, sd.ID, f.ID, f.Ref)
				}
				continue
			}
			if _, ok := m.Tables[f.Ref]; !ok {
				return fmt.Errorf("%w: struct %q field %q references unknown table %q", romerr.ErrSchemaError, sd.ID, f.ID, f.Ref)
			}
		}
	}

	for _, ed := range m.Entities {
		for _, tid := range ed.TableIDs {
			if _, ok := m.Tables[tid]; !ok {
				return fmt.Errorf("%w: entity %q references unknown table %q", romerr.ErrSchemaError, ed.Name, tid)
			}
		}
	}

	return nil
}

// isPrimitiveName allows a table's type column to name a registry built-in
// instead of a struct id (scalar tables, e.g. a table of raw uint16
// values). The registry itself validates the exact name and arguments;
// this check only keeps validate from rejecting non-struct table types.
func isPrimitiveName(name string) bool {
	switch name {
	case "int", "uint", "uintbe", "uintle", "nbcd", "nbcdbe", "nbcdle",
		"bytes", "bin", "str", "strz":
		return true
	}
	return false
}
