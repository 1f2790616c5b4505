// Package entity implements the struct/table/entity runtime described in
// SPEC_FULL.md §4.5 and §4.6: compiled views over a shared bitstream that
// turn a rommap.Map's declarations into addressable, gettable/settable rows.
package entity

import (
	"fmt"
	"strings"
	"sync"

	"github.com/romedit/romedit/internal/romerr"
	"github.com/romedit/romedit/pkg/codec"
	"github.com/romedit/romedit/pkg/rommap"
	"github.com/romedit/romedit/pkg/textcodec"
)

// Schema is a compiled rommap.Map: every declaration resolved into the
// runtime objects (registry types, enums, codecs, bitfield mnemonics) that
// Struct/Table/Entity need to decode and encode field values.
type Schema struct {
	Map       *rommap.Map
	Registry  *codec.Registry
	Codecs    map[string]*textcodec.Codec
	Enums     map[string]*codec.Enum
	Bitfields map[string]*codec.BitfieldCodec // keyed by struct id

	// Tables is filled in by the caller (pkg/rom) once every table is
	// built, so a cross-reference field (FieldDef.Ref naming another
	// table rather than a codec) can resolve to and from that table's
	// "name" field. Compile leaves it nil; it's the same map the caller
	// populates, so later inserts are visible here too.
	Tables map[string]*Table

	refIndexMu sync.Mutex
	refIndexes map[string]*RefIndex
}

// refIndex returns the cached RefIndex for tableID, building it (against
// the "name" field, per §4.5's "referenced entities resolved before
// referencing entities") the first time it's needed.
func (s *Schema) refIndex(tableID string) (*RefIndex, error) {
	s.refIndexMu.Lock()
	defer s.refIndexMu.Unlock()

	if idx, ok := s.refIndexes[tableID]; ok {
		return idx, nil
	}
	t, ok := s.Tables[tableID]
	if !ok {
		return nil, fmt.Errorf("%w: cross-reference table %q is not built", romerr.ErrSchemaError, tableID)
	}
	idx, err := BuildRefIndex(t, "name")
	if err != nil {
		return nil, err
	}
	if s.refIndexes == nil {
		s.refIndexes = make(map[string]*RefIndex)
	}
	s.refIndexes[tableID] = idx
	return idx, nil
}

// Compile builds a Schema from a parsed map. It registers every
// rommap.Pointers entry on a fresh codec.Registry, builds a textcodec.Codec
// per codecs/*.tbl file and a codec.Enum per enums/*.tsv file, and
// precomputes the mnemonic bitfield codec for every struct flagged
// StructDef.Bitfield.
func Compile(m *rommap.Map) (*Schema, error) {
	s := &Schema{
		Map:       m,
		Registry:  codec.NewRegistry(),
		Codecs:    make(map[string]*textcodec.Codec, len(m.Codecs)),
		Enums:     make(map[string]*codec.Enum, len(m.Enums)),
		Bitfields: make(map[string]*codec.BitfieldCodec, len(m.Structs)),
	}

	for name, pd := range m.Pointers {
		if err := s.Registry.RegisterPointer(name, pd.BaseType, pd.ZeroPoint); err != nil {
			return nil, err
		}
	}

	for id, cd := range m.Codecs {
		entries := make([]textcodec.Entry, len(cd.Entries))
		for i, e := range cd.Entries {
			entries[i] = textcodec.Entry{Bytes: e.Bytes, Char: e.Char}
		}
		tc, err := textcodec.New(entries, cd.Terminator)
		if err != nil {
			return nil, fmt.Errorf("codec %q: %w", id, err)
		}
		s.Codecs[id] = tc
	}

	for id, ed := range m.Enums {
		e, err := codec.NewEnum(id, ed.Entries)
		if err != nil {
			return nil, err
		}
		s.Enums[id] = e
	}

	for id, sd := range m.Structs {
		if !sd.Bitfield {
			continue
		}
		var mnemonic strings.Builder
		for _, f := range sd.Fields {
			if f.ID == "" {
				return nil, fmt.Errorf("%w: bitfield struct %q has a field with no single-character id", romerr.ErrSchemaError, id)
			}
			mnemonic.WriteByte(f.ID[0])
		}
		bc, err := codec.NewBitfieldCodec(mnemonic.String())
		if err != nil {
			return nil, fmt.Errorf("bitfield struct %q: %w", id, err)
		}
		s.Bitfields[id] = bc
	}

	return s, nil
}

// fieldCodec resolves the StrCodec a str/strz field should use: by
// convention its codec id is carried in the field's Ref column (the other
// use of Ref, naming a cross-referenced table, only applies to integer
// fields).
func (s *Schema) fieldCodec(f rommap.FieldDef) (codec.StrCodec, error) {
	if f.Ref == "" {
		return nil, fmt.Errorf("%w: field %q has type %q but no codec reference", romerr.ErrSchemaError, f.ID, f.Type)
	}
	tc, ok := s.Codecs[f.Ref]
	if !ok {
		return nil, fmt.Errorf("%w: field %q references unknown codec %q", romerr.ErrSchemaError, f.ID, f.Ref)
	}
	return tc, nil
}

// fieldEnum resolves the enum named by a field's Display column
// ("enum:<id>"), or nil if Display doesn't name one.
func (s *Schema) fieldEnum(f rommap.FieldDef) (*codec.Enum, error) {
	id, ok := strings.CutPrefix(f.Display, "enum:")
	if !ok {
		return nil, nil
	}
	e, ok := s.Enums[id]
	if !ok {
		return nil, fmt.Errorf("%w: field %q references unknown enum %q", romerr.ErrSchemaError, f.ID, id)
	}
	return e, nil
}
