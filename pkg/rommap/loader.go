package rommap

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/romedit/romedit/internal/romerr"
	"github.com/romedit/romedit/internal/tsv"
)

// Load reads every file described in SPEC_FULL.md §6 from dir and returns a
// compiled Map. Missing optional files (structs/, tables.tsv, enums/,
// codecs/, entities.tsv) are treated as empty, per §6.
func Load(dir string) (*Map, error) {
	m := &Map{
		Structs:  make(map[string]*StructDef),
		Tables:   make(map[string]*TableDef),
		Enums:    make(map[string]*EnumDef),
		Codecs:   make(map[string]*CodecDef),
		Pointers: make(map[string]PointerTypeDef),
	}

	kv, err := tsv.KVFile(filepath.Join(dir, "rom.tsv"))
	if err != nil {
		return nil, fmt.Errorf("%w: rom.tsv: %v", romerr.ErrSchemaError, err)
	}
	m.ROMName = kv["name"]
	m.MapVersion = kv["map_version"]
	m.ROMSHA1 = kv["sha1"]
	if kv["size"] != "" {
		size, err := parseInt(kv["size"])
		if err != nil {
			return nil, fmt.Errorf("%w: rom.tsv size: %v", romerr.ErrSchemaError, err)
		}
		m.ROMSize = size
	}
	if kv["header_size"] != "" {
		hs, err := parseInt(kv["header_size"])
		if err != nil {
			return nil, fmt.Errorf("%w: rom.tsv header_size: %v", romerr.ErrSchemaError, err)
		}
		m.HeaderSize = int(hs)
	}
	for key, val := range kv {
		const prefix = "pointer."
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name := key[len(prefix):]
		parts := strings.SplitN(val, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: rom.tsv %s must be \"base:zeropoint\"", romerr.ErrSchemaError, key)
		}
		zp, err := parseInt(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: rom.tsv %s zero point: %v", romerr.ErrSchemaError, key, err)
		}
		m.Pointers[name] = PointerTypeDef{Name: name, BaseType: parts[0], ZeroPoint: zp}
	}

	if err := loadStructs(dir, m); err != nil {
		return nil, err
	}
	if err := loadTables(dir, m); err != nil {
		return nil, err
	}
	if err := loadEnums(dir, m); err != nil {
		return nil, err
	}
	if err := loadCodecs(dir, m); err != nil {
		return nil, err
	}
	if err := loadEntities(dir, m); err != nil {
		return nil, err
	}

	if err := validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func loadStructs(dir string, m *Map) error {
	paths, err := filepath.Glob(filepath.Join(dir, "structs", "*.tsv"))
	if err != nil {
		return fmt.Errorf("%w: structs glob: %v", romerr.ErrSchemaError, err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		id := strings.TrimSuffix(filepath.Base(path), ".tsv")
		rows, err := tsv.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", romerr.ErrSchemaError, path, err)
		}

		sd := &StructDef{ID: id, Bitfield: true}
		for i, row := range rows {
			fd, err := parseFieldDef(row)
			if err != nil {
				return fmt.Errorf("%w: %s row %d: %v", romerr.ErrSchemaError, path, i+1, err)
			}
			if fd.Type != "bin" || fd.SizeBits != 1 {
				sd.Bitfield = false
			}
			sd.Fields = append(sd.Fields, fd)
		}
		if len(sd.Fields) == 0 {
			sd.Bitfield = false
		}
		m.Structs[id] = sd
	}
	return nil
}

func parseFieldDef(row tsv.Row) (FieldDef, error) {
	fd := FieldDef{
		ID:      row["id"],
		Name:    row["name"],
		Type:    row["type"],
		Ref:     row["ref"],
		Display: row["display"],
		Comment: row["comment"],
	}
	if fd.Name == "" {
		fd.Name = fd.ID
	}
	if fd.ID == "" {
		return fd, fmt.Errorf("field with no id")
	}
	if fd.Type == "" {
		fd.Type = "uint"
	}

	offset, err := parseInt(row["offset"])
	if err != nil {
		return fd, fmt.Errorf("offset: %w", err)
	}
	fd.OffsetBits = int(offset)

	size, err := parseInt(row["size"])
	if err != nil {
		return fd, fmt.Errorf("size: %w", err)
	}
	fd.SizeBits = int(size)

	switch strings.ToLower(row["origin"]) {
	case "", "parent":
		fd.Origin = OriginParent
	case "root", "rom":
		fd.Origin = OriginRoot
	default:
		return fd, fmt.Errorf("unknown origin %q", row["origin"])
	}

	parseOptionalComment(&fd)
	return fd, nil
}

// parseOptionalComment resolves §4.4's "optional trailing fields" against
// the comment column: a comment containing the token "optional" (optionally
// followed by ",sentinel=0xNN") marks the field optional.
func parseOptionalComment(fd *FieldDef) {
	for _, tok := range strings.Split(fd.Comment, ",") {
		tok = strings.TrimSpace(tok)
		switch {
		case tok == "optional":
			fd.Optional = true
		case strings.HasPrefix(tok, "sentinel="):
			v, err := parseInt(strings.TrimPrefix(tok, "sentinel="))
			if err == nil {
				fd.HasSentinel = true
				fd.Sentinel = v
				fd.Optional = true
			}
		}
	}
}

func loadTables(dir string, m *Map) error {
	rows, err := tsv.ReadFile(filepath.Join(dir, "tables.tsv"))
	if err != nil {
		return fmt.Errorf("%w: tables.tsv: %v", romerr.ErrSchemaError, err)
	}
	for i, row := range rows {
		td, err := parseTableDef(row)
		if err != nil {
			return fmt.Errorf("%w: tables.tsv row %d: %v", romerr.ErrSchemaError, i+1, err)
		}
		m.Tables[td.ID] = td
	}
	return nil
}

func parseTableDef(row tsv.Row) (*TableDef, error) {
	td := &TableDef{
		ID:      row["id"],
		Name:    row["name"],
		Type:    row["type"],
		IndexID: row["index"],
		Comment: row["comment"],
	}
	if td.Name == "" {
		td.Name = td.ID
	}
	if td.ID == "" {
		return nil, fmt.Errorf("table with no id")
	}

	offset, err := parseInt(row["offset"])
	if err != nil {
		return nil, fmt.Errorf("offset: %w", err)
	}
	td.OffsetBits = int(offset) * 8

	if row["count"] != "" {
		count, err := parseInt(row["count"])
		if err != nil {
			return nil, fmt.Errorf("count: %w", err)
		}
		td.Count = int(count)
	}

	if row["stride"] != "" {
		stride, err := parseInt(row["stride"])
		if err != nil {
			return nil, fmt.Errorf("stride: %w", err)
		}
		td.StrideBits = int(stride) * 8
	}
	return td, nil
}

func loadEnums(dir string, m *Map) error {
	paths, err := filepath.Glob(filepath.Join(dir, "enums", "*.tsv"))
	if err != nil {
		return fmt.Errorf("%w: enums glob: %v", romerr.ErrSchemaError, err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		id := strings.TrimSuffix(filepath.Base(path), ".tsv")
		rows, err := tsv.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", romerr.ErrSchemaError, path, err)
		}
		ed := &EnumDef{ID: id, Entries: make(map[int64]string, len(rows))}
		for i, row := range rows {
			v, err := parseInt(row["value"])
			if err != nil {
				return fmt.Errorf("%w: %s row %d: value: %v", romerr.ErrSchemaError, path, i+1, err)
			}
			ed.Entries[v] = row["name"]
		}
		m.Enums[id] = ed
	}
	return nil
}

func loadCodecs(dir string, m *Map) error {
	paths, err := filepath.Glob(filepath.Join(dir, "codecs", "*.tbl"))
	if err != nil {
		return fmt.Errorf("%w: codecs glob: %v", romerr.ErrSchemaError, err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		id := strings.TrimSuffix(filepath.Base(path), ".tbl")
		rows, err := tsv.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", romerr.ErrSchemaError, path, err)
		}
		cd := &CodecDef{ID: id}
		for i, row := range rows {
			raw, err := hexBytes(row["bytes"])
			if err != nil {
				return fmt.Errorf("%w: %s row %d: bytes: %v", romerr.ErrSchemaError, path, i+1, err)
			}
			char := unescapeChar(row["char"])
			if strings.Contains(strings.ToLower(row["flags"]), "eos") ||
				strings.Contains(strings.ToLower(row["flags"]), "terminator") {
				cd.Terminator = raw
			}
			cd.Entries = append(cd.Entries, TextEntry{Bytes: raw, Char: char})
		}
		m.Codecs[id] = cd
	}
	return nil
}

func loadEntities(dir string, m *Map) error {
	rows, err := tsv.ReadFile(filepath.Join(dir, "entities.tsv"))
	if err != nil {
		return fmt.Errorf("%w: entities.tsv: %v", romerr.ErrSchemaError, err)
	}
	for i, row := range rows {
		name := row["name"]
		if name == "" {
			return fmt.Errorf("%w: entities.tsv row %d: entity with no name", romerr.ErrSchemaError, i+1)
		}
		var ids []string
		for _, id := range strings.Split(row["tables"], ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return fmt.Errorf("%w: entities.tsv row %d: entity %q has no tables", romerr.ErrSchemaError, i+1, name)
		}
		m.Entities = append(m.Entities, &EntityDef{Name: name, TableIDs: ids})
	}
	return nil
}

func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 0, 64)
}

func hexBytes(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string %q", s)
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte %q: %w", s[i*2:i*2+2], err)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// unescapeChar turns a literal "\xNN" escape in a codec table's char column
// into the corresponding one-character string; anything else passes
// through unchanged so multi-character mnemonics stay intact.
func unescapeChar(s string) string {
	if len(s) == 4 && strings.HasPrefix(s, "\\x") {
		v, err := strconv.ParseUint(s[2:], 16, 8)
		if err == nil {
			return string([]byte{byte(v)})
		}
	}
	return s
}
