package rom

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/romedit/romedit/internal/romerr"
	"github.com/romedit/romedit/pkg/codec"
	"github.com/romedit/romedit/pkg/rommap"
)

func TestFieldWarningUnwrapsAndReports(t *testing.T) {
	t.Parallel()

	w := FieldWarning{Entity: "Monster", Row: 3, Field: "hp", Err: romerr.ErrValueOverflow}
	if !errors.Is(w, romerr.ErrValueOverflow) {
		t.Fatalf("FieldWarning does not unwrap to its sentinel error")
	}
	entity, row, field := w.Fields()
	if entity != "Monster" || row != 3 || field != "hp" {
		t.Fatalf("Fields() = (%q, %d, %q)", entity, row, field)
	}
	if !strings.Contains(w.Error(), "Monster") || !strings.Contains(w.Error(), "hp") {
		t.Fatalf("Error() = %q", w.Error())
	}

	// A bitfield struct's whole-row warning has no offending field id.
	rowWarn := FieldWarning{Entity: "Flags", Row: 1, Err: romerr.ErrInvalidEncoding}
	if strings.Contains(rowWarn.Error(), `field`) {
		t.Fatalf("row-level warning should omit the field clause: %q", rowWarn.Error())
	}
}

func testMap() *rommap.Map {
	return &rommap.Map{
		Structs: map[string]*rommap.StructDef{
			"monster": {ID: "monster", Fields: []rommap.FieldDef{
				{ID: "hp", Type: "uint", OffsetBits: 0, SizeBits: 8},
				{ID: "atk", Type: "uint", OffsetBits: 8, SizeBits: 8},
			}},
		},
		Tables: map[string]*rommap.TableDef{
			"monsters": {ID: "monsters", Type: "monster", OffsetBits: 0, Count: 2, StrideBits: 16},
		},
		Entities: []*rommap.EntityDef{
			{Name: "Monster", TableIDs: []string{"monsters"}},
		},
	}
}

func TestOpenBytesBuildsTables(t *testing.T) {
	t.Parallel()
	m := testMap()
	data := []byte{10, 1, 20, 2}

	r, err := OpenBytes(m, data)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	table, ok := r.Tables["monsters"]
	if !ok {
		t.Fatalf("table monsters not built")
	}
	if table.Len() != 2 {
		t.Fatalf("Len = %d", table.Len())
	}
	row, err := table.Row(1)
	if err != nil {
		t.Fatalf("Row(1): %v", err)
	}
	hp, err := row.Get("hp")
	if err != nil || hp.Uint != 20 {
		t.Fatalf("hp = %+v, %v", hp, err)
	}
}

func TestDiffDetectsChanges(t *testing.T) {
	t.Parallel()
	m := testMap()
	data := []byte{10, 1, 20, 2}

	r, err := OpenBytes(m, data)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	row, err := r.Tables["monsters"].Row(0)
	if err != nil {
		t.Fatalf("Row(0): %v", err)
	}
	if err := row.Set("hp", codec.UintValue(99)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	p := r.Diff()
	if len(p.Changes) != 1 || p.Changes[0] != 99 {
		t.Fatalf("got %v", p.Changes)
	}
}

func TestDumpLoadRoundTrip(t *testing.T) {
	t.Parallel()
	m := testMap()
	data := []byte{10, 1, 20, 2}

	r, err := OpenBytes(m, data)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}

	dir := t.TempDir()
	if _, err := r.Dump(dir, false); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Monster.tsv")); err != nil {
		t.Fatalf("dump file missing: %v", err)
	}

	// Mutate the dumped TSV directly, then reload it into a fresh ROM.
	path := filepath.Join(dir, "Monster.tsv")
	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	mutated := strings.Replace(string(contents), "10", "77", 1)
	if err := os.WriteFile(path, []byte(mutated), 0o644); err != nil {
		t.Fatalf("write mutated dump: %v", err)
	}

	r2, err := OpenBytes(m, data)
	if err != nil {
		t.Fatalf("OpenBytes (second): %v", err)
	}
	if _, err := r2.Load(dir, false); err != nil {
		t.Fatalf("Load: %v", err)
	}
	row, err := r2.Tables["monsters"].Row(0)
	if err != nil {
		t.Fatalf("Row(0): %v", err)
	}
	hp, err := row.Get("hp")
	if err != nil || hp.Uint != 77 {
		t.Fatalf("hp after load = %+v, %v", hp, err)
	}
}

// TestDumpLoadCrossReference exercises §8 scenario 4: dumping renders a
// cross-reference field as the referenced entity's name, and reloading a
// dump that renamed the referenced row but kept the referencing row's name
// column consistent leaves the underlying integer unchanged.
func TestDumpLoadCrossReference(t *testing.T) {
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
			"species":  {ID: "species", Type: "species", OffsetBits: 0, Count: 2, StrideBits: 24},
			"monsters": {ID: "monsters", Type: "monster", OffsetBits: 48, Count: 1, StrideBits: 8},
		},
		Entities: []*rommap.EntityDef{
			{Name: "Species", TableIDs: []string{"species"}},
			{Name: "Monster", TableIDs: []string{"monsters"}},
		},
	}
	// species[0] = "Gob", species[1] = "Orc", monsters[0].species = 1 ("Orc")
	data := []byte("GobOrc" + string([]byte{1}))

	r, err := OpenBytes(m, data)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}

	dir := t.TempDir()
	if _, err := r.Dump(dir, false); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	monsterDump, err := os.ReadFile(filepath.Join(dir, "Monster.tsv"))
	if err != nil {
		t.Fatalf("read Monster.tsv: %v", err)
	}
	if !strings.Contains(string(monsterDump), "Orc") {
		t.Fatalf("Monster.tsv doesn't render the cross-reference by name: %q", monsterDump)
	}

	// Rename species[1] from "Orc" to "Orb", and keep the monster's
	// reference pointed at the new name, matching the spec's rename
	// scenario.
	if err := os.WriteFile(filepath.Join(dir, "Species.tsv"),
		[]byte("row\tname\n0\tGob\n1\tOrb\n"), 0o644); err != nil {
		t.Fatalf("write Species.tsv: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Monster.tsv"),
		[]byte("row\tspecies\n0\tOrb\n"), 0o644); err != nil {
		t.Fatalf("write Monster.tsv: %v", err)
	}

	r2, err := OpenBytes(m, data)
	if err != nil {
		t.Fatalf("OpenBytes (second): %v", err)
	}
	if _, err := r2.Load(dir, false); err != nil {
		t.Fatalf("Load: %v", err)
	}
	row, err := r2.Tables["monsters"].Row(0)
	if err != nil {
		t.Fatalf("Row(0): %v", err)
	}
	species, err := row.Get("species")
	if err != nil || species.AsInt64() != 1 {
		t.Fatalf("species after rename-preserving reload = %+v, %v; want 1", species, err)
	}
}

