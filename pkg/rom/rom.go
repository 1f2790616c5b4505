// Package rom ties the map loader (pkg/rommap), the codec/entity runtime
// (pkg/codec, pkg/entity) and the patch engine (pkg/patch) together into
// the single object a front end actually drives: a ROM image opened
// against a map directory, with its tables and entities already built and
// ready to read and write.
//
// Opening a ROM is grounded on the teacher's mmap-with-ReadAt-fallback
// pattern (originally pkg/mcf/reader.go's File.Open), adapted for a flat
// ROM image with no self-describing header of its own.
package rom

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/romedit/romedit/internal/romerr"
	"github.com/romedit/romedit/pkg/bitio"
	"github.com/romedit/romedit/pkg/entity"
	"github.com/romedit/romedit/pkg/patch"
	"github.com/romedit/romedit/pkg/rommap"
)

// ROM is an open ROM image plus its compiled map: a mutable working buffer,
// the schema it was opened against, and the tables and entities built over
// that buffer.
type ROM struct {
	Schema *entity.Schema

	original []byte // pristine bytes as loaded; never mutated
	mmapped  bool

	data []byte // mutable working copy; header included
	bs   *bitio.Bitstream

	headerBytes int

	Tables   map[string]*entity.Table
	Entities map[string]*entity.Entity
}

// Open loads mapDir's declarations and opens romPath against them. The ROM
// file is mapped read-only with mmap where available; otherwise it's read
// in full via ReadAt. Either way, the mutable working buffer is a private
// copy, so edits never touch the file until Save writes it back out.
func Open(mapDir, romPath string) (*ROM, error) {
	m, err := rommap.Load(mapDir)
	if err != nil {
		return nil, err
	}
	schema, err := entity.Compile(m)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(romPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := stat.Size()
	if size < 0 || size > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: ROM file size %d is not representable", romerr.ErrOutOfBounds, size)
	}

	mapped, mmErr := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	var original []byte
	mmapped := false
	if mmErr == nil {
		original = mapped
		mmapped = true
	} else {
		original, err = readAllAt(f, int(size))
		if err != nil {
			return nil, err
		}
	}

	return fromBytes(schema, original, mmapped, m.HeaderSize)
}

// OpenBytes builds a ROM over data already in memory, useful for tests and
// for callers that already have the image loaded (e.g. from an archive).
func OpenBytes(m *rommap.Map, data []byte) (*ROM, error) {
	schema, err := entity.Compile(m)
	if err != nil {
		return nil, err
	}
	return fromBytes(schema, data, false, m.HeaderSize)
}

func fromBytes(schema *entity.Schema, original []byte, mmapped bool, headerBytes int) (*ROM, error) {
	if headerBytes > len(original) {
		return nil, fmt.Errorf("%w: header size %d exceeds ROM length %d", romerr.ErrSchemaError, headerBytes, len(original))
	}

	data := make([]byte, len(original))
	copy(data, original)

	r := &ROM{
		Schema:      schema,
		original:    original,
		mmapped:     mmapped,
		data:        data,
		bs:          bitio.New(data[headerBytes:]),
		headerBytes: headerBytes,
		Tables:      make(map[string]*entity.Table),
		Entities:    make(map[string]*entity.Entity),
	}
	// Shared with schema.Tables so cross-reference fields can resolve
	// against a table as soon as buildTables populates it below.
	schema.Tables = r.Tables
	if err := r.buildTables(); err != nil {
		return nil, err
	}
	if err := r.buildEntities(); err != nil {
		return nil, err
	}
	return r, nil
}

// buildTables constructs every declared table, building pointer-indexed
// tables after the index tables they depend on (§4.6's two-pass load
// order).
func (r *ROM) buildTables() error {
	m := r.Schema.Map
	pending := make(map[string]*rommap.TableDef, len(m.Tables))
	for id, td := range m.Tables {
		pending[id] = td
	}

	for len(pending) > 0 {
		progressed := false
		for id, td := range pending {
			if td.IndexID != "" {
				if _, ok := r.Tables[td.IndexID]; !ok {
					continue
				}
			}
			var index *entity.Table
			if td.IndexID != "" {
				index = r.Tables[td.IndexID]
			}
			t, err := entity.NewTable(r.Schema, td, r.bs, index)
			if err != nil {
				return err
			}
			r.Tables[id] = t
			delete(pending, id)
			progressed = true
		}
		if !progressed {
			return fmt.Errorf("%w: table index dependency cycle among %d remaining tables", romerr.ErrSchemaError, len(pending))
		}
	}
	return nil
}

func (r *ROM) buildEntities() error {
	for _, ed := range r.Schema.Map.Entities {
		tables := make([]*entity.Table, len(ed.TableIDs))
		for i, tid := range ed.TableIDs {
			t, ok := r.Tables[tid]
			if !ok {
				return fmt.Errorf("%w: entity %q references unbuilt table %q", romerr.ErrSchemaError, ed.Name, tid)
			}
			tables[i] = t
		}
		e, err := entity.NewEntity(ed, tables)
		if err != nil {
			return err
		}
		r.Entities[ed.Name] = e
	}
	return nil
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int
	for off < size {
		n, err := r.ReadAt(out[off:], int64(off))
		off += n
		if err != nil {
			if err == io.EOF && off == size {
				break
			}
			return nil, err
		}
	}
	return out, nil
}

// Close releases the mmap backing the ROM's original bytes, if any.
func (r *ROM) Close() error {
	if r.mmapped {
		return unix.Munmap(r.original)
	}
	return nil
}

// Bytes returns the ROM's current mutable buffer, including its header.
func (r *ROM) Bytes() []byte { return r.data }

// OriginalBytes returns the ROM's pristine bytes as opened, including its
// header. Callers must not mutate the returned slice.
func (r *ROM) OriginalBytes() []byte { return r.original }

// HeaderBytes returns the fixed header length stripped before offset 0 of
// every struct/table address.
func (r *ROM) HeaderBytes() int { return r.headerBytes }

// Diff returns a patch describing every change between the ROM's original
// bytes and its current working buffer.
func (r *ROM) Diff() *patch.Patch {
	return patch.FromBytes(r.original, r.data)
}

// Dereference resolves a raw pointer value (already zero-adjusted by its
// field's Type) to an absolute byte offset within the post-header region,
// bounds-checked against the buffer length.
func (r *ROM) Dereference(raw int64) (int, error) {
	if raw < 0 || raw > int64(len(r.data)-r.headerBytes) {
		return 0, fmt.Errorf("%w: pointer %#x resolves outside the ROM", romerr.ErrPointerOutOfRange, raw)
	}
	return int(raw), nil
}

// Save writes the ROM's current working buffer to path in full.
func (r *ROM) Save(path string) error {
	return os.WriteFile(path, r.data, 0o644)
}
