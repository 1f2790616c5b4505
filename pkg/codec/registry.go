package codec

import (
	"fmt"

	"github.com/romedit/romedit/internal/romerr"
	"github.com/romedit/romedit/pkg/bitio"
)

// Registry maps type names to Types. A fresh Registry is created per ROM
// load (see SPEC_FULL.md's design notes on map-scoped registries) so that
// one map's custom pointer types never leak into another map's load.
type Registry struct {
	types map[string]*Type
}

// NewRegistry returns a Registry pre-populated with the built-in primitive
// type names from SPEC_FULL.md §4.2.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]*Type)}
	for _, t := range builtins() {
		r.types[t.Name] = t
	}
	return r
}

func builtins() []*Type {
	return []*Type{
		{Name: "int", Kind: KindInt},
		{Name: "uint", Kind: KindUint},
		{Name: "uintbe", Kind: KindUint, ForceEndian: true, Endian: bitio.BigEndian},
		{Name: "uintle", Kind: KindUint, ForceEndian: true, Endian: bitio.LittleEndian},
		{Name: "nbcd", Kind: KindBCD},
		{Name: "nbcdbe", Kind: KindBCD, ForceEndian: true, Endian: bitio.BigEndian},
		{Name: "nbcdle", Kind: KindBCD, ForceEndian: true, Endian: bitio.LittleEndian},
		{Name: "bytes", Kind: KindBytes},
		{Name: "bin", Kind: KindBits},
		{Name: "str", Kind: KindFixedString},
		{Name: "strz", Kind: KindTerminatedString},
	}
}

// Lookup returns the named Type, or false if no such type is registered.
func (r *Registry) Lookup(name string) (*Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// RegisterPointer defines a new type name that wraps an existing integer
// type (usually uint/uintbe/uintle) with a zero-point adjustment: on decode,
// zeroPoint is subtracted from the raw integer; on encode, it's added back.
// This lets raw ROM-address pointers and file-offset pointers coexist, per
// §4.5's "zero adjustment supplied by the map".
func (r *Registry) RegisterPointer(name, baseName string, zeroPoint int64) error {
	base, ok := r.types[baseName]
	if !ok {
		return fmt.Errorf("%w: unknown base type %q for pointer type %q", romerr.ErrSchemaError, baseName, name)
	}
	if base.Kind != KindInt && base.Kind != KindUint {
		return fmt.Errorf("%w: pointer type %q must wrap an int/uint type, not %q", romerr.ErrSchemaError, name, baseName)
	}
	if _, dup := r.types[name]; dup {
		return fmt.Errorf("%w: type %q already registered", romerr.ErrSchemaError, name)
	}
	zp := zeroPoint
	r.types[name] = &Type{
		Name:        name,
		Kind:        base.Kind,
		ForceEndian: base.ForceEndian,
		Endian:      base.Endian,
		ZeroAdjust:  &zp,
	}
	return nil
}

// Register adds an arbitrary Type under a new name, for map dialects that
// define a custom primitive outright (rather than wrapping a built-in with a
// zero point).
func (r *Registry) Register(name string, t *Type) error {
	if _, dup := r.types[name]; dup {
		return fmt.Errorf("%w: type %q already registered", romerr.ErrSchemaError, name)
	}
	clone := *t
	clone.Name = name
	r.types[name] = &clone
	return nil
}
