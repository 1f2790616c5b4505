package codec

import (
	"fmt"
	"strconv"

	"github.com/romedit/romedit/internal/romerr"
)

// Enum is a bijective mapping between integer values and symbolic names,
// per SPEC_FULL.md §3. Values outside the declared domain pass through as
// plain integers in both directions.
type Enum struct {
	Name      string
	toName    map[int64]string
	toValue   map[string]int64
}

// NewEnum builds an Enum from a value->name mapping. A value or name that
// appears twice is a SchemaError.
func NewEnum(name string, entries map[int64]string) (*Enum, error) {
	e := &Enum{
		Name:    name,
		toName:  make(map[int64]string, len(entries)),
		toValue: make(map[string]int64, len(entries)),
	}
	for v, n := range entries {
		if existing, dup := e.toValue[n]; dup && existing != v {
			return nil, fmt.Errorf("%w: enum %q defines %q for both %d and %d", romerr.ErrSchemaError, name, n, existing, v)
		}
		e.toName[v] = n
		e.toValue[n] = v
	}
	return e, nil
}

// Render returns the symbolic name for v, or its decimal string if v is
// outside the enum's domain.
func (e *Enum) Render(v int64) string {
	if n, ok := e.toName[v]; ok {
		return n
	}
	return strconv.FormatInt(v, 10)
}

// Parse resolves text back to an integer: a known symbolic name resolves to
// its value, otherwise text is parsed as a plain integer literal.
func (e *Enum) Parse(text string) (int64, error) {
	if v, ok := e.toValue[text]; ok {
		return v, nil
	}
	v, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a name in enum %q or a valid integer", romerr.ErrUnparseableValue, text, e.Name)
	}
	return v, nil
}
