package codec

import (
	"errors"
	"testing"

	"github.com/romedit/romedit/internal/romerr"
	"github.com/romedit/romedit/pkg/bitio"
)

func TestUintRoundTrip(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	typ, ok := r.Lookup("uintle")
	if !ok {
		t.Fatalf("uintle not registered")
	}
	bs := bitio.New(make([]byte, 2))
	if _, err := typ.Encode(bs, 0, 16, bitio.BigEndian, nil, UintValue(0x1234)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if bs.Bytes()[0] != 0x34 || bs.Bytes()[1] != 0x12 {
		t.Fatalf("got %x", bs.Bytes())
	}
	v, consumed, err := typ.Decode(bs, 0, 16, bitio.BigEndian, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != 16 || v.Uint != 0x1234 {
		t.Fatalf("got %+v, consumed %d", v, consumed)
	}
}

func TestPointerZeroAdjust(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.RegisterPointer("ptr16", "uintle", 0x8000); err != nil {
		t.Fatalf("RegisterPointer: %v", err)
	}
	typ, ok := r.Lookup("ptr16")
	if !ok {
		t.Fatalf("ptr16 not registered")
	}

	bs := bitio.New(make([]byte, 2))
	if _, err := typ.Encode(bs, 0, 16, bitio.BigEndian, nil, UintValue(0x100)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	raw, _ := bs.ReadUint(0, 16, bitio.LittleEndian)
	if raw != 0x8100 {
		t.Fatalf("raw = %#x, want 0x8100", raw)
	}
	v, _, err := typ.Decode(bs, 0, 16, bitio.BigEndian, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v.Uint != 0x100 {
		t.Fatalf("decoded = %#x, want 0x100", v.Uint)
	}
}

func TestBCDInvalidEncodingIsBestEffort(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	typ, _ := r.Lookup("nbcdbe")
	bs := bitio.New([]byte{0xAB})
	v, _, err := typ.Decode(bs, 0, 8, bitio.BigEndian, nil)
	if !errors.Is(err, romerr.ErrInvalidEncoding) {
		t.Fatalf("got %v, want ErrInvalidEncoding", err)
	}
	if v.Uint != 10*10+11 {
		t.Fatalf("got %d", v.Uint)
	}
}

func TestBitfieldEncodeDecode(t *testing.T) {
	t.Parallel()

	c, err := NewBitfieldCodec("abcdefgh")
	if err != nil {
		t.Fatalf("NewBitfieldCodec: %v", err)
	}
	// setting flags a, c, e -> bits 0,2,4 set (lsb0, mnemonic[0] is bit 0)
	bits := make([]byte, 8)
	bits[0], bits[2], bits[4] = 1, 1, 1
	text, err := c.Encode(bits)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if text != "AbCdEfgh" {
		t.Fatalf("got %q", text)
	}
	back, err := c.Decode(text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := range bits {
		if back[i] != bits[i] {
			t.Fatalf("round trip mismatch at %d: %v vs %v", i, back, bits)
		}
	}
}

func TestBitfieldRejectsDuplicateLetters(t *testing.T) {
	t.Parallel()

	_, err := NewBitfieldCodec("aa")
	if !errors.Is(err, romerr.ErrSchemaError) {
		t.Fatalf("got %v, want ErrSchemaError", err)
	}
}

func TestEnumRenderAndParse(t *testing.T) {
	t.Parallel()

	e, err := NewEnum("Species", map[int64]string{0: "Goblin", 1: "Orc"})
	if err != nil {
		t.Fatalf("NewEnum: %v", err)
	}
	if got := e.Render(0); got != "Goblin" {
		t.Fatalf("Render(0) = %q", got)
	}
	if got := e.Render(99); got != "99" {
		t.Fatalf("Render(99) = %q, want pass-through", got)
	}
	v, err := e.Parse("Orc")
	if err != nil || v != 1 {
		t.Fatalf("Parse(Orc) = %d, %v", v, err)
	}
	v, err = e.Parse("42")
	if err != nil || v != 42 {
		t.Fatalf("Parse(42) = %d, %v", v, err)
	}
}
