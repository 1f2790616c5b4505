package bitio

import (
	"errors"
	"testing"

	"github.com/romedit/romedit/internal/romerr"
)

func TestReadUintBigEndian(t *testing.T) {
	t.Parallel()

	bs := New([]byte{0x12, 0x34, 0x56, 0x78})
	got, err := bs.ReadUint(0, 32, BigEndian)
	if err != nil {
		t.Fatalf("ReadUint: %v", err)
	}
	if want := uint64(0x12345678); got != want {
		t.Fatalf("ReadUint = %#x, want %#x", got, want)
	}
}

func TestReadUintLittleEndian(t *testing.T) {
	t.Parallel()

	bs := New([]byte{0x78, 0x56, 0x34, 0x12})
	got, err := bs.ReadUint(0, 32, LittleEndian)
	if err != nil {
		t.Fatalf("ReadUint: %v", err)
	}
	if want := uint64(0x12345678); got != want {
		t.Fatalf("ReadUint = %#x, want %#x", got, want)
	}
}

func TestReadUintSubByteBitfield(t *testing.T) {
	t.Parallel()

	// 0b10110100 -> bits [2,6) = 1101 = 13
	bs := New([]byte{0b10110100})
	got, err := bs.ReadUint(2, 4, BigEndian)
	if err != nil {
		t.Fatalf("ReadUint: %v", err)
	}
	if got != 13 {
		t.Fatalf("ReadUint = %d, want 13", got)
	}
}

func TestWriteUintPreservesSurroundingBits(t *testing.T) {
	t.Parallel()

	bs := New([]byte{0xFF})
	if err := bs.WriteUint(2, 4, BigEndian, 0); err != nil {
		t.Fatalf("WriteUint: %v", err)
	}
	if bs.Bytes()[0] != 0b11000011 {
		t.Fatalf("got %08b, want 11000011", bs.Bytes()[0])
	}
}

func TestWriteUintOverflow(t *testing.T) {
	t.Parallel()

	bs := New([]byte{0x00})
	err := bs.WriteUint(0, 4, BigEndian, 16)
	if !errors.Is(err, romerr.ErrValueOverflow) {
		t.Fatalf("got %v, want ErrValueOverflow", err)
	}
}

func TestReadIntSignExtend(t *testing.T) {
	t.Parallel()

	bs := New([]byte{0xFF}) // -1 as int8, or -1 as a 4-bit nibble (0b1111)
	got, err := bs.ReadInt(4, 4, BigEndian)
	if err != nil {
		t.Fatalf("ReadInt: %v", err)
	}
	if got != -1 {
		t.Fatalf("ReadInt = %d, want -1", got)
	}
}

func TestIntRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []int64{0, 1, -1, 127, -128, 63, -64}
	for _, want := range cases {
		bs := New([]byte{0x00})
		if err := bs.WriteInt(0, 8, BigEndian, want); err != nil {
			if want == 127 || want == -128 {
				continue
			}
			t.Fatalf("WriteInt(%d): %v", want, err)
		}
		got, err := bs.ReadInt(0, 8, BigEndian)
		if err != nil {
			t.Fatalf("ReadInt: %v", err)
		}
		if got != want {
			t.Fatalf("round trip %d -> %d", want, got)
		}
	}
}

func TestBCDBigEndianRoundTrip(t *testing.T) {
	t.Parallel()

	bs := New([]byte{0x00, 0x00})
	if err := bs.WriteBCD(0, 16, BigEndian, 1234); err != nil {
		t.Fatalf("WriteBCD: %v", err)
	}
	if bs.Bytes()[0] != 0x12 || bs.Bytes()[1] != 0x34 {
		t.Fatalf("got %02x%02x, want 1234", bs.Bytes()[0], bs.Bytes()[1])
	}
	got, err := bs.ReadBCD(0, 16, BigEndian)
	if err != nil {
		t.Fatalf("ReadBCD: %v", err)
	}
	if got != 1234 {
		t.Fatalf("ReadBCD = %d, want 1234", got)
	}
}

func TestBCDLittleEndianRoundTrip(t *testing.T) {
	t.Parallel()

	bs := New([]byte{0x00, 0x00})
	if err := bs.WriteBCD(0, 16, LittleEndian, 1234); err != nil {
		t.Fatalf("WriteBCD: %v", err)
	}
	got, err := bs.ReadBCD(0, 16, LittleEndian)
	if err != nil {
		t.Fatalf("ReadBCD: %v", err)
	}
	if got != 1234 {
		t.Fatalf("ReadBCD = %d, want 1234", got)
	}
}

func TestBCDInvalidNibble(t *testing.T) {
	t.Parallel()

	bs := New([]byte{0xAB})
	_, err := bs.ReadBCD(0, 8, BigEndian)
	if !errors.Is(err, romerr.ErrInvalidEncoding) {
		t.Fatalf("got %v, want ErrInvalidEncoding", err)
	}
}

func TestReadWriteBytes(t *testing.T) {
	t.Parallel()

	bs := New(make([]byte, 4))
	if err := bs.WriteBytes(8, []byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	got, err := bs.ReadBytes(8, 2)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if got[0] != 0xAA || got[1] != 0xBB {
		t.Fatalf("got %v", got)
	}
}

func TestReadBytesUnaligned(t *testing.T) {
	t.Parallel()

	bs := New([]byte{0x00})
	_, err := bs.ReadBytes(1, 1)
	if !errors.Is(err, romerr.ErrOutOfBounds) {
		t.Fatalf("got %v, want ErrOutOfBounds", err)
	}
}

func TestReadWriteBits(t *testing.T) {
	t.Parallel()

	bs := New([]byte{0x00})
	if err := bs.WriteBits(0, []byte{1, 0, 1, 1}); err != nil {
		t.Fatalf("WriteBits: %v", err)
	}
	bits, err := bs.ReadBits(0, 4)
	if err != nil {
		t.Fatalf("ReadBits: %v", err)
	}
	want := []byte{1, 0, 1, 1}
	for i := range want {
		if bits[i] != want[i] {
			t.Fatalf("ReadBits = %v, want %v", bits, want)
		}
	}
}

func TestOutOfBounds(t *testing.T) {
	t.Parallel()

	bs := New([]byte{0x00})
	_, err := bs.ReadUint(4, 8, BigEndian)
	if !errors.Is(err, romerr.ErrOutOfBounds) {
		t.Fatalf("got %v, want ErrOutOfBounds", err)
	}
}
