// Package bitio implements a random-access, bit-addressed view over a byte
// buffer. It is the lowest leaf of romedit: every primitive codec, struct
// field and table row ultimately resolves to a read or write through a
// Bitstream.
//
// Bit offsets are always msb0 within the stream's byte-major ordering: bit
// offset 0 is the most significant bit of byte 0. Endianness only affects
// how a multi-byte integer's constituent bytes are ordered relative to each
// other, not how bits are numbered within the stream.
package bitio

import (
	"fmt"

	"github.com/romedit/romedit/internal/romerr"
)

// Endian selects byte ordering for multi-bit/multi-byte primitives.
type Endian int

const (
	BigEndian    Endian = iota
	LittleEndian Endian = iota
)

// Bitstream is a random-access view over a shared byte buffer. It holds no
// cursor state of its own beyond the buffer reference: every operation takes
// an explicit bit offset, so many Bitstream-backed views (structs, table
// rows) can share one buffer safely as long as they don't execute
// concurrently (see the concurrency model in SPEC_FULL.md).
type Bitstream struct {
	buf []byte
}

// New wraps buf in a Bitstream. The buffer is not copied; writes through the
// Bitstream mutate buf in place.
func New(buf []byte) *Bitstream {
	return &Bitstream{buf: buf}
}

// Len returns the length of the backing buffer in bytes.
func (b *Bitstream) Len() int {
	return len(b.buf)
}

// Bytes returns the backing buffer. Callers must not retain it beyond the
// Bitstream's lifetime if they intend to keep mutating through the stream.
func (b *Bitstream) Bytes() []byte {
	return b.buf
}

func (b *Bitstream) checkRange(offsetBits, widthBits int) error {
	if offsetBits < 0 || widthBits < 0 {
		return fmt.Errorf("%w: negative offset or width", romerr.ErrOutOfBounds)
	}
	endBit := offsetBits + widthBits
	if endBit > len(b.buf)*8 {
		return fmt.Errorf("%w: bit range [%d,%d) exceeds buffer of %d bytes",
			romerr.ErrOutOfBounds, offsetBits, endBit, len(b.buf))
	}
	return nil
}

// bitAt returns the value (0 or 1) of the bit at absolute bit index i,
// numbered msb0 within the byte.
func (b *Bitstream) bitAt(i int) byte {
	byteIdx := i / 8
	bitIdx := 7 - (i % 8)
	return (b.buf[byteIdx] >> bitIdx) & 1
}

func (b *Bitstream) setBitAt(i int, v byte) {
	byteIdx := i / 8
	bitIdx := uint(7 - (i % 8))
	if v != 0 {
		b.buf[byteIdx] |= 1 << bitIdx
	} else {
		b.buf[byteIdx] &^= 1 << bitIdx
	}
}

// ReadUint reads widthBits (<= 64) starting at offsetBits as an unsigned
// integer. For BigEndian, the first bit read is the most significant bit of
// the result. For LittleEndian, the span is treated as byte-aligned bytes
// read in reverse order, each interpreted msb-first. A LittleEndian read
// whose widthBits is not a multiple of 8 is read as BigEndian instead.
func (b *Bitstream) ReadUint(offsetBits, widthBits int, endian Endian) (uint64, error) {
	if widthBits > 64 {
		return 0, fmt.Errorf("%w: width %d exceeds 64 bits", romerr.ErrOutOfBounds, widthBits)
	}
	if err := b.checkRange(offsetBits, widthBits); err != nil {
		return 0, err
	}
	if widthBits == 0 {
		return 0, nil
	}

	if endian == LittleEndian && widthBits%8 == 0 {
		return b.readUintLE(offsetBits, widthBits), nil
	}
	return b.readUintBE(offsetBits, widthBits), nil
}

func (b *Bitstream) readUintBE(offsetBits, widthBits int) uint64 {
	var v uint64
	for i := 0; i < widthBits; i++ {
		v = v<<1 | uint64(b.bitAt(offsetBits+i))
	}
	return v
}

// readUintLE reinterprets a byte-aligned, byte-width span as little-endian:
// the last byte of the span is most significant.
func (b *Bitstream) readUintLE(offsetBits, widthBits int) uint64 {
	nbytes := widthBits / 8
	var v uint64
	for i := nbytes - 1; i >= 0; i-- {
		byteBits := b.readUintBE(offsetBits+i*8, 8)
		v = v<<8 | byteBits
	}
	return v
}

// WriteUint writes value into widthBits starting at offsetBits, preserving
// surrounding bits. It returns ErrValueOverflow if value doesn't fit in
// widthBits.
func (b *Bitstream) WriteUint(offsetBits, widthBits int, endian Endian, value uint64) error {
	if widthBits > 64 {
		return fmt.Errorf("%w: width %d exceeds 64 bits", romerr.ErrOutOfBounds, widthBits)
	}
	if err := b.checkRange(offsetBits, widthBits); err != nil {
		return err
	}
	if widthBits < 64 && value>>uint(widthBits) != 0 {
		return fmt.Errorf("%w: %d doesn't fit in %d bits", romerr.ErrValueOverflow, value, widthBits)
	}
	if widthBits == 0 {
		return nil
	}

	if endian == LittleEndian && widthBits%8 == 0 {
		b.writeUintLE(offsetBits, widthBits, value)
		return nil
	}
	b.writeUintBE(offsetBits, widthBits, value)
	return nil
}

func (b *Bitstream) writeUintBE(offsetBits, widthBits int, value uint64) {
	for i := 0; i < widthBits; i++ {
		shift := uint(widthBits - 1 - i)
		bit := byte((value >> shift) & 1)
		b.setBitAt(offsetBits+i, bit)
	}
}

func (b *Bitstream) writeUintLE(offsetBits, widthBits int, value uint64) {
	nbytes := widthBits / 8
	for i := 0; i < nbytes; i++ {
		byteVal := byte(value >> uint(i*8))
		b.writeUintBE(offsetBits+i*8, 8, uint64(byteVal))
	}
}

// ReadInt reads widthBits as ReadUint does, then sign-extends from the top
// bit.
func (b *Bitstream) ReadInt(offsetBits, widthBits int, endian Endian) (int64, error) {
	u, err := b.ReadUint(offsetBits, widthBits, endian)
	if err != nil {
		return 0, err
	}
	if widthBits == 0 || widthBits >= 64 {
		return int64(u), nil
	}
	signBit := uint64(1) << uint(widthBits-1)
	if u&signBit != 0 {
		u |= ^uint64(0) << uint(widthBits)
	}
	return int64(u), nil
}

// WriteInt writes a signed value into widthBits. It returns ErrValueOverflow
// if value doesn't fit in a signed field of that width.
func (b *Bitstream) WriteInt(offsetBits, widthBits int, endian Endian, value int64) error {
	if widthBits < 64 {
		lo := -(int64(1) << uint(widthBits-1))
		hi := int64(1)<<uint(widthBits-1) - 1
		if value < lo || value > hi {
			return fmt.Errorf("%w: %d doesn't fit in signed %d bits", romerr.ErrValueOverflow, value, widthBits)
		}
	}
	mask := uint64(1)<<uint(widthBits) - 1
	if widthBits >= 64 {
		mask = ^uint64(0)
	}
	return b.WriteUint(offsetBits, widthBits, endian, uint64(value)&mask)
}

// ReadBCD interprets widthBits worth of nibbles as packed decimal digits and
// concatenates them into an integer. For BigEndian the high nibble of the
// first byte is the most significant digit; for LittleEndian the span is
// read low byte first, with the high nibble of each byte still preceding its
// low nibble in significance. A nibble greater than 9 returns a best-effort
// integer (treating the nibble as its raw hex value) along with
// ErrInvalidEncoding.
func (b *Bitstream) ReadBCD(offsetBits, widthBits int, endian Endian) (uint64, error) {
	if widthBits%4 != 0 {
		return 0, fmt.Errorf("%w: BCD width %d is not a multiple of 4 bits", romerr.ErrOutOfBounds, widthBits)
	}
	if err := b.checkRange(offsetBits, widthBits); err != nil {
		return 0, err
	}

	nibbles := widthBits / 4
	order := make([]int, nibbles)
	if endian == BigEndian || widthBits%8 != 0 {
		for i := range order {
			order[i] = i
		}
	} else {
		// Little-endian: walk bytes low-to-high, high nibble before low
		// nibble within each byte.
		nbytes := widthBits / 8
		idx := 0
		for byteI := nbytes - 1; byteI >= 0; byteI-- {
			order[idx] = byteI * 2
			order[idx+1] = byteI*2 + 1
			idx += 2
		}
	}

	var value uint64
	var invalid error
	for _, nibbleIdx := range order {
		nib := byte(b.readUintBE(offsetBits+nibbleIdx*4, 4))
		if nib > 9 {
			if invalid == nil {
				invalid = fmt.Errorf("%w: BCD nibble %d > 9", romerr.ErrInvalidEncoding, nib)
			}
		}
		value = value*10 + uint64(nib)
	}
	return value, invalid
}

// WriteBCD writes value as packed decimal digits into widthBits, using the
// same nibble ordering as ReadBCD. It returns ErrValueOverflow if value has
// more decimal digits than the field has nibbles.
func (b *Bitstream) WriteBCD(offsetBits, widthBits int, endian Endian, value uint64) error {
	if widthBits%4 != 0 {
		return fmt.Errorf("%w: BCD width %d is not a multiple of 4 bits", romerr.ErrOutOfBounds, widthBits)
	}
	nibbles := widthBits / 4
	digits := make([]byte, nibbles)
	v := value
	for i := nibbles - 1; i >= 0; i-- {
		digits[i] = byte(v % 10)
		v /= 10
	}
	if v != 0 {
		return fmt.Errorf("%w: %d has more digits than %d nibbles", romerr.ErrValueOverflow, value, nibbles)
	}

	order := make([]int, nibbles)
	if endian == BigEndian || widthBits%8 != 0 {
		for i := range order {
			order[i] = i
		}
	} else {
		nbytes := widthBits / 8
		idx := 0
		for byteI := nbytes - 1; byteI >= 0; byteI-- {
			order[idx] = byteI * 2
			order[idx+1] = byteI*2 + 1
			idx += 2
		}
	}

	if err := b.checkRange(offsetBits, widthBits); err != nil {
		return err
	}
	for i, nibbleIdx := range order {
		b.writeUintBE(offsetBits+nibbleIdx*4, 4, uint64(digits[i]))
	}
	return nil
}

// ReadBytes returns a copy of n bytes starting at offsetBits, which must be
// byte-aligned.
func (b *Bitstream) ReadBytes(offsetBits, n int) ([]byte, error) {
	if offsetBits%8 != 0 {
		return nil, fmt.Errorf("%w: byte read at unaligned bit offset %d", romerr.ErrOutOfBounds, offsetBits)
	}
	if err := b.checkRange(offsetBits, n*8); err != nil {
		return nil, err
	}
	start := offsetBits / 8
	out := make([]byte, n)
	copy(out, b.buf[start:start+n])
	return out, nil
}

// WriteBytes writes data starting at offsetBits, which must be byte-aligned.
func (b *Bitstream) WriteBytes(offsetBits int, data []byte) error {
	if offsetBits%8 != 0 {
		return fmt.Errorf("%w: byte write at unaligned bit offset %d", romerr.ErrOutOfBounds, offsetBits)
	}
	if err := b.checkRange(offsetBits, len(data)*8); err != nil {
		return err
	}
	start := offsetBits / 8
	copy(b.buf[start:start+len(data)], data)
	return nil
}

// ReadBits returns n bits starting at offsetBits as a slice of 0/1 bytes,
// msb-first.
func (b *Bitstream) ReadBits(offsetBits, n int) ([]byte, error) {
	if err := b.checkRange(offsetBits, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = b.bitAt(offsetBits + i)
	}
	return out, nil
}

// WriteBits writes bits (each expected to be 0 or non-zero) starting at
// offsetBits.
func (b *Bitstream) WriteBits(offsetBits int, bits []byte) error {
	if err := b.checkRange(offsetBits, len(bits)); err != nil {
		return err
	}
	for i, v := range bits {
		bit := byte(0)
		if v != 0 {
			bit = 1
		}
		b.setBitAt(offsetBits+i, bit)
	}
	return nil
}

// StrCodec translates between raw bytes and text for ReadStr/ReadStrz. It is
// satisfied by *textcodec.Codec.
type StrCodec interface {
	// DecodeTo decodes as much of raw as the codec can, returning the
	// decoded text and the number of raw bytes consumed.
	DecodeTo(raw []byte) (text string, consumed int)
	// Terminator returns the terminator byte sequence, or nil if this
	// codec has none (fixed-length strings don't need one).
	Terminator() []byte
	// Encode converts text back to raw bytes.
	Encode(text string) ([]byte, error)
}

// ReadStr reads a byte-aligned, fixed-length string of nBytes raw bytes and
// decodes it with codec. Trailing padding bytes are preserved verbatim by
// the caller re-encoding and comparing against the original span; ReadStr
// itself just decodes the whole span.
func (b *Bitstream) ReadStr(offsetBits, nBytes int, codec StrCodec) (string, error) {
	raw, err := b.ReadBytes(offsetBits, nBytes)
	if err != nil {
		return "", err
	}
	text, _ := codec.DecodeTo(raw)
	return text, nil
}

// WriteStr encodes text with codec and writes it into a fixed nBytes span,
// byte-aligned at offsetBits. If the encoded text is shorter than nBytes,
// the remaining bytes are left untouched (callers that need deterministic
// padding should pad text before calling, e.g. via their codec's own pad
// character).
func (b *Bitstream) WriteStr(offsetBits, nBytes int, codec StrCodec, text string) error {
	raw, err := codec.Encode(text)
	if err != nil {
		return err
	}
	if len(raw) > nBytes {
		return fmt.Errorf("%w: encoded string is %d bytes, field is %d", romerr.ErrValueOverflow, len(raw), nBytes)
	}
	return b.WriteBytes(offsetBits, raw)
}

// ReadStrz reads a byte-aligned, terminator-delimited string starting at
// offsetBits. The terminator sequence reported by codec is included in the
// consumed span but not in the returned text.
func (b *Bitstream) ReadStrz(offsetBits int, codec StrCodec) (string, int, error) {
	if offsetBits%8 != 0 {
		return "", 0, fmt.Errorf("%w: strz read at unaligned bit offset %d", romerr.ErrOutOfBounds, offsetBits)
	}
	start := offsetBits / 8
	if start > len(b.buf) {
		return "", 0, fmt.Errorf("%w: strz start past end of buffer", romerr.ErrOutOfBounds)
	}
	text, consumed := codec.DecodeTo(b.buf[start:])
	if consumed == 0 && len(b.buf[start:]) > 0 {
		return "", 0, fmt.Errorf("%w: no terminator found before end of buffer", romerr.ErrOutOfBounds)
	}
	return text, consumed, nil
}

// WriteStrz encodes text plus codec's terminator and writes it starting at
// offsetBits.
func (b *Bitstream) WriteStrz(offsetBits int, codec StrCodec, text string) (int, error) {
	raw, err := codec.Encode(text)
	if err != nil {
		return 0, err
	}
	term := codec.Terminator()
	full := append(append([]byte{}, raw...), term...)
	if err := b.WriteBytes(offsetBits, full); err != nil {
		return 0, err
	}
	return len(full), nil
}
