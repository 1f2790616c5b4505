// Package patch implements the IPS/IPST binary diff/patch format described
// in SPEC_FULL.md §4.7: a canonical byte-offset-to-value change set that can
// be read from or written to either the binary IPS wire format or its
// textual IPST variant, diffed from two ROM images, merged, filtered
// against a target image, and applied.
//
// It is grounded on the original implementation's romtool.patch module,
// carried into Go idiom: a Patch is an ordered map of offset to changed
// byte, built up via FromBytes/FromIPS/FromIPST/Merge and consumed via
// ToIPS/ToIPST/Apply.
package patch

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/romedit/romedit/internal/romerr"
)

const (
	ipsHeader = "PATCH"
	ipsFooter = "EOF"

	// ipsBogoAddress is the one offset IPS cannot represent directly: its
	// three-byte big-endian encoding collides with the footer marker.
	ipsBogoAddress = 0x454F46
)

// Patch is a canonical set of single-byte changes, keyed by absolute
// offset into the target image.
type Patch struct {
	Changes map[int64]byte
}

// New returns an empty Patch.
func New() *Patch {
	return &Patch{Changes: make(map[int64]byte)}
}

// FromBytes builds a Patch by diffing modified against original: every
// offset where the two differ becomes a change, with modified's value.
// The shorter of the two is treated as zero-padded out to the other's
// length, so appending bytes (or truncating to zeros) is representable.
func FromBytes(original, modified []byte) *Patch {
	p := New()
	n := len(original)
	if len(modified) > n {
		n = len(modified)
	}
	for i := 0; i < n; i++ {
		var a, b byte
		if i < len(original) {
			a = original[i]
		}
		if i < len(modified) {
			b = modified[i]
		}
		if a != b {
			p.Changes[int64(i)] = b
		}
	}
	return p
}

// Merge returns a new Patch containing the union of p and other's changes;
// where both define the same offset, other's value wins.
func (p *Patch) Merge(other *Patch) *Patch {
	out := &Patch{Changes: make(map[int64]byte, len(p.Changes)+len(other.Changes))}
	for k, v := range p.Changes {
		out.Changes[k] = v
	}
	for k, v := range other.Changes {
		out.Changes[k] = v
	}
	return out
}

// FilterAgainst drops changes that are no-ops against the image readable
// through r: a change whose value already matches the byte at that offset
// in r is removed. Offsets past the end of r are left untouched (there is
// nothing to compare against, so the change is kept).
func (p *Patch) FilterAgainst(r io.ReaderAt) error {
	var buf [1]byte
	for offset, value := range p.Changes {
		_, err := r.ReadAt(buf[:], offset)
		if err == io.EOF {
			continue
		}
		if err != nil {
			return err
		}
		if buf[0] == value {
			delete(p.Changes, offset)
		}
	}
	return nil
}

// Apply writes every change in p to w, one contiguous block at a time.
func (p *Patch) Apply(w io.WriterAt) error {
	for offset, data := range p.blockify() {
		if _, err := w.WriteAt(data, offset); err != nil {
			return fmt.Errorf("%w: writing block at %#x: %v", romerr.ErrPatchExpandsROM, offset, err)
		}
	}
	return nil
}

// sortedOffsets returns p's changed offsets in ascending order.
func (p *Patch) sortedOffsets() []int64 {
	offsets := maps.Keys(p.Changes)
	slices.Sort(offsets)
	return offsets
}

// blockify merges adjacent single-byte changes into contiguous runs, the
// same grouping IPS encoding and Apply both work in terms of.
func (p *Patch) blockify() map[int64][]byte {
	merged := make(map[int64][]byte)
	offsets := p.sortedOffsets()

	var block []byte
	var start, last int64
	haveBlock := false

	flush := func() {
		if haveBlock {
			merged[start] = block
		}
	}

	for _, offset := range offsets {
		value := p.Changes[offset]
		switch {
		case !haveBlock:
			block = []byte{value}
			start, last = offset, offset
			haveBlock = true
		case offset == last+1:
			block = append(block, value)
			last = offset
		default:
			flush()
			block = []byte{value}
			start, last = offset, offset
		}
	}
	flush()
	return merged
}

// EncodeOptions configures ToIPS/ToIPST.
type EncodeOptions struct {
	// BogoByte, if non-nil, is the value written just before the forbidden
	// EOF-aligned offset when a change starts exactly at ipsBogoAddress
	// (0x454F46). Required only if such a change exists; see sanitize.
	BogoByte *byte
}

// sanitize blockifies p's changes and resolves the bogo-address collision:
// a block starting at exactly the forbidden offset is shifted one byte
// earlier and prefixed with opts.BogoByte, which must be supplied in that
// case.
func (p *Patch) sanitize(opts EncodeOptions) (map[int64][]byte, error) {
	blocks := p.blockify()
	data, ok := blocks[ipsBogoAddress]
	if !ok {
		return blocks, nil
	}
	if opts.BogoByte == nil {
		return nil, fmt.Errorf("%w: a change starts at the forbidden EOF-aligned offset %#x but no bogo byte was supplied", romerr.ErrPatchFormatError, ipsBogoAddress)
	}
	delete(blocks, ipsBogoAddress)
	blocks[ipsBogoAddress-1] = append([]byte{*opts.BogoByte}, data...)
	return blocks, nil
}

// isRLECandidate reports whether data should be encoded as an IPS RLE
// record: more than 3 bytes, all the same value.
func isRLECandidate(data []byte) bool {
	if len(data) <= 3 {
		return false
	}
	for _, b := range data[1:] {
		if b != data[0] {
			return false
		}
	}
	return true
}

// ToIPS writes p in the binary IPS format.
func (p *Patch) ToIPS(w io.Writer, opts EncodeOptions) error {
	blocks, err := p.sanitize(opts)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, ipsHeader); err != nil {
		return err
	}

	offsets := sortedInt64Keys(blocks)
	for _, offset := range offsets {
		data := blocks[offset]
		if offset < 0 || offset > 0xFFFFFF {
			return fmt.Errorf("%w: offset %#x doesn't fit in IPS's 24-bit address", romerr.ErrPatchFormatError, offset)
		}
		if err := writeUint24(w, uint32(offset)); err != nil {
			return err
		}
		if isRLECandidate(data) {
			if err := writeUint16(w, 0); err != nil {
				return err
			}
			if err := writeUint16(w, uint16(len(data))); err != nil {
				return err
			}
			if _, err := w.Write(data[:1]); err != nil {
				return err
			}
			continue
		}
		if len(data) > 0xFFFF {
			return fmt.Errorf("%w: block of %d bytes at %#x exceeds IPS's 16-bit length", romerr.ErrPatchFormatError, len(data), offset)
		}
		if err := writeUint16(w, uint16(len(data))); err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, ipsFooter)
	return err
}

// ToIPST writes p in the textual IPST format.
func (p *Patch) ToIPST(w io.Writer, opts EncodeOptions) error {
	blocks, err := p.sanitize(opts)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, ipsHeader); err != nil {
		return err
	}

	offsets := sortedInt64Keys(blocks)
	for _, offset := range offsets {
		data := blocks[offset]
		if isRLECandidate(data) {
			if _, err := fmt.Fprintf(bw, "%06X:%04X:%04X:%01X\n", offset, 0, len(data), data[0]); err != nil {
				return err
			}
			continue
		}
		var hex strings.Builder
		for _, b := range data {
			fmt.Fprintf(&hex, "%02X", b)
		}
		if _, err := fmt.Fprintf(bw, "%06X:%04X:%s\n", offset, len(data), hex.String()); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(bw, ipsFooter); err != nil {
		return err
	}
	return bw.Flush()
}

func sortedInt64Keys(m map[int64][]byte) []int64 {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}

func writeUint24(w io.Writer, v uint32) error {
	_, err := w.Write([]byte{byte(v >> 16), byte(v >> 8), byte(v)})
	return err
}

func writeUint16(w io.Writer, v uint16) error {
	_, err := w.Write([]byte{byte(v >> 8), byte(v)})
	return err
}

// FromIPS reads a binary IPS patch from r.
func FromIPS(r io.Reader) (*Patch, error) {
	br := bufio.NewReader(r)
	header := make([]byte, len(ipsHeader))
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("%w: reading IPS header: %v", romerr.ErrPatchFormatError, err)
	}
	if string(header) != ipsHeader {
		return nil, fmt.Errorf("%w: IPS header mismatch", romerr.ErrPatchFormatError)
	}

	p := New()
	for {
		mark := make([]byte, 3)
		if _, err := io.ReadFull(br, mark); err != nil {
			return nil, fmt.Errorf("%w: reading record offset: %v", romerr.ErrPatchFormatError, err)
		}
		if string(mark) == ipsFooter {
			break
		}
		offset := int64(mark[0])<<16 | int64(mark[1])<<8 | int64(mark[2])

		size, err := readUint16(br)
		if err != nil {
			return nil, fmt.Errorf("%w: reading record size: %v", romerr.ErrPatchFormatError, err)
		}
		if size > 0 {
			data := make([]byte, size)
			if _, err := io.ReadFull(br, data); err != nil {
				return nil, fmt.Errorf("%w: reading record data: %v", romerr.ErrPatchFormatError, err)
			}
			for i, b := range data {
				p.Changes[offset+int64(i)] = b
			}
			continue
		}

		rleSize, err := readUint16(br)
		if err != nil {
			return nil, fmt.Errorf("%w: reading RLE length: %v", romerr.ErrPatchFormatError, err)
		}
		valueBuf := make([]byte, 1)
		if _, err := io.ReadFull(br, valueBuf); err != nil {
			return nil, fmt.Errorf("%w: reading RLE value: %v", romerr.ErrPatchFormatError, err)
		}
		for i := 0; i < int(rleSize); i++ {
			p.Changes[offset+int64(i)] = valueBuf[0]
		}
	}
	return p, nil
}

func readUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

// FromIPST reads a textual IPST patch from r. Blank lines and lines
// starting with '#' are skipped, and a trailing '#' comment on any other
// line is stripped before parsing.
func FromIPST(r io.Reader) (*Patch, error) {
	scanner := bufio.NewScanner(r)

	nextLine := func() (string, bool) {
		for scanner.Scan() {
			before, _, _ := strings.Cut(scanner.Text(), "#")
			trimmed := strings.TrimRight(before, " \t\r")
			if trimmed != "" {
				return trimmed, true
			}
		}
		return "", false
	}

	header, ok := nextLine()
	if !ok {
		return nil, fmt.Errorf("%w: empty IPST file", romerr.ErrPatchFormatError)
	}
	if header != ipsHeader {
		return nil, fmt.Errorf("%w: IPST header mismatch", romerr.ErrPatchFormatError)
	}

	p := New()
	lineNo := 1
	for {
		line, ok := nextLine()
		if !ok {
			break
		}
		lineNo++
		if line == ipsFooter {
			break
		}

		parts := strings.Split(line, ":")
		switch len(parts) {
		case 3:
			offset, err := strconv.ParseInt(parts[0], 16, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: bad offset: %v", romerr.ErrPatchFormatError, lineNo, err)
			}
			expected, err := strconv.ParseInt(parts[1], 16, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: bad size: %v", romerr.ErrPatchFormatError, lineNo, err)
			}
			data, err := hexDecode(parts[2])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: bad data: %v", romerr.ErrPatchFormatError, lineNo, err)
			}
			if int64(len(data)) != expected {
				return nil, fmt.Errorf("%w: line %d: data length mismatch (specified %#x bytes, received %#x)",
					romerr.ErrPatchFormatError, lineNo, expected, len(data))
			}
			for i, b := range data {
				p.Changes[offset+int64(i)] = b
			}

		case 4:
			offset, err := strconv.ParseInt(parts[0], 16, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: bad offset: %v", romerr.ErrPatchFormatError, lineNo, err)
			}
			rleSize, err := strconv.ParseInt(parts[2], 16, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: bad RLE length: %v", romerr.ErrPatchFormatError, lineNo, err)
			}
			value, err := strconv.ParseInt(parts[3], 16, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: bad RLE value: %v", romerr.ErrPatchFormatError, lineNo, err)
			}
			if value > 0xFF {
				return nil, fmt.Errorf("%w: line %d: RLE value %#x won't fit in one byte", romerr.ErrPatchFormatError, lineNo, value)
			}
			for i := int64(0); i < rleSize; i++ {
				p.Changes[offset+i] = byte(value)
			}

		default:
			return nil, fmt.Errorf("%w: line %d: expected 3 or 4 colon-separated fields", romerr.ErrPatchFormatError, lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

func hexDecode(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string %q", s)
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

// Equal reports whether p and other describe exactly the same changes.
func (p *Patch) Equal(other *Patch) bool {
	if len(p.Changes) != len(other.Changes) {
		return false
	}
	for k, v := range p.Changes {
		if bv, ok := other.Changes[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
