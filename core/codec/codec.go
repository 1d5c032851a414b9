// Package codec implements the wire alphabet shared by every layer of
// xtransport: a byte-level serializer compatible with a widely-used Rust
// binary format (bincode) configured with variable-length integer
// encoding for enum discriminants — "bincode-with-varint" in spec terms.
//
// Every encoder here is allocation-light: Encoder grows one backing slice,
// Decoder only ever slices into the buffer it was given. Nothing in this
// package touches the network; it is pure transformation for callers
// serializing their own application packets. The handshake and the frame
// header write their fixed-size fields directly and do not use it.
package codec

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/gosuda/xtransport/core/errs"
)

// varintSingleByteMax is the largest value that fits in the 1-byte varint
// form; values above it use the sentinel-prefixed form.
const varintSingleByteMax = 250

const (
	sentinelU32 byte = 0xFB // value follows as 4-byte LE u32 (the only form we write)

	// Forward-compatible sentinels we may see on read but never produce.
	sentinelU16Compat  byte = 0xFC
	sentinelU32Compat  byte = 0xFD
	sentinelU64Compat  byte = 0xFE
	sentinelU128Compat byte = 0xFF
)

// Encoder appends bincode-with-varint encoded values to an internal buffer.
// The zero value is ready to use; NewEncoder additionally pre-allocates
// capacity.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with sizeHint bytes of pre-allocated capacity.
func NewEncoder(sizeHint int) *Encoder {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Encoder{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the encoded bytes accumulated so far. The slice aliases
// the Encoder's internal buffer and must not be retained across further
// writes.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len reports how many bytes have been written so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

func (e *Encoder) WriteU8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) WriteU16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) WriteU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) WriteU64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) WriteI32(v int32) {
	e.WriteU32(uint32(v))
}

func (e *Encoder) WriteI64(v int64) {
	e.WriteU64(uint64(v))
}

// WriteVarintU32 writes v using the varint form described in spec §4.1:
// a single byte for v in 0..=250, else sentinel 0xFB followed by v as a
// 4-byte LE u32.
func (e *Encoder) WriteVarintU32(v uint32) {
	if v <= varintSingleByteMax {
		e.buf = append(e.buf, byte(v))
		return
	}
	e.buf = append(e.buf, sentinelU32)
	e.WriteU32(v)
}

// WriteBytes appends raw bytes with no length prefix.
func (e *Encoder) WriteBytes(b []byte) {
	e.buf = append(e.buf, b...)
}

// WriteString writes a u64 LE length followed by the UTF-8 bytes of s.
func (e *Encoder) WriteString(s string) {
	e.WriteU64(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// WriteOptionTag writes the Option<T> presence byte (0 or 1). Callers
// write T themselves when present is true.
func (e *Encoder) WriteOptionTag(present bool) {
	if present {
		e.WriteU8(1)
	} else {
		e.WriteU8(0)
	}
}

// WriteOptionString writes an Option<string>.
func (e *Encoder) WriteOptionString(s *string) {
	e.WriteOptionTag(s != nil)
	if s != nil {
		e.WriteString(*s)
	}
}

// WriteSeqLen writes the u64 LE length prefix for a Sequence. The caller
// then writes each element in order.
func (e *Encoder) WriteSeqLen(n int) {
	e.WriteU64(uint64(n))
}

// WriteStringPairSeq writes a Sequence<(string, string)>.
func (e *Encoder) WriteStringPairSeq(pairs [][2]string) {
	e.WriteSeqLen(len(pairs))
	for _, p := range pairs {
		e.WriteString(p[0])
		e.WriteString(p[1])
	}
}

// DateTime is a UTC timestamp measured from the Unix epoch, encoded as
// { secs: i64, nsecs: u32 } per spec §4.1.
type DateTime struct {
	Secs  int64
	Nsecs uint32
}

// FromUnixMillis converts a millisecond Unix timestamp into a DateTime
// using floored division, so timestamps before the epoch remain valid
// (secs = floor(ms/1000), nsecs = (ms mod 1000) * 1_000_000).
func FromUnixMillis(ms int64) DateTime {
	secs := floorDiv(ms, 1000)
	rem := ms - secs*1000 // in [0, 1000)
	return DateTime{Secs: secs, Nsecs: uint32(rem) * 1_000_000}
}

// ToUnixMillis converts a DateTime back to a millisecond Unix timestamp,
// truncating sub-millisecond precision.
func (dt DateTime) ToUnixMillis() int64 {
	return dt.Secs*1000 + int64(dt.Nsecs/1_000_000)
}

// Validate reports whether dt satisfies the invariant 0 <= nsecs < 1e9.
func (dt DateTime) Validate() error {
	if dt.Nsecs >= 1_000_000_000 {
		return fmt.Errorf("%w: nsecs %d out of range", errs.ErrInvalidFormat, dt.Nsecs)
	}
	return nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// WriteDateTime writes dt as { secs: i64, nsecs: u32 }.
func (e *Encoder) WriteDateTime(dt DateTime) {
	e.WriteI64(dt.Secs)
	e.WriteU32(dt.Nsecs)
}

// Decoder reads bincode-with-varint encoded values from a fixed buffer.
// Reads never allocate beyond what the returned value itself requires.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder returns a Decoder over b. b is not copied; it must outlive
// the Decoder and must not be mutated while in use.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Remaining reports how many bytes are left to read.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// Done reports whether every byte has been consumed.
func (d *Decoder) Done() bool {
	return d.pos >= len(d.buf)
}

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", errs.ErrDeserialization, n, d.Remaining())
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Decoder) ReadU8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) ReadU16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Decoder) ReadU32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) ReadU64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *Decoder) ReadI32() (int32, error) {
	v, err := d.ReadU32()
	return int32(v), err
}

func (d *Decoder) ReadI64() (int64, error) {
	v, err := d.ReadU64()
	return int64(v), err
}

// ReadVarintU32 reads a varint-encoded u32. It recognizes the forward
// compatibility sentinels 0xFC/0xFD/0xFE/0xFF (2/4/8/16-byte forms) in
// addition to the 0xFB form this package writes, rejecting any decoded
// value that does not fit in a u32.
func (d *Decoder) ReadVarintU32() (uint32, error) {
	tag, err := d.ReadU8()
	if err != nil {
		return 0, err
	}
	if tag <= varintSingleByteMax {
		return uint32(tag), nil
	}

	var width int
	switch tag {
	case sentinelU32:
		width = 4
	case sentinelU16Compat:
		width = 2
	case sentinelU32Compat:
		width = 4
	case sentinelU64Compat:
		width = 8
	case sentinelU128Compat:
		width = 16
	default:
		return 0, fmt.Errorf("%w: invalid varint sentinel 0x%02x", errs.ErrInvalidFormat, tag)
	}

	b, err := d.take(width)
	if err != nil {
		return 0, err
	}
	return decodeVarintTail(b)
}

func decodeVarintTail(b []byte) (uint32, error) {
	switch len(b) {
	case 2:
		return uint32(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return binary.LittleEndian.Uint32(b), nil
	case 8:
		v := binary.LittleEndian.Uint64(b)
		if v > 0xFFFFFFFF {
			return 0, fmt.Errorf("%w: varint value exceeds u32 range", errs.ErrInvalidFormat)
		}
		return uint32(v), nil
	case 16:
		// Only the low 8 bytes can be nonzero for a value that fits in u32.
		for _, hi := range b[8:] {
			if hi != 0 {
				return 0, fmt.Errorf("%w: varint value exceeds u32 range", errs.ErrInvalidFormat)
			}
		}
		v := binary.LittleEndian.Uint64(b[:8])
		if v > 0xFFFFFFFF {
			return 0, fmt.Errorf("%w: varint value exceeds u32 range", errs.ErrInvalidFormat)
		}
		return uint32(v), nil
	default:
		return 0, fmt.Errorf("%w: unsupported varint width %d", errs.ErrInvalidFormat, len(b))
	}
}

// maxStringLen bounds how large a claimed string/sequence length we will
// trust before allocating, so a malicious length prefix cannot cause an
// unbounded allocation from a few bytes of input.
const maxStringLen = 1 << 28

// ReadString reads a u64 LE length followed by that many bytes, validated
// as UTF-8.
func (d *Decoder) ReadString() (string, error) {
	n, err := d.ReadU64()
	if err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", fmt.Errorf("%w: string length %d exceeds limit", errs.ErrDeserialization, n)
	}
	b, err := d.take(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: invalid UTF-8", errs.ErrDeserialization)
	}
	return string(b), nil
}

// ReadOptionTag reads the Option<T> presence byte, rejecting any tag
// outside {0, 1}.
func (d *Decoder) ReadOptionTag() (bool, error) {
	tag, err := d.ReadU8()
	if err != nil {
		return false, err
	}
	switch tag {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: invalid option tag %d", errs.ErrDeserialization, tag)
	}
}

// ReadOptionString reads an Option<string>, returning a nil pointer when
// absent.
func (d *Decoder) ReadOptionString() (*string, error) {
	present, err := d.ReadOptionTag()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	s, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ReadSeqLen reads the u64 LE length prefix for a Sequence.
func (d *Decoder) ReadSeqLen() (int, error) {
	n, err := d.ReadU64()
	if err != nil {
		return 0, err
	}
	if n > maxStringLen {
		return 0, fmt.Errorf("%w: sequence length %d exceeds limit", errs.ErrDeserialization, n)
	}
	return int(n), nil
}

// ReadStringPairSeq reads a Sequence<(string, string)>.
func (d *Decoder) ReadStringPairSeq() ([][2]string, error) {
	n, err := d.ReadSeqLen()
	if err != nil {
		return nil, err
	}
	pairs := make([][2]string, 0, n)
	for i := 0; i < n; i++ {
		a, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		b, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, [2]string{a, b})
	}
	return pairs, nil
}

// ReadDateTime reads a { secs: i64, nsecs: u32 } DateTime and validates
// the nsecs invariant.
func (d *Decoder) ReadDateTime() (DateTime, error) {
	secs, err := d.ReadI64()
	if err != nil {
		return DateTime{}, err
	}
	nsecs, err := d.ReadU32()
	if err != nil {
		return DateTime{}, err
	}
	dt := DateTime{Secs: secs, Nsecs: nsecs}
	if err := dt.Validate(); err != nil {
		return DateTime{}, err
	}
	return dt, nil
}
