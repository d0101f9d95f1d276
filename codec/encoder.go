// Package codec implements the canonical binary form of requests,
// responses and storage values. The bytes produced here are the input
// of request signatures and of locally computed transaction
// references, so the layout is fixed:
//
//   - integers are big endian; float and double are IEEE-754 bit patterns
//   - a compact int is one byte below 255, else 0xFF and a 4-byte int
//   - strings and byte slices are a compact length followed by the bytes
//   - big integers are a sign byte (0 non-negative, 1 negative), a
//     compact magnitude length and the big-endian magnitude
//   - every variant of a union starts with its selector byte
//
// Encoders and decoders keep the first error they meet and ignore
// later calls, so callers check Err once at the end.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"unicode/utf8"

	"github.com/blockberries/moka"
)

const compactEscape = 0xFF

// Encoder accumulates canonical bytes.
type Encoder struct {
	buf bytes.Buffer
	err error
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// Bytes returns the bytes written so far.
func (e *Encoder) Bytes() []byte { return e.buf.Bytes() }

// Err returns the first error met, always an *moka.EncodingError.
func (e *Encoder) Err() error { return e.err }

func (e *Encoder) fail(field, format string, args ...any) {
	if e.err == nil {
		e.err = &moka.EncodingError{Field: field, Reason: fmt.Sprintf(format, args...)}
	}
}

func (e *Encoder) PutByte(b byte) {
	if e.err == nil {
		e.buf.WriteByte(b)
	}
}

func (e *Encoder) PutBool(b bool) {
	if b {
		e.PutByte(1)
	} else {
		e.PutByte(0)
	}
}

func (e *Encoder) PutUint16(v uint16) {
	if e.err == nil {
		e.buf.Write(binary.BigEndian.AppendUint16(nil, v))
	}
}

func (e *Encoder) PutInt16(v int16) { e.PutUint16(uint16(v)) }

func (e *Encoder) PutInt32(v int32) {
	if e.err == nil {
		e.buf.Write(binary.BigEndian.AppendUint32(nil, uint32(v)))
	}
}

func (e *Encoder) PutInt64(v int64) {
	if e.err == nil {
		e.buf.Write(binary.BigEndian.AppendUint64(nil, uint64(v)))
	}
}

// PutFloat32 writes a finite float; NaN and infinities are rejected.
func (e *Encoder) PutFloat32(field string, v float32) {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		e.fail(field, "non-finite float %v", v)
		return
	}
	e.PutInt32(int32(math.Float32bits(v)))
}

// PutFloat64 writes a finite double; NaN and infinities are rejected.
func (e *Encoder) PutFloat64(field string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		e.fail(field, "non-finite double %v", v)
		return
	}
	e.PutInt64(int64(math.Float64bits(v)))
}

// PutCompactInt writes a non-negative length or count.
func (e *Encoder) PutCompactInt(n int) {
	switch {
	case n < 0 || n > math.MaxInt32:
		e.fail("", "compact int %d out of range", n)
	case n < compactEscape:
		e.PutByte(byte(n))
	default:
		e.PutByte(compactEscape)
		e.PutInt32(int32(n))
	}
}

// PutString writes a UTF-8 string.
func (e *Encoder) PutString(field, s string) {
	if !utf8.ValidString(s) {
		e.fail(field, "invalid UTF-8")
		return
	}
	e.PutCompactInt(len(s))
	if e.err == nil {
		e.buf.WriteString(s)
	}
}

func (e *Encoder) PutBytes(b []byte) {
	e.PutCompactInt(len(b))
	if e.err == nil {
		e.buf.Write(b)
	}
}

// PutBigInt writes a signed big integer. Nil is rejected.
func (e *Encoder) PutBigInt(field string, v *big.Int) {
	if v == nil {
		e.fail(field, "missing value")
		return
	}
	if v.Sign() < 0 {
		e.PutByte(1)
	} else {
		e.PutByte(0)
	}
	e.PutBytes(v.Bytes())
}

// PutMagnitude writes a big integer that must be present and non-negative,
// such as a nonce, a gas amount or a progressive.
func (e *Encoder) PutMagnitude(field string, v *big.Int) {
	if v != nil && v.Sign() < 0 {
		e.fail(field, "negative value %s", v)
		return
	}
	e.PutBigInt(field, v)
}

// Decoder reads canonical bytes.
type Decoder struct {
	r   *bytes.Reader
	err error
}

// NewDecoder returns a decoder over b.
func NewDecoder(b []byte) *Decoder { return &Decoder{r: bytes.NewReader(b)} }

// Err returns the first error met, always an *moka.EncodingError.
func (d *Decoder) Err() error { return d.err }

// Finish returns Err, or an error if unread bytes remain.
func (d *Decoder) Finish() error {
	if d.err == nil && d.r.Len() > 0 {
		d.fail("", "%d trailing bytes", d.r.Len())
	}
	return d.err
}

func (d *Decoder) fail(field, format string, args ...any) {
	if d.err == nil {
		d.err = &moka.EncodingError{Field: field, Reason: fmt.Sprintf(format, args...)}
	}
}

// read returns the next n bytes. After an error it returns zeroes, at
// most 8 of them, which is enough for every fixed-width read.
func (d *Decoder) read(n int) []byte {
	if d.err == nil && n > d.r.Len() {
		d.fail("", "truncated input: need %d bytes, have %d", n, d.r.Len())
	}
	if d.err != nil {
		return make([]byte, min(n, 8))
	}
	b := make([]byte, n)
	_, _ = d.r.Read(b)
	return b
}

func (d *Decoder) Byte() byte { return d.read(1)[0] }

func (d *Decoder) Bool() bool {
	switch b := d.Byte(); b {
	case 0:
		return false
	case 1:
		return true
	default:
		d.fail("", "invalid boolean byte %d", b)
		return false
	}
}

func (d *Decoder) Uint16() uint16 { return binary.BigEndian.Uint16(d.read(2)) }
func (d *Decoder) Int16() int16   { return int16(d.Uint16()) }
func (d *Decoder) Int32() int32   { return int32(binary.BigEndian.Uint32(d.read(4))) }
func (d *Decoder) Int64() int64   { return int64(binary.BigEndian.Uint64(d.read(8))) }

func (d *Decoder) Float32() float32 { return math.Float32frombits(uint32(d.Int32())) }
func (d *Decoder) Float64() float64 { return math.Float64frombits(uint64(d.Int64())) }

func (d *Decoder) CompactInt() int {
	b := d.Byte()
	if b != compactEscape {
		return int(b)
	}
	n := d.Int32()
	if n < 0 {
		d.fail("", "negative compact int %d", n)
		return 0
	}
	return int(n)
}

// Text reads a string.
func (d *Decoder) Text() string {
	s := string(d.Bytes())
	if d.err == nil && !utf8.ValidString(s) {
		d.fail("", "invalid UTF-8")
	}
	return s
}

func (d *Decoder) Bytes() []byte {
	n := d.CompactInt()
	if d.err != nil {
		return nil
	}
	return d.read(n)
}

func (d *Decoder) BigInt() *big.Int {
	neg := d.Bool()
	v := new(big.Int).SetBytes(d.Bytes())
	if neg {
		v.Neg(v)
	}
	return v
}
