// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Values built in memory are stored little-endian and converted on write.
var (
	canonicalOrder binary.ByteOrder = binary.LittleEndian
	bigEndian      binary.ByteOrder = binary.BigEndian
)

// Value is the typed value of a directory entry: count elements of one
// field type, kept as raw bytes in a known byte order.  Values are
// immutable.
type Value struct {
	typ   FieldType
	count int
	order binary.ByteOrder
	raw   []byte
}

func isBigEndian(order binary.ByteOrder) bool {
	return order == binary.BigEndian
}

// decodeValue copies count elements of typ out of b.
func decodeValue(typ FieldType, count int, order binary.ByteOrder, b []byte) Value {
	n := typ.ElementSize() * count
	raw := make([]byte, n)
	copy(raw, b[:n])
	return Value{typ: typ, count: count, order: order, raw: raw}
}

func newValue(typ FieldType, count int) (Value, []byte) {
	raw := make([]byte, typ.ElementSize()*count)
	return Value{typ: typ, count: count, order: canonicalOrder, raw: raw}, raw
}

// Bytes returns a BYTE value.
func Bytes(b []byte) Value {
	v, raw := newValue(TypeByte, len(b))
	copy(raw, b)
	return v
}

// Undefined returns an UNDEFINED value (opaque bytes).
func Undefined(b []byte) Value {
	v, raw := newValue(TypeUndefined, len(b))
	copy(raw, b)
	return v
}

// SBytes returns an SBYTE value.
func SBytes(s ...int8) Value {
	v, raw := newValue(TypeSByte, len(s))
	for i, x := range s {
		raw[i] = byte(x)
	}
	return v
}

// ASCII returns an ASCII value holding s and its terminating NUL.
func ASCII(s string) Value {
	v, raw := newValue(TypeASCII, len(s)+1)
	copy(raw, s)
	return v
}

func Shorts(s ...uint16) Value {
	v, raw := newValue(TypeShort, len(s))
	for i, x := range s {
		canonicalOrder.PutUint16(raw[2*i:], x)
	}
	return v
}

func SShorts(s ...int16) Value {
	v, raw := newValue(TypeSShort, len(s))
	for i, x := range s {
		canonicalOrder.PutUint16(raw[2*i:], uint16(x))
	}
	return v
}

func Longs(s ...uint32) Value {
	v, raw := newValue(TypeLong, len(s))
	for i, x := range s {
		canonicalOrder.PutUint32(raw[4*i:], x)
	}
	return v
}

func SLongs(s ...int32) Value {
	v, raw := newValue(TypeSLong, len(s))
	for i, x := range s {
		canonicalOrder.PutUint32(raw[4*i:], uint32(x))
	}
	return v
}

// IFDs returns an IFD value (32-bit directory offsets).
func IFDs(s ...uint32) Value {
	v := Longs(s...)
	v.typ = TypeIFD
	return v
}

// Long8s returns a BigTIFF-only LONG8 value.
func Long8s(s ...uint64) Value {
	v, raw := newValue(TypeLong8, len(s))
	for i, x := range s {
		canonicalOrder.PutUint64(raw[8*i:], x)
	}
	return v
}

// SLong8s returns a BigTIFF-only SLONG8 value.
func SLong8s(s ...int64) Value {
	v, raw := newValue(TypeSLong8, len(s))
	for i, x := range s {
		canonicalOrder.PutUint64(raw[8*i:], uint64(x))
	}
	return v
}

// IFD8s returns a BigTIFF-only IFD8 value (64-bit directory offsets).
func IFD8s(s ...uint64) Value {
	v := Long8s(s...)
	v.typ = TypeIFD8
	return v
}

// Rational is an unsigned fraction.
type Rational struct {
	Num, Den uint32
}

// SRational is a signed fraction.
type SRational struct {
	Num, Den int32
}

func Rationals(s ...Rational) Value {
	v, raw := newValue(TypeRational, len(s))
	for i, x := range s {
		canonicalOrder.PutUint32(raw[8*i:], x.Num)
		canonicalOrder.PutUint32(raw[8*i+4:], x.Den)
	}
	return v
}

func SRationals(s ...SRational) Value {
	v, raw := newValue(TypeSRational, len(s))
	for i, x := range s {
		canonicalOrder.PutUint32(raw[8*i:], uint32(x.Num))
		canonicalOrder.PutUint32(raw[8*i+4:], uint32(x.Den))
	}
	return v
}

func Floats(s ...float32) Value {
	v, raw := newValue(TypeFloat, len(s))
	for i, x := range s {
		canonicalOrder.PutUint32(raw[4*i:], math.Float32bits(x))
	}
	return v
}

func Doubles(s ...float64) Value {
	v, raw := newValue(TypeDouble, len(s))
	for i, x := range s {
		canonicalOrder.PutUint64(raw[8*i:], math.Float64bits(x))
	}
	return v
}

// Uints returns the narrowest unsigned integer value (SHORT, LONG or, for
// BigTIFF-sized numbers, LONG8) that holds all of s.
func Uints(s ...uint64) Value {
	var max uint64
	for _, x := range s {
		if x > max {
			max = x
		}
	}
	switch {
	case max <= math.MaxUint16:
		v, raw := newValue(TypeShort, len(s))
		for i, x := range s {
			canonicalOrder.PutUint16(raw[2*i:], uint16(x))
		}
		return v
	case max <= math.MaxUint32:
		v, raw := newValue(TypeLong, len(s))
		for i, x := range s {
			canonicalOrder.PutUint32(raw[4*i:], uint32(x))
		}
		return v
	default:
		return Long8s(s...)
	}
}

func (v Value) Type() FieldType {
	return v.typ
}

func (v Value) Count() int {
	return v.count
}

// ByteCount returns the encoded size of the value.
func (v Value) ByteCount() int {
	return len(v.raw)
}

// AppendTo appends the value encoded in the given byte order.
func (v Value) AppendTo(dst []byte, order binary.ByteOrder) []byte {
	start := len(dst)
	dst = append(dst, v.raw...)
	unit := v.typ.swapUnit()
	if unit <= 1 || isBigEndian(order) == isBigEndian(v.order) {
		return dst
	}
	out := dst[start:]
	for i := 0; i+unit <= len(out); i += unit {
		elem := out[i : i+unit]
		for l, r := 0, unit-1; l < r; l, r = l+1, r-1 {
			elem[l], elem[r] = elem[r], elem[l]
		}
	}
	return dst
}

func (v Value) checkIndex(i int) {
	if i < 0 || i >= v.count {
		panic(fmt.Sprintf("tiff: value index %d out of range (count %d)", i, v.count))
	}
}

func (v Value) elem(i int) []byte {
	v.checkIndex(i)
	size := v.typ.ElementSize()
	return v.raw[i*size : (i+1)*size]
}

// Uint64 returns element i of an unsigned integer value (BYTE, SHORT, LONG,
// IFD, LONG8, IFD8).  ok is false for other types.
func (v Value) Uint64(i int) (x uint64, ok bool) {
	if !v.typ.isUnsigned() {
		return 0, false
	}
	b := v.elem(i)
	switch len(b) {
	case 1:
		return uint64(b[0]), true
	case 2:
		return uint64(v.order.Uint16(b)), true
	case 4:
		return uint64(v.order.Uint32(b)), true
	default:
		return v.order.Uint64(b), true
	}
}

// Uint64s returns all elements of an unsigned integer value.
func (v Value) Uint64s() ([]uint64, bool) {
	if !v.typ.isUnsigned() {
		return nil, false
	}
	out := make([]uint64, v.count)
	for i := range out {
		out[i], _ = v.Uint64(i)
	}
	return out, true
}

// Int64 returns element i of any integer value, signed or unsigned.
// Unsigned 64-bit elements above math.MaxInt64 are not representable and
// report ok == false.
func (v Value) Int64(i int) (x int64, ok bool) {
	if v.typ.isUnsigned() {
		u, _ := v.Uint64(i)
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	}
	if !v.typ.isSigned() {
		return 0, false
	}
	b := v.elem(i)
	switch len(b) {
	case 1:
		return int64(int8(b[0])), true
	case 2:
		return int64(int16(v.order.Uint16(b))), true
	case 4:
		return int64(int32(v.order.Uint32(b))), true
	default:
		return int64(v.order.Uint64(b)), true
	}
}

// Float64 returns element i of any numeric value as a float64.
func (v Value) Float64(i int) (float64, bool) {
	switch v.typ {
	case TypeFloat:
		return float64(math.Float32frombits(v.order.Uint32(v.elem(i)))), true
	case TypeDouble:
		return math.Float64frombits(v.order.Uint64(v.elem(i))), true
	case TypeRational:
		r, _ := v.Rational(i)
		return float64(r.Num) / float64(r.Den), true
	case TypeSRational:
		b := v.elem(i)
		return float64(int32(v.order.Uint32(b[:4]))) / float64(int32(v.order.Uint32(b[4:]))), true
	}
	if x, ok := v.Int64(i); ok {
		return float64(x), true
	}
	if x, ok := v.Uint64(i); ok {
		return float64(x), true
	}
	return 0, false
}

// Rational returns element i of a RATIONAL value.
func (v Value) Rational(i int) (Rational, bool) {
	if v.typ != TypeRational {
		return Rational{}, false
	}
	b := v.elem(i)
	return Rational{Num: v.order.Uint32(b[:4]), Den: v.order.Uint32(b[4:])}, true
}

// Text returns the contents of an ASCII value up to the first NUL.
func (v Value) Text() (string, bool) {
	if v.typ != TypeASCII {
		return "", false
	}
	s := v.raw
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s), true
}

// Equal reports whether v and o have the same type and elements,
// regardless of the byte order they are held in.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ || v.count != o.count {
		return false
	}
	return bytes.Equal(v.AppendTo(nil, canonicalOrder), o.AppendTo(nil, canonicalOrder))
}

const maxStringElems = 8

func (v Value) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s[%d]", v.typ, v.count)
	if s, ok := v.Text(); ok {
		fmt.Fprintf(&sb, "%q", s)
		return sb.String()
	}
	if v.typ == TypeUndefined {
		return sb.String()
	}
	sb.WriteByte('{')
	for i := 0; i < v.count && i < maxStringElems; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		switch v.typ {
		case TypeRational:
			r, _ := v.Rational(i)
			fmt.Fprintf(&sb, "%d/%d", r.Num, r.Den)
		case TypeFloat, TypeDouble, TypeSRational:
			f, _ := v.Float64(i)
			fmt.Fprintf(&sb, "%g", f)
		default:
			if x, ok := v.Uint64(i); ok {
				fmt.Fprintf(&sb, "%d", x)
			} else {
				x, _ := v.Int64(i)
				fmt.Fprintf(&sb, "%d", x)
			}
		}
	}
	if v.count > maxStringElems {
		sb.WriteString(", ...")
	}
	sb.WriteByte('}')
	return sb.String()
}
