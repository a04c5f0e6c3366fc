// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tiff

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/bits"

	"github.com/marktsuchida/tiffio/fileio"
	"github.com/marktsuchida/tiffio/internal/zero"
)

// maxValueSize bounds the size of a single entry's value.  BigTIFF allows
// 64-bit counts, but we read each value into one buffer.
const maxValueSize = math.MaxInt32

// Entry is one directory entry.  It is either an *Immediate, whose value is
// stored inside the directory, or a *Pointer, whose value lives elsewhere
// in the file.  Which one is decided when the entry is created: a value
// is immediate iff its size is at most the layout's offset size.
type Entry interface {
	Tag() Tag
	Type() FieldType
	Count() uint64
	// ReadValue returns the entry's value, reading it from r if needed.
	ReadValue(ctx context.Context, r io.ReaderAt) (Value, error)

	isEntry()
}

type entryHeader struct {
	layout Layout
	tag    Tag
	typ    FieldType
	count  uint64
}

func (e *entryHeader) Tag() Tag         { return e.tag }
func (e *entryHeader) Type() FieldType  { return e.typ }
func (e *entryHeader) Count() uint64    { return e.count }
func (e *entryHeader) isEntry()         {}
func (e *entryHeader) byteCount() int64 { return int64(e.typ.ElementSize()) * int64(e.count) }

// Immediate is an entry whose value is embedded in the directory.
type Immediate struct {
	entryHeader
	value Value
}

func (e *Immediate) Value() Value {
	return e.value
}

func (e *Immediate) ReadValue(context.Context, io.ReaderAt) (Value, error) {
	return e.value, nil
}

// Pointer is an entry whose directory record holds the offset of its value.
type Pointer struct {
	entryHeader
	// only set for entries built for writing
	value    Value
	hasValue bool
	offset   *OffsetField
}

// OffsetField returns the field holding the value's offset.
func (e *Pointer) OffsetField() *OffsetField {
	return e.offset
}

func (e *Pointer) ReadValue(ctx context.Context, r io.ReaderAt) (Value, error) {
	if e.hasValue {
		return e.value, nil
	}
	off := e.offset.OffsetValue().Offset()
	b, err := fileio.ReadFull(ctx, r, e.byteCount(), off)
	if err != nil {
		return Value{}, fmt.Errorf("read value of %s at %d: %w", e.tag, off, err)
	}
	return decodeValue(e.typ, int(e.count), e.layout.Order, b), nil
}

var (
	_ Entry = &Immediate{}
	_ Entry = &Pointer{}
)

func valueSize(typ FieldType, count uint64) (int64, error) {
	hi, lo := bits.Mul64(uint64(typ.ElementSize()), count)
	if hi != 0 || lo > maxValueSize {
		return 0, UnsupportedError(fmt.Sprintf("value of %d %s elements exceeds size limit", count, typ))
	}
	return int64(lo), nil
}

// readEntry decodes one directory entry.  Pointer entries record only the
// offset of their value.
func readEntry(d *decoder) (Entry, error) {
	l := d.l
	tag := Tag(d.uint16())
	typ, err := fieldTypeFromCode(d.uint16())
	if err != nil {
		return nil, err
	}
	if err := tag.CheckType(typ); err != nil {
		return nil, err
	}
	if err := typ.checkVersion(l.Version); err != nil {
		return nil, err
	}
	count := d.valueCount()
	hdr := entryHeader{layout: l, tag: tag, typ: typ, count: count}

	if count <= uint64(l.Version.OffsetSize()) && hdr.byteCount() <= int64(l.Version.OffsetSize()) {
		inline := d.take(l.Version.OffsetSize())
		return &Immediate{
			entryHeader: hdr,
			value:       decodeValue(typ, int(count), l.Order, inline),
		}, nil
	}

	if _, err := valueSize(typ, count); err != nil {
		return nil, err
	}
	off := d.offset()
	if off > math.MaxInt64 {
		return nil, FormatError(fmt.Sprintf("offset %d of %s value out of range", off, tag))
	}
	return &Pointer{
		entryHeader: hdr,
		offset:      OffsetFieldFor(fileio.At(int64(off)), fmt.Sprintf("read-only %s value", tag)),
	}, nil
}

// newEntry creates an entry for writing.  Pointer entries get a fresh
// offset field, registered with group so it can be patched once the value
// has been written.
func newEntry(l Layout, tag Tag, v Value, group *OffsetFieldGroup) (Entry, error) {
	if err := tag.CheckType(v.Type()); err != nil {
		return nil, err
	}
	if err := v.Type().checkVersion(l.Version); err != nil {
		return nil, err
	}
	if _, err := valueSize(v.Type(), uint64(v.Count())); err != nil {
		return nil, err
	}
	hdr := entryHeader{layout: l, tag: tag, typ: v.Type(), count: uint64(v.Count())}

	if v.ByteCount() <= l.Version.OffsetSize() {
		return &Immediate{entryHeader: hdr, value: v}, nil
	}

	offset := NewOffsetField(fmt.Sprintf("value of %s", tag))
	group.Add(offset)
	return &Pointer{entryHeader: hdr, value: v, hasValue: true, offset: offset}, nil
}

// encodeEntry appends the directory record of e to buf.
func encodeEntry(l Layout, buf *fileio.Buffer, e Entry, g *fileio.PositionGroup) {
	l.putUint16(buf, uint16(e.Tag()))
	l.putUint16(buf, uint16(e.Type()))
	l.putValueCount(buf, e.Count())

	switch e := e.(type) {
	case *Immediate:
		copy(buf.Extend(l.Version.OffsetSize()), e.value.AppendTo(nil, l.Order))
	case *Pointer:
		e.offset.Encode(l, buf, g)
	default:
		panic(fmt.Sprintf("invariant broken: unknown entry type %T", e))
	}
}

func (e *Pointer) checkWritable() {
	if !e.hasValue {
		panic(fmt.Sprintf("invariant broken: %s entry was read from a file and has no value to write", e.tag))
	}
}

// writeEntryValue appends a pointer entry's value at the aligned end of f
// and resolves its offset field.  Immediate entries have nothing to write.
func writeEntryValue(ctx context.Context, l Layout, f fileio.File, e Entry) error {
	switch e := e.(type) {
	case *Immediate:
		return nil
	case *Pointer:
		e.checkWritable()
		off, err := AppendAligned(ctx, l, f, e.value.AppendTo(nil, l.Order))
		if err != nil {
			return fmt.Errorf("write value of %s: %w", e.tag, err)
		}
		e.offset.SetOffsetValue(fileio.At(off))
		return nil
	default:
		panic(fmt.Sprintf("invariant broken: unknown entry type %T", e))
	}
}

// encodeEntryValue appends a pointer entry's value to buf at an aligned
// position and points its offset field there.
func encodeEntryValue(l Layout, buf *fileio.Buffer, e Entry, g *fileio.PositionGroup) {
	switch e := e.(type) {
	case *Immediate:
	case *Pointer:
		e.checkWritable()
		pos := buf.Align(l.Version.OffsetSize())
		e.offset.SetOffsetValue(g.At(int64(pos)))
		_, _ = buf.Write(e.value.AppendTo(nil, l.Order))
	default:
		panic(fmt.Sprintf("invariant broken: unknown entry type %T", e))
	}
}

// AlignedEnd pads f to the layout's offset size and returns the new end of
// file, where n bytes can then be written.  It fails with ErrFileTooLarge,
// leaving f untouched, if they would not be addressable.
func AlignedEnd(ctx context.Context, l Layout, f fileio.File, n int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	size, err := f.Size()
	if err != nil {
		return 0, err
	}
	pad := zero.PadLen(size, l.Version.OffsetSize())
	if uint64(size)+uint64(pad)+uint64(n) > l.Version.MaxOffset() {
		return 0, ErrFileTooLarge
	}
	return fileio.Pad(ctx, f, l.Version.OffsetSize())
}

// AppendAligned writes p at the aligned end of f and returns its offset.
func AppendAligned(ctx context.Context, l Layout, f fileio.File, p []byte) (int64, error) {
	off, err := AlignedEnd(ctx, l, f, len(p))
	if err != nil {
		return 0, err
	}
	if err := fileio.WriteAt(ctx, f, p, off); err != nil {
		return 0, err
	}
	return off, nil
}
