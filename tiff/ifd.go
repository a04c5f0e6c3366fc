// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tiff

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/marktsuchida/tiffio/fileio"
)

// IFD is an image file directory: a list of entries and the offset of the
// next directory in the chain.
type IFD struct {
	layout  Layout
	offset  int64 // where the directory was read from, or -1
	entries []Entry
	next    *OffsetField
}

// ReadIFD reads the directory at off: first the entry count, then the
// entries and next-IFD offset in one read.
func ReadIFD(ctx context.Context, l Layout, r io.ReaderAt, off int64) (*IFD, error) {
	v := l.Version
	countBytes, err := fileio.ReadFull(ctx, r, int64(v.EntryCountSize()), off)
	if err != nil {
		return nil, fmt.Errorf("read IFD entry count at %d: %w", off, err)
	}
	count := v.ReadEntryCount(l.Order, countBytes)
	if count > (maxValueSize-uint64(v.OffsetSize()))/uint64(v.IFDEntrySize()) {
		return nil, UnsupportedError(fmt.Sprintf("IFD at %d has too many entries (%d)", off, count))
	}

	bodySize := int64(count)*int64(v.IFDEntrySize()) + int64(v.OffsetSize())
	body, err := fileio.ReadFull(ctx, r, bodySize, off+int64(v.EntryCountSize()))
	if err != nil {
		return nil, fmt.Errorf("read IFD entries at %d: %w", off, err)
	}

	d := &decoder{l: l, b: body}
	entries := make([]Entry, 0, count)
	for i := uint64(0); i < count; i++ {
		e, err := readEntry(d)
		if err != nil {
			return nil, fmt.Errorf("IFD at %d, entry %d: %w", off, i, err)
		}
		entries = append(entries, e)
	}
	next := d.offset()
	if next > math.MaxInt64 {
		return nil, FormatError(fmt.Sprintf("next IFD offset %d out of range", next))
	}

	return &IFD{
		layout:  l,
		offset:  off,
		entries: entries,
		next:    OffsetFieldFor(fileio.At(int64(next)), "read-only NextIFDOffset"),
	}, nil
}

// IFDBuilder assembles a directory for writing.
type IFDBuilder struct {
	layout  Layout
	next    *OffsetField
	group   *OffsetFieldGroup
	entries []Entry
}

// NewIFDBuilder returns a builder for a directory whose next-IFD offset is
// written through next.  Offset fields of pointer entries are added to
// group; adding next to a group is up to the caller.
func NewIFDBuilder(l Layout, next *OffsetField, group *OffsetFieldGroup) *IFDBuilder {
	return &IFDBuilder{layout: l, next: next, group: group}
}

// Add appends an entry.  Duplicate tags are allowed.
func (b *IFDBuilder) Add(tag Tag, v Value) error {
	e, err := newEntry(b.layout, tag, v, b.group)
	if err != nil {
		return fmt.Errorf("entry %s: %w", tag, err)
	}
	b.entries = append(b.entries, e)
	return nil
}

// Build returns the directory with its entries sorted by tag.
func (b *IFDBuilder) Build() (*IFD, error) {
	if uint64(len(b.entries)) > b.layout.Version.MaxEntryCount() {
		return nil, UnsupportedError(fmt.Sprintf("%d entries do not fit in one %s directory", len(b.entries), b.layout.Version))
	}
	entries := make([]Entry, len(b.entries))
	copy(entries, b.entries)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Tag() < entries[j].Tag()
	})
	return &IFD{
		layout:  b.layout,
		offset:  -1,
		entries: entries,
		next:    b.next,
	}, nil
}

func (d *IFD) Layout() Layout {
	return d.layout
}

// Offset returns the file offset the directory was read from.
func (d *IFD) Offset() (int64, bool) {
	return d.offset, d.offset >= 0
}

func (d *IFD) EntryCount() int {
	return len(d.entries)
}

// Entries returns the entries in file order.  The slice must not be
// modified.
func (d *IFD) Entries() []Entry {
	return d.entries
}

// Entry returns an entry with the given tag.  If there are several, which
// one is returned is unspecified.
func (d *IFD) Entry(tag Tag) (Entry, bool) {
	for _, e := range d.entries {
		if e.Tag() == tag {
			return e, true
		}
	}
	return nil, false
}

// RequiredEntry is like Entry but fails with a FormatError if the tag is
// missing.
func (d *IFD) RequiredEntry(tag Tag) (Entry, error) {
	e, ok := d.Entry(tag)
	if !ok {
		return nil, FormatError(fmt.Sprintf("required IFD entry %s is missing", tag))
	}
	return e, nil
}

// AllEntries returns every entry with the given tag.  Files in the wild
// sometimes repeat a tag (ImageJ and OME each writing an ImageDescription,
// for example), so more than one may be returned.
func (d *IFD) AllEntries(tag Tag) []Entry {
	var found []Entry
	for _, e := range d.entries {
		if e.Tag() == tag {
			found = append(found, e)
		}
	}
	return found
}

// NextIFDOffset returns the field linking to the next directory.
func (d *IFD) NextIFDOffset() *OffsetField {
	return d.next
}

// HasNext reports whether another directory follows this one.
func (d *IFD) HasNext() bool {
	return d.next.OffsetValue().Offset() != 0
}

// ReadNext reads the directory that follows this one.
func (d *IFD) ReadNext(ctx context.Context, r io.ReaderAt) (*IFD, error) {
	if !d.HasNext() {
		return nil, ErrNoNextIFD
	}
	return ReadIFD(ctx, d.layout, r, d.next.OffsetValue().Offset())
}

// maxConcurrentReads bounds the goroutines ReadValues starts; a BigTIFF
// directory may hold millions of entries.
const maxConcurrentReads = 64

// ReadValues reads every entry's value, concurrently, in entry order.
func (d *IFD) ReadValues(ctx context.Context, r io.ReaderAt) ([]Value, error) {
	values := make([]Value, len(d.entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, e := range d.entries {
		i, e := i, e
		g.Go(func() error {
			v, err := e.ReadValue(gctx, r)
			if err != nil {
				return err
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}

// readFirstUints reads the first element of the two tags' values
// concurrently.
func (d *IFD) readFirstUints(ctx context.Context, r io.ReaderAt, tags [2]Tag) ([2]uint64, error) {
	var out [2]uint64
	var entries [2]Entry
	for i, tag := range tags {
		e, err := d.RequiredEntry(tag)
		if err != nil {
			return out, err
		}
		entries[i] = e
	}
	g, gctx := errgroup.WithContext(ctx)
	for i, e := range entries {
		i, e, tag := i, e, tags[i]
		g.Go(func() error {
			v, err := e.ReadValue(gctx, r)
			if err != nil {
				return err
			}
			if v.Count() != 1 {
				return UnsupportedError(fmt.Sprintf("%s has %d values; only single-strip images are supported", tag, v.Count()))
			}
			x, ok := v.Uint64(0)
			if !ok {
				return FormatError(fmt.Sprintf("%s has non-integer type %s", tag, v.Type()))
			}
			out[i] = x
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// ReadPixels reads the pixel data of a single-strip image.  The data is
// returned as stored; no decompression is done.
func (d *IFD) ReadPixels(ctx context.Context, r io.ReaderAt) ([]byte, error) {
	layout, err := d.readFirstUints(ctx, r, [2]Tag{ImageLength, RowsPerStrip})
	if err != nil {
		return nil, err
	}
	if length, rowsPerStrip := layout[0], layout[1]; length != rowsPerStrip {
		return nil, UnsupportedError(fmt.Sprintf("only images stored in a single strip are supported (ImageLength %d, RowsPerStrip %d)", length, rowsPerStrip))
	}

	strip, err := d.readFirstUints(ctx, r, [2]Tag{StripOffsets, StripByteCounts})
	if err != nil {
		return nil, err
	}
	off, size := strip[0], strip[1]
	if off > math.MaxInt64 || size > math.MaxInt64 {
		return nil, FormatError(fmt.Sprintf("strip (offset %d, size %d) out of range", off, size))
	}
	if size > maxValueSize {
		return nil, UnsupportedError(fmt.Sprintf("strip of %d bytes exceeds size limit", size))
	}
	pixels, err := fileio.ReadFull(ctx, r, int64(size), int64(off))
	if err != nil {
		return nil, fmt.Errorf("read strip at %d: %w", off, err)
	}
	return pixels, nil
}

// EncodedSize returns the size of the directory itself, without pointer
// values.
func (d *IFD) EncodedSize() int {
	v := d.layout.Version
	return v.EntryCountSize() + len(d.entries)*v.IFDEntrySize() + v.OffsetSize()
}

// Encode appends the directory to buf, recording offset field positions
// relative to g, and returns the buffer offset it starts at.  Pointer
// values are not included; see EncodeValues.
func (d *IFD) Encode(buf *fileio.Buffer, g *fileio.PositionGroup) int {
	start := buf.Len()
	d.layout.putEntryCount(buf, uint64(len(d.entries)))
	for _, e := range d.entries {
		encodeEntry(d.layout, buf, e, g)
	}
	d.next.Encode(d.layout, buf, g)
	return start
}

// EncodeValues appends every pointer entry's value to buf, each aligned to
// the offset size, and points the entries' offset fields at them.
func (d *IFD) EncodeValues(buf *fileio.Buffer, g *fileio.PositionGroup) {
	for _, e := range d.entries {
		encodeEntryValue(d.layout, buf, e, g)
	}
}

// Write appends the directory at the aligned end of f and returns its
// offset.  Chaining it (setting some other field's offset value to the
// returned offset) is the caller's job.
//
// Pointer entries whose values have not been written yet get placeholders;
// call WriteValues and then patch the entries' offset field group.
func (d *IFD) Write(ctx context.Context, f fileio.File) (int64, error) {
	buf := fileio.NewBuffer(d.EncodedSize())
	g := fileio.NewPositionGroup()
	d.Encode(buf, g)

	// TIFF only requires word alignment; directories get the same
	// offset-size alignment as pointer values.
	off, err := AppendAligned(ctx, d.layout, f, buf.Bytes())
	if err != nil {
		return 0, fmt.Errorf("write IFD: %w", err)
	}
	g.Resolve(off)
	return off, nil
}

// WriteValues appends every pointer entry's value to f and resolves the
// entries' offset fields.
func (d *IFD) WriteValues(ctx context.Context, f fileio.File) error {
	for _, e := range d.entries {
		if err := writeEntryValue(ctx, d.layout, f, e); err != nil {
			return err
		}
	}
	return nil
}
