// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tiff

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/marktsuchida/tiffio/fileio"
)

const offsetPlaceholder = 0

// OffsetFieldState tracks how much of an OffsetField is known.
type OffsetFieldState int

const (
	Unset OffsetFieldState = iota
	FieldPositionKnown
	OffsetValueKnown
	BothKnown
	Patched
)

func (s OffsetFieldState) String() string {
	switch s {
	case Unset:
		return "Unset"
	case FieldPositionKnown:
		return "FieldPositionKnown"
	case OffsetValueKnown:
		return "OffsetValueKnown"
	case BothKnown:
		return "BothKnown"
	case Patched:
		return "Patched"
	default:
		return fmt.Sprintf("OffsetFieldState(%d)", int(s))
	}
}

// OffsetField is a serialized pointer: the position where the pointer is
// stored (field position) and the position it points to (offset value).
// Either may be unknown when the field is first written, in which case a
// zero placeholder goes out and Update patches it later.
//
// Each of the two positions can be set at most once.
type OffsetField struct {
	fieldPos    fileio.Position
	hasFieldPos bool
	value       fileio.Position
	hasValue    bool
	patched     bool

	annotation string
}

// NewOffsetField returns a field with neither position known.  The
// annotation shows up in String and panics.
func NewOffsetField(annotation string) *OffsetField {
	return &OffsetField{annotation: annotation}
}

// OffsetFieldAt returns a field stored at pos, pointing at a location not
// known yet.
func OffsetFieldAt(pos fileio.Position, annotation string) *OffsetField {
	f := NewOffsetField(annotation)
	f.SetFieldPosition(pos)
	return f
}

// OffsetFieldFor returns a field pointing at value.
func OffsetFieldFor(value fileio.Position, annotation string) *OffsetField {
	f := NewOffsetField(annotation)
	f.SetOffsetValue(value)
	return f
}

func (f *OffsetField) SetFieldPosition(pos fileio.Position) {
	if f.hasFieldPos {
		panic(fmt.Sprintf("invariant broken: attempt to overwrite field position in %s", f))
	}
	f.fieldPos = pos
	f.hasFieldPos = true
}

func (f *OffsetField) SetOffsetValue(value fileio.Position) {
	if f.hasValue {
		panic(fmt.Sprintf("invariant broken: attempt to overwrite offset value in %s", f))
	}
	f.value = value
	f.hasValue = true
}

func (f *OffsetField) HasFieldPosition() bool { return f.hasFieldPos }
func (f *OffsetField) HasOffsetValue() bool   { return f.hasValue }

func (f *OffsetField) FieldPosition() fileio.Position {
	if !f.hasFieldPos {
		panic(fmt.Sprintf("invariant broken: missing field position in %s", f))
	}
	return f.fieldPos
}

func (f *OffsetField) OffsetValue() fileio.Position {
	if !f.hasValue {
		panic(fmt.Sprintf("invariant broken: missing offset value in %s", f))
	}
	return f.value
}

func (f *OffsetField) State() OffsetFieldState {
	switch {
	case f.patched:
		return Patched
	case f.hasFieldPos && f.hasValue:
		return BothKnown
	case f.hasFieldPos:
		return FieldPositionKnown
	case f.hasValue:
		return OffsetValueKnown
	default:
		return Unset
	}
}

func (f *OffsetField) valueResolved() bool {
	return f.hasValue && f.value.Resolved()
}

func (f *OffsetField) valueOrPlaceholder() uint64 {
	if f.valueResolved() {
		return uint64(f.value.Offset())
	}
	return offsetPlaceholder
}

func (f *OffsetField) resolvedValue() uint64 {
	if !f.valueResolved() {
		panic(fmt.Sprintf("invariant broken: missing or unresolved offset value in %s", f))
	}
	return uint64(f.value.Offset())
}

func (f *OffsetField) encodeOffset(l Layout, v uint64) []byte {
	b := make([]byte, l.Version.OffsetSize())
	l.Version.PutOffset(l.Order, b, v)
	return b
}

// WriteAt writes the field at file offset off, recording off as the field
// position.  If the offset value is not resolved yet a placeholder is
// written.
func (f *OffsetField) WriteAt(ctx context.Context, l Layout, w io.WriterAt, off int64) error {
	f.SetFieldPosition(fileio.At(off))
	if err := fileio.WriteAt(ctx, w, f.encodeOffset(l, f.valueOrPlaceholder()), off); err != nil {
		return fmt.Errorf("write %s: %w", f.annotation, err)
	}
	return nil
}

// Update overwrites the placeholder in the file with the now-resolved
// offset value.
func (f *OffsetField) Update(ctx context.Context, l Layout, w io.WriterAt) error {
	pos := f.FieldPosition()
	if !pos.Resolved() {
		panic(fmt.Sprintf("invariant broken: unresolved field position in %s", f))
	}
	if err := fileio.WriteAt(ctx, w, f.encodeOffset(l, f.resolvedValue()), pos.Offset()); err != nil {
		return fmt.Errorf("update %s: %w", f.annotation, err)
	}
	f.patched = true
	return nil
}

// Encode appends the field to buf, recording its field position relative
// to g.  If the offset value is not resolved yet a placeholder is written;
// once g and the value are resolved, UpdateInBuffer (before the buffer is
// written out) or Update (after) patches it.
func (f *OffsetField) Encode(l Layout, buf *fileio.Buffer, g *fileio.PositionGroup) {
	f.SetFieldPosition(g.At(int64(buf.Len())))
	l.putOffset(buf, f.valueOrPlaceholder())
}

// EncodeValue appends the (resolved) offset value to buf without recording
// a field position, for fields that will never need patching.
func (f *OffsetField) EncodeValue(l Layout, buf *fileio.Buffer) {
	l.putOffset(buf, f.resolvedValue())
}

// UpdateInBuffer overwrites the placeholder written by Encode.
func (f *OffsetField) UpdateInBuffer(l Layout, buf *fileio.Buffer) {
	bufOff, ok := f.FieldPosition().InBuffer()
	if !ok {
		panic(fmt.Sprintf("invariant broken: field position is not buffer-relative in %s", f))
	}
	buf.PutAt(f.encodeOffset(l, f.resolvedValue()), int(bufOff))
	f.patched = true
}

func (f *OffsetField) String() string {
	fieldPos, value := "?", "?"
	if f.hasFieldPos {
		fieldPos = f.fieldPos.String()
	}
	if f.hasValue {
		value = f.value.String()
	}
	return fmt.Sprintf("<OffsetField (%s) fieldPosition=%s offsetValue=%s>", f.annotation, fieldPos, value)
}

// OffsetFieldGroup collects offset fields that are patched together once
// everything they point to has been written.
type OffsetFieldGroup struct {
	fields []*OffsetField
}

func NewOffsetFieldGroup() *OffsetFieldGroup {
	return &OffsetFieldGroup{}
}

func (g *OffsetFieldGroup) Add(f *OffsetField) {
	g.fields = append(g.fields, f)
}

func (g *OffsetFieldGroup) Len() int {
	return len(g.fields)
}

// UpdateAll patches every field in the file, in ascending field position
// order.  All field positions and offset values must be resolved.
func (g *OffsetFieldGroup) UpdateAll(ctx context.Context, l Layout, w io.WriterAt) error {
	sort.SliceStable(g.fields, func(i, j int) bool {
		return g.fields[i].FieldPosition().Offset() < g.fields[j].FieldPosition().Offset()
	})
	for _, f := range g.fields {
		if err := f.Update(ctx, l, w); err != nil {
			return err
		}
	}
	return nil
}

// UpdateAllInBuffer patches every field in buf, in buffer order.  All fields
// must have been encoded into buf.
func (g *OffsetFieldGroup) UpdateAllInBuffer(l Layout, buf *fileio.Buffer) {
	sort.SliceStable(g.fields, func(i, j int) bool {
		a, _ := g.fields[i].FieldPosition().InBuffer()
		b, _ := g.fields[j].FieldPosition().InBuffer()
		return a < b
	})
	for _, f := range g.fields {
		f.UpdateInBuffer(l, buf)
	}
}
