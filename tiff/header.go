// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tiff

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/marktsuchida/tiffio/fileio"
)

// Header is the file preamble: byte order mark, version magic, the
// BigTIFF-only fields, and the offset of the first directory.
type Header struct {
	layout   Layout
	firstIFD *OffsetField
}

// ReadHeader reads and validates the header at the start of r.
func ReadHeader(ctx context.Context, r io.ReaderAt) (*Header, error) {
	common, err := fileio.ReadFull(ctx, r, headerCommonSize, 0)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	l, err := readLayout(common)
	if err != nil {
		return nil, err
	}

	b, err := fileio.ReadFull(ctx, r, int64(l.Version.HeaderSize()), 0)
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", l.Version, err)
	}
	b = b[headerCommonSize:]
	if err := l.Version.ReadHeaderExtra(l.Order, b); err != nil {
		return nil, err
	}
	firstIFD := l.Version.ReadOffset(l.Order, b[l.Version.headerExtraSize():])

	// TODO: only the first IFD offset is checked for word alignment; apply
	// the same check to next-IFD offsets once we know how many writers in
	// the wild get those wrong.
	if firstIFD%2 != 0 {
		return nil, FormatError(fmt.Sprintf("first IFD offset %d is not word-aligned", firstIFD))
	}
	if firstIFD > math.MaxInt64 {
		return nil, FormatError(fmt.Sprintf("first IFD offset %d out of range", firstIFD))
	}

	return &Header{
		layout:   l,
		firstIFD: OffsetFieldFor(fileio.At(int64(firstIFD)), "read-only FirstIFDOffset"),
	}, nil
}

func readLayout(b []byte) (Layout, error) {
	var l Layout
	switch string(b[0:2]) {
	case littleEndianMark:
		l.Order = canonicalOrder
	case bigEndianMark:
		l.Order = bigEndian
	default:
		return Layout{}, FormatError(fmt.Sprintf("invalid byte order mark (0x%02X%02X)", b[0], b[1]))
	}
	v, err := VersionFromMagic(l.Order.Uint16(b[2:4]))
	if err != nil {
		return Layout{}, err
	}
	l.Version = v
	return l, nil
}

// NewHeader returns a header for a new file.  firstIFD typically has no
// offset value yet; it gets patched once the first directory is written.
func NewHeader(l Layout, firstIFD *OffsetField) *Header {
	return &Header{layout: l, firstIFD: firstIFD}
}

func (h *Header) Layout() Layout {
	return h.layout
}

// FirstIFDOffset returns the field pointing at the first directory.
func (h *Header) FirstIFDOffset() *OffsetField {
	return h.firstIFD
}

// Encode appends the header to buf, which must be destined for file
// offset 0.
func (h *Header) Encode(buf *fileio.Buffer) {
	l := h.layout
	_, _ = buf.Write([]byte(l.byteOrderMark()))
	l.putUint16(buf, l.Version.Magic())
	l.Version.PutHeaderExtra(l.Order, buf.Extend(l.Version.headerExtraSize()))
	h.firstIFD.Encode(l, buf, fileio.PositionGroupAt(0))
}

// Write writes the header at the start of w.
func (h *Header) Write(ctx context.Context, w io.WriterAt) error {
	buf := fileio.NewBuffer(h.layout.Version.HeaderSize())
	h.Encode(buf)
	if err := fileio.WriteAt(ctx, w, buf.Bytes(), 0); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// ReadFirstIFD reads the first directory.
func (h *Header) ReadFirstIFD(ctx context.Context, r io.ReaderAt) (*IFD, error) {
	off := h.firstIFD.OffsetValue().Offset()
	if off == 0 {
		return nil, FormatError("file contains no IFD")
	}
	return ReadIFD(ctx, h.layout, r, off)
}
