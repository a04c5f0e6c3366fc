// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tiffio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/marktsuchida/tiffio/fileio"
	"github.com/marktsuchida/tiffio/tiff"
)

var (
	ErrClosed      = errors.New("tiffio: writer is closed")
	ErrNoPages     = errors.New("tiffio: no pages were written")
	ErrInvalidPage = errors.New("tiffio: invalid page")
)

// WriterOption configures the Writer.
type WriterOption func(*writerOptions)

type writerOptions struct {
	logger   *slog.Logger
	order    binary.ByteOrder
	version  tiff.Version
	buffered bool
}

// WithLogger sets an optional logger for the writer to use for progress
// updates.  If not provided, no logging output will be produced.
func WithLogger(logger *slog.Logger) WriterOption {
	return func(opts *writerOptions) {
		opts.logger = logger
	}
}

// WithBigTIFF makes the writer produce a BigTIFF file instead of a classic
// TIFF one.
func WithBigTIFF() WriterOption {
	return func(opts *writerOptions) {
		opts.version = tiff.Big
	}
}

// WithByteOrder sets the byte order of the file (little-endian by default).
func WithByteOrder(order binary.ByteOrder) WriterOption {
	return func(opts *writerOptions) {
		opts.order = order
	}
}

// WithBufferedPages makes the writer compose each directory, together with
// its out-of-line values, in memory and write it with a single call.
func WithBufferedPages() WriterOption {
	return func(opts *writerOptions) {
		opts.buffered = true
	}
}

// Field is an extra directory entry to store with a page.
type Field struct {
	Tag   tiff.Tag
	Value tiff.Value
}

// Page is one uncompressed, single-strip image.
type Page struct {
	Width, Height   uint32
	BitsPerSample   uint16
	SamplesPerPixel uint16
	// Pixels holds Height rows, each padded to a whole number of bytes.
	Pixels []byte
	Extra  []Field
}

func (p *Page) validate() error {
	if p.Width == 0 || p.Height == 0 || p.BitsPerSample == 0 || p.SamplesPerPixel == 0 {
		return fmt.Errorf("%w: zero dimension (%dx%d, %d samples of %d bits)", ErrInvalidPage, p.Width, p.Height, p.SamplesPerPixel, p.BitsPerSample)
	}
	rowBits := uint64(p.Width) * uint64(p.SamplesPerPixel) * uint64(p.BitsPerSample)
	expected := (rowBits + 7) / 8 * uint64(p.Height)
	if uint64(len(p.Pixels)) != expected {
		return fmt.Errorf("%w: got %d bytes of pixel data, expected %d", ErrInvalidPage, len(p.Pixels), expected)
	}
	return nil
}

// Writer writes a multi-page TIFF (or BigTIFF) file, one page at a time.
// Pages are chained in the order they are written; the chain is completed
// by Close.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	f        fileio.File
	layout   tiff.Layout
	buffered bool
	logger   *slog.Logger

	// header first-IFD field and every next-IFD field
	chain    *tiff.OffsetFieldGroup
	lastNext *tiff.OffsetField
	pages    int
	closed   bool

	// only set by Create
	tmpFile    *os.File
	resultPath string
}

// NewWriter writes a header to f, which should be empty, and returns a
// Writer appending pages to it.  Closing the Writer does not close f.
func NewWriter(ctx context.Context, f fileio.File, opts ...WriterOption) (*Writer, error) {
	options := writerOptions{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		order:   binary.LittleEndian,
		version: tiff.Classic,
	}
	for _, opt := range opts {
		opt(&options)
	}

	layout := tiff.NewLayout(options.order, options.version)
	header := tiff.NewHeader(layout, tiff.NewOffsetField("FirstIFDOffset"))
	if err := header.Write(ctx, f); err != nil {
		return nil, err
	}
	chain := tiff.NewOffsetFieldGroup()
	chain.Add(header.FirstIFDOffset())

	return &Writer{
		f:        f,
		layout:   layout,
		buffered: options.buffered,
		logger:   options.logger,
		chain:    chain,
		lastNext: header.FirstIFDOffset(),
	}, nil
}

// Create writes a new file at path.  The data goes to a temporary file in
// the same directory, which Close renames into place and makes read-only.
func Create(ctx context.Context, path string, opts ...WriterOption) (*Writer, error) {
	// we want to write to a new file and do an atomic rename when we're done on disk
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("filepath.Abs: %w", err)
	}
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "tiffio-writer.*.tif")
	if err != nil {
		return nil, fmt.Errorf("CreateTemp failed (may need permissions for dir %q): %w", dir, err)
	}
	w, err := NewWriter(ctx, fileio.OSFile{File: tmpFile}, opts...)
	if err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
		return nil, err
	}
	w.tmpFile = tmpFile
	w.resultPath = path
	return w, nil
}

func (w *Writer) Layout() tiff.Layout {
	return w.layout
}

// PageCount returns the number of pages written so far.
func (w *Writer) PageCount() int {
	return w.pages
}

// WritePage appends the page's pixel data and then its directory.  If it
// fails, the file may contain unreferenced bytes but the pages written
// before remain valid once Close is called.
func (w *Writer) WritePage(ctx context.Context, p Page) error {
	if w.closed {
		return ErrClosed
	}
	if err := p.validate(); err != nil {
		return err
	}

	pixelOff, err := tiff.AppendAligned(ctx, w.layout, w.f, p.Pixels)
	if err != nil {
		return fmt.Errorf("write pixels of page %d: %w", w.pages, err)
	}

	next := tiff.NewOffsetField(fmt.Sprintf("NextIFDOffset of page %d", w.pages))
	values := tiff.NewOffsetFieldGroup()
	ifd, err := w.buildIFD(p, pixelOff, next, values)
	if err != nil {
		return fmt.Errorf("page %d: %w", w.pages, err)
	}

	var ifdOff int64
	if w.buffered {
		ifdOff, err = w.commitBuffered(ctx, ifd, values)
	} else {
		ifdOff, err = w.commitDirect(ctx, ifd)
	}
	if err != nil {
		return fmt.Errorf("write IFD of page %d: %w", w.pages, err)
	}

	w.lastNext.SetOffsetValue(fileio.At(ifdOff))
	w.chain.Add(next)
	w.lastNext = next
	w.logger.Debug("wrote page",
		"page", w.pages,
		"pixelOffset", pixelOff,
		"ifdOffset", ifdOff,
		"pointerValues", values.Len(),
		"buffered", w.buffered)
	w.pages++
	return nil
}

func (w *Writer) buildIFD(p Page, pixelOff int64, next *tiff.OffsetField, values *tiff.OffsetFieldGroup) (*tiff.IFD, error) {
	bits := make([]uint16, p.SamplesPerPixel)
	for i := range bits {
		bits[i] = p.BitsPerSample
	}
	fields := []Field{
		{tiff.NewSubfileType, tiff.Longs(0)},
		{tiff.ImageWidth, tiff.Uints(uint64(p.Width))},
		{tiff.ImageLength, tiff.Uints(uint64(p.Height))},
		{tiff.BitsPerSample, tiff.Shorts(bits...)},
		{tiff.Compression, tiff.Shorts(1)},
		{tiff.PhotometricInterpretation, tiff.Shorts(photometric(p.SamplesPerPixel))},
		{tiff.StripOffsets, tiff.Uints(uint64(pixelOff))},
		{tiff.SamplesPerPixel, tiff.Shorts(p.SamplesPerPixel)},
		{tiff.RowsPerStrip, tiff.Uints(uint64(p.Height))},
		{tiff.StripByteCounts, tiff.Uints(uint64(len(p.Pixels)))},
		{tiff.PlanarConfiguration, tiff.Shorts(1)},
	}

	b := tiff.NewIFDBuilder(w.layout, next, values)
	for _, f := range append(fields, p.Extra...) {
		if err := b.Add(f.Tag, f.Value); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// photometric returns BlackIsZero for grayscale and RGB for 3 or more
// samples.
func photometric(samplesPerPixel uint16) uint16 {
	if samplesPerPixel >= 3 {
		return 2
	}
	return 1
}

// commitDirect writes the pointer values first, so the directory goes out
// with every offset already known.
func (w *Writer) commitDirect(ctx context.Context, ifd *tiff.IFD) (int64, error) {
	if err := ifd.WriteValues(ctx, w.f); err != nil {
		return 0, err
	}
	return ifd.Write(ctx, w.f)
}

// commitBuffered encodes the directory followed by its pointer values,
// patches the pointer fields once the buffer's file offset is known, and
// writes everything at once.
func (w *Writer) commitBuffered(ctx context.Context, ifd *tiff.IFD, values *tiff.OffsetFieldGroup) (int64, error) {
	buf := fileio.NewBuffer(ifd.EncodedSize())
	g := fileio.NewPositionGroup()
	ifd.Encode(buf, g)
	ifd.EncodeValues(buf, g)

	off, err := tiff.AlignedEnd(ctx, w.layout, w.f, buf.Len())
	if err != nil {
		return 0, err
	}
	g.Resolve(off)
	values.UpdateAllInBuffer(w.layout, buf)
	if err := fileio.WriteAt(ctx, w.f, buf.Bytes(), off); err != nil {
		return 0, err
	}
	return off, nil
}

// finish terminates the chain and patches the header and every next-IFD
// field in the file.
func (w *Writer) finish(ctx context.Context) error {
	if w.pages == 0 {
		return ErrNoPages
	}
	w.lastNext.SetOffsetValue(fileio.At(0))
	if err := w.chain.UpdateAll(ctx, w.layout, w.f); err != nil {
		return fmt.Errorf("patch IFD chain: %w", err)
	}
	w.logger.Debug("patched IFD chain", "pages", w.pages, "fields", w.chain.Len())
	return nil
}

// Close completes the file.  For a Writer from Create, the temporary file
// is renamed into place on success and removed on failure.  Closing a file
// with no pages is an error, as a TIFF needs at least one directory.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var result *multierror.Error
	if err := w.finish(context.Background()); err != nil {
		result = multierror.Append(result, err)
	}
	if w.tmpFile == nil {
		return result.ErrorOrNil()
	}

	tmpPath := w.tmpFile.Name()
	if err := w.tmpFile.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close: %w", err))
	}
	w.tmpFile = nil
	if result.ErrorOrNil() != nil {
		_ = os.Remove(tmpPath)
		return result.ErrorOrNil()
	}

	// make the file read-only
	if err := os.Chmod(tmpPath, 0444); err != nil {
		result = multierror.Append(result, fmt.Errorf("os.Chmod(0444): %w", err))
	} else if err := os.Rename(tmpPath, w.resultPath); err != nil {
		result = multierror.Append(result, fmt.Errorf("os.Rename: %w", err))
	}
	if result.ErrorOrNil() != nil {
		_ = os.Remove(tmpPath)
	}
	return result.ErrorOrNil()
}

// Abort discards the file without completing it.  For a Writer from Create
// the temporary file is removed and nothing appears at the destination; a
// file passed to NewWriter is left as is.  Abort after Close is a no-op.
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.logger.Debug("aborting", "pages", w.pages)
	if w.tmpFile == nil {
		return nil
	}

	var result *multierror.Error
	tmpPath := w.tmpFile.Name()
	if err := w.tmpFile.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close: %w", err))
	}
	w.tmpFile = nil
	if err := os.Remove(tmpPath); err != nil {
		result = multierror.Append(result, fmt.Errorf("os.Remove: %w", err))
	}
	return result.ErrorOrNil()
}
