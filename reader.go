// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tiffio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/marktsuchida/tiffio/internal/mmap"
	"github.com/marktsuchida/tiffio/tiff"
)

var ErrPageOutOfRange = errors.New("tiffio: page index out of range")

// ReaderOption configures the Reader.
type ReaderOption func(*readerOptions)

type readerOptions struct {
	logger *slog.Logger
	mmap   bool
}

// WithReaderLogger sets an optional logger for the reader to use.  If not
// provided, no logging output will be produced.
func WithReaderLogger(logger *slog.Logger) ReaderOption {
	return func(opts *readerOptions) {
		opts.logger = logger
	}
}

// WithMmap makes Open map the file into memory instead of reading it with
// pread(2).
func WithMmap() ReaderOption {
	return func(opts *readerOptions) {
		opts.mmap = true
	}
}

// Reader reads pages from a TIFF or BigTIFF file.  It is safe for
// concurrent use.
type Reader struct {
	r       io.ReaderAt
	header  *tiff.Header
	logger  *slog.Logger
	closers []io.Closer
}

func newReaderOptions(opts []ReaderOption) readerOptions {
	options := readerOptions{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// Open opens the file at path and reads its header.
func Open(ctx context.Context, path string, opts ...ReaderOption) (*Reader, error) {
	options := newReaderOptions(opts)

	var ra io.ReaderAt
	var closer io.Closer
	if options.mmap {
		m, err := mmap.Open(path)
		if err != nil {
			return nil, fmt.Errorf("mmap.Open(%s): %w", path, err)
		}
		ra, closer = m, m
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		ra, closer = f, f
	}

	r, err := NewReader(ctx, ra, opts...)
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closers = append(r.closers, closer)
	return r, nil
}

// NewReader reads the header from r.  Closing the Reader does not close r.
func NewReader(ctx context.Context, r io.ReaderAt, opts ...ReaderOption) (*Reader, error) {
	options := newReaderOptions(opts)
	header, err := tiff.ReadHeader(ctx, r)
	if err != nil {
		return nil, err
	}
	options.logger.Debug("read header", "layout", header.Layout().String())
	return &Reader{
		r:      r,
		header: header,
		logger: options.logger,
	}, nil
}

func (r *Reader) Header() *tiff.Header {
	return r.header
}

func (r *Reader) Layout() tiff.Layout {
	return r.header.Layout()
}

// walk calls fn on each directory in chain order until fn returns false.
// A chain that loops back on itself is a FormatError.
func (r *Reader) walk(ctx context.Context, fn func(i int, ifd *tiff.IFD) bool) error {
	ifd, err := r.header.ReadFirstIFD(ctx, r.r)
	if err != nil {
		return err
	}
	seen := map[int64]bool{}
	for i := 0; ; i++ {
		off, _ := ifd.Offset()
		seen[off] = true
		r.logger.Debug("read IFD", "page", i, "offset", off, "entries", ifd.EntryCount())
		if !fn(i, ifd) || !ifd.HasNext() {
			return nil
		}
		next := ifd.NextIFDOffset().OffsetValue().Offset()
		if seen[next] {
			return tiff.FormatError(fmt.Sprintf("IFD at %d links back to IFD at %d", off, next))
		}
		if ifd, err = ifd.ReadNext(ctx, r.r); err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
	}
}

// Pages reads every directory in the file.
func (r *Reader) Pages(ctx context.Context) ([]*tiff.IFD, error) {
	var pages []*tiff.IFD
	err := r.walk(ctx, func(_ int, ifd *tiff.IFD) bool {
		pages = append(pages, ifd)
		return true
	})
	if err != nil {
		return nil, err
	}
	return pages, nil
}

// Page reads the directories up to and including page i.
func (r *Reader) Page(ctx context.Context, i int) (*tiff.IFD, error) {
	if i < 0 {
		return nil, fmt.Errorf("%w: %d", ErrPageOutOfRange, i)
	}
	var found *tiff.IFD
	count := 0
	err := r.walk(ctx, func(j int, ifd *tiff.IFD) bool {
		count = j + 1
		if j == i {
			found = ifd
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %d (file has %d pages)", ErrPageOutOfRange, i, count)
	}
	return found, nil
}

// ReadValues reads every entry value of a directory from this file.
func (r *Reader) ReadValues(ctx context.Context, ifd *tiff.IFD) ([]tiff.Value, error) {
	return ifd.ReadValues(ctx, r.r)
}

// ReadPixels returns the pixel data of page i.  Reading every page this way
// walks the chain once per page; use Pages and ReadIFDPixels instead.
func (r *Reader) ReadPixels(ctx context.Context, i int) ([]byte, error) {
	ifd, err := r.Page(ctx, i)
	if err != nil {
		return nil, err
	}
	pixels, err := r.ReadIFDPixels(ctx, ifd)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", i, err)
	}
	return pixels, nil
}

// ReadIFDPixels returns the pixel data of a directory read from this file.
func (r *Reader) ReadIFDPixels(ctx context.Context, ifd *tiff.IFD) ([]byte, error) {
	return ifd.ReadPixels(ctx, r.r)
}

// Close releases the file opened by Open.
func (r *Reader) Close() error {
	var result *multierror.Error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	r.closers = nil
	return result.ErrorOrNil()
}
