// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fileio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/marktsuchida/tiffio/internal/zero"
)

// maxChunkSize bounds single allocations when the read length comes from
// untrusted file contents.
const maxChunkSize = 10 << 20 // 10M

var (
	ErrNegativeOffset = errors.New("negative file offset")
	ErrShortWrite     = errors.New("short write")
)

// File is usually an *os.File (see OSFile), but specified as an interface
// for easier testing.  *Buffer implements it too.
type File interface {
	io.ReaderAt
	io.WriterAt
	// Size returns the current length of the file.
	Size() (int64, error)
}

// OSFile adapts an *os.File to File.
type OSFile struct {
	*os.File
}

func (f OSFile) Size() (int64, error) {
	stats, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("f.Stat: %w", err)
	}
	return stats.Size(), nil
}

var _ File = OSFile{}

// ReadFull reads exactly n bytes at offset off.  A file that ends early
// fails with io.ErrUnexpectedEOF.
func ReadFull(ctx context.Context, r io.ReaderAt, n int64, off int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if off < 0 {
		return nil, ErrNegativeOffset
	}
	if n < 0 || n != int64(int(n)) {
		// n is too large to fit in int, so we can't allocate a buffer
		// large enough.  Treat this as a read failure.
		return nil, io.ErrUnexpectedEOF
	}

	if n < maxChunkSize {
		buf := make([]byte, n)
		if err := readAt(r, buf, off); err != nil {
			return nil, err
		}
		return buf, nil
	}

	// don't trust n enough to allocate it all up front
	var buf []byte
	chunk := make([]byte, maxChunkSize)
	for n > 0 {
		next := n
		if next > maxChunkSize {
			next = maxChunkSize
		}
		if err := readAt(r, chunk[:next], off); err != nil {
			return nil, err
		}
		buf = append(buf, chunk[:next]...)
		n -= next
		off += next
	}
	return buf, nil
}

func readAt(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		// ReaderAt may return EOF alongside a full read at the end of
		// the file; for our purposes that is a success.
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("ReadAt(off: %d, len: %d): short read of %d: %w", off, len(buf), n, err)
}

// WriteAt writes all of p at offset off.
func WriteAt(ctx context.Context, w io.WriterAt, p []byte, off int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if off < 0 {
		return ErrNegativeOffset
	}
	n, err := w.WriteAt(p, off)
	if err != nil {
		return fmt.Errorf("WriteAt(off: %d, len: %d): %w", off, len(p), err)
	}
	if n != len(p) {
		return fmt.Errorf("WriteAt(off: %d, len: %d): %w of %d", off, len(p), ErrShortWrite, n)
	}
	return nil
}

// Pad extends f with zeroes to the next multiple of align and returns the
// new size.
func Pad(ctx context.Context, f File, align int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	size, err := f.Size()
	if err != nil {
		return 0, err
	}
	padLen := zero.PadLen(size, align)
	if padLen == 0 {
		return size, nil
	}
	if err := WriteAt(ctx, f, zero.Padding(padLen), size); err != nil {
		return 0, fmt.Errorf("pad: %w", err)
	}
	return size + int64(padLen), nil
}

// Append pads f to align and writes p at the resulting end of file,
// returning the offset p was written at.
//
// Finding the end of the file and writing there is not atomic with respect
// to other writers: callers must ensure a single writer per file.
func Append(ctx context.Context, f File, p []byte, align int) (int64, error) {
	off, err := Pad(ctx, f, align)
	if err != nil {
		return 0, err
	}
	if err := WriteAt(ctx, f, p, off); err != nil {
		return 0, fmt.Errorf("append: %w", err)
	}
	return off, nil
}
