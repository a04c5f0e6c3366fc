// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mmap provides a read-only memory-mapped file.
package mmap

import (
	"errors"
	"fmt"
	"io"
)

var ErrClosed = errors.New("mmap: closed")

// ReaderAt reads from a memory-mapped file.  It is safe for concurrent use
// until Close is called.
type ReaderAt struct {
	data   []byte
	closer func([]byte) error
}

// Len returns the length of the mapped file.
func (r *ReaderAt) Len() int {
	return len(r.data)
}

// Data returns the mapped bytes, which must not be written to or used
// after Close.
func (r *ReaderAt) Data() []byte {
	return r.data
}

// ReadAt implements io.ReaderAt.
func (r *ReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if r.data == nil {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("mmap: invalid ReadAt offset %d", off)
	}
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close unmaps the file.
func (r *ReaderAt) Close() error {
	if r.data == nil {
		return nil
	}
	data := r.data
	r.data = nil
	return r.closer(data)
}
