// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fileio

import (
	"fmt"
	"io"
	"sync"

	"github.com/marktsuchida/tiffio/internal/zero"
)

// Buffer is a growable in-memory byte sequence.  Serializers append to it
// with Write and Align and overwrite placeholders with PutAt; it also
// implements File so it can stand in for a file on disk.
type Buffer struct {
	mu  sync.RWMutex
	buf []byte
}

func NewBuffer(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, 0, capacity)}
}

// Len returns the number of bytes written so far, which is also the
// buffer-relative offset of the next Write.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.buf)
}

// Bytes returns the buffer contents.  The slice aliases the buffer.
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.buf
}

func (b *Buffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// Extend appends n bytes and returns them for the caller to fill in.
func (b *Buffer) Extend(n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := len(b.buf)
	b.buf = append(b.buf, zero.Padding(n)...)
	return b.buf[start : start+n]
}

// Align appends zeroes up to the next multiple of align and returns the
// new length.
func (b *Buffer) Align(align int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, zero.Padding(zero.PadLen(int64(len(b.buf)), align))...)
	return len(b.buf)
}

// PutAt overwrites previously written bytes.  Writing past the end is a
// programming error.
func (b *Buffer) PutAt(p []byte, off int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if off < 0 || off+len(p) > len(b.buf) {
		panic(fmt.Sprintf("invariant broken: PutAt(off: %d, len: %d) outside buffer of len %d", off, len(p), len(b.buf)))
	}
	copy(b.buf[off:], p)
}

func (b *Buffer) ReadAt(p []byte, off int64) (n int, err error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if off < 0 {
		return 0, ErrNegativeOffset
	}
	if off >= int64(len(b.buf)) {
		return 0, io.EOF
	}
	n = copy(p, b.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt, growing the buffer (zero-filled) as a
// file would.
func (b *Buffer) WriteAt(p []byte, off int64) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if off < 0 {
		return 0, ErrNegativeOffset
	}
	if end := off + int64(len(p)); end > int64(len(b.buf)) {
		b.buf = append(b.buf, zero.Padding(int(end-int64(len(b.buf))))...)
	}
	return copy(b.buf[off:], p), nil
}

func (b *Buffer) Size() (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.buf)), nil
}

var _ File = &Buffer{}
var _ io.Writer = &Buffer{}
