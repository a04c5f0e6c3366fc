// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package zero provides zeroed byte slices for placeholders and padding.
package zero

// shared, never written to
var page [4096]byte

// Padding returns a read-only slice of n zero bytes.  Small requests are
// served from a shared page without allocating.
func Padding(n int) []byte {
	if n <= len(page) {
		return page[:n:n]
	}
	return make([]byte, n)
}

// PadLen returns the number of bytes needed to bring off up to the next
// multiple of align.
func PadLen(off int64, align int) int {
	if align <= 1 {
		return 0
	}
	return int((int64(align) - off%int64(align)) % int64(align))
}
