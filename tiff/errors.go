// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tiff

import (
	"errors"
)

// A FormatError reports that the input is not a valid TIFF or BigTIFF file.
type FormatError string

func (e FormatError) Error() string { return "tiff: invalid format: " + string(e) }

// An UnsupportedError reports that the input is structurally valid but uses
// a feature this package does not handle.
type UnsupportedError string

func (e UnsupportedError) Error() string { return "tiff: unsupported feature: " + string(e) }

var (
	// ErrFileTooLarge is returned when a classic TIFF write would need an
	// offset that does not fit in 32 bits.  Nothing is written.
	ErrFileTooLarge error = UnsupportedError("file would exceed the classic TIFF 4 GiB offset range")

	ErrNoNextIFD = errors.New("tiff: no next IFD (this is the last directory)")
)
