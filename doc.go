// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package tiffio writes and reads multi-page TIFF and BigTIFF files of
// uncompressed, single-strip images.
//
// A Writer appends each page's pixels and then its directory, so the file
// grows strictly at the end; the header and the next-IFD links are patched
// in place when the Writer is closed:
//
//	w, err := tiffio.Create(ctx, "out.tif", tiffio.WithBigTIFF())
//	...
//	err = w.WritePage(ctx, tiffio.Page{Width: 512, Height: 512, BitsPerSample: 16, SamplesPerPixel: 1, Pixels: pixels})
//	...
//	err = w.Close()
//
// The lower-level building blocks live in the tiff and fileio packages.
package tiffio
