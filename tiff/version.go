// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tiff

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Version is the TIFF variant, identified by the header magic.  It holds all
// version-specific knowledge of the binary layout and does no I/O.
type Version uint16

const (
	// Classic TIFF: 32-bit offsets, 16-bit directory entry counts.
	Classic Version = 42
	// Big TIFF: 64-bit offsets and entry counts.
	Big Version = 43
)

const (
	headerCommonSize = 2 + // byte order mark
		2 // version (magic)

	bigTIFFOffsetSize = 8
)

// VersionFromMagic returns the version with the given header magic.
func VersionFromMagic(magic uint16) (Version, error) {
	switch v := Version(magic); v {
	case Classic, Big:
		return v, nil
	default:
		return 0, FormatError(fmt.Sprintf("unknown TIFF version (magic): %d", magic))
	}
}

func (v Version) Magic() uint16 {
	return uint16(v)
}

func (v Version) String() string {
	switch v {
	case Classic:
		return "TIFF"
	case Big:
		return "BigTIFF"
	default:
		return fmt.Sprintf("Version(%d)", uint16(v))
	}
}

func (v Version) invalid() string {
	return fmt.Sprintf("invariant broken: invalid TIFF version %d", uint16(v))
}

// OffsetSize returns the width of offsets and value counts.
func (v Version) OffsetSize() int {
	switch v {
	case Classic:
		return 4
	case Big:
		return 8
	default:
		panic(v.invalid())
	}
}

// EntryCountSize returns the width of the entry count that starts a
// directory.
func (v Version) EntryCountSize() int {
	switch v {
	case Classic:
		return 2
	case Big:
		return 8
	default:
		panic(v.invalid())
	}
}

// headerExtraSize is the size of the BigTIFF-only offset size and reserved
// fields.
func (v Version) headerExtraSize() int {
	switch v {
	case Classic:
		return 0
	case Big:
		return 2 + 2
	default:
		panic(v.invalid())
	}
}

func (v Version) HeaderSize() int {
	return headerCommonSize + v.headerExtraSize() + v.OffsetSize()
}

// IFDEntrySize returns the size of one directory entry: tag, type, count
// and value-or-offset.
func (v Version) IFDEntrySize() int {
	return 2 + 2 + v.OffsetSize() + v.OffsetSize()
}

// MaxOffset returns the largest offset the version can encode.
func (v Version) MaxOffset() uint64 {
	switch v {
	case Classic:
		return math.MaxUint32
	case Big:
		return math.MaxInt64
	default:
		panic(v.invalid())
	}
}

// MaxEntryCount returns the largest number of entries in one directory.
func (v Version) MaxEntryCount() uint64 {
	switch v {
	case Classic:
		return math.MaxUint16
	case Big:
		return math.MaxInt64
	default:
		panic(v.invalid())
	}
}

// ReadOffset decodes an offset from the start of b.
func (v Version) ReadOffset(order binary.ByteOrder, b []byte) uint64 {
	switch v {
	case Classic:
		return uint64(order.Uint32(b))
	case Big:
		return order.Uint64(b)
	default:
		panic(v.invalid())
	}
}

// PutOffset encodes off at the start of b.  An offset beyond MaxOffset is
// a programming error; writers check for ErrFileTooLarge before getting
// here.
func (v Version) PutOffset(order binary.ByteOrder, b []byte, off uint64) {
	if off > v.MaxOffset() {
		panic(fmt.Sprintf("invariant broken: offset %d out of range for %s", off, v))
	}
	switch v {
	case Classic:
		order.PutUint32(b, uint32(off))
	case Big:
		order.PutUint64(b, off)
	}
}

// ReadValueCount decodes a directory entry's element count, which has the
// same width as an offset.
func (v Version) ReadValueCount(order binary.ByteOrder, b []byte) uint64 {
	return v.ReadOffset(order, b)
}

func (v Version) PutValueCount(order binary.ByteOrder, b []byte, count uint64) {
	v.PutOffset(order, b, count)
}

func (v Version) ReadEntryCount(order binary.ByteOrder, b []byte) uint64 {
	switch v {
	case Classic:
		return uint64(order.Uint16(b))
	case Big:
		return order.Uint64(b)
	default:
		panic(v.invalid())
	}
}

func (v Version) PutEntryCount(order binary.ByteOrder, b []byte, count uint64) {
	if count > v.MaxEntryCount() {
		panic(fmt.Sprintf("invariant broken: entry count %d out of range for %s", count, v))
	}
	switch v {
	case Classic:
		order.PutUint16(b, uint16(count))
	case Big:
		order.PutUint64(b, count)
	}
}

// ReadHeaderExtra validates the header fields between the magic and the
// first IFD offset.  b starts right after the magic.
func (v Version) ReadHeaderExtra(order binary.ByteOrder, b []byte) error {
	switch v {
	case Classic:
		return nil
	case Big:
		if offsetSize := order.Uint16(b[0:2]); offsetSize != bigTIFFOffsetSize {
			return FormatError(fmt.Sprintf("unsupported BigTIFF offset size (expected %d; got %d)", bigTIFFOffsetSize, offsetSize))
		}
		if reserved := order.Uint16(b[2:4]); reserved != 0 {
			return FormatError(fmt.Sprintf("unsupported value in BigTIFF header reserved field (expected 0; got %d)", reserved))
		}
		return nil
	default:
		panic(v.invalid())
	}
}

func (v Version) PutHeaderExtra(order binary.ByteOrder, b []byte) {
	switch v {
	case Classic:
		// no extra fields
	case Big:
		order.PutUint16(b[0:2], bigTIFFOffsetSize)
		order.PutUint16(b[2:4], 0)
	default:
		panic(v.invalid())
	}
}
