// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tiff

import (
	"encoding/binary"
	"fmt"

	"github.com/marktsuchida/tiffio/fileio"
)

const (
	littleEndianMark = "II"
	bigEndianMark    = "MM"
)

// Layout is the binary layout of one file: its byte order and version.
type Layout struct {
	Order   binary.ByteOrder
	Version Version
}

func NewLayout(order binary.ByteOrder, v Version) Layout {
	if order == nil {
		panic("invariant broken: nil byte order")
	}
	return Layout{Order: order, Version: v}
}

func (l Layout) byteOrderMark() string {
	if isBigEndian(l.Order) {
		return bigEndianMark
	}
	return littleEndianMark
}

func (l Layout) String() string {
	return fmt.Sprintf("<Layout %s, %s>", l.Order, l.Version)
}

func (l Layout) putUint16(buf *fileio.Buffer, x uint16) {
	l.Order.PutUint16(buf.Extend(2), x)
}

func (l Layout) putOffset(buf *fileio.Buffer, off uint64) {
	l.Version.PutOffset(l.Order, buf.Extend(l.Version.OffsetSize()), off)
}

func (l Layout) putValueCount(buf *fileio.Buffer, count uint64) {
	l.Version.PutValueCount(l.Order, buf.Extend(l.Version.OffsetSize()), count)
}

func (l Layout) putEntryCount(buf *fileio.Buffer, count uint64) {
	l.Version.PutEntryCount(l.Order, buf.Extend(l.Version.EntryCountSize()), count)
}

// decoder walks a byte slice that is already known to be long enough.
type decoder struct {
	l   Layout
	b   []byte
	off int
}

func (d *decoder) take(n int) []byte {
	p := d.b[d.off : d.off+n]
	d.off += n
	return p
}

func (d *decoder) uint16() uint16 {
	return d.l.Order.Uint16(d.take(2))
}

func (d *decoder) offset() uint64 {
	return d.l.Version.ReadOffset(d.l.Order, d.take(d.l.Version.OffsetSize()))
}

func (d *decoder) valueCount() uint64 {
	return d.l.Version.ReadValueCount(d.l.Order, d.take(d.l.Version.OffsetSize()))
}
