// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fileio

import (
	"fmt"
)

// PositionGroup ties a set of buffer-relative Positions to the (not yet
// known) file offset of the buffer they point into.
type PositionGroup struct {
	fileOffset int64
	resolved   bool
}

// NewPositionGroup returns a group for a buffer whose file offset is not
// known yet.
func NewPositionGroup() *PositionGroup {
	return &PositionGroup{}
}

// PositionGroupAt returns a group for a buffer that will be written at off.
func PositionGroupAt(off int64) *PositionGroup {
	g := &PositionGroup{}
	g.Resolve(off)
	return g
}

// Resolve records the file offset the buffer has been (or will be) written
// at.  It may be called only once.
func (g *PositionGroup) Resolve(off int64) {
	if g.resolved {
		panic(fmt.Sprintf("invariant broken: position group already resolved to %d (asked for %d)", g.fileOffset, off))
	}
	if off < 0 {
		panic(fmt.Sprintf("invariant broken: negative buffer file offset %d", off))
	}
	g.fileOffset = off
	g.resolved = true
}

func (g *PositionGroup) Resolved() bool {
	return g.resolved
}

// FileOffset returns the offset passed to Resolve.
func (g *PositionGroup) FileOffset() int64 {
	if !g.resolved {
		panic("invariant broken: file offset of unresolved position group")
	}
	return g.fileOffset
}

// At returns the position bufOff bytes into the group's buffer.
func (g *PositionGroup) At(bufOff int64) Position {
	if bufOff < 0 {
		panic(fmt.Sprintf("invariant broken: negative buffer offset %d", bufOff))
	}
	return Position{group: g, off: bufOff}
}

// Position is either an absolute file offset or an offset into a buffer
// belonging to a PositionGroup.  The zero value is absolute offset 0.
type Position struct {
	group *PositionGroup
	off   int64
}

// At returns the absolute position off.
func At(off int64) Position {
	if off < 0 {
		panic(fmt.Sprintf("invariant broken: negative file offset %d", off))
	}
	return Position{off: off}
}

// Resolved reports whether Offset may be called.
func (p Position) Resolved() bool {
	return p.group == nil || p.group.resolved
}

// Offset returns the absolute file offset.  Calling it on an unresolved
// position is a programming error.
func (p Position) Offset() int64 {
	if p.group == nil {
		return p.off
	}
	if !p.group.resolved {
		panic(fmt.Sprintf("invariant broken: read of unresolved position %s", p))
	}
	return p.group.fileOffset + p.off
}

// InBuffer returns the buffer-relative offset, if p was handed out by a
// PositionGroup.
func (p Position) InBuffer() (int64, bool) {
	if p.group == nil {
		return 0, false
	}
	return p.off, true
}

// Group returns the group p belongs to, or nil for an absolute position.
func (p Position) Group() *PositionGroup {
	return p.group
}

func (p Position) String() string {
	switch {
	case p.group == nil:
		return fmt.Sprintf("@%d", p.off)
	case p.group.resolved:
		return fmt.Sprintf("@%d(buffer@%d+%d)", p.group.fileOffset+p.off, p.group.fileOffset, p.off)
	default:
		return fmt.Sprintf("@?(buffer+%d)", p.off)
	}
}
