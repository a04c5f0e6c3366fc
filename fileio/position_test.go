// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fileio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPosition_Absolute(t *testing.T) {
	p := At(42)
	require.True(t, p.Resolved())
	assert.Equal(t, int64(42), p.Offset())
	_, ok := p.InBuffer()
	assert.False(t, ok)
	assert.Nil(t, p.Group())

	var zeroPos Position
	assert.Equal(t, int64(0), zeroPos.Offset())

	assert.Panics(t, func() { At(-1) })
}

func TestPosition_BufferRelative(t *testing.T) {
	g := NewPositionGroup()
	p := g.At(16)
	q := g.At(24)

	require.False(t, p.Resolved())
	assert.Panics(t, func() { _ = p.Offset() })
	assert.Panics(t, func() { _ = g.FileOffset() })

	bufOff, ok := p.InBuffer()
	require.True(t, ok)
	assert.Equal(t, int64(16), bufOff)

	g.Resolve(1000)

	// every position handed out earlier observes the same resolution
	require.True(t, p.Resolved())
	require.True(t, q.Resolved())
	assert.Equal(t, int64(1016), p.Offset())
	assert.Equal(t, int64(1024), q.Offset())
	assert.Equal(t, int64(1000), g.FileOffset())

	// ... and positions handed out afterwards too
	assert.Equal(t, int64(1032), g.At(32).Offset())

	// resolving twice is a programming error
	assert.Panics(t, func() { g.Resolve(2000) })
	assert.Equal(t, int64(1016), p.Offset())
}

func TestPositionGroupAt(t *testing.T) {
	g := PositionGroupAt(8)
	require.True(t, g.Resolved())
	assert.Equal(t, int64(12), g.At(4).Offset())

	assert.Panics(t, func() { PositionGroupAt(-8) })
	assert.Panics(t, func() { g.At(-1) })
}

func TestPosition_String(t *testing.T) {
	g := NewPositionGroup()
	assert.Equal(t, "@7", At(7).String())
	assert.Equal(t, "@?(buffer+3)", g.At(3).String())
	g.Resolve(10)
	assert.Equal(t, "@13(buffer@10+3)", g.At(3).String())
}
