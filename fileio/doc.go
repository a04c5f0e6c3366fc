// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package fileio contains the random-access I/O primitives the TIFF codec
// is built on: positioned reads and writes that honor a context, padding a
// file out to an alignment unit, and appending at the (aligned) end of a
// file.
//
// It also provides Position, a file offset that is either already known or
// relative to an in-memory Buffer whose own file offset is assigned later.
// A typical deferred write looks like:
//
//	┌──────────────┐        ┌──────────────────────────┐
//	│ Buffer       │ commit │ file                     │
//	│  pos 0 ...   │ ─────> │  ... │ Buffer @ off X ...│
//	│  pos p: ???? │        │      │  X+p: offset      │
//	└──────────────┘        └──────────────────────────┘
//
// Positions handed out by a PositionGroup before the commit become X+p
// once PositionGroup.Resolve(X) is called.
//
// All blocking operations take a context.Context, which is checked before
// any bytes are moved.  There is no mid-operation cancellation: a started
// read or write runs to completion or fails.
package fileio
