// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tiff

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marktsuchida/tiffio/fileio"
)

var allLayouts = []Layout{
	NewLayout(binary.LittleEndian, Classic),
	NewLayout(binary.BigEndian, Classic),
	NewLayout(binary.LittleEndian, Big),
	NewLayout(binary.BigEndian, Big),
}

// writeChain writes a header and n directories in file mode, filling each
// directory with fill, and patches the chain.
func writeChain(t *testing.T, f fileio.File, l Layout, n int, fill func(b *IFDBuilder, i int)) {
	t.Helper()
	ctx := context.Background()

	h := NewHeader(l, NewOffsetField("FirstIFDOffset"))
	chain := NewOffsetFieldGroup()
	chain.Add(h.FirstIFDOffset())
	require.NoError(t, h.Write(ctx, f))

	prev := h.FirstIFDOffset()
	for i := 0; i < n; i++ {
		next := NewOffsetField("NextIFDOffset")
		chain.Add(next)
		b := NewIFDBuilder(l, next, NewOffsetFieldGroup())
		fill(b, i)
		ifd, err := b.Build()
		require.NoError(t, err)
		require.NoError(t, ifd.WriteValues(ctx, f))
		off, err := ifd.Write(ctx, f)
		require.NoError(t, err)
		require.Zero(t, off%int64(l.Version.OffsetSize()))
		prev.SetOffsetValue(fileio.At(off))
		prev = next
	}
	prev.SetOffsetValue(fileio.At(0))
	require.NoError(t, chain.UpdateAll(ctx, l, f))
}

func readFirst(t *testing.T, r io.ReaderAt) *IFD {
	t.Helper()
	ctx := context.Background()
	h, err := ReadHeader(ctx, r)
	require.NoError(t, err)
	ifd, err := h.ReadFirstIFD(ctx, r)
	require.NoError(t, err)
	return ifd
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, l := range allLayouts {
		l := l
		t.Run(l.String(), func(t *testing.T) {
			n := l.Version.OffsetSize()
			values := map[Tag]Value{
				ImageWidth:       Uints(640),
				ImageDescription: ASCII("a description long enough to need a pointer"),
				XResolution:      Rationals(Rational{Num: 72, Den: 1}),
				50000:            Undefined(bytes.Repeat([]byte{1}, n-1)),
				50001:            Undefined(bytes.Repeat([]byte{2}, n)),
				50002:            Undefined(bytes.Repeat([]byte{3}, n+1)),
				50003:            SLongs(-1, 2, -3),
				50004:            Doubles(math.Pi),
				50005:            Undefined(nil),
			}

			f := fileio.NewBuffer(0)
			writeChain(t, f, l, 1, func(b *IFDBuilder, _ int) {
				for tag, v := range values {
					require.NoError(t, b.Add(tag, v))
				}
			})

			ifd := readFirst(t, f)
			require.Equal(t, len(values), ifd.EntryCount())
			assert.False(t, ifd.HasNext())
			assert.Equal(t, l, ifd.Layout())

			read, err := ifd.ReadValues(ctx, f)
			require.NoError(t, err)
			var lastTag Tag
			for i, e := range ifd.Entries() {
				require.GreaterOrEqual(t, e.Tag(), lastTag, "entries sorted by tag")
				lastTag = e.Tag()

				want := values[e.Tag()]
				assert.True(t, want.Equal(read[i]), "%s: want %s, got %s", e.Tag(), want, read[i])

				// the threshold: values no larger than an offset are inline
				_, immediate := e.(*Immediate)
				assert.Equal(t, want.ByteCount() <= n, immediate, "%s", e.Tag())
			}
		})
	}
}

func TestThreshold(t *testing.T) {
	v := Longs(1, 2) // 8 bytes
	for _, tc := range []struct {
		l         Layout
		immediate bool
	}{
		{NewLayout(binary.LittleEndian, Classic), false},
		{NewLayout(binary.LittleEndian, Big), true},
	} {
		b := NewIFDBuilder(tc.l, NewOffsetField("next"), NewOffsetFieldGroup())
		require.NoError(t, b.Add(50000, v))
		ifd, err := b.Build()
		require.NoError(t, err)
		e, ok := ifd.Entry(50000)
		require.True(t, ok)
		_, immediate := e.(*Immediate)
		assert.Equal(t, tc.immediate, immediate)
		if p, ok := e.(*Pointer); ok {
			assert.Equal(t, Unset, p.OffsetField().State())
		}
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	const n = 5
	for _, l := range allLayouts {
		f := fileio.NewBuffer(0)
		writeChain(t, f, l, n, func(b *IFDBuilder, i int) {
			require.NoError(t, b.Add(50000, Longs(uint32(i))))
			require.NoError(t, b.Add(ImageDescription, ASCII(fmt.Sprintf("directory number %d", i))))
		})

		ifd := readFirst(t, f)
		for i := 0; i < n; i++ {
			e, err := ifd.RequiredEntry(50000)
			require.NoError(t, err)
			v, err := e.ReadValue(ctx, f)
			require.NoError(t, err)
			x, _ := v.Uint64(0)
			assert.Equal(t, uint64(i), x)

			e, err = ifd.RequiredEntry(ImageDescription)
			require.NoError(t, err)
			v, err = e.ReadValue(ctx, f)
			require.NoError(t, err)
			s, _ := v.Text()
			assert.Equal(t, fmt.Sprintf("directory number %d", i), s)

			if i == n-1 {
				break
			}
			require.True(t, ifd.HasNext())
			ifd, err = ifd.ReadNext(ctx, f)
			require.NoError(t, err)
		}
		assert.False(t, ifd.HasNext())
		_, err := ifd.ReadNext(ctx, f)
		require.ErrorIs(t, err, ErrNoNextIFD)
	}
}

func TestDeferredOffsets(t *testing.T) {
	ctx := context.Background()
	l := NewLayout(binary.LittleEndian, Classic)
	values := NewOffsetFieldGroup()
	next := NewOffsetField("NextIFDOffset")
	b := NewIFDBuilder(l, next, values)
	desc := ASCII("long enough to go out of line")
	require.NoError(t, b.Add(ImageDescription, desc))
	ifd, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, 1, values.Len())

	buf := fileio.NewBuffer(0)
	g := fileio.NewPositionGroup()
	start := ifd.Encode(buf, g)
	require.Equal(t, 0, start)
	require.Equal(t, ifd.EncodedSize(), buf.Len())
	ifd.EncodeValues(buf, g)

	// count, then tag, type, count, and the offset field
	fieldPos := 2 + 2 + 2 + 4
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(buf.Bytes()[fieldPos:]), "placeholder")
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(buf.Bytes()[ifd.EncodedSize()-4:]), "next IFD placeholder")

	// commit the buffer at an arbitrary aligned offset
	f := fileio.NewBuffer(0)
	_, err = f.WriteAt(make([]byte, 100), 0)
	require.NoError(t, err)
	g.Resolve(100)
	next.SetOffsetValue(fileio.At(0))
	values.UpdateAllInBuffer(l, buf)
	require.NoError(t, fileio.WriteAt(ctx, f, buf.Bytes(), 100))

	valuePos := (ifd.EncodedSize() + 3) &^ 3
	assert.Equal(t, uint32(100+valuePos), binary.LittleEndian.Uint32(buf.Bytes()[fieldPos:]))

	read, err := ReadIFD(ctx, l, f, 100)
	require.NoError(t, err)
	off, ok := read.Offset()
	require.True(t, ok)
	assert.Equal(t, int64(100), off)
	e, err := read.RequiredEntry(ImageDescription)
	require.NoError(t, err)
	v, err := e.ReadValue(ctx, f)
	require.NoError(t, err)
	assert.True(t, desc.Equal(v))
}

func TestDuplicateTags(t *testing.T) {
	ctx := context.Background()
	l := NewLayout(binary.BigEndian, Classic)
	f := fileio.NewBuffer(0)
	writeChain(t, f, l, 1, func(b *IFDBuilder, _ int) {
		require.NoError(t, b.Add(Software, ASCII("second writer")))
		require.NoError(t, b.Add(ImageDescription, ASCII("ImageJ=1.54")))
		require.NoError(t, b.Add(ImageDescription, ASCII("<OME/>")))
	})

	ifd := readFirst(t, f)
	descs := ifd.AllEntries(ImageDescription)
	require.Len(t, descs, 2)
	var texts []string
	for _, e := range descs {
		v, err := e.ReadValue(ctx, f)
		require.NoError(t, err)
		s, _ := v.Text()
		texts = append(texts, s)
	}
	// stable sort keeps the order they were added in
	assert.Equal(t, []string{"ImageJ=1.54", "<OME/>"}, texts)
	assert.Equal(t, ImageDescription, ifd.Entries()[0].Tag())
	assert.Equal(t, Software, ifd.Entries()[2].Tag())
}

func TestBuilderErrors(t *testing.T) {
	var formatErr FormatError

	l := NewLayout(binary.LittleEndian, Classic)
	b := NewIFDBuilder(l, NewOffsetField("next"), NewOffsetFieldGroup())
	err := b.Add(ImageWidth, ASCII("wide"))
	require.True(t, errors.As(err, &formatErr), "tag/type mismatch: %v", err)

	err = b.Add(50000, Long8s(1))
	require.True(t, errors.As(err, &formatErr), "LONG8 in classic TIFF: %v", err)

	big := NewIFDBuilder(NewLayout(binary.LittleEndian, Big), NewOffsetField("next"), NewOffsetFieldGroup())
	require.NoError(t, big.Add(50000, Long8s(1)))
}

func TestBuildTooManyEntries(t *testing.T) {
	l := NewLayout(binary.LittleEndian, Classic)
	b := NewIFDBuilder(l, NewOffsetField("next"), NewOffsetFieldGroup())
	for i := 0; i <= math.MaxUint16; i++ {
		require.NoError(t, b.Add(50000, Bytes([]byte{1})))
	}
	_, err := b.Build()
	var unsupported UnsupportedError
	require.True(t, errors.As(err, &unsupported))
}

// classicFile assembles a little-endian classic TIFF whose single directory
// holds the given raw entries.
func classicFile(entries ...[]byte) []byte {
	var b []byte
	b = append(b, 'I', 'I', 42, 0, 8, 0, 0, 0)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(entries)))
	for _, e := range entries {
		b = append(b, e...)
	}
	return append(b, 0, 0, 0, 0)
}

func classicEntry(tag Tag, typ FieldType, count uint32, value uint32) []byte {
	b := binary.LittleEndian.AppendUint16(nil, uint16(tag))
	b = binary.LittleEndian.AppendUint16(b, uint16(typ))
	b = binary.LittleEndian.AppendUint32(b, count)
	return binary.LittleEndian.AppendUint32(b, value)
}

func TestReadIFDHandBuilt(t *testing.T) {
	ctx := context.Background()
	l := NewLayout(binary.LittleEndian, Classic)

	// duplicate tags, out of order
	r := bytes.NewReader(classicFile(
		classicEntry(ImageWidth, TypeShort, 1, 10),
		classicEntry(ImageLength, TypeLong, 1, 20),
		classicEntry(ImageWidth, TypeShort, 1, 30),
	))
	ifd, err := ReadIFD(ctx, l, r, 8)
	require.NoError(t, err)
	require.Equal(t, 3, ifd.EntryCount())
	require.Len(t, ifd.AllEntries(ImageWidth), 2)
	values, err := ifd.ReadValues(ctx, r)
	require.NoError(t, err)
	x, _ := values[2].Uint64(0)
	assert.Equal(t, uint64(30), x)
	x, _ = values[1].Uint64(0)
	assert.Equal(t, uint64(20), x)

	var formatErr FormatError
	_, err = ReadIFD(ctx, l, bytes.NewReader(classicFile(classicEntry(50000, 99, 1, 0))), 8)
	require.True(t, errors.As(err, &formatErr), "unknown field type: %v", err)

	_, err = ReadIFD(ctx, l, bytes.NewReader(classicFile(classicEntry(ImageWidth, TypeASCII, 1, 0))), 8)
	require.True(t, errors.As(err, &formatErr), "wrong type for tag: %v", err)

	// truncated after the entry count
	data := classicFile(classicEntry(ImageWidth, TypeShort, 1, 10))
	_, err = ReadIFD(ctx, l, bytes.NewReader(data[:14]), 8)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	// a pointer past the end of the file fails when the value is read
	ifd, err = ReadIFD(ctx, l, bytes.NewReader(classicFile(classicEntry(50000, TypeLong, 4, 1000))), 8)
	require.NoError(t, err)
	_, err = ifd.ReadValues(ctx, bytes.NewReader(data))
	require.Error(t, err)
}

// slowReader counts overlapping ReadAt calls.
type slowReader struct {
	r        io.ReaderAt
	inflight atomic.Int32
	peak     atomic.Int32
}

func (s *slowReader) ReadAt(p []byte, off int64) (int, error) {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(100 * time.Microsecond)
	return s.r.ReadAt(p, off)
}

func TestReadValuesBounded(t *testing.T) {
	ctx := context.Background()
	const n = 4 * maxConcurrentReads
	f := fileio.NewBuffer(0)
	writeChain(t, f, NewLayout(binary.LittleEndian, Classic), 1, func(b *IFDBuilder, _ int) {
		for i := 0; i < n; i++ {
			require.NoError(t, b.Add(Tag(50000+i), Longs(uint32(i), 1)))
		}
	})

	r := &slowReader{r: f}
	ifd := readFirst(t, r)
	values, err := ifd.ReadValues(ctx, r)
	require.NoError(t, err)
	require.Len(t, values, n)
	for i, v := range values {
		x, _ := v.Uint64(0)
		require.Equal(t, uint64(i), x)
	}
	assert.LessOrEqual(t, r.peak.Load(), int32(maxConcurrentReads))
}

func TestReadIFDOversizedCount(t *testing.T) {
	ctx := context.Background()
	l := NewLayout(binary.LittleEndian, Big)

	var b []byte
	b = append(b, 'I', 'I', 43, 0, 8, 0, 0, 0)
	b = binary.LittleEndian.AppendUint64(b, 16)
	b = binary.LittleEndian.AppendUint64(b, 1)
	b = binary.LittleEndian.AppendUint16(b, 50000)
	b = binary.LittleEndian.AppendUint16(b, uint16(TypeLong8))
	b = binary.LittleEndian.AppendUint64(b, 1<<40)
	b = binary.LittleEndian.AppendUint64(b, 64)
	b = binary.LittleEndian.AppendUint64(b, 0)

	_, err := ReadIFD(ctx, l, bytes.NewReader(b), 16)
	var unsupported UnsupportedError
	require.True(t, errors.As(err, &unsupported), "%v", err)
}

func writePixelImage(t *testing.T, f fileio.File, l Layout, pixels []byte, extra func(b *IFDBuilder)) {
	t.Helper()
	ctx := context.Background()
	var stripOff int64
	writeChain(t, f, l, 1, func(b *IFDBuilder, _ int) {
		off, err := AppendAligned(ctx, l, f, pixels)
		require.NoError(t, err)
		stripOff = off
		require.NoError(t, b.Add(ImageWidth, Uints(4)))
		require.NoError(t, b.Add(ImageLength, Uints(4)))
		require.NoError(t, b.Add(BitsPerSample, Shorts(8)))
		require.NoError(t, b.Add(SamplesPerPixel, Shorts(1)))
		if extra != nil {
			extra(b)
		} else {
			require.NoError(t, b.Add(RowsPerStrip, Uints(4)))
			require.NoError(t, b.Add(StripOffsets, Uints(uint64(off))))
			require.NoError(t, b.Add(StripByteCounts, Uints(uint64(len(pixels)))))
		}
	})
	require.NotZero(t, stripOff)
}

func TestReadPixels(t *testing.T) {
	ctx := context.Background()
	pixels := bytes.Repeat([]byte{0xAA}, 16)
	for _, l := range allLayouts {
		f := fileio.NewBuffer(0)
		writePixelImage(t, f, l, pixels, nil)

		ifd := readFirst(t, f)
		got, err := ifd.ReadPixels(ctx, f)
		require.NoError(t, err)
		assert.Equal(t, pixels, got)
	}
}

func TestReadPixelsUnsupported(t *testing.T) {
	ctx := context.Background()
	l := NewLayout(binary.LittleEndian, Classic)
	var unsupported UnsupportedError

	// two strips of two rows
	f := fileio.NewBuffer(0)
	writePixelImage(t, f, l, make([]byte, 16), func(b *IFDBuilder) {
		require.NoError(t, b.Add(RowsPerStrip, Uints(2)))
		require.NoError(t, b.Add(StripOffsets, Longs(8, 16)))
		require.NoError(t, b.Add(StripByteCounts, Longs(8, 8)))
	})
	_, err := readFirst(t, f).ReadPixels(ctx, f)
	require.True(t, errors.As(err, &unsupported), "%v", err)

	// one strip claimed, but two offsets
	f = fileio.NewBuffer(0)
	writePixelImage(t, f, l, make([]byte, 16), func(b *IFDBuilder) {
		require.NoError(t, b.Add(RowsPerStrip, Uints(4)))
		require.NoError(t, b.Add(StripOffsets, Longs(8, 16)))
		require.NoError(t, b.Add(StripByteCounts, Longs(16)))
	})
	_, err = readFirst(t, f).ReadPixels(ctx, f)
	require.True(t, errors.As(err, &unsupported), "%v", err)

	// no strip offsets at all
	f = fileio.NewBuffer(0)
	writePixelImage(t, f, l, make([]byte, 16), func(b *IFDBuilder) {
		require.NoError(t, b.Add(RowsPerStrip, Uints(4)))
	})
	_, err = readFirst(t, f).ReadPixels(ctx, f)
	var formatErr FormatError
	require.True(t, errors.As(err, &formatErr), "%v", err)
}

type errorFile struct {
	fileio.File
	err error
}

func (f *errorFile) WriteAt(p []byte, off int64) (int, error) {
	return 0, f.err
}

func (f *errorFile) ReadAt(p []byte, off int64) (int, error) {
	return 0, f.err
}

func TestIOErrors(t *testing.T) {
	ctx := context.Background()
	l := NewLayout(binary.LittleEndian, Classic)
	boom := errors.New("boom")
	f := &errorFile{File: fileio.NewBuffer(0), err: boom}

	b := NewIFDBuilder(l, NewOffsetField("next"), NewOffsetFieldGroup())
	require.NoError(t, b.Add(ImageDescription, ASCII("out of line value")))
	ifd, err := b.Build()
	require.NoError(t, err)

	require.ErrorIs(t, ifd.WriteValues(ctx, f), boom)
	_, err = ifd.Write(ctx, f)
	require.ErrorIs(t, err, boom)

	_, err = ReadIFD(ctx, l, f, 8)
	require.ErrorIs(t, err, boom)
	_, err = ReadHeader(ctx, f)
	require.ErrorIs(t, err, boom)

	b = NewIFDBuilder(l, NewOffsetField("next"), NewOffsetFieldGroup())
	ifd, err = b.Build()
	require.NoError(t, err)
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = ifd.Write(canceled, fileio.NewBuffer(0))
	require.ErrorIs(t, err, context.Canceled)
}

// hugeFile pretends to already be size bytes long and discards writes.
type hugeFile struct {
	size int64
}

func (f *hugeFile) ReadAt(p []byte, off int64) (int, error) { return 0, io.EOF }

func (f *hugeFile) WriteAt(p []byte, off int64) (int, error) {
	if end := off + int64(len(p)); end > f.size {
		f.size = end
	}
	return len(p), nil
}

func (f *hugeFile) Size() (int64, error) { return f.size, nil }

func TestFileTooLarge(t *testing.T) {
	ctx := context.Background()
	b := NewIFDBuilder(NewLayout(binary.LittleEndian, Classic), NewOffsetField("next"), NewOffsetFieldGroup())
	require.NoError(t, b.Add(ImageWidth, Uints(1)))
	ifd, err := b.Build()
	require.NoError(t, err)

	_, err = ifd.Write(ctx, &hugeFile{size: math.MaxUint32 - 8})
	require.ErrorIs(t, err, ErrFileTooLarge)

	// an unaligned end must not be padded when the write is refused
	b = NewIFDBuilder(NewLayout(binary.LittleEndian, Classic), NewOffsetField("next"), NewOffsetFieldGroup())
	require.NoError(t, b.Add(ImageWidth, Uints(1)))
	ifd, err = b.Build()
	require.NoError(t, err)
	f := &hugeFile{size: math.MaxUint32 - 2}
	_, err = ifd.Write(ctx, f)
	require.ErrorIs(t, err, ErrFileTooLarge)
	assert.Equal(t, int64(math.MaxUint32-2), f.size)

	b = NewIFDBuilder(NewLayout(binary.LittleEndian, Big), NewOffsetField("next"), NewOffsetFieldGroup())
	require.NoError(t, b.Add(ImageWidth, Uints(1)))
	ifd, err = b.Build()
	require.NoError(t, err)
	off, err := ifd.Write(ctx, &hugeFile{size: math.MaxUint32 - 8})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxUint32-7), off)
}
