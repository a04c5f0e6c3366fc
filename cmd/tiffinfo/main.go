// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// The tiffinfo command inspects TIFF and BigTIFF files and generates
// synthetic ones for testing.
package main

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strings"

	"github.com/dgryski/go-farm"
	"github.com/urfave/cli/v2"
	"lukechampine.com/blake3"

	"github.com/marktsuchida/tiffio"
	"github.com/marktsuchida/tiffio/tiff"
)

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		var seedBytes [8]byte
		_, _ = crand.Read(seedBytes[:])
		seed = int64(binary.LittleEndian.Uint64(seedBytes[:]))
	}
	return rand.New(rand.NewSource(seed))
}

func newApp(stdout, stderr io.Writer) *cli.App {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	app := &cli.App{
		Name:      "tiffinfo",
		Usage:     "Inspect and generate TIFF and BigTIFF files",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "Set log level (debug, info, warn, error)", EnvVars: []string{"LOG_LEVEL"}},
		},
		Before: func(c *cli.Context) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
				return fmt.Errorf("--log-level: %w", err)
			}
			logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:      "dump",
			Usage:     "Print the header and every directory entry",
			ArgsUsage: "FILE",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "mmap", Usage: "Map the file into memory instead of reading it"},
			},
			Action: func(c *cli.Context) error {
				r, err := openArg(c, logger)
				if err != nil {
					return err
				}
				defer r.Close()
				return dump(c.Context, c.App.Writer, r)
			},
		},
		{
			Name:      "checksum",
			Usage:     "Print a fingerprint of each page's pixel data",
			ArgsUsage: "FILE",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "mmap", Usage: "Map the file into memory instead of reading it"},
				&cli.StringFlag{Name: "algo", Value: "farm", Usage: "Hash algorithm (farm, blake3)"},
			},
			Action: func(c *cli.Context) error {
				sum, ok := checksums[c.String("algo")]
				if !ok {
					return cli.Exit(fmt.Sprintf("checksum: unknown algorithm %q", c.String("algo")), 2)
				}
				r, err := openArg(c, logger)
				if err != nil {
					return err
				}
				defer r.Close()
				return checksum(c.Context, c.App.Writer, r, sum)
			},
		},
		{
			Name:      "gen",
			Usage:     "Write a multi-page file of random 8-bit grayscale pixels",
			ArgsUsage: "OUT",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "big", Usage: "Write BigTIFF"},
				&cli.BoolFlag{Name: "big-endian", Usage: "Write a big-endian (MM) file"},
				&cli.BoolFlag{Name: "buffered", Usage: "Compose each directory in memory before writing it"},
				&cli.IntFlag{Name: "pages", Value: 3, Usage: "Number of pages"},
				&cli.UintFlag{Name: "width", Value: 64, Usage: "Page width in pixels"},
				&cli.UintFlag{Name: "height", Value: 64, Usage: "Page height in pixels"},
				&cli.Int64Flag{Name: "seed", Usage: "Random seed (0 picks one)"},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return cli.Exit("gen: expected exactly one output path", 2)
				}
				opts := []tiffio.WriterOption{tiffio.WithLogger(logger)}
				if c.Bool("big") {
					opts = append(opts, tiffio.WithBigTIFF())
				}
				if c.Bool("big-endian") {
					opts = append(opts, tiffio.WithByteOrder(binary.BigEndian))
				}
				if c.Bool("buffered") {
					opts = append(opts, tiffio.WithBufferedPages())
				}
				return gen(c.Context, c.Args().First(), genParams{
					pages:  c.Int("pages"),
					width:  uint32(c.Uint("width")),
					height: uint32(c.Uint("height")),
					rng:    newRand(c.Int64("seed")),
				}, opts...)
			},
		},
	}
	return app
}

func openArg(c *cli.Context, logger *slog.Logger) (*tiffio.Reader, error) {
	if c.NArg() != 1 {
		return nil, cli.Exit(fmt.Sprintf("%s: expected exactly one file", c.Command.Name), 2)
	}
	opts := []tiffio.ReaderOption{tiffio.WithReaderLogger(logger)}
	if c.Bool("mmap") {
		opts = append(opts, tiffio.WithMmap())
	}
	return tiffio.Open(c.Context, c.Args().First(), opts...)
}

func dump(ctx context.Context, w io.Writer, r *tiffio.Reader) error {
	l := r.Layout()
	fmt.Fprintf(w, "%s, %s\n", l.Version, l.Order)
	pages, err := r.Pages(ctx)
	if err != nil {
		return err
	}
	for i, ifd := range pages {
		off, _ := ifd.Offset()
		fmt.Fprintf(w, "page %d: IFD at %d, %d entries\n", i, off, ifd.EntryCount())
		values, err := r.ReadValues(ctx, ifd)
		if err != nil {
			return fmt.Errorf("page %d: %w", i, err)
		}
		for j, e := range ifd.Entries() {
			storage := "immediate"
			if p, ok := e.(*tiff.Pointer); ok {
				storage = fmt.Sprintf("at %d", p.OffsetField().OffsetValue().Offset())
			}
			fmt.Fprintf(w, "  %-26s %-10s %s\n", e.Tag(), storage, values[j])
		}
	}
	return nil
}

// checksums maps algorithm names to functions formatting a digest.
var checksums = map[string]func([]byte) string{
	"farm": func(b []byte) string {
		return fmt.Sprintf("%016x", farm.Fingerprint64(b))
	},
	"blake3": func(b []byte) string {
		sum := blake3.Sum256(b)
		return hex.EncodeToString(sum[:])
	},
}

func checksum(ctx context.Context, w io.Writer, r *tiffio.Reader, sum func([]byte) string) error {
	pages, err := r.Pages(ctx)
	if err != nil {
		return err
	}
	for i, ifd := range pages {
		pixels, err := r.ReadIFDPixels(ctx, ifd)
		if err != nil {
			return fmt.Errorf("page %d: %w", i, err)
		}
		fmt.Fprintf(w, "page %d: %s (%d bytes)\n", i, sum(pixels), len(pixels))
	}
	return nil
}

type genParams struct {
	pages         int
	width, height uint32
	rng           *rand.Rand
}

func gen(ctx context.Context, path string, p genParams, opts ...tiffio.WriterOption) error {
	if p.pages < 1 {
		return fmt.Errorf("gen: need at least one page (got %d)", p.pages)
	}
	w, err := tiffio.Create(ctx, path, opts...)
	if err != nil {
		return err
	}
	for i := 0; i < p.pages; i++ {
		pixels := make([]byte, int(p.width)*int(p.height))
		if _, err := p.rng.Read(pixels); err != nil {
			_ = w.Abort()
			return err
		}
		page := tiffio.Page{
			Width:           p.width,
			Height:          p.height,
			BitsPerSample:   8,
			SamplesPerPixel: 1,
			Pixels:          pixels,
			Extra: []tiffio.Field{
				{Tag: tiff.ImageDescription, Value: tiff.ASCII(fmt.Sprintf("random page %d of %d", i+1, p.pages))},
				{Tag: tiff.Software, Value: tiff.ASCII("tiffinfo gen")},
			},
		}
		if err := w.WritePage(ctx, page); err != nil {
			_ = w.Abort()
			return err
		}
	}
	return w.Close()
}

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
