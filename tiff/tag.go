// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tiff

import (
	"fmt"
)

// Tag identifies the meaning of a directory entry.
type Tag uint16

// The tags this package knows the type constraints of (TIFF 6.0,
// p. 28-41).  Any other tag is accepted with any field type.
const (
	NewSubfileType            Tag = 254
	ImageWidth                Tag = 256
	ImageLength               Tag = 257
	BitsPerSample             Tag = 258
	Compression               Tag = 259
	PhotometricInterpretation Tag = 262
	ImageDescription          Tag = 270
	StripOffsets              Tag = 273
	SamplesPerPixel           Tag = 277
	RowsPerStrip              Tag = 278
	StripByteCounts           Tag = 279
	XResolution               Tag = 282
	YResolution               Tag = 283
	PlanarConfiguration       Tag = 284
	ResolutionUnit            Tag = 296
	Software                  Tag = 305
	DateTime                  Tag = 306
)

type tagInfo struct {
	name  string
	types []FieldType
}

var (
	shortOrLong = []FieldType{TypeShort, TypeLong, TypeLong8}
	short       = []FieldType{TypeShort}
	ascii       = []FieldType{TypeASCII}
	rational    = []FieldType{TypeRational}
)

var tags = map[Tag]tagInfo{
	NewSubfileType:            {"NewSubfileType", []FieldType{TypeLong}},
	ImageWidth:                {"ImageWidth", shortOrLong},
	ImageLength:               {"ImageLength", shortOrLong},
	BitsPerSample:             {"BitsPerSample", short},
	Compression:               {"Compression", short},
	PhotometricInterpretation: {"PhotometricInterpretation", short},
	ImageDescription:          {"ImageDescription", ascii},
	StripOffsets:              {"StripOffsets", shortOrLong},
	SamplesPerPixel:           {"SamplesPerPixel", short},
	RowsPerStrip:              {"RowsPerStrip", shortOrLong},
	StripByteCounts:           {"StripByteCounts", shortOrLong},
	XResolution:               {"XResolution", rational},
	YResolution:               {"YResolution", rational},
	PlanarConfiguration:       {"PlanarConfiguration", short},
	ResolutionUnit:            {"ResolutionUnit", short},
	Software:                  {"Software", ascii},
	DateTime:                  {"DateTime", ascii},
}

func (t Tag) String() string {
	if info, ok := tags[t]; ok {
		return info.name
	}
	return fmt.Sprintf("Tag(%d)", uint16(t))
}

// CheckType returns a FormatError if typ is not allowed for t.
func (t Tag) CheckType(typ FieldType) error {
	info, ok := tags[t]
	if !ok {
		return nil
	}
	for _, allowed := range info.types {
		if typ == allowed {
			return nil
		}
	}
	return FormatError(fmt.Sprintf("tag %s cannot have field type %s", t, typ))
}
