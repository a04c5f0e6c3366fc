// Copyright 2026 The tiffio Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tiff

import (
	"fmt"
)

// FieldType is the data type of a directory entry's value.
type FieldType uint16

// Field types (TIFF 6.0 p. 15-16, and the three BigTIFF additions).
const (
	TypeByte      FieldType = 1
	TypeASCII     FieldType = 2
	TypeShort     FieldType = 3
	TypeLong      FieldType = 4
	TypeRational  FieldType = 5
	TypeSByte     FieldType = 6
	TypeUndefined FieldType = 7
	TypeSShort    FieldType = 8
	TypeSLong     FieldType = 9
	TypeSRational FieldType = 10
	TypeFloat     FieldType = 11
	TypeDouble    FieldType = 12
	TypeIFD       FieldType = 13
	TypeLong8     FieldType = 16
	TypeSLong8    FieldType = 17
	TypeIFD8      FieldType = 18
)

type fieldTypeInfo struct {
	name string
	size int
	// swap unit for byte order conversion; rationals are pairs of 32-bit
	// integers, not 64-bit ones
	unit int
}

var fieldTypes = map[FieldType]fieldTypeInfo{
	TypeByte:      {"BYTE", 1, 1},
	TypeASCII:     {"ASCII", 1, 1},
	TypeShort:     {"SHORT", 2, 2},
	TypeLong:      {"LONG", 4, 4},
	TypeRational:  {"RATIONAL", 8, 4},
	TypeSByte:     {"SBYTE", 1, 1},
	TypeUndefined: {"UNDEFINED", 1, 1},
	TypeSShort:    {"SSHORT", 2, 2},
	TypeSLong:     {"SLONG", 4, 4},
	TypeSRational: {"SRATIONAL", 8, 4},
	TypeFloat:     {"FLOAT", 4, 4},
	TypeDouble:    {"DOUBLE", 8, 8},
	TypeIFD:       {"IFD", 4, 4},
	TypeLong8:     {"LONG8", 8, 8},
	TypeSLong8:    {"SLONG8", 8, 8},
	TypeIFD8:      {"IFD8", 8, 8},
}

func fieldTypeFromCode(code uint16) (FieldType, error) {
	t := FieldType(code)
	if _, ok := fieldTypes[t]; !ok {
		return 0, FormatError(fmt.Sprintf("unknown field type %d", code))
	}
	return t, nil
}

// ElementSize returns the size in bytes of one element, or 0 for an unknown
// type.
func (t FieldType) ElementSize() int {
	return fieldTypes[t].size
}

func (t FieldType) swapUnit() int {
	return fieldTypes[t].unit
}

// BigOnly reports whether t exists only in BigTIFF files.
func (t FieldType) BigOnly() bool {
	return t == TypeLong8 || t == TypeSLong8 || t == TypeIFD8
}

func (t FieldType) isUnsigned() bool {
	switch t {
	case TypeByte, TypeShort, TypeLong, TypeIFD, TypeLong8, TypeIFD8:
		return true
	}
	return false
}

func (t FieldType) isSigned() bool {
	switch t {
	case TypeSByte, TypeSShort, TypeSLong, TypeSLong8:
		return true
	}
	return false
}

func (t FieldType) String() string {
	if info, ok := fieldTypes[t]; ok {
		return info.name
	}
	return fmt.Sprintf("FieldType(%d)", uint16(t))
}

// checkVersion rejects BigTIFF-only types in classic files.
func (t FieldType) checkVersion(v Version) error {
	if t.BigOnly() && v != Big {
		return FormatError(fmt.Sprintf("field type %s is only allowed in BigTIFF", t))
	}
	return nil
}
