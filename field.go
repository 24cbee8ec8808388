// Copyright (C) 2015-2016  Nexedi SA and Contributors.
//                          Kirill Smelkov <kirr@nexedi.com>
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// You can also Link and Combine this program with other software covered by
// the terms of any of the Free Software licenses or any of the Open Source
// Initiative approved licenses and Convey the resulting work. Corresponding
// source of such a combination shall include the source code for all other
// software used.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.
// See https://www.nexedi.com/licensing for rationale and options.

package gitdocs

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldKind tags the dynamic type carried by a Field.
type FieldKind int

const (
	FieldInt FieldKind = iota
	FieldString
	FieldFloat
)

// ino tag values stored in a secondary-index entry, per the on-disk
// encoding table: Int=0, String=1, Float=2.
const (
	inoInt    = 0
	inoString = 1
	inoFloat  = 2
)

// Field is a tagged value extracted from a document: the subset of JSON/YAML
// scalar types the index and query engines know how to order.
type Field struct {
	kind FieldKind
	i    int64
	f    float64
	s    string
}

func IntField(v int64) Field    { return Field{kind: FieldInt, i: v} }
func FloatField(v float64) Field { return Field{kind: FieldFloat, f: v} }
func StringField(v string) Field { return Field{kind: FieldString, s: v} }

func (f Field) Kind() FieldKind { return f.kind }

func (f Field) String() string {
	switch f.kind {
	case FieldInt:
		return strconv.FormatInt(f.i, 10)
	case FieldFloat:
		return strconv.FormatFloat(f.f, 'g', -1, 64)
	case FieldString:
		return f.s
	default:
		return ""
	}
}

// AsFloat64 widens Int/Float fields to float64, for numeric comparisons.
// Returns false for String fields.
func (f Field) AsFloat64() (float64, bool) {
	switch f.kind {
	case FieldInt:
		return float64(f.i), true
	case FieldFloat:
		return f.f, true
	default:
		return 0, false
	}
}

// Compare orders two fields the way the index engine promises: numeric
// fields (Int widened to float64) compare by value, strings lexically;
// mixed Numeric/String pairs are not ordered (second return is false).
func (f Field) Compare(other Field) (cmp int, ok bool) {
	if f.kind == FieldString || other.kind == FieldString {
		if f.kind != FieldString || other.kind != FieldString {
			return 0, false
		}
		switch {
		case f.s < other.s:
			return -1, true
		case f.s > other.s:
			return 1, true
		default:
			return 0, true
		}
	}
	a, _ := f.AsFloat64()
	b, _ := other.AsFloat64()
	if math.IsNaN(a) || math.IsNaN(b) {
		return 0, false
	}
	switch {
	case a < b:
		return -1, true
	case a > b:
		return 1, true
	default:
		return 0, true
	}
}

func (f Field) Equal(other Field) bool {
	c, ok := f.Compare(other)
	return ok && c == 0
}

// ToIndexValue renders the deterministic index-key encoding described in
// SPEC_FULL.md §5.2: Int/Float are encoded as a sign digit ("0" negative,
// "1" non-negative) then the IEEE-754 bit pattern in hex; String is encoded
// verbatim. In lexicographic order of the encoded string every negative
// sorts before every non-negative and non-negatives sort numerically, but
// negatives sort in reverse numeric order (-11 sorts after -5), because a
// larger magnitude has a larger bit pattern.
//
// NaN is rejected: see ErrNotOrderable in index.go.
func (f Field) ToIndexValue() (string, error) {
	switch f.kind {
	case FieldInt:
		bits := math.Float64bits(float64(f.i))
		sign := "0"
		if f.i >= 0 {
			sign = "1"
		}
		return fmt.Sprintf("%s/%016x", sign, bits), nil
	case FieldFloat:
		if math.IsNaN(f.f) {
			return "", ErrNotOrderable
		}
		bits := math.Float64bits(f.f)
		sign := "0"
		if !math.Signbit(f.f) {
			sign = "1"
		}
		return fmt.Sprintf("%s/%016x", sign, bits), nil
	case FieldString:
		return f.s, nil
	default:
		return "", fmt.Errorf("gitdocs: unknown field kind %d", f.kind)
	}
}

// ToInoTag returns the index-entry `ino` tag for this field's kind.
func (f Field) ToInoTag() uint32 {
	switch f.kind {
	case FieldInt:
		return inoInt
	case FieldFloat:
		return inoFloat
	case FieldString:
		return inoString
	default:
		return inoString
	}
}

// FieldFromIndexEntry reconstructs a typed Field from the raw encoded value
// (the index path with any sequential tie-breaker suffix already stripped,
// see ExtractValue) plus the entry's ino tag, mirroring yamabiko's
// Field::from_index_entry.
//
// Note: integers are decoded the same way the original Rust implementation
// decodes them -- via the bit pattern interpreted as float64, then truncated
// back to int64. This loses no information for any value actually produced
// by ToIndexValue, since encoding an Int always widens through float64 first.
func FieldFromIndexEntry(ino uint32, encoded string) (Field, error) {
	switch ino {
	case inoString:
		return StringField(encoded), nil
	case inoInt, inoFloat:
		// encoded is "{sign}/{bits:16x}"; the sign is implicit in the
		// bit pattern itself (IEEE-754 sign bit) and only needed to
		// make the encoded string order correctly, so it is discarded
		// here.
		hexBits := encoded
		if i := strings.LastIndexByte(encoded, '/'); i >= 0 {
			hexBits = encoded[i+1:]
		}
		bits, err := strconv.ParseUint(hexBits, 16, 64)
		if err != nil {
			return Field{}, fmt.Errorf("gitdocs: decode index value %q: %w", encoded, err)
		}
		v := math.Float64frombits(bits)
		if ino == inoInt {
			return IntField(int64(v)), nil
		}
		return FloatField(v), nil
	default:
		return Field{}, fmt.Errorf("gitdocs: unknown ino tag %d", ino)
	}
}
