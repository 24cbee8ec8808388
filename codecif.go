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

// Comparator is the relational operator a FieldQuery leaf compares with.
type Comparator int

const (
	Less Comparator = iota
	Equal
	Greater
)

// Matches reports whether a three-way comparison result (negative, zero,
// positive) satisfies this comparator.
func (c Comparator) Matches(cmp int) bool {
	switch c {
	case Less:
		return cmp < 0
	case Equal:
		return cmp == 0
	case Greater:
		return cmp > 0
	}
	return false
}

// Codec is the serialization collaborator gitdocs delegates to for turning
// values into document bytes and back, and for answering the two questions
// the index/query engines need without deserializing a whole document into
// a concrete Go type: "what does this indexed field look like" and "does
// this field compare the given way against a literal".
//
// Concrete codecs live in package codec (json, yaml, pot) to avoid this
// package importing its own collaborators' dependencies.
type Codec interface {
	// Name is the codec's registry name ("json", "yaml", "pot").
	Name() string

	// Serialize renders value (typically a pointer to a struct, or a
	// map[string]any) to document bytes.
	Serialize(value any) ([]byte, error)

	// Deserialize parses document bytes into value, a pointer to the
	// destination type.
	Deserialize(data []byte, value any) error

	// ExtractIndexes returns, for each index, the document's value for
	// that index's field if present and type-compatible with the
	// index's kind; absent or incompatible fields are omitted from the
	// map entirely (not present as a zero Field).
	ExtractIndexes(data []byte, indexes []*Index) (map[*Index]Field, error)

	// MatchField reports whether the document's named field exists and
	// compares to value per cmp.
	MatchField(data []byte, field string, value Field, cmp Comparator) (bool, error)
}
