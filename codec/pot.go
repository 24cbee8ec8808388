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

package codec

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"lab.nexedi.com/kirr/gitdocs"
)

// POT serializes documents as MessagePack -- a compact binary format for
// installations that would rather not pay JSON/YAML's text overhead per
// document.
type POT struct{}

func (POT) Name() string { return "pot" }

func (POT) Serialize(value any) ([]byte, error) {
	out, err := msgpack.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("gitdocs/codec: pot encode: %w", err)
	}
	return out, nil
}

func (POT) Deserialize(data []byte, value any) error {
	if err := msgpack.Unmarshal(data, value); err != nil {
		return fmt.Errorf("gitdocs/codec: pot decode: %w", err)
	}
	return nil
}

func (POT) ExtractIndexes(data []byte, indexes []*gitdocs.Index) (map[*gitdocs.Index]gitdocs.Field, error) {
	doc, err := decodePotMap(data)
	if err != nil {
		return nil, err
	}
	out := make(map[*gitdocs.Index]gitdocs.Field, len(indexes))
	for _, ix := range indexes {
		raw, ok := doc[ix.IndexedField]
		if !ok {
			continue
		}
		field, ok := fieldFromPot(raw)
		if !ok || !ix.IndexesGivenField(field) {
			continue
		}
		out[ix] = field
	}
	return out, nil
}

func (POT) MatchField(data []byte, field string, value gitdocs.Field, cmp gitdocs.Comparator) (bool, error) {
	doc, err := decodePotMap(data)
	if err != nil {
		return false, err
	}
	raw, ok := doc[field]
	if !ok {
		return false, nil
	}
	got, ok := fieldFromPot(raw)
	if !ok {
		return false, nil
	}
	c, ok := got.Compare(value)
	if !ok {
		return false, nil
	}
	return cmp.Matches(c), nil
}

func decodePotMap(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("gitdocs/codec: pot decode: %w", err)
	}
	return doc, nil
}

func fieldFromPot(raw any) (gitdocs.Field, bool) {
	switch v := raw.(type) {
	case string:
		return gitdocs.StringField(v), true
	case int8:
		return gitdocs.IntField(int64(v)), true
	case int16:
		return gitdocs.IntField(int64(v)), true
	case int32:
		return gitdocs.IntField(int64(v)), true
	case int64:
		return gitdocs.IntField(v), true
	case int:
		return gitdocs.IntField(int64(v)), true
	case uint64:
		return gitdocs.IntField(int64(v)), true
	case uint32:
		return gitdocs.IntField(int64(v)), true
	case float32:
		return gitdocs.FloatField(float64(v)), true
	case float64:
		return gitdocs.FloatField(v), true
	default:
		return gitdocs.Field{}, false
	}
}
