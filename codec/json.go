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

// Package codec holds the concrete gitdocs.Codec implementations: JSON,
// YAML and POT (MessagePack). None of them cache anything -- each call
// re-parses the document bytes it is given, same as the retrieved
// DataFormat::extract_indexes_json/match_field pair they are grounded on.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"lab.nexedi.com/kirr/gitdocs"
)

// JSON serializes documents as pretty-printed JSON.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Serialize(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return nil, fmt.Errorf("gitdocs/codec: json encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (JSON) Deserialize(data []byte, value any) error {
	if err := json.Unmarshal(data, value); err != nil {
		return fmt.Errorf("gitdocs/codec: json decode: %w", err)
	}
	return nil
}

func (JSON) ExtractIndexes(data []byte, indexes []*gitdocs.Index) (map[*gitdocs.Index]gitdocs.Field, error) {
	doc, err := decodeJSONMap(data)
	if err != nil {
		return nil, err
	}
	out := make(map[*gitdocs.Index]gitdocs.Field, len(indexes))
	for _, ix := range indexes {
		raw, ok := doc[ix.IndexedField]
		if !ok {
			continue
		}
		field, ok := fieldFromJSON(raw)
		if !ok || !ix.IndexesGivenField(field) {
			continue
		}
		out[ix] = field
	}
	return out, nil
}

func (JSON) MatchField(data []byte, field string, value gitdocs.Field, cmp gitdocs.Comparator) (bool, error) {
	doc, err := decodeJSONMap(data)
	if err != nil {
		return false, err
	}
	raw, ok := doc[field]
	if !ok {
		return false, nil
	}
	got, ok := fieldFromJSON(raw)
	if !ok {
		return false, nil
	}
	c, ok := got.Compare(value)
	if !ok {
		return false, nil
	}
	return cmp.Matches(c), nil
}

// decodeJSONMap decodes data with json.Number active so integers and
// floats can be told apart -- plain json.Unmarshal into map[string]any
// would collapse both to float64 and lose the distinction ToIndexValue
// relies on.
func decodeJSONMap(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("gitdocs/codec: json decode: %w", err)
	}
	return doc, nil
}

func fieldFromJSON(raw any) (gitdocs.Field, bool) {
	switch v := raw.(type) {
	case string:
		return gitdocs.StringField(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return gitdocs.IntField(i), true
		}
		f, err := v.Float64()
		if err != nil {
			return gitdocs.Field{}, false
		}
		return gitdocs.FloatField(f), true
	default:
		return gitdocs.Field{}, false
	}
}
