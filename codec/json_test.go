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
	"testing"

	"github.com/stretchr/testify/require"

	"lab.nexedi.com/kirr/gitdocs"
)

func TestJSONSerializeDeserializeRoundTrip(t *testing.T) {
	var c JSON
	data, err := c.Serialize(map[string]any{"name": "alice", "age": 30})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, c.Deserialize(data, &out))
	require.Equal(t, "alice", out["name"])
}

func TestJSONExtractIndexesDistinguishesIntFromFloat(t *testing.T) {
	var c JSON
	data, err := c.Serialize(map[string]any{"age": 30, "score": 1.5})
	require.NoError(t, err)

	ageIx := &gitdocs.Index{IndexedField: "age", Kind: gitdocs.KindNumeric}
	scoreIx := &gitdocs.Index{IndexedField: "score", Kind: gitdocs.KindNumeric}

	out, err := c.ExtractIndexes(data, []*gitdocs.Index{ageIx, scoreIx})
	require.NoError(t, err)

	age, ok := out[ageIx].Compare(gitdocs.IntField(30))
	require.True(t, ok)
	require.Equal(t, 0, age)

	score, ok := out[scoreIx].Compare(gitdocs.FloatField(1.5))
	require.True(t, ok)
	require.Equal(t, 0, score)
}

func TestJSONMatchFieldEqualAndMismatch(t *testing.T) {
	var c JSON
	data, err := c.Serialize(map[string]any{"name": "bob"})
	require.NoError(t, err)

	ok, err := c.MatchField(data, "name", gitdocs.StringField("bob"), gitdocs.Equal)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.MatchField(data, "name", gitdocs.StringField("carol"), gitdocs.Equal)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = c.MatchField(data, "missing-field", gitdocs.StringField("x"), gitdocs.Equal)
	require.NoError(t, err)
	require.False(t, ok)
}
