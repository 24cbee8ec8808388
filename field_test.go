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
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFieldToIndexValueOrdering(t *testing.T) {
	lo, err := IntField(-5).ToIndexValue()
	require.NoError(t, err)
	hi, err := IntField(5).ToIndexValue()
	require.NoError(t, err)
	require.Less(t, lo, hi, "encoded -5 must sort before encoded 5")

	negSign, err := FloatField(-1.5).ToIndexValue()
	require.NoError(t, err)
	require.True(t, negSign[0] == '0')
	posSign, err := FloatField(1.5).ToIndexValue()
	require.NoError(t, err)
	require.True(t, posSign[0] == '1')
	require.Less(t, negSign, posSign)
}

func TestFieldToIndexValueRejectsNaN(t *testing.T) {
	_, err := FloatField(math.NaN()).ToIndexValue()
	require.ErrorIs(t, err, ErrNotOrderable)
}

func TestFieldFromIndexEntryRoundTrip(t *testing.T) {
	for _, f := range []Field{IntField(42), IntField(-7), FloatField(3.25), FloatField(-0.5)} {
		encoded, err := f.ToIndexValue()
		require.NoError(t, err)
		got, err := FieldFromIndexEntry(f.ToInoTag(), encoded)
		require.NoError(t, err)
		cmp, ok := f.Compare(got)
		require.True(t, ok)
		require.Equal(t, 0, cmp)
	}

	s := StringField("hello")
	encoded, err := s.ToIndexValue()
	require.NoError(t, err)
	require.Equal(t, "hello", encoded)
	got, err := FieldFromIndexEntry(s.ToInoTag(), encoded)
	require.NoError(t, err)
	require.True(t, s.Equal(got))
}

func TestFieldCompareMixedKindsUnordered(t *testing.T) {
	_, ok := StringField("x").Compare(IntField(1))
	require.False(t, ok)
	_, ok = IntField(1).Compare(StringField("x"))
	require.False(t, ok)
}

func TestFieldCompareIntFloatWiden(t *testing.T) {
	cmp, ok := IntField(2).Compare(FloatField(2.0))
	require.True(t, ok)
	require.Equal(t, 0, cmp)

	cmp, ok = IntField(1).Compare(FloatField(2.0))
	require.True(t, ok)
	require.Equal(t, -1, cmp)
}

func TestExtractValueStripsTieBreaker(t *testing.T) {
	require.Equal(t, "1/0000000000001400", ExtractValue("1/0000000000001400/fffffffffffffffe"))
	require.Equal(t, "plain", ExtractValue("plain"))
}
