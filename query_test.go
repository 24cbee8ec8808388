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
	"testing"

	"github.com/stretchr/testify/require"
)

func setupQueryCollection(t *testing.T) *Collection {
	t.Helper()
	col := newTestCollection(t)
	require.NoError(t, col.Set("a", map[string]any{"value": "alpha"}, ""))
	require.NoError(t, col.Set("b", map[string]any{"value": "beta"}, ""))
	require.NoError(t, col.Set("c", map[string]any{"value": "gamma"}, ""))
	return col
}

func TestQueryScanMatchesExpectedKeys(t *testing.T) {
	col := setupQueryCollection(t)

	result, err := col.Query().Execute("", Q("value", Equal, StringField("beta")), 0)
	require.NoError(t, err)
	require.True(t, result.Strategy.Scan)
	require.Equal(t, 1, result.Count)

	entry, err := col.getTreeEntry("b", "")
	require.NoError(t, err)
	require.True(t, result.Results.Contains(*entry.Id))
}

func TestQueryScanNoMatch(t *testing.T) {
	col := setupQueryCollection(t)

	result, err := col.Query().Execute("", Q("value", Equal, StringField("nope")), 0)
	require.NoError(t, err)
	require.Equal(t, 0, result.Count)
}

func TestQueryIndexResolutionUsedWhenFieldIndexed(t *testing.T) {
	col := setupQueryCollection(t)
	_, err := col.AddIndex("value", KindString)
	require.NoError(t, err)

	result, err := col.Query().Execute("", Q("value", Equal, StringField("gamma")), 0)
	require.NoError(t, err)
	require.False(t, result.Strategy.Scan, "indexed field should resolve via the index, not a full scan")
	require.Equal(t, 1, result.Count)

	entry, err := col.getTreeEntry("c", "")
	require.NoError(t, err)
	require.True(t, result.Results.Contains(*entry.Id))
}

func TestQueryAndWithOneIndexlessClauseStillUsesIndex(t *testing.T) {
	col := setupQueryCollection(t)
	_, err := col.AddIndex("value", KindString)
	require.NoError(t, err)

	// "value" is indexed, "missing" is not: per the resolution strategy an
	// AND still resolves through the indexed side, restricting the
	// indexless tail clause's scan to the indexed result set.
	q := Q("value", Equal, StringField("alpha")).And(Q("missing", Equal, StringField("x")))
	strategy := q.resolutionStrategy(map[string]*Index{"value": {IndexedField: "value", Kind: KindString}})
	require.False(t, strategy.Scan)
}

func TestQueryOrWithOneIndexlessClauseForcesScan(t *testing.T) {
	q := Q("value", Equal, StringField("alpha")).Or(Q("missing", Equal, StringField("x")))
	strategy := q.resolutionStrategy(map[string]*Index{"value": {IndexedField: "value", Kind: KindString}})
	require.True(t, strategy.Scan, "OR with an unindexed side cannot be resolved without a full scan")
}

func TestQueryGroupResolveAndOr(t *testing.T) {
	fields := map[string]Field{"value": StringField("alpha")}

	and := Q("value", Equal, StringField("alpha")).And(Q("value", Equal, StringField("beta")))
	require.False(t, and.Resolve(fields))

	or := Q("value", Equal, StringField("alpha")).Or(Q("value", Equal, StringField("beta")))
	require.True(t, or.Resolve(fields))
}

func TestQueryLessGreaterOverIndex(t *testing.T) {
	col := newTestCollection(t)
	require.NoError(t, col.Set("n1", map[string]any{"value": "1"}, ""))
	require.NoError(t, col.Set("n2", map[string]any{"value": "2"}, ""))
	require.NoError(t, col.Set("n3", map[string]any{"value": "3"}, ""))
	_, err := col.AddIndex("value", KindString)
	require.NoError(t, err)

	lt, err := col.Query().Execute("", Q("value", Less, StringField("2")), 0)
	require.NoError(t, err)
	require.Equal(t, 1, lt.Count)

	gt, err := col.Query().Execute("", Q("value", Greater, StringField("2")), 0)
	require.NoError(t, err)
	require.Equal(t, 1, gt.Count)
}
