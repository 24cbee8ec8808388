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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeCodec is a minimal Codec good enough for collection-engine tests: it
// treats documents as a single "value" field so tests don't need a real
// JSON/YAML/POT dependency to exercise Set/Get/indexing.
type fakeCodec struct{}

func (fakeCodec) Name() string { return "fake" }

func (fakeCodec) Serialize(value any) ([]byte, error) {
	m := value.(map[string]any)
	return []byte(m["value"].(string)), nil
}

func (fakeCodec) Deserialize(data []byte, value any) error {
	m := value.(*map[string]any)
	*m = map[string]any{"value": string(data)}
	return nil
}

func (fakeCodec) ExtractIndexes(data []byte, indexes []*Index) (map[*Index]Field, error) {
	out := make(map[*Index]Field, len(indexes))
	for _, ix := range indexes {
		if ix.IndexedField != "value" {
			continue
		}
		out[ix] = StringField(string(data))
	}
	return out, nil
}

func (fakeCodec) MatchField(data []byte, field string, value Field, cmp Comparator) (bool, error) {
	if field != "value" {
		return false, nil
	}
	c, ok := StringField(string(data)).Compare(value)
	if !ok {
		return false, nil
	}
	return cmp.Matches(c), nil
}

func newTestCollection(t *testing.T) *Collection {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "repo")
	col, err := Initialize(dir, fakeCodec{})
	require.NoError(t, err)
	return col
}

func TestCollectionSetGetRoundTrip(t *testing.T) {
	col := newTestCollection(t)
	require.NoError(t, col.Set("hello", map[string]any{"value": "world"}, ""))

	doc, ok, err := Get[map[string]any](col, "hello", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "world", (*doc)["value"])
}

func TestCollectionGetMissingKey(t *testing.T) {
	col := newTestCollection(t)
	_, ok, err := Get[map[string]any](col, "missing", "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCollectionNaturalKeyPath(t *testing.T) {
	col := newTestCollection(t)
	require.NoError(t, col.Set("folder/doc", map[string]any{"value": "v1"}, ""))
	doc, ok, err := Get[map[string]any](col, "folder/doc", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", (*doc)["value"])
}

func TestCollectionSetBatchLastWriteWins(t *testing.T) {
	col := newTestCollection(t)
	err := col.SetBatch([]KeyValue{
		{Key: "k", Value: map[string]any{"value": "first"}},
		{Key: "k", Value: map[string]any{"value": "second"}},
	}, "")
	require.NoError(t, err)

	doc, ok, err := Get[map[string]any](col, "k", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "second", (*doc)["value"])
}

func TestCollectionAddIndexAndPopulate(t *testing.T) {
	col := newTestCollection(t)
	require.NoError(t, col.Set("a", map[string]any{"value": "alpha"}, ""))
	require.NoError(t, col.Set("b", map[string]any{"value": "beta"}, ""))

	ix, err := col.AddIndex("value", KindString)
	require.NoError(t, err)
	require.Equal(t, "value#sequential.index", ix.Name)

	indexes, err := col.IndexList()
	require.NoError(t, err)
	require.Len(t, indexes, 1)

	gidx, err := ix.GitIndex(col.repoPath())
	require.NoError(t, err)
	require.EqualValues(t, 2, gidx.EntryCount())
}

func TestCollectionAddIndexThenSetKeepsItCurrent(t *testing.T) {
	col := newTestCollection(t)
	ix, err := col.AddIndex("value", KindString)
	require.NoError(t, err)

	require.NoError(t, col.Set("c", map[string]any{"value": "gamma"}, ""))

	gidx, err := ix.GitIndex(col.repoPath())
	require.NoError(t, err)
	require.EqualValues(t, 1, gidx.EntryCount())
}

func TestCollectionGetByOidMatchesGet(t *testing.T) {
	col := newTestCollection(t)
	require.NoError(t, col.Set("k", map[string]any{"value": "payload"}, ""))

	entry, err := col.getTreeEntry("k", "")
	require.NoError(t, err)
	require.NotNil(t, entry)

	doc, ok, err := GetByOid[map[string]any](col, entry.Id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "payload", (*doc)["value"])
}

func TestCollectionTransactionApplyNoConflict(t *testing.T) {
	col := newTestCollection(t)
	require.NoError(t, col.Set("base", map[string]any{"value": "v0"}, ""))

	txName, err := col.NewTransaction("")
	require.NoError(t, err)
	require.NoError(t, col.Set("txkey", map[string]any{"value": "fromtx"}, txName))

	require.NoError(t, col.ApplyTransaction(txName, Abort))

	doc, ok, err := Get[map[string]any](col, "txkey", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "fromtx", (*doc)["value"])
}

func TestCollectionRevertNCommitsUndoesLastWrite(t *testing.T) {
	col := newTestCollection(t)
	require.NoError(t, col.Set("a", map[string]any{"value": "1"}, ""))
	require.NoError(t, col.Set("b", map[string]any{"value": "2"}, ""))

	require.NoError(t, col.RevertNCommits(1, "", false, time.Now().Unix()))

	_, ok, err := Get[map[string]any](col, "b", "")
	require.NoError(t, err)
	require.False(t, ok, "b was written by the commit just reverted")

	doc, ok, err := Get[map[string]any](col, "a", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", (*doc)["value"])
}
