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

	git "lab.nexedi.com/kirr/gitdocs/internal/git"
)

func TestIndexTreeEntryNameRoundTrip(t *testing.T) {
	ix := &Index{IndexedField: "age", Kind: KindNumeric}
	name := ix.treeEntryName()
	require.Equal(t, "age#numeric.index", name)

	parsed, err := ParseIndexName(name)
	require.NoError(t, err)
	require.Equal(t, "age", parsed.IndexedField)
	require.Equal(t, KindNumeric, parsed.Kind)
}

func TestParseKindRejectsUnknown(t *testing.T) {
	_, err := ParseKind("bogus")
	require.Error(t, err)
}

func TestIndexCreateEntryTieBreaker(t *testing.T) {
	dir := t.TempDir()
	ix := &Index{Name: "name#sequential.index", IndexedField: "name", Kind: KindString}

	oid1 := blobOidForTest(t, "one")
	oid2 := blobOidForTest(t, "two")

	require.NoError(t, ix.CreateEntry(dir, &oid1, StringField("dup")))
	require.NoError(t, ix.CreateEntry(dir, &oid2, StringField("dup")))

	gidx, err := ix.GitIndex(dir)
	require.NoError(t, err)
	require.EqualValues(t, 2, gidx.EntryCount())

	first, err := gidx.EntryByIndex(0)
	require.NoError(t, err)
	second, err := gidx.EntryByIndex(1)
	require.NoError(t, err)

	// the newer entry (oid2) must sort first: its tie-breaker counter is
	// one less than the first entry's.
	require.Equal(t, oid2, *first.Id)
	require.Equal(t, oid1, *second.Id)
	require.Greater(t, second.Path, first.Path)
}

func TestIndexDeleteEntryRemovesAllMatching(t *testing.T) {
	dir := t.TempDir()
	ix := &Index{Name: "name#sequential.index", IndexedField: "name", Kind: KindString}
	oid := blobOidForTest(t, "payload")

	require.NoError(t, ix.CreateEntry(dir, &oid, StringField("a")))
	require.NoError(t, ix.CreateEntry(dir, &oid, StringField("b")))

	gidx, err := ix.GitIndex(dir)
	require.NoError(t, err)
	require.EqualValues(t, 2, gidx.EntryCount())

	require.NoError(t, ix.DeleteEntry(dir, &oid))

	gidx, err = ix.GitIndex(dir)
	require.NoError(t, err)
	require.EqualValues(t, 0, gidx.EntryCount())
}

// blobOidForTest derives a deterministic fake oid from a label, for tests
// that only need distinct, stable ids rather than genuine blobs written to
// an odb.
func blobOidForTest(t *testing.T, label string) git.Oid {
	t.Helper()
	return hashKeyOid(label)
}
