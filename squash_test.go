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
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	git "lab.nexedi.com/kirr/gitdocs/internal/git"
)

func historyDepth(t *testing.T, repo *git.Repository) int {
	t.Helper()
	b, err := repo.LookupBranch(mainBranch)
	require.NoError(t, err)
	commit, err := repo.LookupCommit(b.Target())
	require.NoError(t, err)
	depth := 1
	for commit.ParentCount() > 0 {
		commit, err = commit.Parent(0)
		require.NoError(t, err)
		depth++
	}
	return depth
}

func TestSquashOf3CommitsCollapsesHistoryKeepsTipContent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "repo")
	col, err := Initialize(dir, fakeCodec{})
	require.NoError(t, err)

	require.NoError(t, col.Set("a", map[string]any{"value": "1"}, ""))
	require.NoError(t, col.Set("b", map[string]any{"value": "2"}, ""))

	repo, err := git.OpenRepository(dir)
	require.NoError(t, err)
	branch, err := repo.LookupBranch(mainBranch)
	require.NoError(t, err)
	cutoff := branch.Target()

	require.NoError(t, col.Set("c", map[string]any{"value": "3"}, ""))

	before := historyDepth(t, repo)
	require.Greater(t, before, 1)

	sq, err := InitializeSquasher(dir)
	require.NoError(t, err)
	require.NoError(t, sq.SquashBeforeCommit(cutoff))

	after := historyDepth(t, repo)
	require.Equal(t, 2, after, "squash should leave exactly the orphan root plus one commit replaying everything after the cutoff")

	doc, ok, err := Get[map[string]any](col, "a", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", (*doc)["value"])

	doc, ok, err = Get[map[string]any](col, "c", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "3", (*doc)["value"])
}

func TestSquashOf5CommitsWithMultipleKeysKeepsLatestPerKey(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "repo")
	col, err := Initialize(dir, fakeCodec{})
	require.NoError(t, err)

	require.NoError(t, col.Set("k1", map[string]any{"value": "v1"}, ""))
	require.NoError(t, col.Set("k2", map[string]any{"value": "v1"}, ""))

	repo, err := git.OpenRepository(dir)
	require.NoError(t, err)
	branch, err := repo.LookupBranch(mainBranch)
	require.NoError(t, err)
	cutoff := branch.Target()

	require.NoError(t, col.Set("k1", map[string]any{"value": "v2"}, ""))
	require.NoError(t, col.Set("k2", map[string]any{"value": "v2"}, ""))
	require.NoError(t, col.Set("k1", map[string]any{"value": "v3"}, ""))

	sq, err := InitializeSquasher(dir)
	require.NoError(t, err)
	require.NoError(t, sq.SquashBeforeCommit(cutoff))

	doc, ok, err := Get[map[string]any](col, "k1", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v3", (*doc)["value"])

	doc, ok, err = Get[map[string]any](col, "k2", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", (*doc)["value"])
}

func TestCleanupRevertHistoryTagsRemovesOldTagsOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "repo")
	_, err := Initialize(dir, fakeCodec{})
	require.NoError(t, err)

	repo, err := git.OpenRepository(dir)
	require.NoError(t, err)
	b, err := repo.LookupBranch(mainBranch)
	require.NoError(t, err)
	tip := b.Target()

	oldTs := time.Now().Add(-48 * time.Hour).Unix()
	newTs := time.Now().Unix()
	oldTag := "refs/tags/revert-old-" + strconv.FormatInt(oldTs, 10)
	newTag := "refs/tags/revert-new-" + strconv.FormatInt(newTs, 10)
	_, err = repo.References.Create(oldTag, tip, true, "")
	require.NoError(t, err)
	_, err = repo.References.Create(newTag, tip, true, "")
	require.NoError(t, err)

	sq, err := InitializeSquasher(dir)
	require.NoError(t, err)
	require.NoError(t, sq.CleanupRevertHistoryTags(time.Now().Add(-1*time.Hour), false))

	_, err = repo.References.Lookup(oldTag)
	require.Error(t, err, "old tag should have been removed")

	_, err = repo.References.Lookup(newTag)
	require.NoError(t, err, "new tag should be left alone")
}
