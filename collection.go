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
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"lab.nexedi.com/kirr/gitdocs/giterrors"
	git "lab.nexedi.com/kirr/gitdocs/internal/git"
)

// ConflictResolution selects how ApplyTransaction handles a rebase step
// that conflicts with main, mirroring apply_transaction's three modes.
type ConflictResolution int

const (
	// Abort stops and rolls back the whole rebase on the first conflict.
	Abort ConflictResolution = iota
	// Overwrite favors the transaction's side of any conflict ("theirs").
	Overwrite
	// DiscardChanges favors main's side of any conflict ("ours").
	DiscardChanges
)

// KeyValue is one entry of a SetBatch call. A plain slice (rather than a
// map) keeps batch order deterministic when the same key is written twice
// in one call: the later entry wins, same as performing the writes one at
// a time.
type KeyValue struct {
	Key   string
	Value any
}

// Collection is a versioned document store backed by a single bare Git
// repository: documents are blobs reachable by key-derived tree path,
// every mutation advances a branch with a new commit, and secondary
// indexes live alongside as standalone Git-index files under .index/.
type Collection struct {
	repo    *git.Repository
	codec   Codec
	path    string
	indexes []*Index
}

// Initialize opens path as a gitdocs repository, creating it (with an
// empty initial commit on main) if it does not exist yet.
func Initialize(path string, codec Codec) (*Collection, error) {
	repo, err := loadOrCreateRepo(path)
	if err != nil {
		return nil, err
	}
	c := &Collection{repo: repo, codec: codec, path: path}
	if err := c.refreshIndexes(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collection) repoPath() string { return c.path }

// Repository exposes the underlying repository for callers that need lower
// level access (the squasher and replicator both operate on it directly).
func (c *Collection) Repository() *git.Repository { return c.repo }

// tipTree resolves target ("" meaning main) to its tip commit and tree.
func (c *Collection) tipTree(target string) (*git.Commit, *git.Tree, error) {
	branch := target
	if branch == "" {
		branch = mainBranch
	}
	commit, err := currentCommit(c.repo, branch)
	if err != nil {
		if errors.Is(err, git.ErrNotFound) {
			return nil, nil, &giterrors.GetObjectError{Reason: giterrors.InvalidOperationTarget, Err: err}
		}
		return nil, nil, &giterrors.GetObjectError{Err: err}
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, nil, &giterrors.GetObjectError{Err: err}
	}
	return commit, tree, nil
}

func (c *Collection) getTreeEntry(key, target string) (*git.TreeEntry, error) {
	_, tree, err := c.tipTree(target)
	if err != nil {
		return nil, err
	}
	entry, err := tree.EntryByPath(pathForKey(key))
	if err != nil {
		if errors.Is(err, git.ErrNotFound) {
			return nil, nil
		}
		return nil, &giterrors.GetObjectError{Key: key, Err: err}
	}
	return entry, nil
}

func (c *Collection) readBlob(id *git.Oid) ([]byte, error) {
	odb, err := c.repo.Odb()
	if err != nil {
		return nil, err
	}
	obj, err := odb.Read(id)
	if err != nil {
		return nil, err
	}
	return obj.Data(), nil
}

// getRawByOid is the fast path query results use to materialise a
// document's bytes directly from a blob id, bypassing key-path resolution.
func (c *Collection) getRawByOid(id *git.Oid) ([]byte, error) {
	return c.readBlob(id)
}

// GetRaw returns a document's raw serialized bytes by key, without
// involving the codec's typed Deserialize.
func (c *Collection) GetRaw(key, target string) ([]byte, bool, error) {
	entry, err := c.getTreeEntry(key, target)
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, nil
	}
	data, err := c.readBlob(entry.Id)
	if err != nil {
		return nil, false, &giterrors.GetObjectError{Key: key, Reason: giterrors.CorruptedObject, Err: err}
	}
	return data, true, nil
}

// Get deserializes the document stored under key into a fresh *T. The
// second return is false when no document exists for key (not an error,
// per get_raw/get's Option-returning original).
func Get[T any](c *Collection, key, target string) (*T, bool, error) {
	data, ok, err := c.GetRaw(key, target)
	if err != nil || !ok {
		return nil, ok, err
	}
	var v T
	if err := c.codec.Deserialize(data, &v); err != nil {
		return nil, false, &giterrors.GetObjectError{Key: key, Reason: giterrors.DecodingError, Err: err}
	}
	return &v, true, nil
}

// GetByOid deserializes the document at blob id directly, the fast path
// for materialising query results without re-walking the tree by key. Only
// meaningful against oids this collection itself produced (from Set or a
// prior query), since it assumes the blob is one of its own documents.
func GetByOid[T any](c *Collection, id *git.Oid) (*T, bool, error) {
	data, err := c.getRawByOid(id)
	if err != nil {
		if errors.Is(err, git.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, &giterrors.GetObjectError{Reason: giterrors.CorruptedObject, Err: err}
	}
	var v T
	if err := c.codec.Deserialize(data, &v); err != nil {
		return nil, false, &giterrors.GetObjectError{Reason: giterrors.DecodingError, Err: err}
	}
	return &v, true, nil
}

// Set stores a single document under key, equivalent to SetBatch with a
// single entry.
func (c *Collection) Set(key string, value any, target string) error {
	return c.SetBatch([]KeyValue{{Key: key, Value: value}}, target)
}

// SetBatch writes every item as one new commit on target, maintaining
// every currently declared index along the way.
//
// Each item's blob id -- the genuine content-addressed oid returned by
// writing its serialized bytes to the object database -- is what gets
// recorded as the corresponding secondary-index entries' id, matching
// get_by_oid's and populate_index's use of entry ids as blob oids; see
// DESIGN.md for the set_batch/get_by_oid inconsistency this corrects.
func (c *Collection) SetBatch(items []KeyValue, target string) error {
	if len(items) == 0 {
		return nil
	}
	branch := target
	if branch == "" {
		branch = mainBranch
	}
	commit, tree, err := c.tipTree(branch)
	if err != nil {
		return &giterrors.SetObjectError{Reason: giterrors.InvalidOperationTarget, Err: err}
	}

	odb, err := c.repo.Odb()
	if err != nil {
		return &giterrors.SetObjectError{Err: err}
	}

	rootTree := tree
	for _, item := range items {
		data, err := c.codec.Serialize(item.Value)
		if err != nil {
			return &giterrors.SetObjectError{Key: item.Key, Reason: giterrors.DecodingError, Err: err}
		}
		blobID, err := odb.Write(data, git.ObjectBlob)
		if err != nil {
			return &giterrors.SetObjectError{Key: item.Key, Err: err}
		}
		indexVals, err := c.codec.ExtractIndexes(data, c.indexes)
		if err != nil {
			return &giterrors.SetObjectError{Key: item.Key, Err: err}
		}

		rootTree, err = c.makeTree(rootTree, pathForKey(item.Key), blobID)
		if err != nil {
			return &giterrors.SetObjectError{Key: item.Key, Err: err}
		}

		for _, ix := range c.indexes {
			if field, ok := indexVals[ix]; ok && ix.IndexesGivenField(field) {
				if err := ix.CreateEntry(c.path, blobID, field); err != nil {
					return &giterrors.SetObjectError{Key: item.Key, Err: err}
				}
			} else if err := ix.DeleteEntry(c.path, blobID); err != nil {
				return &giterrors.SetObjectError{Key: item.Key, Err: err}
			}
		}
	}

	sig, err := defaultSignature(c.repo)
	if err != nil {
		return &giterrors.SetObjectError{Err: err}
	}
	msg := fmt.Sprintf("set %d items on %s", len(items), branch)
	err = withMainLock(c.repo, branch, func() error {
		_, err := c.repo.CreateCommit("refs/heads/"+branch, sig, sig, msg, rootTree, commit)
		return err
	})
	if err != nil {
		return &giterrors.SetObjectError{Err: err}
	}
	return nil
}

// makeTree rebuilds the path from base's root down to blobID, reusing
// every subtree untouched by path and rewriting only the chain of
// TreeBuilders from the leaf back up to the root -- the same
// rebuild-bottom-up-reusing-top-down strategy make_tree uses, generalized
// to a single recursive walk so it handles both the 2-level hashed prefix
// and arbitrary-depth natural (slash-containing) keys uniformly.
func (c *Collection) makeTree(base *git.Tree, path string, blobID *git.Oid) (*git.Tree, error) {
	segments := strings.Split(path, "/")
	newRootID, err := c.insertAt(base, segments, blobID)
	if err != nil {
		return nil, err
	}
	return c.repo.LookupTree(newRootID)
}

func (c *Collection) insertAt(base *git.Tree, segments []string, blobID *git.Oid) (*git.Oid, error) {
	tb, err := c.treeBuilderFrom(base)
	if err != nil {
		return nil, err
	}
	if len(segments) == 1 {
		if err := tb.Insert(segments[0], blobID, git.FilemodeBlob); err != nil {
			return nil, err
		}
		return tb.Write()
	}
	head, rest := segments[0], segments[1:]
	var subTree *git.Tree
	if base != nil {
		if entry := base.EntryByName(head); entry != nil && entry.Type == git.ObjectTree {
			subTree, err = c.repo.LookupTree(entry.Id)
			if err != nil {
				return nil, err
			}
		}
	}
	newSubID, err := c.insertAt(subTree, rest, blobID)
	if err != nil {
		return nil, err
	}
	if err := tb.Insert(head, newSubID, git.FilemodeTree); err != nil {
		return nil, err
	}
	return tb.Write()
}

func (c *Collection) treeBuilderFrom(base *git.Tree) (*git.TreeBuilder, error) {
	if base == nil {
		return c.repo.TreeBuilder()
	}
	return c.repo.TreeBuilderFromTree(base)
}

// NewTransaction branches off HEAD under name (or a random "t-XXXXXXXX"
// name, per new_transaction's Alphanumeric generator) and returns the
// branch name operations can target until ApplyTransaction folds it back
// into main.
func (c *Collection) NewTransaction(name string) (string, error) {
	head, err := c.repo.Head()
	if err != nil {
		return "", err
	}
	headCommit, err := c.repo.LookupCommit(head.Target())
	if err != nil {
		return "", err
	}
	txName := name
	if txName == "" {
		txName = "t-" + randomAlphanumeric(8)
	}
	if _, err := c.repo.CreateBranch(txName, headCommit, false); err != nil {
		return "", err
	}
	return txName, nil
}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomAlphanumeric(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanumeric[rand.IntN(len(alphanumeric))]
	}
	return string(b)
}

// ApplyTransaction rebases name's commits onto main's current tip in
// memory, resolving any conflicting step per resolution, then fast-forwards
// main to the rebased tip and deletes the transaction branch. Returns a
// TransactionError{Kind: Aborted} if resolution is Abort and a conflict is
// hit partway through -- main is left untouched in that case.
func (c *Collection) ApplyTransaction(name string, resolution ConflictResolution) error {
	mainCommit, err := currentCommit(c.repo, mainBranch)
	if err != nil {
		return &giterrors.TransactionError{Kind: giterrors.Unspecified, Name: name, Err: err}
	}
	mainAC, err := c.repo.LookupAnnotatedCommit(mainCommit.Id())
	if err != nil {
		return &giterrors.TransactionError{Kind: giterrors.Unspecified, Name: name, Err: err}
	}
	txCommit, err := currentCommit(c.repo, name)
	if err != nil {
		if errors.Is(err, git.ErrNotFound) {
			return &giterrors.TransactionError{Kind: giterrors.TransactionNotFound, Name: name, Err: err}
		}
		return &giterrors.TransactionError{Kind: giterrors.Unspecified, Name: name, Err: err}
	}
	txAC, err := c.repo.LookupAnnotatedCommit(txCommit.Id())
	if err != nil {
		return &giterrors.TransactionError{Kind: giterrors.Unspecified, Name: name, Err: err}
	}

	favor := git.MergeFileFavorNormal
	switch resolution {
	case DiscardChanges:
		favor = git.MergeFileFavorOurs
	case Overwrite:
		favor = git.MergeFileFavorTheirs
	}
	rebase, err := c.repo.InitRebase(txAC, mainAC, nil, git.RebaseOptionsFor(favor))
	if err != nil {
		return &giterrors.TransactionError{Kind: giterrors.Unspecified, Name: name, Err: err}
	}

	sig, err := defaultSignature(c.repo)
	if err != nil {
		return &giterrors.TransactionError{Kind: giterrors.Unspecified, Name: name, Err: err}
	}

	var lastCommit *git.Oid
	for {
		_, err := rebase.Next()
		if err != nil {
			if git.IsIterOver(err) {
				if ferr := rebase.Finish(); ferr != nil {
					return &giterrors.TransactionError{Kind: giterrors.Unspecified, Name: name, Err: ferr}
				}
				break
			}
			return &giterrors.TransactionError{Kind: giterrors.Unspecified, Name: name, Err: err}
		}
		id, err := rebase.Commit(sig, sig, "")
		switch {
		case err == nil:
			lastCommit = id
		case git.IsApplied(err):
			// no-op step, nothing changed relative to upstream.
		case git.IsMergeConflict(err):
			if resolution == Abort {
				_ = rebase.Abort()
				return &giterrors.TransactionError{Kind: giterrors.Aborted, Name: name}
			}
			return &giterrors.TransactionError{Kind: giterrors.Unspecified, Name: name, Err: err}
		default:
			return &giterrors.TransactionError{Kind: giterrors.Unspecified, Name: name, Err: err}
		}
	}

	if lastCommit != nil {
		err := withMainLock(c.repo, mainBranch, func() error {
			mainRef, err := c.repo.LookupBranch(mainBranch)
			if err != nil {
				return err
			}
			_, err = mainRef.SetTarget(lastCommit, "apply transaction "+name)
			return err
		})
		if err != nil {
			return &giterrors.TransactionError{Kind: giterrors.Unspecified, Name: name, Err: err}
		}
	}

	txBranch, err := c.repo.LookupBranch(name)
	if err != nil {
		return &giterrors.TransactionError{Kind: giterrors.Unspecified, Name: name, Err: err}
	}
	return txBranch.Delete()
}

// AddIndex declares a new secondary index over field, backfilling it from
// every existing document on main (populate_index) and recording it as a
// tree entry at the repository root so IndexList/query planning can find
// it again on a later open. A no-op if the index already exists.
func (c *Collection) AddIndex(field string, kind Kind) (*Index, error) {
	ix := &Index{IndexedField: field, Kind: kind}
	ix.Name = ix.treeEntryName()

	commit, tree, err := c.tipTree(mainBranch)
	if err != nil {
		return nil, err
	}
	if tree.EntryByName(ix.Name) == nil {
		gidx, err := ix.GitIndex(c.path)
		if err != nil {
			return nil, err
		}
		treeID, err := gidx.WriteTreeTo(c.repo)
		if err != nil {
			return nil, err
		}
		tb, err := c.repo.TreeBuilderFromTree(tree)
		if err != nil {
			return nil, err
		}
		if err := tb.Insert(ix.Name, treeID, git.FilemodeTree); err != nil {
			return nil, err
		}
		newRootID, err := tb.Write()
		if err != nil {
			return nil, err
		}
		newRoot, err := c.repo.LookupTree(newRootID)
		if err != nil {
			return nil, err
		}
		sig, err := defaultSignature(c.repo)
		if err != nil {
			return nil, err
		}
		msg := "add index: " + ix.Name
		if _, err := c.repo.CreateCommit("refs/heads/"+mainBranch, sig, sig, msg, newRoot, commit); err != nil {
			return nil, err
		}
		if err := c.populateIndex(ix); err != nil {
			return nil, err
		}
	}
	return ix, c.refreshIndexes()
}

// populateIndex backfills ix from every document currently on main.
func (c *Collection) populateIndex(ix *Index) error {
	_, tree, err := c.tipTree(mainBranch)
	if err != nil {
		return err
	}
	var walkErr error
	err = tree.Walk(func(prefix string, e *git.TreeEntry) int {
		if strings.HasSuffix(e.Name, ".index") {
			return git.WalkSkip
		}
		if e.Type != git.ObjectBlob {
			return git.WalkOk
		}
		data, err := c.readBlob(e.Id)
		if err != nil {
			walkErr = err
			return git.WalkAbort
		}
		vals, err := c.codec.ExtractIndexes(data, []*Index{ix})
		if err != nil {
			walkErr = err
			return git.WalkAbort
		}
		if field, ok := vals[ix]; ok && ix.IndexesGivenField(field) {
			if err := ix.CreateEntry(c.path, e.Id, field); err != nil {
				walkErr = err
				return git.WalkAbort
			}
		}
		return git.WalkOk
	})
	if err != nil {
		return err
	}
	return walkErr
}

// IndexList returns every index currently declared on main.
func (c *Collection) IndexList() ([]*Index, error) {
	if err := c.refreshIndexes(); err != nil {
		return nil, err
	}
	return c.indexes, nil
}

func (c *Collection) refreshIndexes() error {
	_, tree, err := c.tipTree(mainBranch)
	if err != nil {
		return err
	}
	var indexes []*Index
	n := tree.EntryCount()
	for i := uint64(0); i < n; i++ {
		e := tree.EntryByIndex(i)
		if e == nil || !strings.HasSuffix(e.Name, ".index") {
			continue
		}
		ix, err := ParseIndexName(e.Name)
		if err != nil {
			continue
		}
		indexes = append(indexes, ix)
	}
	c.indexes = indexes
	return nil
}

// prepareRemotePushTags records head under refs/history_tags/<remote>/<tag>
// for every configured remote, so Replicator can still push the commits
// revert_n_commits/revert_main_to_commit are about to make unreachable from
// main.
func (c *Collection) prepareRemotePushTags(head, target *git.Oid, now int64) error {
	remotes, err := c.repo.Remotes.List()
	if err != nil {
		return err
	}
	tag := fmt.Sprintf("revert-%s-%s-%d", head.String()[:7], target.String()[:7], now)
	for _, remote := range remotes {
		refName := fmt.Sprintf("refs/history_tags/%s/%s", remote, tag)
		if _, err := c.repo.References.Create(refName, head, true, ""); err != nil {
			return err
		}
	}
	return nil
}

// RevertMainToCommit soft-resets main to commit, optionally tagging the
// current tip under refs/history_tags/ first (per remote) so a later
// Replicator run can still push what main is about to lose.
func (c *Collection) RevertMainToCommit(commit *git.Oid, keepHistory bool, now int64) error {
	target, err := c.repo.LookupCommit(commit)
	if err != nil {
		return &giterrors.RevertError{TargetCommitNotFound: commit, Err: err}
	}
	if keepHistory {
		current, err := currentCommit(c.repo, mainBranch)
		if err != nil {
			if errors.Is(err, git.ErrNotFound) {
				return &giterrors.RevertError{InvalidOperationTarget: true, Err: err}
			}
			return &giterrors.RevertError{Err: err}
		}
		if err := c.prepareRemotePushTags(current.Id(), target.Id(), now); err != nil {
			return &giterrors.RevertError{Err: err}
		}
	}
	return withMainLock(c.repo, mainBranch, func() error {
		return c.repo.ResetToCommit(target, nil)
	})
}

// RevertNCommits walks target back n commits along first-parent history and
// soft-resets it there. Refuses (BranchingHistory) the moment it meets a
// merge commit, since "n commits back" is ambiguous across a branch point.
func (c *Collection) RevertNCommits(n int, target string, keepHistory bool, now int64) error {
	if n == 0 {
		return nil
	}
	branch := target
	if branch == "" {
		branch = mainBranch
	}
	current, err := currentCommit(c.repo, branch)
	if err != nil {
		if errors.Is(err, git.ErrNotFound) {
			return &giterrors.RevertError{InvalidOperationTarget: true, Err: err}
		}
		return &giterrors.RevertError{Err: err}
	}
	walked := current
	for i := 0; i < n; i++ {
		switch walked.ParentCount() {
		case 0:
			// no more parents to check; stop where we are.
		case 1:
			walked, err = walked.Parent(0)
			if err != nil {
				return &giterrors.RevertError{Err: err}
			}
			continue
		default:
			return &giterrors.RevertError{BranchingHistory: walked.Id()}
		}
		break
	}
	if keepHistory {
		if err := c.prepareRemotePushTags(current.Id(), walked.Id(), now); err != nil {
			return &giterrors.RevertError{Err: err}
		}
	}
	return withMainLock(c.repo, branch, func() error {
		if branch == mainBranch {
			return c.repo.ResetToCommit(walked, nil)
		}
		b, err := c.repo.LookupBranch(branch)
		if err != nil {
			return err
		}
		_, err = b.SetTarget(walked.Id(), "revert")
		return err
	})
}
