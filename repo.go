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
	"os"
	"time"

	"lab.nexedi.com/kirr/gitdocs/giterrors"
	git "lab.nexedi.com/kirr/gitdocs/internal/git"
)

const mainBranch = "main"

// The functions below are the small operations shared by Collection,
// Squasher and Replicator, grounded on yamabiko's RepositoryAbstraction trait which
// is likewise shared across lib.rs/squash.rs/replica.rs.

// initNewRepo creates a fresh bare repository at path with a single empty
// initial commit on main.
func initNewRepo(path string) (*git.Repository, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, &giterrors.InitializationError{Path: path, Err: err}
	}
	repo, err := git.InitRepository(path, true)
	if err != nil {
		return nil, &giterrors.InitializationError{Path: path, Err: err}
	}
	sig, err := defaultSignature(repo)
	if err != nil {
		return nil, &giterrors.InitializationError{Path: path, Err: err}
	}
	tb, err := repo.TreeBuilder()
	if err != nil {
		return nil, &giterrors.InitializationError{Path: path, Err: err}
	}
	treeID, err := tb.Write()
	if err != nil {
		return nil, &giterrors.InitializationError{Path: path, Err: err}
	}
	tree, err := repo.LookupTree(treeID)
	if err != nil {
		return nil, &giterrors.InitializationError{Path: path, Err: err}
	}
	_, err = repo.CreateCommit("refs/heads/"+mainBranch, sig, sig, "initialize gitdocs collection", tree)
	if err != nil {
		return nil, &giterrors.InitializationError{Path: path, Err: err}
	}
	if _, err := repo.References.CreateSymbolic("HEAD", "refs/heads/"+mainBranch, true, ""); err != nil {
		return nil, &giterrors.InitializationError{Path: path, Err: err}
	}
	return repo, nil
}

// loadOrCreateRepo opens path as a bare repository, creating it (with an
// initial commit) if it does not exist yet.
func loadOrCreateRepo(path string) (*git.Repository, error) {
	repo, err := git.OpenRepository(path)
	if err == nil {
		return repo, nil
	}
	return initNewRepo(path)
}

// currentCommit returns the tip commit of the named branch.
func currentCommit(repo *git.Repository, branch string) (*git.Commit, error) {
	b, err := repo.LookupBranch(branch)
	if err != nil {
		return nil, err
	}
	return repo.LookupCommit(b.Target())
}

// withMainLock runs fn under the repository's flock(2)-backed RepoLock
// when branch is mainBranch, and plain when it isn't. Private transaction
// branches are only ever touched by the transaction that owns them, so
// they don't need cross-process exclusion; main is also touched by
// Squasher.SquashBeforeCommit's own final ref update, so every writer path
// that can update refs/heads/main takes the same lock around it.
func withMainLock(repo *git.Repository, branch string, fn func() error) error {
	if branch != mainBranch {
		return fn()
	}
	lock, err := git.LockRepo(repo.Path())
	if err != nil {
		return err
	}
	defer lock.Unlock()
	return fn()
}

// defaultSignature tries the repository's configured user.name/user.email,
// falling back to a fixed identity so gitdocs works against bare
// repositories that were never configured for authoring (the common case
// for a repository gitdocs itself just created).
func defaultSignature(repo *git.Repository) (*git.Signature, error) {
	if sig, err := repo.DefaultSignature(); err == nil {
		sig.When = time.Now()
		return sig, nil
	}
	return &git.Signature{
		Name:  "gitdocs",
		Email: "gitdocs@localhost",
		When:  time.Now(),
	}, nil
}
