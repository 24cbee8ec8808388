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
	"fmt"
	"strconv"
	"strings"
	"time"

	"lab.nexedi.com/kirr/gitdocs/giterrors"
	git "lab.nexedi.com/kirr/gitdocs/internal/git"
)

// Squasher collapses main's history into a fresh orphan root plus one
// commit carrying main's current tip tree, bounding how far back a repository's history
// grows while leaving main's current tip content-identical. It opens its
// own handle onto the repository (same as Collection) so it can run as a
// separate long-lived process/goroutine from the one serving reads/writes,
// per SPEC_FULL.md §5.4's concurrency note: both sides only ever
// fast-forward or force-update refs/heads/main, so a squash racing a set
// cannot corrupt history, only (rarely) be superseded by it.
type Squasher struct {
	repo *git.Repository
}

// InitializeSquasher opens path the same way Initialize does, for use from
// a process that only ever squashes and never reads/writes documents.
func InitializeSquasher(path string) (*Squasher, error) {
	repo, err := loadOrCreateRepo(path)
	if err != nil {
		return nil, err
	}
	return &Squasher{repo: repo}, nil
}

// SquashBeforeCommit rewrites main's history into two commits: a fresh
// empty orphan root, and one commit on top of it (sole parent: the orphan)
// whose tree is main's pre-squash tip tree. That tree comes from an
// in-memory rebase of the orphan (upstream: commit) onto main's tip;
// conflicts are resolved by always keeping "ours", which in a rebase is the
// side being rebased onto, i.e. main's tip. Every earlier commit, including
// those after commit, leaves main's history.
func (s *Squasher) SquashBeforeCommit(commit *git.Oid) error {
	annotatedCutoff, err := s.repo.LookupAnnotatedCommit(commit)
	if err != nil {
		return err
	}

	sig, err := defaultSignature(s.repo)
	if err != nil {
		return err
	}

	tb, err := s.repo.TreeBuilder()
	if err != nil {
		return err
	}
	emptyTreeID, err := tb.Write()
	if err != nil {
		return err
	}
	emptyTree, err := s.repo.LookupTree(emptyTreeID)
	if err != nil {
		return err
	}
	orphanID, err := s.repo.CreateCommit("", sig, sig, "squash old commits", emptyTree)
	if err != nil {
		return err
	}
	annotatedOrphan, err := s.repo.LookupAnnotatedCommit(orphanID)
	if err != nil {
		return err
	}
	orphanCommit, err := s.repo.LookupCommit(orphanID)
	if err != nil {
		return err
	}

	mainRef, err := s.repo.References.Lookup("refs/heads/" + mainBranch)
	if err != nil {
		return err
	}
	annotatedMain, err := s.repo.AnnotatedCommitFromRef(mainRef)
	if err != nil {
		return err
	}
	expectedTip := mainRef.Target()

	rebase, err := s.repo.InitRebase(annotatedOrphan, annotatedCutoff, annotatedMain, git.RebaseOptionsFor(git.MergeFileFavorNormal))
	if err != nil {
		return err
	}

	for {
		_, err := rebase.Next()
		if err != nil {
			if git.IsIterOver(err) {
				break
			}
			return err
		}
		idx, err := rebase.InmemoryIndex()
		if err != nil {
			return err
		}
		if err := keepOurSide(idx); err != nil {
			return err
		}
	}

	finalIdx, err := rebase.InmemoryIndex()
	if err != nil {
		return err
	}
	finalTreeID, err := finalIdx.WriteTreeTo(s.repo)
	if err != nil {
		return err
	}
	finalTree, err := s.repo.LookupTree(finalTreeID)
	if err != nil {
		return err
	}
	finalCommitID, err := s.repo.CreateCommit("", sig, sig, "", finalTree, orphanCommit)
	if err != nil {
		return err
	}

	// The rebase above can take a while and runs unlocked; re-check main's
	// tip against what it was when the rebase started, under an exclusive
	// lock, so a writer's commit made in the meantime is never clobbered.
	// See giterrors.SquashConflictError: the caller is expected to retry.
	lock, err := git.LockRepo(s.repo.Path())
	if err != nil {
		return err
	}
	defer lock.Unlock()

	currentRef, err := s.repo.References.Lookup("refs/heads/" + mainBranch)
	if err != nil {
		return err
	}
	currentTip := currentRef.Target()
	if !currentTip.Equal(expectedTip) {
		return &giterrors.SquashConflictError{Expected: expectedTip, Actual: currentTip}
	}

	_, err = s.repo.References.Create("refs/heads/"+mainBranch, finalCommitID, true, "")
	return err
}

// keepOurSide resolves every conflict the in-memory rebase step produced by
// discarding the ancestor and "their" stages and re-adding "our" stage as a
// plain, unconflicted entry -- "our" is the side the rebase applies onto
// (main's tip in SquashBeforeCommit), so every path keeps the content main's
// tip already has.
func keepOurSide(idx *git.Index) error {
	conflicts, err := idx.Conflicts()
	if err != nil {
		return err
	}
	for _, c := range conflicts {
		var path string
		switch {
		case c.Our != nil:
			path = c.Our.Path
		case c.Their != nil:
			path = c.Their.Path
		case c.Ancestor != nil:
			path = c.Ancestor.Path
		default:
			continue
		}
		if err := idx.RemoveConflict(path); err != nil {
			return err
		}
		if c.Our != nil {
			entry := *c.Our
			entry.Flags = 0
			if err := idx.Add(&entry); err != nil {
				return err
			}
		}
	}
	return nil
}

// CleanupRevertHistoryTags deletes every refs/tags/revert-* tag older than
// timestampBefore, optionally staging the same cleanup for remotes (under
// refs/history_rm/<remote>/<tag>) so Replicator knows to remove them there
// too on its next run.
func (s *Squasher) CleanupRevertHistoryTags(timestampBefore time.Time, stageForRemotes bool) error {
	tagNames, err := s.repo.References.Glob("refs/tags/revert-*")
	if err != nil {
		return err
	}
	for _, ref := range tagNames {
		tag := strings.TrimPrefix(ref, "refs/tags/")
		parts := strings.Split(tag, "-")
		if len(parts) == 0 {
			continue
		}
		ts, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
		if err != nil {
			continue
		}
		if time.Unix(ts, 0).Before(timestampBefore) {
			tagRef, err := s.repo.References.Lookup(ref)
			if err != nil {
				continue
			}
			if err := tagRef.Delete(); err != nil {
				return err
			}
			if stageForRemotes {
				if err := s.stageRemoteTagRemoval(tag); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Squasher) stageRemoteTagRemoval(tag string) error {
	remotes, err := s.repo.Remotes.List()
	if err != nil {
		return err
	}
	head, err := s.repo.Head()
	if err != nil {
		return err
	}
	for _, remote := range remotes {
		refName := fmt.Sprintf("refs/history_rm/%s/%s", remote, tag)
		if _, err := s.repo.References.Create(refName, head.Target(), true, ""); err != nil {
			return err
		}
	}
	return nil
}
