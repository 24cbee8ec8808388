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
	"strconv"
	"strings"
	"time"

	"lab.nexedi.com/kirr/gitdocs/giterrors"
	git "lab.nexedi.com/kirr/gitdocs/internal/git"
)

// ReplicationKind selects when Replicate actually pushes.
type ReplicationKind int

const (
	ReplicateAll ReplicationKind = iota
	ReplicatePeriodic
	ReplicateRandom
)

// ReplicationMethod configures how often Replicator.Replicate pushes:
// every call (All), at most once per Period seconds (Periodic, tracked via
// a dedicated reflog), or with independent probability Chance on each call
// (Random).
type ReplicationMethod struct {
	Kind   ReplicationKind
	Period int64
	Chance float64
}

func AllReplication() ReplicationMethod { return ReplicationMethod{Kind: ReplicateAll} }
func PeriodicReplication(period int64) ReplicationMethod {
	return ReplicationMethod{Kind: ReplicatePeriodic, Period: period}
}
func RandomReplication(chance float64) ReplicationMethod {
	return ReplicationMethod{Kind: ReplicateRandom, Chance: chance}
}

// Replicator pushes a repository's main branch (plus any pending
// revert-history tags) to a single remote. The remote is addressed by its
// own plain name everywhere -- both for the actual Git remote object and
// for every ref Replicator itself creates (the last-push tracking ref,
// staged history tags, mirrored tags) -- matching the <remote> component
// Collection.prepareRemotePushTags (collection.go) and
// Squasher.stageRemoteTagRemoval (squash.go) already use when they write
// refs/history_tags/<remote>/<tag> and refs/history_rm/<remote>/<tag>. A
// remote name is already unique within one repository (git itself
// enforces that), so there's no collision to additionally namespace
// against; see DESIGN.md for why an earlier revision's extra "_repl_"
// prefix was wrong and has been removed.
type Replicator struct {
	repo        *git.Repository
	remoteName  string
	remoteURL   string
	method      ReplicationMethod
	credentials *git.RemoteCredentials
}

// InitializeReplicator opens repoPath and ensures a remote named
// remoteName (pointing at remoteURL) exists, ready for Replicate to push
// to. Calling it twice with the same remoteName/remoteURL is a no-op the
// second time (ensure_remote's find-or-create semantics).
func InitializeReplicator(repoPath, remoteName, remoteURL string, method ReplicationMethod, credentials *git.RemoteCredentials) (*Replicator, error) {
	repo, err := loadOrCreateRepo(repoPath)
	if err != nil {
		return nil, err
	}
	if _, err := ensureRemote(repo, remoteName, remoteURL); err != nil {
		return nil, &giterrors.InitializationError{Path: repoPath, Err: err}
	}
	return &Replicator{
		repo:        repo,
		remoteName:  remoteName,
		remoteURL:   remoteURL,
		method:      method,
		credentials: credentials,
	}, nil
}

func ensureRemote(repo *git.Repository, name, url string) (*git.Remote, error) {
	remote, err := repo.Remotes.Lookup(name)
	if err == nil {
		return remote, nil
	}
	if !errors.Is(err, git.ErrNotFound) {
		return nil, err
	}
	return repo.Remotes.Create(name, url)
}

func (r *Replicator) lastPushRefName() string {
	return fmt.Sprintf("refs/replicas/%s_last_push", r.remoteName)
}

// resolvePeriodicRef ensures the last-push tracking ref exists, seeding its
// reflog with a single "0" entry (epoch) the first time it is created so
// the very first Periodic replicate() call always pushes.
func (r *Replicator) resolvePeriodicRef() error {
	refName := r.lastPushRefName()
	if _, err := r.repo.References.Lookup(refName); err == nil {
		return nil
	} else if !errors.Is(err, git.ErrNotFound) {
		return err
	}
	if _, err := r.repo.References.CreateSymbolic(refName, "HEAD", false, ""); err != nil {
		return err
	}
	reflog, err := r.repo.Reflog(refName)
	if err != nil {
		return err
	}
	head, err := r.repo.Head()
	if err != nil {
		return err
	}
	sig, err := defaultSignature(r.repo)
	if err != nil {
		return err
	}
	if err := reflog.Append(head.Target(), sig, "0"); err != nil {
		return err
	}
	return reflog.Write()
}

// pushPlan is the result of staging one Replicate call's worth of work:
// the refspecs to push, plus the local staging refs to clean up once the
// push has actually succeeded.
type pushPlan struct {
	refspecs    []string
	historyTags []string // refs/history_tags/<remote>/<tag> refs to delete after push
	historyRm   []string // refs/history_rm/<remote>/<tag> refs to delete after push
}

// buildPushPlan stages every refs/history_tags/<remote>/* ref (written by
// Collection.RevertNCommits/RevertMainToCommit with keepHistory) as a
// pushable tag, and every refs/history_rm/<remote>/* ref (written by
// Squasher.CleanupRevertHistoryTags with stageForRemotes) as a
// delete-refspec for the matching remote tag, per spec.md §4.5's push set:
// a force-push of main, one tag per staged history entry, and one
// delete-refspec per staged removal.
func (r *Replicator) buildPushPlan() (*pushPlan, error) {
	plan := &pushPlan{refspecs: []string{"+refs/heads/" + mainBranch}}

	tagGlob := fmt.Sprintf("refs/history_tags/%s/*", r.remoteName)
	tagRefs, err := r.repo.References.Glob(tagGlob)
	if err != nil {
		return nil, err
	}
	for _, refName := range tagRefs {
		tagName := refName[strings.LastIndexByte(refName, '/')+1:]
		ref, err := r.repo.References.Lookup(refName)
		if err != nil {
			return nil, err
		}
		localTag := "refs/tags/" + tagName
		if _, err := r.repo.References.Create(localTag, ref.Target(), true, ""); err != nil {
			return nil, err
		}
		plan.refspecs = append(plan.refspecs, localTag)
		plan.historyTags = append(plan.historyTags, refName)
	}

	rmGlob := fmt.Sprintf("refs/history_rm/%s/*", r.remoteName)
	rmRefs, err := r.repo.References.Glob(rmGlob)
	if err != nil {
		return nil, err
	}
	for _, refName := range rmRefs {
		tagName := refName[strings.LastIndexByte(refName, '/')+1:]
		plan.refspecs = append(plan.refspecs, ":refs/tags/"+tagName)
		plan.historyRm = append(plan.historyRm, refName)
	}

	return plan, nil
}

// cleanupAfterPush deletes every local staging ref plan recorded, now that
// the push it built has succeeded.
func cleanupAfterPush(repo *git.Repository, plan *pushPlan) error {
	for _, refName := range append(append([]string{}, plan.historyTags...), plan.historyRm...) {
		ref, err := repo.References.Lookup(refName)
		if err != nil {
			if errors.Is(err, git.ErrNotFound) {
				continue
			}
			return err
		}
		if err := ref.Delete(); err != nil {
			return err
		}
	}
	return nil
}

// Replicate decides whether this call should push (per ReplicationMethod)
// and, if so, pushes main plus any staged history tags to the remote.
// Returns false, nil when the method decided not to push this time.
func (r *Replicator) Replicate() (bool, error) {
	shouldPush := false
	switch r.method.Kind {
	case ReplicateAll:
		shouldPush = true
	case ReplicateRandom:
		shouldPush = rand.Float64() < r.method.Chance
	case ReplicatePeriodic:
		if err := r.resolvePeriodicRef(); err != nil {
			return false, err
		}
		reflog, err := r.repo.Reflog(r.lastPushRefName())
		if err != nil {
			return false, err
		}
		entry := reflog.EntryByIndex(0)
		if entry == nil {
			return false, fmt.Errorf("gitdocs: replicate: last-push reflog for %q is empty", r.remoteName)
		}
		lastPush, err := strconv.ParseInt(entry.Message(), 10, 64)
		if err != nil {
			return false, err
		}
		shouldPush = lastPush+r.method.Period < time.Now().Unix()
	}
	if !shouldPush {
		return false, nil
	}

	remote, err := ensureRemote(r.repo, r.remoteName, r.remoteURL)
	if err != nil {
		return false, &giterrors.ReplicationError{Remote: r.remoteName, Err: err}
	}
	plan, err := r.buildPushPlan()
	if err != nil {
		return false, &giterrors.ReplicationError{Remote: r.remoteName, Err: err}
	}
	if err := remote.Push(plan.refspecs, r.credentials); err != nil {
		return false, &giterrors.ReplicationError{Remote: r.remoteName, Err: err}
	}
	if err := cleanupAfterPush(r.repo, plan); err != nil {
		return false, &giterrors.ReplicationError{Remote: r.remoteName, Err: err}
	}

	if r.method.Kind == ReplicatePeriodic {
		reflog, err := r.repo.Reflog(r.lastPushRefName())
		if err != nil {
			return true, err
		}
		head, err := r.repo.Head()
		if err != nil {
			return true, err
		}
		sig, err := defaultSignature(r.repo)
		if err != nil {
			return true, err
		}
		if err := reflog.Append(head.Target(), sig, strconv.FormatInt(time.Now().Unix(), 10)); err != nil {
			return true, err
		}
		if err := reflog.Write(); err != nil {
			return true, err
		}
	}
	return true, nil
}
