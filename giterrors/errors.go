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

// Package giterrors collects the tagged error types gitdocs returns, one
// type per kind named in SPEC_FULL.md §7. Every type wraps its underlying
// cause (where there is one) so callers can still errors.Is/errors.As
// through to e.g. a git2go error, while checking gitdocs's own kind with
// errors.As against the types below.
package giterrors

import (
	"fmt"

	git "lab.nexedi.com/kirr/gitdocs/internal/git"
)

// InitializationError means the repository could not be opened or created.
type InitializationError struct {
	Path string
	Err  error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("gitdocs: initialize %q: %s", e.Path, e.Err)
}
func (e *InitializationError) Unwrap() error { return e.Err }

// GetObjectReason enumerates why a Get operation failed.
type GetObjectReason int

const (
	InvalidOperationTarget GetObjectReason = iota
	CorruptedObject
	InvalidKey
	DecodingError
)

func (r GetObjectReason) String() string {
	switch r {
	case InvalidOperationTarget:
		return "invalid operation target"
	case CorruptedObject:
		return "corrupted object"
	case InvalidKey:
		return "invalid key"
	case DecodingError:
		return "decoding error"
	default:
		return "unknown"
	}
}

type GetObjectError struct {
	Reason GetObjectReason
	Key    string
	Err    error
}

func (e *GetObjectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gitdocs: get %q: %s: %s", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("gitdocs: get %q: %s", e.Key, e.Reason)
}
func (e *GetObjectError) Unwrap() error { return e.Err }

// SetObjectError reports a failure to write a document.
type SetObjectError struct {
	Reason GetObjectReason // InvalidOperationTarget is the only reason the spec names explicitly
	Key    string
	Err    error
}

func (e *SetObjectError) Error() string {
	return fmt.Sprintf("gitdocs: set %q: %s: %s", e.Key, e.Reason, e.Err)
}
func (e *SetObjectError) Unwrap() error { return e.Err }

// RevertError reports a failure during revert_n_commits / revert_main_to_commit.
type RevertError struct {
	BranchingHistory *git.Oid // set iff a merge commit was encountered
	TargetCommitNotFound *git.Oid
	InvalidOperationTarget bool
	Err                    error
}

func (e *RevertError) Error() string {
	switch {
	case e.BranchingHistory != nil:
		return fmt.Sprintf("gitdocs: revert: branching history at commit %s", e.BranchingHistory)
	case e.TargetCommitNotFound != nil:
		return fmt.Sprintf("gitdocs: revert: target commit %s not found", e.TargetCommitNotFound)
	case e.InvalidOperationTarget:
		return "gitdocs: revert: invalid operation target"
	default:
		return fmt.Sprintf("gitdocs: revert: %s", e.Err)
	}
}
func (e *RevertError) Unwrap() error { return e.Err }

// IsBranchingHistory reports whether err is a RevertError caused by
// encountering a merge commit during the first-parent walk.
func IsBranchingHistory(err error) bool {
	var rerr *RevertError
	if ok := asRevertError(err, &rerr); ok {
		return rerr.BranchingHistory != nil
	}
	return false
}

func asRevertError(err error, target **RevertError) bool {
	for err != nil {
		if rerr, ok := err.(*RevertError); ok {
			*target = rerr
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// TransactionErrorKind enumerates the transaction-specific failure modes.
// Unspecified is the zero value and means "some other error propagated
// up", not one of the two kinds spec.md §7 calls out as expected/benign --
// keeping it distinct from Aborted matters because IsAborted is meant to
// let a caller treat only a genuine conflict-under-Abort as recoverable,
// not every unrelated failure that happened to not set Kind.
type TransactionErrorKind int

const (
	Unspecified TransactionErrorKind = iota
	Aborted
	TransactionNotFound
)

type TransactionError struct {
	Kind TransactionErrorKind
	Name string
	Err  error
}

func (e *TransactionError) Error() string {
	switch e.Kind {
	case Aborted:
		return fmt.Sprintf("gitdocs: apply_transaction %q: aborted", e.Name)
	case TransactionNotFound:
		return fmt.Sprintf("gitdocs: transaction %q not found", e.Name)
	default:
		return fmt.Sprintf("gitdocs: transaction %q: %s", e.Name, e.Err)
	}
}
func (e *TransactionError) Unwrap() error { return e.Err }

// IsAborted reports whether err is a TransactionError{Kind: Aborted}.
func IsAborted(err error) bool {
	if terr, ok := err.(*TransactionError); ok {
		return terr.Kind == Aborted
	}
	return false
}

// QueryError wraps an underlying tree or index-scan failure.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string { return fmt.Sprintf("gitdocs: query: %s", e.Err) }
func (e *QueryError) Unwrap() error { return e.Err }

// ReplicationError wraps a push failure (network, auth, non-fast-forward).
type ReplicationError struct {
	Remote string
	Err    error
}

func (e *ReplicationError) Error() string {
	return fmt.Sprintf("gitdocs: replicate to %q: %s", e.Remote, e.Err)
}
func (e *ReplicationError) Unwrap() error { return e.Err }

// SquashConflictError means a squash's rebased result lost a race against
// a concurrent writer: main moved away from the tip the squash computed
// its replay against, so the squash yields instead of overwriting the
// writer's commit. The caller is expected to retry the squash.
type SquashConflictError struct {
	Expected *git.Oid
	Actual   *git.Oid
}

func (e *SquashConflictError) Error() string {
	return fmt.Sprintf("gitdocs: squash: main moved from %s to %s during squash, yielding", e.Expected, e.Actual)
}

// IsSquashConflict reports whether err is a SquashConflictError.
func IsSquashConflict(err error) bool {
	_, ok := err.(*SquashConflictError)
	return ok
}

// InvalidDataFormatError means the caller named an unrecognised codec.
type InvalidDataFormatError struct {
	Name string
}

func (e *InvalidDataFormatError) Error() string {
	return fmt.Sprintf("gitdocs: unrecognised data format %q", e.Name)
}
