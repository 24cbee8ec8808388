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

import git "lab.nexedi.com/kirr/gitdocs/internal/git"

// Set is a plain map-backed set, generic over any comparable element type.
// git-backup carried Sha1Set/StrSet as a hand-duplicated "template" with a
// go:generate TODO; gitdocs has one generic definition instead, used by the
// query engine to intersect/union per-index result sets.
type Set[T comparable] map[T]struct{}

func NewSet[T comparable](elems ...T) Set[T] {
	s := make(Set[T], len(elems))
	for _, e := range elems {
		s.Add(e)
	}
	return s
}

func (s Set[T]) Add(v T) {
	s[v] = struct{}{}
}

func (s Set[T]) Remove(v T) {
	delete(s, v)
}

func (s Set[T]) Contains(v T) bool {
	_, ok := s[v]
	return ok
}

// Elements returns all elements of the set as a slice, in map iteration order.
func (s Set[T]) Elements() []T {
	ev := make([]T, 0, len(s))
	for e := range s {
		ev = append(ev, e)
	}
	return ev
}

// Union returns a new set with every element present in s or other.
func (s Set[T]) Union(other Set[T]) Set[T] {
	out := make(Set[T], len(s)+len(other))
	for e := range s {
		out.Add(e)
	}
	for e := range other {
		out.Add(e)
	}
	return out
}

// Intersect returns a new set with every element present in both s and other.
func (s Set[T]) Intersect(other Set[T]) Set[T] {
	small, big := s, other
	if len(big) < len(small) {
		small, big = big, small
	}
	out := make(Set[T], len(small))
	for e := range small {
		if big.Contains(e) {
			out.Add(e)
		}
	}
	return out
}

// OidSet is the blob-id set type the query engine resolves queries into.
type OidSet = Set[git.Oid]
