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
	"os"
	"path/filepath"
	"strconv"
	"strings"

	git "lab.nexedi.com/kirr/gitdocs/internal/git"
)

// ErrNotOrderable is returned by CreateEntry when asked to index a NaN
// float. SPEC_FULL.md §5.2 resolves the spec's NaN open question by
// rejecting at index time rather than inventing a sentinel bucket: NaN
// cannot be placed anywhere in the encoding's sign/bit-pattern ordering
// without breaking invariant 4 the moment an ordinary comparison runs
// against it.
var ErrNotOrderable = errors.New("gitdocs: value is not orderable (NaN)")

// Kind is an index's declared value type. The two kinds spec.md names are
// "sequential" (string-keyed) and "numeric"; gitdocs spells them KindString
// / KindNumeric internally to avoid colliding with the unrelated sequential
// tie-breaker counter every index entry carries regardless of kind.
type Kind int

const (
	KindString Kind = iota
	KindNumeric
	// KindCollection is accepted and parsed per SPEC_FULL.md §6.2 but is
	// a reserved no-op, per spec.md §9's open question.
	KindCollection
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "sequential"
	case KindNumeric:
		return "numeric"
	case KindCollection:
		return "collection"
	default:
		return "unknown"
	}
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "sequential":
		return KindString, nil
	case "numeric":
		return KindNumeric, nil
	case "collection":
		return KindCollection, nil
	default:
		return 0, fmt.Errorf("gitdocs: unknown index kind %q", s)
	}
}

// Index is metadata for a secondary index: (name, indexed field, kind).
// Index values are cheap to copy and cache nothing; every operation below
// opens the backing Git-index file under <repo>/.index/<name> afresh, per
// SPEC_FULL.md §4's ownership note.
type Index struct {
	Name         string
	IndexedField string
	Kind         Kind
}

// treeEntryName is the name of this index's tree entry at the repository
// root: "{field}#{kind}.index".
func (ix *Index) treeEntryName() string {
	return fmt.Sprintf("%s#%s.index", ix.IndexedField, ix.Kind)
}

// ParseIndexName parses a root tree-entry name of the form
// "{field}#{kind}.index" back into an Index, the inverse of treeEntryName.
// Used when listing indexes already present in a repository.
func ParseIndexName(name string) (*Index, error) {
	const suffix = ".index"
	if !strings.HasSuffix(name, suffix) {
		return nil, fmt.Errorf("gitdocs: %q is not an index tree entry", name)
	}
	base := strings.TrimSuffix(name, suffix)
	field, kindStr, ok := strings.Cut(base, "#")
	if !ok {
		return nil, fmt.Errorf("gitdocs: %q is not an index tree entry", name)
	}
	kind, err := ParseKind(kindStr)
	if err != nil {
		return nil, err
	}
	return &Index{Name: name, IndexedField: field, Kind: kind}, nil
}

// IndexesGivenField reports whether this index accepts a field of the
// given kind: numeric indexes accept only Int/Float fields, string
// (sequential) indexes accept only String fields. KindCollection never
// accepts anything (reserved, no-op).
func (ix *Index) IndexesGivenField(f Field) bool {
	switch ix.Kind {
	case KindNumeric:
		return f.Kind() == FieldInt || f.Kind() == FieldFloat
	case KindString:
		return f.Kind() == FieldString
	default:
		return false
	}
}

func indexFilePath(repoPath string, name string) string {
	return filepath.Join(repoPath, ".index", name)
}

// GitIndex opens (creating if absent) the backing Git-index file for this
// index under <repoPath>/.index/<name>.
func (ix *Index) GitIndex(repoPath string) (*git.Index, error) {
	if err := os.MkdirAll(filepath.Join(repoPath, ".index"), 0o755); err != nil {
		return nil, err
	}
	return git.NewIndex(indexFilePath(repoPath, ix.Name))
}

// ExtractValue strips the sequential tie-breaker suffix ("/{counter:16x}")
// from a raw index-entry path, returning the encoded field value as
// produced by Field.ToIndexValue.
func ExtractValue(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return path
	}
	suffix := path[i+1:]
	if len(suffix) == 16 {
		if _, err := strconv.ParseUint(suffix, 16, 64); err == nil {
			return path[:i]
		}
	}
	return path
}

// CreateEntry inserts a new index entry for blob id carrying field's
// encoded value, disambiguating collisions with the sequential tie-breaker
// described in SPEC_FULL.md §5.2 (counter = u64::MAX - k for the k-th
// entry sharing the same encoded prefix; decrementing so the newest entry
// with a given key sorts first after the prefix).
func (ix *Index) CreateEntry(repoPath string, id *git.Oid, field Field) error {
	encoded, err := field.ToIndexValue()
	if err != nil {
		return err
	}
	gidx, err := ix.GitIndex(repoPath)
	if err != nil {
		return err
	}
	counter := uint64(1<<64 - 1)
	pos, err := gidx.FindPrefix(encoded)
	if err == nil {
		entry, eerr := gidx.EntryByIndex(pos)
		if eerr == nil && strings.HasPrefix(entry.Path, encoded+"/") {
			suffix := entry.Path[len(entry.Path)-16:]
			prev, perr := strconv.ParseUint(suffix, 16, 64)
			if perr == nil {
				counter = prev - 1
			}
		}
	}
	path := fmt.Sprintf("%s/%016x", encoded, counter)
	entry := &git.IndexEntry{
		Path: path,
		Id:   id,
		Mode: git.FilemodeBlob,
		Ino:  ix.Kind.inoForField(field),
	}
	if err := gidx.Add(entry); err != nil {
		return err
	}
	return gidx.Write()
}

// inoForField returns the ino tag to store for a field of this index's
// declared kind (KindString -> String tag, KindNumeric -> the field's own
// Int/Float tag since both share a numeric index).
func (k Kind) inoForField(f Field) uint32 {
	return f.ToInoTag()
}

// DeleteEntry removes every entry referencing blob id from this index's
// backing file, used both on update (stale prior entry) and on removal
// (field no longer present/compatible).
func (ix *Index) DeleteEntry(repoPath string, id *git.Oid) error {
	gidx, err := ix.GitIndex(repoPath)
	if err != nil {
		return err
	}
	n := gidx.EntryCount()
	var stale []string
	for i := uint(0); i < n; i++ {
		entry, err := gidx.EntryByIndex(i)
		if err != nil {
			return err
		}
		if *entry.Id == *id {
			stale = append(stale, entry.Path)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	for _, path := range stale {
		if err := gidx.RemoveByPath(path, 0); err != nil {
			return err
		}
	}
	return gidx.Write()
}
