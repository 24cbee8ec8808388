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
	"strings"

	"lab.nexedi.com/kirr/gitdocs/giterrors"
	git "lab.nexedi.com/kirr/gitdocs/internal/git"
)

// Chain is the boolean connective joining a QueryGroup to its next sibling.
type Chain int

const (
	And Chain = iota
	Or
)

// FieldQuery is a single leaf predicate: does the named field compare to
// value per comparator.
type FieldQuery struct {
	Field      string
	Value      Field
	Comparator Comparator
}

// prefixQuery returns the encoded index-key prefix this leaf would seed an
// index scan from: the exact encoded value for Equal, empty for Less/Greater
// (those scan from an end of the index instead of a cursor position).
func (fq FieldQuery) prefixQuery() (string, error) {
	if fq.Comparator != Equal {
		return "", nil
	}
	return fq.Value.ToIndexValue()
}

// QueryGroup is a boolean-expression tree: a leaf predicate plus an ordered
// list of (child, Chain) pairs. & and | build right-leaning trees;
// evaluation is strictly left to right with no precedence reordering --
// callers must parenthesise if they want different grouping, and this is
// intentional (see SPEC_FULL.md §5.3).
type QueryGroup struct {
	FieldQuery FieldQuery
	Next       []chainedGroup
}

type chainedGroup struct {
	Group *QueryGroup
	Chain Chain
}

// Q builds a single-leaf QueryGroup.
func Q(field string, cmp Comparator, value Field) *QueryGroup {
	return &QueryGroup{FieldQuery: FieldQuery{Field: field, Value: value, Comparator: cmp}}
}

// And appends other with an And connective, building a right-leaning tree
// exactly as a & b does for boolean expressions in the source this was
// distilled from.
func (g *QueryGroup) And(other *QueryGroup) *QueryGroup {
	g.Next = append(g.Next, chainedGroup{other, And})
	return g
}

func (g *QueryGroup) Or(other *QueryGroup) *QueryGroup {
	g.Next = append(g.Next, chainedGroup{other, Or})
	return g
}

// Resolve evaluates the tree directly against already-extracted field
// values, left to right with no precedence reordering. Used by the Scan
// execution path.
func (g *QueryGroup) Resolve(fields map[string]Field) bool {
	result := g.FieldQuery.evalAgainst(fields)
	for _, cg := range g.Next {
		next := cg.Group.Resolve(fields)
		switch cg.Chain {
		case And:
			result = result && next
		case Or:
			result = result || next
		}
	}
	return result
}

func (fq FieldQuery) evalAgainst(fields map[string]Field) bool {
	f, ok := fields[fq.Field]
	if !ok {
		return false
	}
	cmp, ok := fq.Value.Compare(f)
	if !ok {
		return false
	}
	// fq.Value.Compare(f) compares value against f; we want f against
	// value, so invert the sign before matching the comparator.
	return fq.Comparator.Matches(-cmp)
}

// ResolutionStrategy is the plan the query planner picked: Scan or
// UseIndexes(list).
type ResolutionStrategy struct {
	Scan    bool
	Indexes []*Index
}

// resolutionStrategy implements SPEC_FULL.md §5.3's recursive algorithm:
// an AND with one indexless clause still benefits from the indexed side
// (scan is limited to the AND-result); an OR with one indexless clause
// forces a full scan since the missing side cannot be enumerated.
func (g *QueryGroup) resolutionStrategy(indexes map[string]*Index) ResolutionStrategy {
	ix, ok := indexes[g.FieldQuery.Field]
	if !ok {
		return ResolutionStrategy{Scan: true}
	}
	used := []*Index{ix}
	for _, cg := range g.Next {
		childStrategy := cg.Group.resolutionStrategy(indexes)
		if childStrategy.Scan {
			if cg.Chain == And {
				return ResolutionStrategy{Indexes: used}
			}
			return ResolutionStrategy{Scan: true}
		}
		used = append(used, childStrategy.Indexes...)
	}
	return ResolutionStrategy{Indexes: used}
}

// QueryResult is the outcome of executing a query: the set of matching
// document blob-ids plus bookkeeping about how the query was resolved.
type QueryResult struct {
	Results  OidSet
	Count    int
	Strategy ResolutionStrategy
}

// QueryBuilder executes a QueryGroup against a collection's current main
// tip and index set.
type QueryBuilder struct {
	col *Collection
}

func (c *Collection) Query() *QueryBuilder { return &QueryBuilder{col: c} }

// Execute runs the query, choosing Scan or index-driven resolution per
// SPEC_FULL.md §5.3, and materialises a QueryResult. limit<=0 means
// unbounded (only meaningful for the Scan path).
func (qb *QueryBuilder) Execute(target string, q *QueryGroup, limit int) (*QueryResult, error) {
	commit, tree, err := qb.col.tipTree(target)
	if err != nil {
		return nil, &giterrors.QueryError{Err: err}
	}
	_ = commit

	indexByField := make(map[string]*Index, len(qb.col.indexes))
	for _, ix := range qb.col.indexes {
		indexByField[ix.IndexedField] = ix
	}

	strategy := q.resolutionStrategy(indexByField)
	var results OidSet
	if strategy.Scan {
		results, err = qb.col.scanTree(tree, q, limit)
		if err != nil {
			return nil, &giterrors.QueryError{Err: err}
		}
	} else {
		results, err = qb.resolveWithIndexes(tree, q, Or, strategy.Indexes)
		if err != nil {
			return nil, &giterrors.QueryError{Err: err}
		}
	}
	return &QueryResult{Results: results, Count: len(results), Strategy: strategy}, nil
}

// resolveWithIndexes executes the cursor-walk algorithm described in
// SPEC_FULL.md §5.3: each clause whose field has an index is resolved by
// scanning that index's Git-index file from a cursor position determined
// by the comparator, stopping at the first entry on the wrong side of the
// comparison (sorted-data early exit); indexless AND-tail clauses are run
// as a targeted scan over the accumulated result set instead of the whole
// tree.
func (qb *QueryBuilder) resolveWithIndexes(tree *git.Tree, g *QueryGroup, incomingChain Chain, indexes []*Index) (OidSet, error) {
	var results OidSet
	leafIndexes := indexes
	first := true

	node := g
	chain := incomingChain
	for node != nil {
		var nodeResults OidSet
		var err error
		ix, hasIndex := indexByFieldName(leafIndexes, node.FieldQuery.Field)
		if hasIndex {
			nodeResults, err = qb.col.scanIndex(ix, node.FieldQuery)
			if err != nil {
				return nil, err
			}
		} else {
			// indexless clause: targeted scan restricted to the
			// current result set; an empty result set yields no
			// matches.
			nodeResults, err = qb.col.scanTreeRestricted(tree, node.FieldQuery, results)
			if err != nil {
				return nil, err
			}
		}

		if first {
			results = nodeResults
			first = false
		} else {
			switch chain {
			case And:
				results = results.Intersect(nodeResults)
			case Or:
				results = results.Union(nodeResults)
			}
		}
		if chain == And && len(results) == 0 {
			return results, nil
		}

		if len(node.Next) == 0 {
			break
		}
		// advance into the chained children, each evaluated against
		// the running result set in turn.
		var rest *QueryGroup
		rest, chain = flattenNext(node)
		node = rest
	}
	return results, nil
}

// flattenNext peels the first chained child off g's Next list and returns
// a synthetic node representing it plus any further children, so
// resolveWithIndexes's loop can walk the chain iteratively.
func flattenNext(g *QueryGroup) (*QueryGroup, Chain) {
	if len(g.Next) == 0 {
		return nil, And
	}
	head := g.Next[0]
	rest := append([]chainedGroup{}, g.Next[1:]...)
	merged := &QueryGroup{FieldQuery: head.Group.FieldQuery, Next: append(append([]chainedGroup{}, head.Group.Next...), rest...)}
	return merged, head.Chain
}

func indexByFieldName(indexes []*Index, field string) (*Index, bool) {
	for _, ix := range indexes {
		if ix.IndexedField == field {
			return ix, true
		}
	}
	return nil, false
}

// scanIndex walks a single index's backing Git-index file starting from
// the cursor implied by the comparator (Less: from the start moving
// forward; Equal: from find_prefix; Greater: from the end moving
// backward), stopping at the first entry that compares the wrong way.
func (c *Collection) scanIndex(ix *Index, fq FieldQuery) (OidSet, error) {
	gidx, err := ix.GitIndex(c.repoPath())
	if err != nil {
		return nil, err
	}
	n := gidx.EntryCount()
	results := make(OidSet)
	if n == 0 {
		return results, nil
	}

	step := func(i uint) (stop bool, err error) {
		entry, err := gidx.EntryByIndex(i)
		if err != nil {
			return true, err
		}
		encoded := ExtractValue(entry.Path)
		found, err := FieldFromIndexEntry(entry.Ino, encoded)
		if err != nil {
			return true, err
		}
		cmp, ok := found.Compare(fq.Value)
		if !ok {
			return false, nil
		}
		if fq.Comparator.Matches(cmp) {
			results.Add(*entry.Id)
			return false, nil
		}
		// sorted-data early exit: once we see an entry on the wrong
		// side of the comparator relative to the scan direction, no
		// further entries can match.
		return true, nil
	}

	switch fq.Comparator {
	case Less:
		for i := uint(0); i < n; i++ {
			stop, err := step(i)
			if err != nil {
				return nil, err
			}
			if stop {
				break
			}
		}
	case Greater:
		for i := n; i > 0; i-- {
			stop, err := step(i - 1)
			if err != nil {
				return nil, err
			}
			if stop {
				break
			}
		}
	case Equal:
		encoded, err := fq.Value.ToIndexValue()
		if err != nil {
			return nil, err
		}
		pos, err := gidx.FindPrefix(encoded)
		if err != nil {
			pos = 0
		}
		for i := pos; i < n; i++ {
			stop, err := step(i)
			if err != nil {
				return nil, err
			}
			if stop {
				break
			}
		}
	}
	return results, nil
}

// scanTree walks the whole document tree in pre-order (each directory
// before its contents), asking the codec to evaluate each document's fields
// against the query. Used for the Scan resolution strategy.
func (c *Collection) scanTree(tree *git.Tree, q *QueryGroup, limit int) (OidSet, error) {
	results := make(OidSet)
	limited := false
	err := tree.Walk(func(prefix string, e *git.TreeEntry) int {
		if strings.HasPrefix(prefix, ".index") || strings.HasSuffix(e.Name, ".index") {
			return git.WalkSkip
		}
		if e.Type != git.ObjectBlob {
			return git.WalkOk
		}
		if limit > 0 && len(results) >= limit {
			limited = true
			return git.WalkAbort
		}
		ok, err := c.matchesQuery(e.Id, q)
		if err != nil {
			return git.WalkOk
		}
		if ok {
			results.Add(*e.Id)
		}
		return git.WalkOk
	})
	if limited {
		return results, nil
	}
	return results, err
}

// scanTreeRestricted evaluates an indexless tail clause only against the
// blob-ids already present in candidates, instead of the whole tree.
func (c *Collection) scanTreeRestricted(tree *git.Tree, fq FieldQuery, candidates OidSet) (OidSet, error) {
	results := make(OidSet)
	for _, id := range candidates.Elements() {
		id := id
		ok, err := c.matchesQuery(&id, Q(fq.Field, fq.Comparator, fq.Value))
		if err != nil {
			return nil, err
		}
		if ok {
			results.Add(id)
		}
	}
	return results, nil
}

func (c *Collection) matchesQuery(blobID *git.Oid, q *QueryGroup) (bool, error) {
	data, err := c.getRawByOid(blobID)
	if err != nil {
		return false, err
	}
	return c.matchGroup(data, q)
}

func (c *Collection) matchGroup(data []byte, g *QueryGroup) (bool, error) {
	result, err := c.codec.MatchField(data, g.FieldQuery.Field, g.FieldQuery.Value, g.FieldQuery.Comparator)
	if err != nil {
		return false, err
	}
	for _, cg := range g.Next {
		next, err := c.matchGroup(data, cg.Group)
		if err != nil {
			return false, err
		}
		switch cg.Chain {
		case And:
			result = result && next
		case Or:
			result = result || next
		}
	}
	return result, nil
}
