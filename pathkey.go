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
	"crypto/sha1"
	"fmt"
	"strings"

	git "lab.nexedi.com/kirr/gitdocs/internal/git"
)

// hashKeyOid computes the Git blob object-id of key's bytes, without
// writing anything to the object database -- the same hash libgit2's
// git_odb_hash would return for `git hash-object` on those bytes.
func hashKeyOid(key string) git.Oid {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(key))
	h.Write([]byte(key))
	var oid git.Oid
	copy(oid[:], h.Sum(nil))
	return oid
}

// pathForKey computes the tree path a key resolves to: natural (the key
// itself, verbatim) when it already contains a '/', hashed otherwise --
// "{b0:x}/{b1:x}/{key}" where b0,b1 are the first two bytes of the key's
// blob-object-id.
func pathForKey(key string) string {
	if strings.Contains(key, "/") {
		return key
	}
	oid := hashKeyOid(key)
	return fmt.Sprintf("%02x/%02x/%s", oid[0], oid[1], key)
}
