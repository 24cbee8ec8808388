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

package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"lab.nexedi.com/kirr/go123/exc"
)

// run invokes cmd and reports whatever error it returns (or panics with
// and exc.Catch recovers) as a diagnostic on stderr, exiting
// nonzero -- the same catch-all shape git-backup.go's main() wraps every
// command dispatch in, narrowed to this one call site per SPEC_FULL.md's
// ambient-stack note that the raise/recover idiom stays out of the
// library packages.
func run(cmd func() error) {
	var err error
	defer func() {
		exc.Catch(&err)
		if err == nil {
			return
		}
		fmt.Fprintf(os.Stderr, "gitdocs: %s\n", err)
		if verbose > 2 {
			fmt.Fprintln(os.Stderr)
			debug.PrintStack()
		}
		os.Exit(1)
	}()
	err = cmd()
}
