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
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// verbose output
// 0 - silent
// 1 - info
// 2 - debug
// 3 - trace + stack trace on error
var verbose = 1

var log = logrus.New()

func usage() {
	fmt.Fprintf(os.Stderr, `gitdocs <repo> [--format json|yaml|pot] <command> [args]

    get <key>                                     print the document under key
    set <key> <data>                              store data under key
    indexes list                                  list declared secondary indexes
    indexes add --field F --kind K                declare a secondary index
    revert-n-commits <n> [--target T] [--keep-history]
    revert-to-commit <oid> [--keep-history]
    replicate --remote NAME --url URL [--policy all|random:P|periodic:S]

  common options:

    -h --help       this help text.
    -v              increase verbosity.
    -q              decrease verbosity.
    --format        codec to use for documents: json (default), yaml, pot
`)
}

func main() {
	flag.Usage = usage
	quiet := 0
	format := flag.String("format", "", "codec: json|yaml|pot")
	flag.Var((*countFlag)(&verbose), "v", "verbosity level")
	flag.Var((*countFlag)(&quiet), "q", "decrease verbosity")
	flag.Parse()
	verbose -= quiet

	switch {
	case verbose <= 0:
		log.SetLevel(logrus.ErrorLevel)
	case verbose == 1:
		log.SetLevel(logrus.InfoLevel)
	case verbose == 2:
		log.SetLevel(logrus.DebugLevel)
	default:
		log.SetLevel(logrus.TraceLevel)
	}

	argv := flag.Args()
	if len(argv) < 2 {
		usage()
		os.Exit(1)
	}
	repoPath, subcommand, rest := argv[0], argv[1], argv[2:]

	cfg, err := loadConfig(filepath.Join(repoPath, "gitdocs.toml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "gitdocs: %s\n", err)
		os.Exit(1)
	}
	codecName := cfg.DefaultCodec
	if *format != "" {
		codecName = *format
	}
	cd, err := codecByName(codecName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gitdocs: %s\n", err)
		os.Exit(1)
	}

	cmd, ok := commands[subcommand]
	if !ok {
		fmt.Fprintf(os.Stderr, "gitdocs: unknown command %q\n", subcommand)
		usage()
		os.Exit(1)
	}

	run(func() error { return cmd(repoPath, cd, rest) })
}
