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
	"strconv"
	"strings"
	"time"

	"lab.nexedi.com/kirr/gitdocs"
	"lab.nexedi.com/kirr/gitdocs/codec"
	git "lab.nexedi.com/kirr/gitdocs/internal/git"
)

func codecByName(name string) (gitdocs.Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return codec.JSON{}, nil
	case "yaml":
		return codec.YAML{}, nil
	case "pot":
		return codec.POT{}, nil
	default:
		return nil, fmt.Errorf("unrecognised data format %q", name)
	}
}

type command func(repoPath string, cd gitdocs.Codec, args []string) error

var commands = map[string]command{
	"get":              cmdGet,
	"set":              cmdSet,
	"indexes":          cmdIndexes,
	"revert-n-commits": cmdRevertNCommits,
	"revert-to-commit": cmdRevertToCommit,
	"replicate":        cmdReplicate,
}

func cmdGet(repoPath string, cd gitdocs.Codec, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: gitdocs <repo> get <key>")
	}
	col, err := gitdocs.Initialize(repoPath, cd)
	if err != nil {
		return err
	}
	data, ok, err := col.GetRaw(args[0], "")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no document under key %q", args[0])
	}
	_, err = os.Stdout.Write(data)
	return err
}

func cmdSet(repoPath string, cd gitdocs.Codec, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: gitdocs <repo> set <key> <data>")
	}
	col, err := gitdocs.Initialize(repoPath, cd)
	if err != nil {
		return err
	}
	var value map[string]any
	if err := cd.Deserialize([]byte(args[1]), &value); err != nil {
		return err
	}
	return col.Set(args[0], value, "")
}

func cmdIndexes(repoPath string, cd gitdocs.Codec, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: gitdocs <repo> indexes {list | add --field F --kind K}")
	}
	col, err := gitdocs.Initialize(repoPath, cd)
	if err != nil {
		return err
	}
	switch args[0] {
	case "list":
		indexes, err := col.IndexList()
		if err != nil {
			return err
		}
		for _, ix := range indexes {
			fmt.Printf("%s\t%s\t%s\n", ix.Name, ix.IndexedField, ix.Kind)
		}
		return nil
	case "add":
		fs := flag.NewFlagSet("indexes add", flag.ContinueOnError)
		field := fs.String("field", "", "indexed field name")
		kindStr := fs.String("kind", "", "numeric|sequential|collection")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *field == "" || *kindStr == "" {
			return fmt.Errorf("usage: gitdocs <repo> indexes add --field F --kind numeric|sequential|collection")
		}
		kind, err := gitdocs.ParseKind(*kindStr)
		if err != nil {
			return err
		}
		ix, err := col.AddIndex(*field, kind)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\t%s\n", ix.Name, ix.IndexedField, ix.Kind)
		return nil
	default:
		return fmt.Errorf("unknown indexes subcommand %q", args[0])
	}
}

func cmdRevertNCommits(repoPath string, cd gitdocs.Codec, args []string) error {
	fs := flag.NewFlagSet("revert-n-commits", flag.ContinueOnError)
	target := fs.String("target", "", "branch to revert (default: main)")
	keepHistory := fs.Bool("keep-history", false, "stage a history tag per remote before reverting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: gitdocs <repo> revert-n-commits <n> [--target T] [--keep-history]")
	}
	n, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid commit count %q: %w", fs.Arg(0), err)
	}
	col, err := gitdocs.Initialize(repoPath, cd)
	if err != nil {
		return err
	}
	return col.RevertNCommits(n, *target, *keepHistory, time.Now().Unix())
}

func cmdRevertToCommit(repoPath string, cd gitdocs.Codec, args []string) error {
	fs := flag.NewFlagSet("revert-to-commit", flag.ContinueOnError)
	keepHistory := fs.Bool("keep-history", false, "stage a history tag per remote before reverting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: gitdocs <repo> revert-to-commit <oid> [--keep-history]")
	}
	oid, err := git.NewOidFromString(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid commit id %q: %w", fs.Arg(0), err)
	}
	col, err := gitdocs.Initialize(repoPath, cd)
	if err != nil {
		return err
	}
	return col.RevertMainToCommit(oid, *keepHistory, time.Now().Unix())
}

func cmdReplicate(repoPath string, cd gitdocs.Codec, args []string) error {
	fs := flag.NewFlagSet("replicate", flag.ContinueOnError)
	remote := fs.String("remote", "", "remote name")
	url := fs.String("url", "", "remote URL")
	policy := fs.String("policy", "all", "all|random:P|periodic:S")
	sshKey := fs.String("ssh-private-key", "", "path to SSH private key, for git+ssh remotes")
	sshPubKey := fs.String("ssh-public-key", "", "path to SSH public key, for git+ssh remotes")
	sshUser := fs.String("ssh-user", "git", "SSH username")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *remote == "" || *url == "" {
		return fmt.Errorf("usage: gitdocs <repo> replicate --remote NAME --url URL [--policy all|random:P|periodic:S]")
	}
	method, err := parsePolicy(*policy)
	if err != nil {
		return err
	}
	var creds *git.RemoteCredentials
	if *sshKey != "" {
		creds = &git.RemoteCredentials{
			Username:   *sshUser,
			PublicKey:  *sshPubKey,
			PrivateKey: *sshKey,
		}
	}
	repl, err := gitdocs.InitializeReplicator(repoPath, *remote, *url, method, creds)
	if err != nil {
		return err
	}
	pushed, err := repl.Replicate()
	if err != nil {
		return err
	}
	if pushed {
		fmt.Println("pushed")
	} else {
		fmt.Println("skipped")
	}
	return nil
}

func parsePolicy(policy string) (gitdocs.ReplicationMethod, error) {
	switch {
	case policy == "all":
		return gitdocs.AllReplication(), nil
	case strings.HasPrefix(policy, "random:"):
		chance, err := strconv.ParseFloat(strings.TrimPrefix(policy, "random:"), 64)
		if err != nil {
			return gitdocs.ReplicationMethod{}, fmt.Errorf("invalid random policy %q: %w", policy, err)
		}
		return gitdocs.RandomReplication(chance), nil
	case strings.HasPrefix(policy, "periodic:"):
		period, err := strconv.ParseInt(strings.TrimPrefix(policy, "periodic:"), 10, 64)
		if err != nil {
			return gitdocs.ReplicationMethod{}, fmt.Errorf("invalid periodic policy %q: %w", policy, err)
		}
		return gitdocs.PeriodicReplication(period), nil
	default:
		return gitdocs.ReplicationMethod{}, fmt.Errorf("unrecognised replication policy %q", policy)
	}
}
