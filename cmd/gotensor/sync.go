// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/blinklabs-io/gotensor/megastring"
)

type syncFlags struct {
	flagset *flag.FlagSet
	lite    bool
	block   int64
	save    bool
}

func newSyncFlags() *syncFlags {
	f := &syncFlags{
		flagset: flag.NewFlagSet("sync", flag.ExitOnError),
	}
	f.flagset.BoolVar(&f.lite, "lite", false, "skip the weight and bond matrices")
	f.flagset.Int64Var(&f.block, "block", -1, "block to sync at (defaults to the current block)")
	f.flagset.BoolVar(&f.save, "save", true, "save the snapshot under the snapshot directory")
	return f
}

func runSync(a *app, args []string) error {
	f := newSyncFlags()
	if err := f.flagset.Parse(args); err != nil {
		return fmt.Errorf("failed to parse subcommand args: %w", err)
	}
	client, closeClient, err := a.newClient()
	if err != nil {
		return err
	}
	defer closeClient()
	opts := megastring.SyncOptions{Lite: f.lite, Client: client}
	if f.block >= 0 {
		block := uint64(f.block)
		opts.Block = &block
	}
	m, err := megastring.New(
		a.config.Network,
		a.config.NetUID,
		megastring.WithLogger(a.logger),
	).Sync(context.Background(), opts)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", m)
	fmt.Printf("serving endpoints: %d\n", len(m.ServingEndpoints()))
	if f.save {
		path, err := m.Save(a.config.SnapshotDir)
		if err != nil {
			return err
		}
		fmt.Printf("saved: %s\n", path)
	}
	return nil
}
