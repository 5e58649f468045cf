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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/gotensor/fermion"
	"github.com/blinklabs-io/gotensor/nucleon"
	"github.com/blinklabs-io/gotensor/rpc"
	"go.uber.org/zap"
)

type serveFlags struct {
	flagset  *flag.FlagSet
	announce bool
}

func newServeFlags() *serveFlags {
	f := &serveFlags{
		flagset: flag.NewFlagSet("serve", flag.ExitOnError),
	}
	f.flagset.BoolVar(&f.announce, "announce", false, "publish the endpoint on the ledger before serving")
	return f
}

func runServe(a *app, args []string) error {
	f := newServeFlags()
	if err := f.flagset.Parse(args); err != nil {
		return fmt.Errorf("failed to parse subcommand args: %w", err)
	}
	hotkey, err := a.hotkey()
	if err != nil {
		return err
	}
	server := fermion.New(
		hotkey,
		fermion.WithLogger(a.logger),
		fermion.WithExternalIP(a.config.Fermion.ExternalIP),
		fermion.WithExternalPort(a.config.Fermion.ExternalPort),
	)
	err = server.Attach(
		nucleon.NameOf(&PingBody{}),
		func() any { return &PingBody{} },
		func(ctx context.Context, n *nucleon.Nucleon) error {
			body := n.Body.(*PingBody)
			body.Reply = "pong: " + body.Message
			body.Hotkey = hotkey.Address()
			return nil
		},
	)
	if err != nil {
		return err
	}

	if f.announce {
		client, closeClient, err := a.newClient()
		if err != nil {
			return err
		}
		call, err := rpc.ServeEndpoint(a.config.NetUID, server.Info())
		if err != nil {
			closeClient()
			return err
		}
		receipt, err := client.SubmitExtrinsic(context.Background(), call, hotkey, rpc.WaitInclusion)
		closeClient()
		if err != nil {
			return fmt.Errorf("announce endpoint: %w", err)
		}
		a.logger.Info(
			"announced endpoint",
			zap.String("endpoint", server.Info().String()),
			zap.Uint64("block", receipt.BlockNumber),
		)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.ListenAndServe(a.config.Fermion.ListenAddress)
	}()
	fmt.Printf("serving %s as %s\n", a.config.Fermion.ListenAddress, hotkey.Address())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errChan:
		return err
	case <-sigCh:
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	return <-errChan
}
