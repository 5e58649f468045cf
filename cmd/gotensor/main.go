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
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/blinklabs-io/gotensor/internal/config"
	"github.com/blinklabs-io/gotensor/internal/logging"
	"github.com/blinklabs-io/gotensor/keypair"
	"github.com/blinklabs-io/gotensor/rpc"
	"go.uber.org/zap"
)

type globalFlags struct {
	flagset    *flag.FlagSet
	configFile string
	network    string
	netuid     int
}

func newGlobalFlags() *globalFlags {
	f := &globalFlags{
		flagset: flag.NewFlagSet(os.Args[0], flag.ExitOnError),
	}
	f.flagset.StringVar(
		&f.configFile,
		"config",
		"",
		"path to a YAML config file",
	)
	f.flagset.StringVar(
		&f.network,
		"network",
		"",
		"network name, overriding the config file",
	)
	f.flagset.IntVar(
		&f.netuid,
		"netuid",
		-1,
		"subnetwork id, overriding the config file",
	)
	return f
}

// app carries what every subcommand needs
type app struct {
	flags  *globalFlags
	config *config.Config
	logger *zap.Logger
}

func main() {
	f := newGlobalFlags()
	err := f.flagset.Parse(os.Args[1:])
	if err != nil {
		fmt.Printf("failed to parse command args: %s\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(f.configFile)
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(1)
	}
	if f.network != "" {
		cfg.Network = f.network
		cfg.ChainEndpoint = ""
	}
	if f.netuid >= 0 {
		cfg.NetUID = uint16(f.netuid)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := logging.New(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		fmt.Printf("ERROR: failed to initialize logger: %s\n", err)
		os.Exit(1)
	}
	a := &app{flags: f, config: cfg, logger: logger}

	if len(f.flagset.Args()) == 0 {
		fmt.Printf("You must specify a subcommand (sync, serve, ping or config)\n")
		os.Exit(1)
	}
	args := f.flagset.Args()[1:]
	switch f.flagset.Arg(0) {
	case "sync":
		err = runSync(a, args)
	case "serve":
		err = runServe(a, args)
	case "ping":
		err = runPing(a, args)
	case "config":
		err = runConfig(a, args)
	default:
		err = fmt.Errorf("unknown subcommand: %s", f.flagset.Arg(0))
	}
	_ = closeLog()
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(1)
	}
}

// newClient connects to the ledger node, with a result cache when a cache
// directory is configured. The returned function releases both
func (a *app) newClient() (*rpc.Client, func(), error) {
	backend := rpc.NewHTTPBackend(
		a.config.Endpoint(),
		rpc.WithBackendLogger(a.logger),
	)
	options := []rpc.ClientOptionFunc{rpc.WithLogger(a.logger)}
	var cache *rpc.Cache
	if a.config.CacheDir != "" {
		var err error
		cache, err = rpc.OpenCache(a.config.CacheDir)
		if err != nil {
			_ = backend.Close()
			return nil, nil, err
		}
		options = append(options, rpc.WithCache(cache))
	}
	client := rpc.NewClient(backend, options...)
	return client, func() {
		if err := client.Close(); err != nil {
			a.logger.Warn("failed to close ledger client", zap.Error(err))
		}
		if cache != nil {
			if err := cache.Close(); err != nil {
				a.logger.Warn("failed to close cache", zap.Error(err))
			}
		}
	}, nil
}

// hotkey returns the configured signing key. Without one an ephemeral key
// is generated
func (a *app) hotkey() (*keypair.Keypair, error) {
	seed := a.config.Wallet.HotkeySeed
	if file := a.config.Wallet.HotkeySeedFile; file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read hotkey seed: %w", err)
		}
		seed = strings.TrimSpace(string(data))
	}
	if seed == "" {
		a.logger.Warn("no hotkey configured, using an ephemeral key")
		return keypair.Generate(rand.Reader)
	}
	return keypair.NewFromHexSeed(seed)
}
