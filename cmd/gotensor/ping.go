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
	"errors"
	"flag"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/blinklabs-io/gotensor/boson"
	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/blinklabs-io/gotensor/megastring"
)

// PingBody is the request answered by the serve subcommand
type PingBody struct {
	Message string `json:"message"`
	Reply   string `json:"reply,omitempty"`
	Hotkey  string `json:"hotkey,omitempty"`
}

func (p *PingBody) Deserialize() any {
	return p.Reply
}

type pingFlags struct {
	flagset    *flag.FlagSet
	address    string
	hotkey     string
	message    string
	timeout    time.Duration
	sequential bool
}

func newPingFlags() *pingFlags {
	f := &pingFlags{
		flagset: flag.NewFlagSet("ping", flag.ExitOnError),
	}
	f.flagset.StringVar(&f.address, "address", "", "endpoint address in ip:port format (defaults to every serving endpoint of the latest snapshot)")
	f.flagset.StringVar(&f.hotkey, "hotkey", "", "SS58 hotkey of the endpoint given with -address")
	f.flagset.StringVar(&f.message, "message", "ping", "message to send")
	f.flagset.DurationVar(&f.timeout, "timeout", 0, "per-endpoint timeout (defaults to the config value)")
	f.flagset.BoolVar(&f.sequential, "sequential", false, "call endpoints one at a time")
	return f
}

func (a *app) pingTargets(f *pingFlags) ([]ledger.EndpointInfo, error) {
	if f.address != "" {
		host, portStr, err := net.SplitHostPort(f.address)
		if err != nil {
			return nil, err
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid port: %w", err)
		}
		return []ledger.EndpointInfo{{IP: host, Port: uint16(port), Hotkey: f.hotkey}}, nil
	}
	m, err := megastring.New(
		a.config.Network,
		a.config.NetUID,
		megastring.WithLogger(a.logger),
	).Load(a.config.SnapshotDir)
	if err != nil {
		return nil, err
	}
	ret := m.ServingEndpoints()
	if len(ret) == 0 {
		return nil, errors.New("no serving endpoints in the latest snapshot")
	}
	return ret, nil
}

func runPing(a *app, args []string) error {
	f := newPingFlags()
	if err := f.flagset.Parse(args); err != nil {
		return fmt.Errorf("failed to parse subcommand args: %w", err)
	}
	targets, err := a.pingTargets(f)
	if err != nil {
		return err
	}
	hotkey, err := a.hotkey()
	if err != nil {
		return err
	}
	b := boson.New(
		hotkey,
		boson.WithLogger(a.logger),
		boson.WithExternalIP(a.config.Boson.ExternalIP),
		boson.WithDefaultTimeout(a.config.Boson.Timeout),
		boson.WithHistorySize(a.config.Boson.HistorySize),
	)
	defer b.Close()
	var options []boson.ForwardOptionFunc
	if f.timeout > 0 {
		options = append(options, boson.WithTimeout(f.timeout))
	}
	if f.sequential {
		options = append(options, boson.WithSequential())
	}
	for idx, n := range b.Query(targets, &PingBody{Message: f.message}, options...) {
		fmt.Printf(
			"%s: %d %s %v\n",
			targets[idx].Address(),
			n.Endpoint.StatusCode,
			n.Endpoint.StatusMessage,
			n.Result(),
		)
	}
	return nil
}
