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

package megastring

import (
	"context"
	"fmt"
	"time"

	"github.com/blinklabs-io/gotensor"
	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/blinklabs-io/gotensor/rpc"
	"go.uber.org/zap"
)

// SyncOptions controls a Sync
type SyncOptions struct {
	// Block to sync at. Nil selects the current block
	Block *uint64
	// Lite skips weights and bonds
	Lite bool
	// Client to query through. Nil dials the network's chain endpoint for
	// the duration of the sync
	Client *rpc.Client
}

func (m *Megastring) chainEndpoint() (string, error) {
	if m.config.ChainEndpoint != "" {
		return m.config.ChainEndpoint, nil
	}
	network := gotensor.NetworkByName(m.Network)
	if !network.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownNetwork, m.Network)
	}
	return network.ChainEndpoint, nil
}

// Sync builds a new snapshot of the subnetwork. Every query of the sync is
// pinned to the same block. The receiver is left untouched
func (m *Megastring) Sync(ctx context.Context, opts SyncOptions) (*Megastring, error) {
	logger := m.config.Logger.With(
		zap.String("component", "megastring"),
		zap.String("network", m.Network),
		zap.Uint16("netuid", m.NetUID),
	)
	client := opts.Client
	if client == nil {
		endpoint, err := m.chainEndpoint()
		if err != nil {
			return nil, err
		}
		client = rpc.NewClient(
			rpc.NewHTTPBackend(endpoint, rpc.WithBackendLogger(logger)),
			rpc.WithLogger(logger),
		)
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close ledger client", zap.Error(err))
			}
		}()
	}
	var block uint64
	if opts.Block != nil {
		block = *opts.Block
	} else {
		var err error
		block, err = client.CurrentBlock(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve current block: %w", err)
		}
	}
	start := time.Now()
	pinned := client.At(block)
	ret := &Megastring{
		Network: m.Network,
		NetUID:  m.NetUID,
		Version: gotensor.VersionInt(),
		Block:   block,
		config:  m.config,
	}
	if opts.Lite {
		participants, err := pinned.ParticipantsLite(ctx, m.NetUID)
		if err != nil {
			return nil, fmt.Errorf("fetch participants: %w", err)
		}
		if err := ret.populate(participants); err != nil {
			return nil, err
		}
	} else {
		participants, err := pinned.Participants(ctx, m.NetUID)
		if err != nil {
			return nil, fmt.Errorf("fetch participants: %w", err)
		}
		if err := ret.syncFull(ctx, pinned, participants); err != nil {
			return nil, err
		}
	}
	logger.Info(
		"synced megastring",
		zap.Uint64("block", block),
		zap.Uint16("n", ret.N),
		zap.Bool("lite", opts.Lite),
		zap.Duration("elapsed", time.Since(start)),
	)
	return ret, nil
}

func (m *Megastring) syncFull(ctx context.Context, client *rpc.Client, participants []ledger.ParticipantInfo) error {
	lite := make([]ledger.ParticipantInfoLite, 0, len(participants))
	weightRows := make(map[uint16][]ledger.WeightPair, len(participants))
	bondRows := make(map[uint16][]ledger.WeightPair, len(participants))
	for _, p := range participants {
		lite = append(lite, p.ParticipantInfoLite)
		weightRows[p.UID] = p.Weights
		bondRows[p.UID] = p.Bonds
	}
	if err := m.populate(lite); err != nil {
		return err
	}
	n := int(m.N)
	cols := n
	if m.NetUID == RootNetUID {
		// root participants weigh subnetworks, which the participant
		// records do not carry
		total, err := client.TotalSubnets(ctx)
		if err != nil {
			return fmt.Errorf("fetch subnet count: %w", err)
		}
		cols = int(total)
		if weightRows, err = client.Weights(ctx, m.NetUID); err != nil {
			return fmt.Errorf("fetch root weights: %w", err)
		}
		if bondRows, err = client.Bonds(ctx, m.NetUID); err != nil {
			return fmt.Errorf("fetch root bonds: %w", err)
		}
	}
	m.Weights = denseMatrix(n, cols, weightRows)
	m.Bonds = denseMatrix(n, cols, bondRows)
	return nil
}
