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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/blinklabs-io/gotensor/cbor"
	"github.com/blinklabs-io/gotensor/ledger"
	"go.uber.org/zap"
)

const (
	snapshotExtension = "cbor"
	// snapshotFormat is bumped whenever snapshotBody changes shape
	snapshotFormat = 1
	// snapshotFileFields is the number of items in the snapshotFile array
	snapshotFileFields = 5
)

var ErrSnapshotFormat = errors.New("unsupported snapshot format")

// snapshotFile is the on-disk layout. The header identifies the snapshot
// without decoding the body, which holds the per-participant data
type snapshotFile struct {
	cbor.StructAsArray
	Format  uint8
	Network string
	NetUID  uint16
	Block   uint64
	Body    cbor.RawMessage
}

type snapshotBody struct {
	cbor.StructAsArray
	Version         uint32
	N               uint16
	Stake           []ledger.Balance
	TotalStake      []ledger.Balance
	Ranks           []float64
	Trust           []float64
	Consensus       []float64
	ValidatorTrust  []float64
	Incentive       []float64
	Emission        []ledger.Balance
	Dividends       []float64
	Active          []bool
	LastUpdate      []uint64
	ValidatorPermit []bool
	Weights         [][]float64
	Bonds           [][]float64
	Endpoints       []ledger.EndpointInfo
}

func encodeSnapshot(m *Megastring) ([]byte, error) {
	body, err := cbor.Encode(snapshotBody{
		Version:         m.Version,
		N:               m.N,
		Stake:           m.Stake,
		TotalStake:      m.TotalStake,
		Ranks:           m.Ranks,
		Trust:           m.Trust,
		Consensus:       m.Consensus,
		ValidatorTrust:  m.ValidatorTrust,
		Incentive:       m.Incentive,
		Emission:        m.Emission,
		Dividends:       m.Dividends,
		Active:          m.Active,
		LastUpdate:      m.LastUpdate,
		ValidatorPermit: m.ValidatorPermit,
		Weights:         m.Weights,
		Bonds:           m.Bonds,
		Endpoints:       m.Endpoints,
	})
	if err != nil {
		return nil, err
	}
	return cbor.Encode(snapshotFile{
		Format:  snapshotFormat,
		Network: m.Network,
		NetUID:  m.NetUID,
		Block:   m.Block,
		Body:    body,
	})
}

// decodeSnapshotHeader decodes a snapshot file, leaving the body raw
func decodeSnapshotHeader(data []byte) (*snapshotFile, error) {
	count, err := cbor.ListLength(data)
	if err != nil {
		return nil, err
	}
	if count != snapshotFileFields {
		return nil, fmt.Errorf("%w: %d header items", ErrSnapshotFormat, count)
	}
	file := &snapshotFile{}
	if err := cbor.DecodeAll(data, file); err != nil {
		return nil, err
	}
	if file.Format != snapshotFormat {
		return nil, fmt.Errorf("%w: version %d", ErrSnapshotFormat, file.Format)
	}
	return file, nil
}

func decodeSnapshotBody(file *snapshotFile) (*Megastring, error) {
	var body snapshotBody
	if err := cbor.DecodeAll(file.Body, &body); err != nil {
		return nil, err
	}
	return &Megastring{
		Network:         file.Network,
		NetUID:          file.NetUID,
		Block:           file.Block,
		Version:         body.Version,
		N:               body.N,
		Stake:           body.Stake,
		TotalStake:      body.TotalStake,
		Ranks:           body.Ranks,
		Trust:           body.Trust,
		Consensus:       body.Consensus,
		ValidatorTrust:  body.ValidatorTrust,
		Incentive:       body.Incentive,
		Emission:        body.Emission,
		Dividends:       body.Dividends,
		Active:          body.Active,
		LastUpdate:      body.LastUpdate,
		ValidatorPermit: body.ValidatorPermit,
		Weights:         body.Weights,
		Bonds:           body.Bonds,
		Endpoints:       body.Endpoints,
	}, nil
}

var snapshotFileRegexp = regexp.MustCompile(`^block-(\d+)\.` + snapshotExtension + `$`)

// SnapshotDir returns the directory holding the snapshots of a subnetwork
func SnapshotDir(root string, network string, netuid uint16) string {
	return filepath.Join(root, network, fmt.Sprintf("netuid-%d", netuid))
}

// Save writes the snapshot below root and returns the file path. Saving the
// same block twice replaces the earlier file
func (m *Megastring) Save(root string) (string, error) {
	dir := SnapshotDir(root, m.Network, m.NetUID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := encodeSnapshot(m)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("block-%d.%s", m.Block, snapshotExtension))
	tmpFile, err := os.CreateTemp(dir, ".block-*.tmp")
	if err != nil {
		return "", err
	}
	tmpPath := tmpFile.Name()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	m.config.Logger.Debug(
		"saved megastring snapshot",
		zap.String("path", path),
		zap.Uint64("block", m.Block),
	)
	return path, nil
}

// Load returns the latest snapshot of this subnetwork saved below root
func (m *Megastring) Load(root string) (*Megastring, error) {
	return loadFromPath(
		SnapshotDir(root, m.Network, m.NetUID),
		m.config,
		func(file *snapshotFile) error {
			if file.Network != m.Network || file.NetUID != m.NetUID {
				return fmt.Errorf(
					"%w: snapshot is for %s netuid %d",
					ErrInconsistent,
					file.Network,
					file.NetUID,
				)
			}
			return nil
		},
	)
}

// LoadFromPath returns the snapshot with the highest block number in dir
func LoadFromPath(dir string, options ...MegastringOptionFunc) (*Megastring, error) {
	return loadFromPath(dir, NewConfig(options...), nil)
}

// loadFromPath reads the latest snapshot in dir. check, when set, sees the
// header before the body is decoded
func loadFromPath(dir string, config Config, check func(*snapshotFile) error) (*Megastring, error) {
	path, err := latestSnapshot(dir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	file, err := decodeSnapshotHeader(data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if check != nil {
		if err := check(file); err != nil {
			return nil, err
		}
	}
	ret, err := decodeSnapshotBody(file)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if err := ret.validate(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	ret.config = config
	return ret, nil
}

func latestSnapshot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s does not exist", ErrNoSnapshots, dir)
		}
		return "", err
	}
	var latest string
	var latestBlock uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := snapshotFileRegexp.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		block, err := strconv.ParseUint(match[1], 10, 64)
		if err != nil {
			continue
		}
		if latest == "" || block > latestBlock {
			latest = entry.Name()
			latestBlock = block
		}
	}
	if latest == "" {
		return "", fmt.Errorf("%w: %s", ErrNoSnapshots, dir)
	}
	return filepath.Join(dir, latest), nil
}
