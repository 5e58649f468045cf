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
	"math"
	"slices"

	"github.com/blinklabs-io/gotensor"
	"github.com/blinklabs-io/gotensor/ledger"
	"go.uber.org/zap"
)

// RootNetUID is the subnetwork whose participants set weights on
// subnetworks rather than on each other
const RootNetUID uint16 = 0

var (
	ErrNoSnapshots    = errors.New("no snapshots found")
	ErrUnknownNetwork = errors.New("unknown network")
	ErrInconsistent   = errors.New("inconsistent snapshot")
)

// Config holds the megastring configuration
type Config struct {
	Logger        *zap.Logger
	ChainEndpoint string
}

// MegastringOptionFunc represents a function used to modify the megastring config
type MegastringOptionFunc func(*Config)

// NewConfig returns a new megastring config object with the provided options applied
func NewConfig(options ...MegastringOptionFunc) Config {
	c := Config{
		Logger: zap.NewNop(),
	}
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithLogger specifies the logger to use
func WithLogger(logger *zap.Logger) MegastringOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithChainEndpoint overrides the chain endpoint used when Sync is not given
// a client
func WithChainEndpoint(endpoint string) MegastringOptionFunc {
	return func(c *Config) {
		c.ChainEndpoint = endpoint
	}
}

// Megastring is a block-stamped snapshot of the participants of one
// subnetwork. Every per-participant slice is indexed by uid and has length N.
// A Megastring is never modified after it is built; Sync returns a new one
type Megastring struct {
	Network string
	NetUID  uint16
	Version uint32
	N       uint16
	Block   uint64
	// Stake is the stake the owning coldkey put on each hotkey. Delegated
	// stake is not included, see TotalStake
	Stake []ledger.Balance
	// TotalStake is the stake on each hotkey from every contributor
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
	// Weights and Bonds are nil after a lite sync
	Weights   [][]float64
	Bonds     [][]float64
	Endpoints []ledger.EndpointInfo

	config Config
}

// New returns an empty snapshot of a subnetwork
func New(network string, netuid uint16, options ...MegastringOptionFunc) *Megastring {
	m := &Megastring{
		Network: network,
		NetUID:  netuid,
		Version: gotensor.VersionInt(),
		config:  NewConfig(options...),
	}
	m.allocate(0)
	return m
}

func (m *Megastring) allocate(n int) {
	m.N = uint16(n)
	m.Stake = make([]ledger.Balance, n)
	m.TotalStake = make([]ledger.Balance, n)
	m.Ranks = make([]float64, n)
	m.Trust = make([]float64, n)
	m.Consensus = make([]float64, n)
	m.ValidatorTrust = make([]float64, n)
	m.Incentive = make([]float64, n)
	m.Emission = make([]ledger.Balance, n)
	m.Dividends = make([]float64, n)
	m.Active = make([]bool, n)
	m.LastUpdate = make([]uint64, n)
	m.ValidatorPermit = make([]bool, n)
	m.Endpoints = make([]ledger.EndpointInfo, n)
}

// populate fills the per-participant slices, placing each participant at
// the index of its uid
func (m *Megastring) populate(participants []ledger.ParticipantInfoLite) error {
	n := len(participants)
	if n > math.MaxUint16 {
		return fmt.Errorf("%w: %d participants exceed the uid range", ErrInconsistent, n)
	}
	m.allocate(n)
	seen := make([]bool, n)
	for _, p := range participants {
		uid := int(p.UID)
		if uid >= n {
			return fmt.Errorf("%w: uid %d with %d participants", ErrInconsistent, uid, n)
		}
		if seen[uid] {
			return fmt.Errorf("%w: duplicate uid %d", ErrInconsistent, uid)
		}
		seen[uid] = true
		m.Stake[uid] = p.StakeDict()[p.Coldkey]
		m.TotalStake[uid] = p.Stake
		m.Ranks[uid] = p.Rank
		m.Trust[uid] = p.Trust
		m.Consensus[uid] = p.Consensus
		m.ValidatorTrust[uid] = p.ValidatorTrust
		m.Incentive[uid] = p.Incentive
		m.Emission[uid] = p.Emission
		m.Dividends[uid] = p.Dividends
		m.Active[uid] = p.Active
		m.LastUpdate[uid] = p.LastUpdate
		m.ValidatorPermit[uid] = p.ValidatorPermit
		m.Endpoints[uid] = p.EndpointInfo
	}
	return nil
}

// denseMatrix expands sparse rows into an n x cols matrix of fractions.
// Entries pointing outside the matrix are dropped
func denseMatrix(n int, cols int, rows map[uint16][]ledger.WeightPair) [][]float64 {
	ret := make([][]float64, n)
	for uid := range ret {
		ret[uid] = make([]float64, cols)
		for _, pair := range rows[uint16(uid)] {
			if int(pair.UID) < cols {
				ret[uid][pair.UID] = ledger.U16ToFloat(pair.Value)
			}
		}
	}
	return ret
}

// validate checks the length invariants of a snapshot
func (m *Megastring) validate() error {
	n := int(m.N)
	lengths := map[string]int{
		"stake":            len(m.Stake),
		"total_stake":      len(m.TotalStake),
		"ranks":            len(m.Ranks),
		"trust":            len(m.Trust),
		"consensus":        len(m.Consensus),
		"validator_trust":  len(m.ValidatorTrust),
		"incentive":        len(m.Incentive),
		"emission":         len(m.Emission),
		"dividends":        len(m.Dividends),
		"active":           len(m.Active),
		"last_update":      len(m.LastUpdate),
		"validator_permit": len(m.ValidatorPermit),
		"endpoints":        len(m.Endpoints),
	}
	for name, length := range lengths {
		if length != n {
			return fmt.Errorf("%w: %s has %d entries, expected %d", ErrInconsistent, name, length, n)
		}
	}
	for name, matrix := range map[string][][]float64{"weights": m.Weights, "bonds": m.Bonds} {
		if matrix == nil {
			continue
		}
		if len(matrix) != n {
			return fmt.Errorf("%w: %s has %d rows, expected %d", ErrInconsistent, name, len(matrix), n)
		}
		for idx, row := range matrix {
			if len(row) != len(matrix[0]) {
				return fmt.Errorf("%w: %s row %d has %d columns", ErrInconsistent, name, idx, len(row))
			}
		}
	}
	return nil
}

// Endpoint returns the endpoint of a uid
func (m *Megastring) Endpoint(uid uint16) (ledger.EndpointInfo, bool) {
	if int(uid) >= len(m.Endpoints) {
		return ledger.EndpointInfo{}, false
	}
	return m.Endpoints[uid], true
}

// ServingEndpoints returns the endpoints of serving participants in uid order
func (m *Megastring) ServingEndpoints() []ledger.EndpointInfo {
	ret := []ledger.EndpointInfo{}
	for _, endpoint := range m.Endpoints {
		if endpoint.IsServing() {
			ret = append(ret, endpoint)
		}
	}
	return ret
}

// Hotkeys returns the hotkey of each uid
func (m *Megastring) Hotkeys() []string {
	ret := make([]string, 0, len(m.Endpoints))
	for _, endpoint := range m.Endpoints {
		ret = append(ret, endpoint.Hotkey)
	}
	return ret
}

// Coldkeys returns the coldkey of each uid
func (m *Megastring) Coldkeys() []string {
	ret := make([]string, 0, len(m.Endpoints))
	for _, endpoint := range m.Endpoints {
		ret = append(ret, endpoint.Coldkey)
	}
	return ret
}

// UIDs returns the uids of the snapshot in order
func (m *Megastring) UIDs() []uint16 {
	ret := make([]uint16, m.N)
	for idx := range ret {
		ret[idx] = uint16(idx)
	}
	return ret
}

// UIDForHotkey returns the uid of a hotkey
func (m *Megastring) UIDForHotkey(hotkey string) (uint16, bool) {
	idx := slices.IndexFunc(m.Endpoints, func(e ledger.EndpointInfo) bool {
		return e.Hotkey == hotkey
	})
	if idx < 0 {
		return 0, false
	}
	return uint16(idx), true
}

// Metadata describes a snapshot without its per-participant data
type Metadata struct {
	Network string
	NetUID  uint16
	N       uint16
	Block   uint64
	Version uint32
	Lite    bool
}

// Metadata returns the snapshot metadata
func (m *Megastring) Metadata() Metadata {
	return Metadata{
		Network: m.Network,
		NetUID:  m.NetUID,
		N:       m.N,
		Block:   m.Block,
		Version: m.Version,
		Lite:    m.Weights == nil,
	}
}

func (m *Megastring) String() string {
	return fmt.Sprintf(
		"megastring(netuid:%d, n:%d, block:%d, network:%s)",
		m.NetUID,
		m.N,
		m.Block,
		m.Network,
	)
}
