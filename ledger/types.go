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

package ledger

import (
	"fmt"
	"net"
	"strconv"
)

// NullAddress is the hotkey/coldkey placeholder carried by the null participant
const NullAddress = "000000000000000000000000000000000000000000000000"

// ServingIPNone is the address of an endpoint that has never been served
const ServingIPNone = "0.0.0.0"

// Record is implemented by every decoded record type
type Record interface {
	RecordKind() RecordKind
	isRecord()
}

// WeightPair is a sparse (uid, value) entry of a weight or bond row
type WeightPair struct {
	UID   uint16
	Value uint16
}

// EndpointInfo describes the serving address and identity of a participant
type EndpointInfo struct {
	Block        uint64
	Version      uint32
	IP           string
	Port         uint16
	IPType       uint8
	Protocol     uint8
	Placeholder1 uint8
	Placeholder2 uint8
	Hotkey       string
	Coldkey      string
}

func (EndpointInfo) RecordKind() RecordKind { return KindEndpointInfo }
func (EndpointInfo) isRecord()              {}

// IsServing reports whether the endpoint has ever announced an address
func (e EndpointInfo) IsServing() bool {
	return e.IP != ServingIPNone
}

// Equal compares every non-derived field
func (e EndpointInfo) Equal(o EndpointInfo) bool {
	return e.Version == o.Version &&
		e.IP == o.IP &&
		e.Port == o.Port &&
		e.IPType == o.IPType &&
		e.Protocol == o.Protocol &&
		e.Hotkey == o.Hotkey &&
		e.Coldkey == o.Coldkey &&
		e.Placeholder1 == o.Placeholder1 &&
		e.Placeholder2 == o.Placeholder2
}

// Address returns the host:port form used to dial the endpoint
func (e EndpointInfo) Address() string {
	return net.JoinHostPort(e.IP, strconv.Itoa(int(e.Port)))
}

func (e EndpointInfo) String() string {
	return fmt.Sprintf("/ipv%d/%s:%d", e.IPType, e.IP, e.Port)
}

// PrometheusInfo is the metrics endpoint announced by a participant
type PrometheusInfo struct {
	Block   uint64
	Version uint32
	IP      string
	Port    uint16
	IPType  uint8
}

func (PrometheusInfo) RecordKind() RecordKind { return KindPrometheusInfo }
func (PrometheusInfo) isRecord()              {}

// StakeEntry is a single contributor's stake on a hotkey
type StakeEntry struct {
	Coldkey string
	Stake   Balance
}

// ParticipantInfoLite is a participant without its weight and bond rows
type ParticipantInfoLite struct {
	Hotkey          string
	Coldkey         string
	UID             uint16
	NetUID          uint16
	Active          bool
	EndpointInfo    EndpointInfo
	PrometheusInfo  PrometheusInfo
	Stakes          []StakeEntry
	Stake           Balance
	Rank            float64
	Emission        Balance
	Incentive       float64
	Consensus       float64
	Trust           float64
	ValidatorTrust  float64
	Dividends       float64
	LastUpdate      uint64
	ValidatorPermit bool
	PruningScore    uint16
	IsNull          bool
}

func (ParticipantInfoLite) RecordKind() RecordKind { return KindParticipantInfoLite }
func (ParticipantInfoLite) isRecord()              {}

// StakeDict returns the per-contributor stake keyed by coldkey
func (p ParticipantInfoLite) StakeDict() map[string]Balance {
	ret := make(map[string]Balance, len(p.Stakes))
	for _, entry := range p.Stakes {
		ret[entry.Coldkey] += entry.Stake
	}
	return ret
}

// ParticipantInfo is a participant including its weight and bond rows
type ParticipantInfo struct {
	ParticipantInfoLite
	Weights []WeightPair
	Bonds   []WeightPair
}

func (ParticipantInfo) RecordKind() RecordKind { return KindParticipantInfo }
func (ParticipantInfo) isRecord()              {}

// NullParticipant returns the sentinel used when a participant is not found
func NullParticipant() ParticipantInfo {
	return ParticipantInfo{
		ParticipantInfoLite: ParticipantInfoLite{
			Hotkey:  NullAddress,
			Coldkey: NullAddress,
			UID:     0,
			EndpointInfo: EndpointInfo{
				IP:      ServingIPNone,
				Hotkey:  NullAddress,
				Coldkey: NullAddress,
			},
			PrometheusInfo: PrometheusInfo{IP: ServingIPNone},
			IsNull:         true,
		},
	}
}

// SubnetConnection is a registration requirement on another subnetwork
type SubnetConnection struct {
	NetUID      uint16
	Requirement float64
}

// SubnetInfo describes a subnetwork
type SubnetInfo struct {
	NetUID                 uint16
	Rho                    uint16
	Kappa                  float64
	Difficulty             uint64
	ImmunityPeriod         uint16
	MaxAllowedValidators   uint16
	MinAllowedWeights      uint16
	MaxWeightsLimit        uint16
	ScalingLawPower        uint16
	SubnetworkN            uint16
	MaxN                   uint16
	BlocksSinceEpoch       uint64
	Tempo                  uint16
	Modality               uint16
	ConnectionRequirements []SubnetConnection
	EmissionValue          uint64
	Burn                   Balance
	Owner                  string
}

func (SubnetInfo) RecordKind() RecordKind { return KindSubnetInfo }
func (SubnetInfo) isRecord()              {}

// SubnetHyperparams holds the tunable parameters of a subnetwork
type SubnetHyperparams struct {
	Rho                   uint16
	Kappa                 uint16
	ImmunityPeriod        uint16
	MinAllowedWeights     uint16
	MaxWeightsLimit       uint16
	Tempo                 uint16
	MinDifficulty         uint64
	MaxDifficulty         uint64
	WeightsVersion        uint64
	WeightsRateLimit      uint64
	AdjustmentInterval    uint16
	ActivityCutoff        uint16
	RegistrationAllowed   bool
	TargetRegsPerInterval uint16
	MinBurn               Balance
	MaxBurn               Balance
	BondsMovingAvg        uint64
	MaxRegsPerBlock       uint16
}

func (SubnetHyperparams) RecordKind() RecordKind { return KindSubnetHyperparams }
func (SubnetHyperparams) isRecord()              {}

// StakeInfo is the stake a coldkey holds on one hotkey
type StakeInfo struct {
	Hotkey  string
	Coldkey string
	Stake   Balance
}

func (StakeInfo) RecordKind() RecordKind { return KindStakeInfo }
func (StakeInfo) isRecord()              {}

// Nominator is a coldkey that delegated stake to a delegate
type Nominator struct {
	Coldkey string
	Stake   Balance
}

// DelegateInfo describes a hotkey that accepts delegated stake
type DelegateInfo struct {
	Hotkey           string
	Take             float64
	Nominators       []Nominator
	TotalStake       Balance
	Owner            string
	Registrations    []uint16
	ValidatorPermits []uint16
	ReturnPer1000    Balance
	TotalDailyReturn Balance
}

func (DelegateInfo) RecordKind() RecordKind { return KindDelegateInfo }
func (DelegateInfo) isRecord()              {}

// DelegatedInfo pairs a delegate with the stake a given coldkey placed on it
type DelegatedInfo struct {
	Delegate DelegateInfo
	Stake    Balance
}

func (DelegatedInfo) RecordKind() RecordKind { return KindDelegatedInfo }
func (DelegatedInfo) isRecord()              {}
