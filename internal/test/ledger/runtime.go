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

package test_ledger

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/blinklabs-io/gotensor/ledger"
)

// DefaultMaxN is the participant cap reported for every subnetwork
const DefaultMaxN = 256

type runtimeHandler func(s *State, block uint64, params []byte) ([]byte, error)

var runtimeHandlers = map[string]runtimeHandler{
	"NeuronInfoRuntimeApi_get_neurons_lite":           handleNeuronsLite,
	"NeuronInfoRuntimeApi_get_neurons":                handleNeurons,
	"NeuronInfoRuntimeApi_get_neuron":                 handleNeuron,
	"SubnetInfoRuntimeApi_get_subnet_info":            handleSubnetInfo,
	"SubnetInfoRuntimeApi_get_subnets_info":           handleSubnetsInfo,
	"SubnetInfoRuntimeApi_get_subnet_hyperparams":     handleHyperparams,
	"DelegateInfoRuntimeApi_get_delegates":            handleDelegates,
	"DelegateInfoRuntimeApi_get_delegated":            handleDelegated,
	"StakeInfoRuntimeApi_get_stake_info_for_coldkey": handleStakeInfo,
}

func paramU16(params []byte) (uint16, error) {
	v, err := ledger.DecodeValue("u16", params)
	if err != nil {
		return 0, err
	}
	return uint16(v.(uint64)), nil
}

func paramU16Pair(params []byte) (uint16, uint16, error) {
	v, err := ledger.DecodeValue("(u16, u16)", params)
	if err != nil {
		return 0, 0, err
	}
	items := v.([]ledger.Value)
	return uint16(items[0].(uint64)), uint16(items[1].(uint64)), nil
}

func paramAccount(params []byte) (ledger.AccountID, error) {
	v, err := ledger.DecodeValue("AccountId", params)
	if err != nil {
		return ledger.AccountID{}, err
	}
	return ledger.NewAccountID(v.([]byte))
}

func handleNeuronsLite(s *State, block uint64, params []byte) ([]byte, error) {
	netuid, err := paramU16(params)
	if err != nil {
		return nil, err
	}
	n, err := s.readUint(block, subtensor, "SubnetworkN", netuid)
	if err != nil {
		return nil, err
	}
	ret := make([]ledger.Record, 0, n)
	for uid := range uint16(n) {
		p, err := s.participant(block, netuid, uid)
		if err != nil {
			return nil, err
		}
		ret = append(ret, p.ParticipantInfoLite)
	}
	return ledger.Encode(ledger.KindParticipantInfoLite, ret, ledger.WrapVec)
}

func handleNeurons(s *State, block uint64, params []byte) ([]byte, error) {
	netuid, err := paramU16(params)
	if err != nil {
		return nil, err
	}
	n, err := s.readUint(block, subtensor, "SubnetworkN", netuid)
	if err != nil {
		return nil, err
	}
	ret := make([]ledger.Record, 0, n)
	for uid := range uint16(n) {
		p, err := s.participant(block, netuid, uid)
		if err != nil {
			return nil, err
		}
		ret = append(ret, p)
	}
	return ledger.Encode(ledger.KindParticipantInfo, ret, ledger.WrapVec)
}

func handleNeuron(s *State, block uint64, params []byte) ([]byte, error) {
	netuid, uid, err := paramU16Pair(params)
	if err != nil {
		return nil, err
	}
	n, err := s.readUint(block, subtensor, "SubnetworkN", netuid)
	if err != nil {
		return nil, err
	}
	if uint64(uid) >= n {
		return ledger.Encode(ledger.KindParticipantInfo, nil, ledger.WrapOption)
	}
	p, err := s.participant(block, netuid, uid)
	if err != nil {
		return nil, err
	}
	return ledger.Encode(ledger.KindParticipantInfo, p, ledger.WrapOption)
}

func handleSubnetInfo(s *State, block uint64, params []byte) ([]byte, error) {
	netuid, err := paramU16(params)
	if err != nil {
		return nil, err
	}
	info, err := s.subnetInfo(block, netuid)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return ledger.Encode(ledger.KindSubnetInfo, nil, ledger.WrapOption)
	}
	return ledger.Encode(ledger.KindSubnetInfo, *info, ledger.WrapOption)
}

func handleSubnetsInfo(s *State, block uint64, _ []byte) ([]byte, error) {
	netuids, err := s.netuids(block)
	if err != nil {
		return nil, err
	}
	ret := make([]ledger.Record, 0, len(netuids))
	for _, netuid := range netuids {
		info, err := s.subnetInfo(block, netuid)
		if err != nil {
			return nil, err
		}
		if info == nil {
			ret = append(ret, nil)
			continue
		}
		ret = append(ret, *info)
	}
	return ledger.Encode(ledger.KindSubnetInfo, ret, ledger.WrapVecOption)
}

func handleHyperparams(s *State, block uint64, params []byte) ([]byte, error) {
	netuid, err := paramU16(params)
	if err != nil {
		return nil, err
	}
	exists, err := s.subnetExists(block, netuid)
	if err != nil {
		return nil, err
	}
	if !exists {
		return ledger.Encode(ledger.KindSubnetHyperparams, nil, ledger.WrapOption)
	}
	tempo, err := s.readUint(block, subtensor, "Tempo", netuid)
	if err != nil {
		return nil, err
	}
	burn, err := s.readUint(block, subtensor, "Burn", netuid)
	if err != nil {
		return nil, err
	}
	return ledger.Encode(
		ledger.KindSubnetHyperparams,
		ledger.SubnetHyperparams{
			Tempo:               uint16(tempo),
			RegistrationAllowed: true,
			MinBurn:             ledger.Balance(burn),
			MaxBurn:             ledger.Balance(burn),
			MaxRegsPerBlock:     1,
		},
		ledger.WrapOption,
	)
}

func handleDelegates(s *State, block uint64, _ []byte) ([]byte, error) {
	delegates, err := s.delegates(block)
	if err != nil {
		return nil, err
	}
	ret := make([]ledger.Record, 0, len(delegates))
	for _, d := range delegates {
		ret = append(ret, d)
	}
	return ledger.Encode(ledger.KindDelegateInfo, ret, ledger.WrapVec)
}

func handleDelegated(s *State, block uint64, params []byte) ([]byte, error) {
	coldkey, err := paramAccount(params)
	if err != nil {
		return nil, err
	}
	delegates, err := s.delegates(block)
	if err != nil {
		return nil, err
	}
	ret := []ledger.Record{}
	for _, d := range delegates {
		for _, nominator := range d.Nominators {
			if nominator.Coldkey == coldkey.SS58() {
				ret = append(ret, ledger.DelegatedInfo{Delegate: d, Stake: nominator.Stake})
			}
		}
	}
	return ledger.Encode(ledger.KindDelegatedInfo, ret, ledger.WrapVec)
}

func handleStakeInfo(s *State, block uint64, params []byte) ([]byte, error) {
	coldkey, err := paramAccount(params)
	if err != nil {
		return nil, err
	}
	entries, err := s.stakeEntries(block)
	if err != nil {
		return nil, err
	}
	ret := []ledger.Record{}
	for _, entry := range entries {
		if entry.coldkey != coldkey {
			continue
		}
		ret = append(ret, ledger.StakeInfo{
			Hotkey:  entry.hotkey.SS58(),
			Coldkey: entry.coldkey.SS58(),
			Stake:   ledger.Balance(entry.amount),
		})
	}
	return ledger.Encode(ledger.KindStakeInfo, ret, ledger.WrapVec)
}

// netuids returns the existing subnetworks as of block in ascending order
func (s *State) netuids(block uint64) ([]uint16, error) {
	entries, err := s.mapEntries(block, subtensor, "NetworksAdded")
	if err != nil {
		return nil, err
	}
	var ret []uint16
	for _, entry := range entries {
		netuid, err := paramU16(entry.Key)
		if err != nil {
			return nil, err
		}
		if len(entry.Value) == 1 && entry.Value[0] == 1 {
			ret = append(ret, netuid)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret, nil
}

func (s *State) subnetInfo(block uint64, netuid uint16) (*ledger.SubnetInfo, error) {
	exists, err := s.subnetExists(block, netuid)
	if err != nil || !exists {
		return nil, err
	}
	n, err := s.readUint(block, subtensor, "SubnetworkN", netuid)
	if err != nil {
		return nil, err
	}
	tempo, err := s.readUint(block, subtensor, "Tempo", netuid)
	if err != nil {
		return nil, err
	}
	burn, err := s.readUint(block, subtensor, "Burn", netuid)
	if err != nil {
		return nil, err
	}
	info := &ledger.SubnetInfo{
		NetUID:                 netuid,
		SubnetworkN:            uint16(n),
		MaxN:                   DefaultMaxN,
		Tempo:                  uint16(tempo),
		ConnectionRequirements: []ledger.SubnetConnection{},
		Burn:                   ledger.Balance(burn),
	}
	if tempo > 0 {
		info.BlocksSinceEpoch = block % (tempo + 1)
	}
	owner, err := s.readAccount(block, subtensor, "SubnetOwner", netuid)
	if err != nil {
		return nil, err
	}
	if owner != nil {
		info.Owner = owner.SS58()
	}
	return info, nil
}

func axonFromValue(v ledger.Value) ledger.EndpointInfo {
	ret := ledger.EndpointInfo{IP: ledger.ServingIPNone}
	axon, ok := v.(*ledger.Struct)
	if !ok {
		return ret
	}
	num := func(name string) uint64 {
		n, _ := axon.Get(name).(uint64)
		return n
	}
	ip, _ := axon.Get("ip").(*big.Int)
	ret.Block = num("block")
	ret.Version = uint32(num("version"))
	ret.IPType = uint8(num("ip_type"))
	ret.IP = ledger.IntToIP(ip, ret.IPType)
	ret.Port = uint16(num("port"))
	ret.Protocol = uint8(num("protocol"))
	ret.Placeholder1 = uint8(num("placeholder1"))
	ret.Placeholder2 = uint8(num("placeholder2"))
	return ret
}

func prometheusFromValue(v ledger.Value) ledger.PrometheusInfo {
	ret := ledger.PrometheusInfo{IP: ledger.ServingIPNone}
	info, ok := v.(*ledger.Struct)
	if !ok {
		return ret
	}
	num := func(name string) uint64 {
		n, _ := info.Get(name).(uint64)
		return n
	}
	ip, _ := info.Get("ip").(*big.Int)
	ret.Block = num("block")
	ret.Version = uint32(num("version"))
	ret.IPType = uint8(num("ip_type"))
	ret.IP = ledger.IntToIP(ip, ret.IPType)
	ret.Port = uint16(num("port"))
	return ret
}

func (s *State) weightRow(block uint64, item string, netuid uint16, uid uint16) ([]ledger.WeightPair, error) {
	v, err := s.readValue(block, subtensor, item, netuid, uid)
	if err != nil {
		return nil, err
	}
	rows, _ := v.([]ledger.Value)
	ret := make([]ledger.WeightPair, 0, len(rows))
	for _, row := range rows {
		pair, _ := row.([]ledger.Value)
		if len(pair) != 2 {
			return nil, fmt.Errorf("malformed %s entry for uid %d", item, uid)
		}
		target, _ := pair[0].(uint64)
		value, _ := pair[1].(uint64)
		ret = append(ret, ledger.WeightPair{UID: uint16(target), Value: uint16(value)})
	}
	return ret, nil
}

// participant assembles the full record of a registered uid from storage
func (s *State) participant(block uint64, netuid uint16, uid uint16) (ledger.ParticipantInfo, error) {
	var ret ledger.ParticipantInfo
	hotkey, err := s.readAccount(block, subtensor, "Keys", netuid, uid)
	if err != nil {
		return ret, err
	}
	if hotkey == nil {
		return ret, fmt.Errorf("uid %d on subnet %d has no hotkey", uid, netuid)
	}
	coldkey, err := s.readAccount(block, subtensor, "Owner", *hotkey)
	if err != nil {
		return ret, err
	}
	if coldkey == nil {
		coldkey = hotkey
	}
	lite := &ret.ParticipantInfoLite
	lite.Hotkey = hotkey.SS58()
	lite.Coldkey = coldkey.SS58()
	lite.UID = uid
	lite.NetUID = netuid
	axon, err := s.readValue(block, subtensor, "Axons", netuid, *hotkey)
	if err != nil {
		return ret, err
	}
	lite.EndpointInfo = axonFromValue(axon)
	lite.EndpointInfo.Hotkey = lite.Hotkey
	lite.EndpointInfo.Coldkey = lite.Coldkey
	prometheus, err := s.readValue(block, subtensor, "Prometheus", netuid, *hotkey)
	if err != nil {
		return ret, err
	}
	lite.PrometheusInfo = prometheusFromValue(prometheus)
	entries, err := s.stakeEntries(block)
	if err != nil {
		return ret, err
	}
	lite.Stakes = []ledger.StakeEntry{}
	for _, entry := range entries {
		if entry.hotkey != *hotkey {
			continue
		}
		lite.Stakes = append(lite.Stakes, ledger.StakeEntry{
			Coldkey: entry.coldkey.SS58(),
			Stake:   ledger.Balance(entry.amount),
		})
		lite.Stake += ledger.Balance(entry.amount)
	}
	stat := func(item string) (ledger.Value, error) {
		v, err := s.readValue(block, subtensor, item, netuid)
		if err != nil {
			return nil, err
		}
		return vectorElem(v, uid), nil
	}
	fraction := func(item string, dest *float64) error {
		v, err := stat(item)
		if err != nil {
			return err
		}
		raw, _ := v.(uint64)
		*dest = ledger.U16ToFloat(uint16(raw))
		return nil
	}
	for item, dest := range map[string]*float64{
		"Rank":           &lite.Rank,
		"Trust":          &lite.Trust,
		"ValidatorTrust": &lite.ValidatorTrust,
		"Consensus":      &lite.Consensus,
		"Incentive":      &lite.Incentive,
		"Dividends":      &lite.Dividends,
	} {
		if err := fraction(item, dest); err != nil {
			return ret, err
		}
	}
	values := make(map[string]ledger.Value)
	for _, item := range []string{"Active", "ValidatorPermit", "Emission", "LastUpdate", "PruningScores"} {
		v, err := stat(item)
		if err != nil {
			return ret, err
		}
		values[item] = v
	}
	lite.Active, _ = values["Active"].(bool)
	lite.ValidatorPermit, _ = values["ValidatorPermit"].(bool)
	emission, _ := values["Emission"].(uint64)
	lite.Emission = ledger.Balance(emission)
	lite.LastUpdate, _ = values["LastUpdate"].(uint64)
	pruning, _ := values["PruningScores"].(uint64)
	lite.PruningScore = uint16(pruning)
	if ret.Weights, err = s.weightRow(block, "Weights", netuid, uid); err != nil {
		return ret, err
	}
	if ret.Bonds, err = s.weightRow(block, "Bonds", netuid, uid); err != nil {
		return ret, err
	}
	return ret, nil
}

// delegates lists every delegate hotkey with its nominators as of block
func (s *State) delegates(block uint64) ([]ledger.DelegateInfo, error) {
	entries, err := s.mapEntries(block, subtensor, "Delegates")
	if err != nil {
		return nil, err
	}
	stakes, err := s.stakeEntries(block)
	if err != nil {
		return nil, err
	}
	netuids, err := s.netuids(block)
	if err != nil {
		return nil, err
	}
	ret := make([]ledger.DelegateInfo, 0, len(entries))
	for _, entry := range entries {
		hotkey, err := ledger.NewAccountID(entry.Key)
		if err != nil {
			return nil, err
		}
		take, err := paramU16(entry.Value)
		if err != nil {
			return nil, err
		}
		d := ledger.DelegateInfo{
			Hotkey:           hotkey.SS58(),
			Take:             ledger.U16ToFloat(take),
			Nominators:       []ledger.Nominator{},
			Registrations:    []uint16{},
			ValidatorPermits: []uint16{},
		}
		for _, stake := range stakes {
			if stake.hotkey != hotkey {
				continue
			}
			d.Nominators = append(d.Nominators, ledger.Nominator{
				Coldkey: stake.coldkey.SS58(),
				Stake:   ledger.Balance(stake.amount),
			})
			d.TotalStake += ledger.Balance(stake.amount)
		}
		owner, err := s.readAccount(block, subtensor, "Owner", hotkey)
		if err != nil {
			return nil, err
		}
		if owner != nil {
			d.Owner = owner.SS58()
		}
		for _, netuid := range netuids {
			uid, registered, err := s.uidFor(block, netuid, hotkey)
			if err != nil {
				return nil, err
			}
			if !registered {
				continue
			}
			d.Registrations = append(d.Registrations, netuid)
			permits, err := s.readValue(block, subtensor, "ValidatorPermit", netuid)
			if err != nil {
				return nil, err
			}
			if permit, _ := vectorElem(permits, uid).(bool); permit {
				d.ValidatorPermits = append(d.ValidatorPermits, netuid)
			}
		}
		ret = append(ret, d)
	}
	return ret, nil
}
