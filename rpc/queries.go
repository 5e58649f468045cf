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

package rpc

import (
	"context"
	"fmt"

	"github.com/blinklabs-io/gotensor/keypair"
	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/blinklabs-io/gotensor/scale"
)

const (
	apiNeuronInfo   = "NeuronInfoRuntimeApi"
	apiSubnetInfo   = "SubnetInfoRuntimeApi"
	apiDelegateInfo = "DelegateInfoRuntimeApi"
	apiStakeInfo    = "StakeInfoRuntimeApi"
)

func (c *Client) runtimeAPIArgs(ctx context.Context, api string, method string, args ...any) ([]byte, error) {
	params, err := scale.MarshalAll(args...)
	if err != nil {
		return nil, fmt.Errorf("encode %s_%s params: %w", api, method, err)
	}
	return c.RuntimeAPI(ctx, api, method, params)
}

// ParticipantsLite returns every participant of a subnetwork without weights
// and bonds
func (c *Client) ParticipantsLite(ctx context.Context, netuid uint16) ([]ledger.ParticipantInfoLite, error) {
	data, err := c.runtimeAPIArgs(ctx, apiNeuronInfo, "get_neurons_lite", netuid)
	if err != nil {
		return nil, err
	}
	ret, err := ledger.DecodeParticipantsLite(data)
	if err != nil {
		return nil, err
	}
	if ret == nil {
		ret = []ledger.ParticipantInfoLite{}
	}
	return ret, nil
}

// Participants returns every participant of a subnetwork including weights
// and bonds
func (c *Client) Participants(ctx context.Context, netuid uint16) ([]ledger.ParticipantInfo, error) {
	data, err := c.runtimeAPIArgs(ctx, apiNeuronInfo, "get_neurons", netuid)
	if err != nil {
		return nil, err
	}
	ret, err := ledger.DecodeParticipants(data)
	if err != nil {
		return nil, err
	}
	if ret == nil {
		ret = []ledger.ParticipantInfo{}
	}
	return ret, nil
}

// ParticipantForUID returns a single participant. A uid with no participant
// yields the null participant
func (c *Client) ParticipantForUID(ctx context.Context, netuid uint16, uid uint16) (ledger.ParticipantInfo, error) {
	data, err := c.runtimeAPIArgs(ctx, apiNeuronInfo, "get_neuron", netuid, uid)
	if err != nil {
		return ledger.ParticipantInfo{}, err
	}
	ret, err := ledger.DecodeParticipant(data)
	if err != nil {
		return ledger.ParticipantInfo{}, err
	}
	if ret == nil {
		return ledger.NullParticipant(), nil
	}
	return *ret, nil
}

// SubnetInfo returns a subnetwork description, or nil if it does not exist
func (c *Client) SubnetInfo(ctx context.Context, netuid uint16) (*ledger.SubnetInfo, error) {
	data, err := c.runtimeAPIArgs(ctx, apiSubnetInfo, "get_subnet_info", netuid)
	if err != nil {
		return nil, err
	}
	return ledger.DecodeSubnetInfo(data)
}

// AllSubnetsInfo returns the description of every existing subnetwork
func (c *Client) AllSubnetsInfo(ctx context.Context) ([]ledger.SubnetInfo, error) {
	data, err := c.runtimeAPIArgs(ctx, apiSubnetInfo, "get_subnets_info")
	if err != nil {
		return nil, err
	}
	return ledger.DecodeSubnetInfos(data)
}

// SubnetHyperparams returns the hyperparameters of a subnetwork, or nil if it
// does not exist
func (c *Client) SubnetHyperparams(ctx context.Context, netuid uint16) (*ledger.SubnetHyperparams, error) {
	data, err := c.runtimeAPIArgs(ctx, apiSubnetInfo, "get_subnet_hyperparams", netuid)
	if err != nil {
		return nil, err
	}
	return ledger.DecodeSubnetHyperparams(data)
}

// Delegates returns every delegate
func (c *Client) Delegates(ctx context.Context) ([]ledger.DelegateInfo, error) {
	data, err := c.runtimeAPIArgs(ctx, apiDelegateInfo, "get_delegates")
	if err != nil {
		return nil, err
	}
	return ledger.DecodeDelegates(data)
}

// DelegatedByColdkey returns the delegates a coldkey has staked to, along with
// the stake placed on each
func (c *Client) DelegatedByColdkey(ctx context.Context, coldkey string) ([]ledger.DelegatedInfo, error) {
	id, err := ledger.AccountIDFromSS58(coldkey)
	if err != nil {
		return nil, err
	}
	data, err := c.runtimeAPIArgs(ctx, apiDelegateInfo, "get_delegated", id)
	if err != nil {
		return nil, err
	}
	return ledger.DecodeDelegated(data)
}

// StakeInfoForColdkey returns the stake a coldkey holds on each hotkey
func (c *Client) StakeInfoForColdkey(ctx context.Context, coldkey string) ([]ledger.StakeInfo, error) {
	id, err := ledger.AccountIDFromSS58(coldkey)
	if err != nil {
		return nil, err
	}
	data, err := c.runtimeAPIArgs(ctx, apiStakeInfo, "get_stake_info_for_coldkey", id)
	if err != nil {
		return nil, err
	}
	return ledger.DecodeStakeInfos(data)
}

func (c *Client) storageUint(ctx context.Context, module string, item string, params ...any) (uint64, error) {
	v, err := c.StorageValue(ctx, module, item, params...)
	if err != nil {
		return 0, err
	}
	n, ok := v.(uint64)
	if !ok {
		return 0, fmt.Errorf("%s.%s: unexpected value %T", module, item, v)
	}
	return n, nil
}

// TotalSubnets returns the number of subnetworks
func (c *Client) TotalSubnets(ctx context.Context) (uint16, error) {
	n, err := c.storageUint(ctx, "SubtensorModule", "TotalNetworks")
	return uint16(n), err
}

// SubnetExists reports whether a subnetwork exists
func (c *Client) SubnetExists(ctx context.Context, netuid uint16) (bool, error) {
	v, err := c.StorageValue(ctx, "SubtensorModule", "NetworksAdded", netuid)
	if err != nil {
		return false, err
	}
	added, _ := v.(bool)
	return added, nil
}

// SubnetworkN returns the number of participants of a subnetwork
func (c *Client) SubnetworkN(ctx context.Context, netuid uint16) (uint16, error) {
	n, err := c.storageUint(ctx, "SubtensorModule", "SubnetworkN", netuid)
	return uint16(n), err
}

// Tempo returns the number of blocks between epochs of a subnetwork
func (c *Client) Tempo(ctx context.Context, netuid uint16) (uint16, error) {
	n, err := c.storageUint(ctx, "SubtensorModule", "Tempo", netuid)
	return uint16(n), err
}

// Burn returns the current registration cost of a subnetwork
func (c *Client) Burn(ctx context.Context, netuid uint16) (ledger.Balance, error) {
	n, err := c.storageUint(ctx, "SubtensorModule", "Burn", netuid)
	return ledger.Balance(n), err
}

// TotalHotkeyStake returns the total stake on a hotkey
func (c *Client) TotalHotkeyStake(ctx context.Context, hotkey string) (ledger.Balance, error) {
	id, err := ledger.AccountIDFromSS58(hotkey)
	if err != nil {
		return 0, err
	}
	n, err := c.storageUint(ctx, "SubtensorModule", "TotalHotkeyStake", id)
	return ledger.Balance(n), err
}

// UIDForHotkey returns the uid of a hotkey on a subnetwork and whether it is
// registered
func (c *Client) UIDForHotkey(ctx context.Context, netuid uint16, hotkey string) (uint16, bool, error) {
	id, err := ledger.AccountIDFromSS58(hotkey)
	if err != nil {
		return 0, false, err
	}
	v, err := c.StorageValue(ctx, "SubtensorModule", "Uids", netuid, id)
	if err != nil || v == nil {
		return 0, false, err
	}
	uid, ok := v.(uint64)
	if !ok {
		return 0, false, fmt.Errorf("SubtensorModule.Uids: unexpected value %T", v)
	}
	return uint16(uid), true, nil
}

// IsHotkeyRegistered reports whether a hotkey is registered on a subnetwork
func (c *Client) IsHotkeyRegistered(ctx context.Context, netuid uint16, hotkey string) (bool, error) {
	_, ok, err := c.UIDForHotkey(ctx, netuid, hotkey)
	return ok, err
}

// EndpointInfo returns the serving endpoint announced by a hotkey on a
// subnetwork, or nil if none was announced
func (c *Client) EndpointInfo(ctx context.Context, netuid uint16, hotkey string) (*ledger.EndpointInfo, error) {
	id, err := ledger.AccountIDFromSS58(hotkey)
	if err != nil {
		return nil, err
	}
	v, err := c.StorageValue(ctx, "SubtensorModule", "Axons", netuid, id)
	if err != nil || v == nil {
		return nil, err
	}
	data, err := ledger.EncodeValue("AxonInfo", v)
	if err != nil {
		return nil, err
	}
	ret, err := ledger.DecodeEndpointInfo(data)
	if err != nil || ret == nil {
		return nil, err
	}
	ret.Hotkey = id.SS58()
	coldkey, err := c.StorageValue(ctx, "SubtensorModule", "Owner", id)
	if err != nil {
		return nil, err
	}
	if raw, ok := coldkey.([]byte); ok {
		owner, err := ledger.NewAccountID(raw)
		if err != nil {
			return nil, err
		}
		ret.Coldkey = owner.SS58()
	}
	return ret, nil
}

// Weights returns the weight rows of every uid on a subnetwork
func (c *Client) Weights(ctx context.Context, netuid uint16) (map[uint16][]ledger.WeightPair, error) {
	return c.weightRows(ctx, "Weights", netuid)
}

// Bonds returns the bond rows of every uid on a subnetwork
func (c *Client) Bonds(ctx context.Context, netuid uint16) (map[uint16][]ledger.WeightPair, error) {
	return c.weightRows(ctx, "Bonds", netuid)
}

func (c *Client) weightRows(ctx context.Context, item string, netuid uint16) (map[uint16][]ledger.WeightPair, error) {
	entries, err := c.StorageMap(ctx, "SubtensorModule", item, netuid)
	if err != nil {
		return nil, err
	}
	ret := make(map[uint16][]ledger.WeightPair, len(entries))
	for _, entry := range entries {
		uid, ok := entry.Key.(uint64)
		if !ok {
			return nil, fmt.Errorf("SubtensorModule.%s: unexpected key %T", item, entry.Key)
		}
		items, ok := entry.Value.([]ledger.Value)
		if !ok {
			return nil, fmt.Errorf("SubtensorModule.%s: unexpected value %T", item, entry.Value)
		}
		row := make([]ledger.WeightPair, 0, len(items))
		for _, cell := range items {
			pair, ok := cell.([]ledger.Value)
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("SubtensorModule.%s: malformed row for uid %d", item, uid)
			}
			dest, _ := pair[0].(uint64)
			value, _ := pair[1].(uint64)
			row = append(row, ledger.WeightPair{UID: uint16(dest), Value: uint16(value)})
		}
		ret[uint16(uid)] = row
	}
	return ret, nil
}

// ExistentialDeposit returns the minimum balance an account must hold
func (c *Client) ExistentialDeposit(ctx context.Context) (ledger.Balance, error) {
	v, err := c.Constant(ctx, "Balances", "ExistentialDeposit", "u64")
	if err != nil {
		return 0, err
	}
	n, _ := v.(uint64)
	return ledger.Balance(n), nil
}

// Balance returns the free balance of an account
func (c *Client) Balance(ctx context.Context, address string) (ledger.Balance, error) {
	id, err := ledger.AccountIDFromSS58(address)
	if err != nil {
		return 0, err
	}
	v, err := c.StorageValue(ctx, "System", "Account", id)
	if err != nil || v == nil {
		return 0, err
	}
	info, ok := v.(*ledger.Struct)
	if !ok {
		return 0, fmt.Errorf("System.Account: unexpected value %T", v)
	}
	data, ok := info.Get("data").(*ledger.Struct)
	if !ok {
		return 0, fmt.Errorf("System.Account: missing account data")
	}
	free, _ := data.Get("free").(uint64)
	return ledger.Balance(free), nil
}

// Register registers a hotkey on a subnetwork by burning from the signing
// coldkey. A hotkey that is already registered counts as success
func (c *Client) Register(ctx context.Context, netuid uint16, hotkey string, coldkey keypair.Signer, wait WaitMode) (*ExtrinsicReceipt, error) {
	call, err := BurnedRegister(netuid, hotkey)
	if err != nil {
		return nil, err
	}
	receipt, err := c.SubmitExtrinsic(ctx, call, coldkey, wait)
	if err != nil {
		if IsAlreadyRegistered(err) {
			return &ExtrinsicReceipt{Success: true, Message: "already registered"}, nil
		}
		return nil, err
	}
	return receipt, nil
}
