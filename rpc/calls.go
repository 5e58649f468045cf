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
	"errors"
	"fmt"
	"math"

	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/blinklabs-io/gotensor/scale"
)

var ErrInvalidWeights = errors.New("invalid weights")

// BurnedRegister registers a hotkey on a subnetwork by burning the
// registration cost from the signing coldkey
func BurnedRegister(netuid uint16, hotkey string) (Call, error) {
	id, err := ledger.AccountIDFromSS58(hotkey)
	if err != nil {
		return Call{}, err
	}
	return NewCall("SubtensorModule", "burned_register", netuid, id)
}

// ServeEndpoint announces the serving address of the signing hotkey
func ServeEndpoint(netuid uint16, info ledger.EndpointInfo) (Call, error) {
	ip, ipType, err := ledger.IPToInt(info.IP)
	if err != nil {
		return Call{}, err
	}
	if info.IPType != 0 && info.IPType != ipType {
		return Call{}, fmt.Errorf("ip %s does not match ip type %d", info.IP, info.IPType)
	}
	return NewCall(
		"SubtensorModule",
		"serve_axon",
		netuid,
		info.Version,
		ip,
		info.Port,
		ipType,
		info.Protocol,
		info.Placeholder1,
		info.Placeholder2,
	)
}

// SetWeights sets the weights of the signing hotkey on a subnetwork
func SetWeights(netuid uint16, uids []uint16, weights []uint16, versionKey uint64) (Call, error) {
	if len(uids) != len(weights) {
		return Call{}, fmt.Errorf(
			"%w: %d uids and %d weights",
			ErrInvalidWeights,
			len(uids),
			len(weights),
		)
	}
	return NewCall("SubtensorModule", "set_weights", netuid, uids, weights, versionKey)
}

// AddStake moves stake from the signing coldkey onto a hotkey
func AddStake(hotkey string, amount ledger.Balance) (Call, error) {
	id, err := ledger.AccountIDFromSS58(hotkey)
	if err != nil {
		return Call{}, err
	}
	return NewCall("SubtensorModule", "add_stake", id, amount.Rao())
}

// RemoveStake moves stake from a hotkey back to the signing coldkey
func RemoveStake(hotkey string, amount ledger.Balance) (Call, error) {
	id, err := ledger.AccountIDFromSS58(hotkey)
	if err != nil {
		return Call{}, err
	}
	return NewCall("SubtensorModule", "remove_stake", id, amount.Rao())
}

// Transfer sends a balance from the signing coldkey to dest
func Transfer(dest string, amount ledger.Balance, keepAlive bool) (Call, error) {
	id, err := ledger.AccountIDFromSS58(dest)
	if err != nil {
		return Call{}, err
	}
	function := "transfer_allow_death"
	if keepAlive {
		function = "transfer_keep_alive"
	}
	return NewCall("Balances", function, MultiAddress(id), scale.Compact(amount.Rao()))
}

// NormalizeWeights converts float weights into the u16 form expected by
// SetWeights. Weights are scaled so that the largest becomes the u16 maximum,
// and zero weights are dropped
func NormalizeWeights(uids []uint16, weights []float64) ([]uint16, []uint16, error) {
	if len(uids) != len(weights) {
		return nil, nil, fmt.Errorf(
			"%w: %d uids and %d weights",
			ErrInvalidWeights,
			len(uids),
			len(weights),
		)
	}
	var maxWeight float64
	for _, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidWeights, w)
		}
		maxWeight = max(maxWeight, w)
	}
	if maxWeight == 0 {
		return []uint16{}, []uint16{}, nil
	}
	retUIDs := make([]uint16, 0, len(uids))
	retWeights := make([]uint16, 0, len(uids))
	for idx, w := range weights {
		scaled := uint16(math.Round(w / maxWeight * math.MaxUint16))
		if scaled == 0 {
			continue
		}
		retUIDs = append(retUIDs, uids[idx])
		retWeights = append(retWeights, scaled)
	}
	return retUIDs, retWeights, nil
}
