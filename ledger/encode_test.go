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

package ledger_test

import (
	"testing"

	"github.com/blinklabs-io/gotensor/internal/test"
	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEndpoint() ledger.EndpointInfo {
	return ledger.EndpointInfo{
		Block:    1200,
		Version:  700,
		IP:       "10.1.2.3",
		Port:     8091,
		IPType:   ledger.IPTypeV4,
		Protocol: 4,
		Hotkey:   test.AliceAddress,
		Coldkey:  test.BobAddress,
	}
}

func testParticipantLite(uid uint16) ledger.ParticipantInfoLite {
	return ledger.ParticipantInfoLite{
		Hotkey:       test.AliceAddress,
		Coldkey:      test.BobAddress,
		UID:          uid,
		NetUID:       3,
		Active:       true,
		EndpointInfo: testEndpoint(),
		PrometheusInfo: ledger.PrometheusInfo{
			Block:   1100,
			Version: 1,
			IP:      "::1",
			Port:    7091,
			IPType:  ledger.IPTypeV6,
		},
		Stakes: []ledger.StakeEntry{
			{Coldkey: test.BobAddress, Stake: 1_500_000_000},
			{Coldkey: test.AliceAddress, Stake: 250},
		},
		Stake:           1_500_000_250,
		Rank:            ledger.U16ToFloat(100),
		Emission:        42_000_000,
		Incentive:       ledger.U16ToFloat(65535),
		Consensus:       ledger.U16ToFloat(3),
		Trust:           ledger.U16ToFloat(30000),
		ValidatorTrust:  0,
		Dividends:       ledger.U16ToFloat(1),
		LastUpdate:      1199,
		ValidatorPermit: true,
		PruningScore:    12345,
	}
}

func testDelegate() ledger.DelegateInfo {
	return ledger.DelegateInfo{
		Hotkey: test.AliceAddress,
		Take:   ledger.U16ToFloat(11796),
		Nominators: []ledger.Nominator{
			{Coldkey: test.BobAddress, Stake: 10},
			{Coldkey: test.AliceAddress, Stake: 20},
		},
		TotalStake:       30,
		Owner:            test.BobAddress,
		Registrations:    []uint16{1, 3},
		ValidatorPermits: []uint16{3},
		ReturnPer1000:    5,
		TotalDailyReturn: 1_000_000,
	}
}

func TestRoundTrip(t *testing.T) {
	full := ledger.ParticipantInfo{
		ParticipantInfoLite: testParticipantLite(7),
		Weights:             []ledger.WeightPair{{UID: 0, Value: 65535}, {UID: 7, Value: 12}},
		Bonds:               []ledger.WeightPair{},
	}
	testDefs := []struct {
		name string
		kind ledger.RecordKind
		wrap ledger.Wrapper
		v    any
	}{
		{
			name: "endpoint",
			kind: ledger.KindEndpointInfo,
			wrap: ledger.WrapNone,
			v: func() ledger.Record {
				e := testEndpoint()
				e.Hotkey, e.Coldkey = "", ""
				return e
			}(),
		},
		{
			name: "participants lite",
			kind: ledger.KindParticipantInfoLite,
			wrap: ledger.WrapVec,
			v:    []ledger.Record{testParticipantLite(0), testParticipantLite(1)},
		},
		{
			name: "participant option",
			kind: ledger.KindParticipantInfo,
			wrap: ledger.WrapOption,
			v:    full,
		},
		{
			name: "subnet info",
			kind: ledger.KindSubnetInfo,
			wrap: ledger.WrapVecOption,
			v: []ledger.Record{
				ledger.SubnetInfo{
					NetUID:               1,
					Rho:                  10,
					Kappa:                ledger.U16ToFloat(32767),
					Difficulty:           10_000_000,
					ImmunityPeriod:       4096,
					MaxAllowedValidators: 64,
					MinAllowedWeights:    8,
					MaxWeightsLimit:      455,
					ScalingLawPower:      50,
					SubnetworkN:          256,
					MaxN:                 256,
					BlocksSinceEpoch:     12,
					Tempo:                360,
					Modality:             0,
					ConnectionRequirements: []ledger.SubnetConnection{
						{NetUID: 2, Requirement: ledger.U16ToFloat(100)},
					},
					EmissionValue: 1000,
					Burn:          ledger.BalanceFromTao(1.5),
					Owner:         test.AliceAddress,
				},
				nil,
			},
		},
		{
			name: "hyperparameters",
			kind: ledger.KindSubnetHyperparams,
			wrap: ledger.WrapNone,
			v: ledger.SubnetHyperparams{
				Rho:                   10,
				Kappa:                 32767,
				Tempo:                 99,
				MinDifficulty:         1,
				MaxDifficulty:         1 << 40,
				RegistrationAllowed:   true,
				TargetRegsPerInterval: 2,
				MinBurn:               1,
				MaxBurn:               100_000_000_000,
				BondsMovingAvg:        900_000,
				MaxRegsPerBlock:       1,
			},
		},
		{
			name: "delegates",
			kind: ledger.KindDelegateInfo,
			wrap: ledger.WrapVec,
			v:    []ledger.Record{testDelegate()},
		},
		{
			name: "delegated",
			kind: ledger.KindDelegatedInfo,
			wrap: ledger.WrapVec,
			v:    []ledger.Record{ledger.DelegatedInfo{Delegate: testDelegate(), Stake: 77}},
		},
		{
			name: "stake info",
			kind: ledger.KindStakeInfo,
			wrap: ledger.WrapNone,
			v: ledger.StakeInfo{
				Hotkey:  test.AliceAddress,
				Coldkey: test.BobAddress,
				Stake:   ledger.BalanceFromTao(3),
			},
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			data, err := ledger.Encode(testDef.kind, testDef.v, testDef.wrap)
			require.NoError(t, err)
			decoded, err := ledger.Decode(testDef.kind, data, testDef.wrap)
			require.NoError(t, err)
			assert.Equal(t, testDef.v, decoded)
		})
	}
}

func TestRoundTripTypedHelpers(t *testing.T) {
	data, err := ledger.Encode(
		ledger.KindParticipantInfoLite,
		[]ledger.Record{testParticipantLite(4)},
		ledger.WrapVec,
	)
	require.NoError(t, err)
	participants, err := ledger.DecodeParticipantsLite(data)
	require.NoError(t, err)
	require.Len(t, participants, 1)
	p := participants[0]
	assert.Equal(t, uint16(4), p.UID)
	assert.Equal(t, ledger.Balance(1_500_000_250), p.Stake)
	assert.Equal(
		t,
		map[string]ledger.Balance{
			test.BobAddress:   1_500_000_000,
			test.AliceAddress: 250,
		},
		p.StakeDict(),
	)
	assert.InDelta(t, 1.0, p.Incentive, 1e-12)
	assert.Equal(t, test.AliceAddress, p.EndpointInfo.Hotkey)
	assert.Equal(t, "::1", p.PrometheusInfo.IP)
}

func TestEncodeKindMismatch(t *testing.T) {
	_, err := ledger.Encode(ledger.KindStakeInfo, testDelegate(), ledger.WrapNone)
	assert.ErrorIs(t, err, ledger.ErrUnexpectedRecord)
}

func TestEncodeOptionAbsent(t *testing.T) {
	data, err := ledger.Encode(ledger.KindSubnetInfo, nil, ledger.WrapOption)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, data)
}
