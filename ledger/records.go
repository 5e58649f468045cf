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
	"math/big"
)

// valueReader pulls typed fields out of a decoded struct, remembering the
// first failure so converters can read every field and check once
type valueReader struct {
	s   *Struct
	err error
}

func newValueReader(v Value, typeName string) (*valueReader, error) {
	s, ok := v.(*Struct)
	if !ok || s.Name != typeName {
		return nil, fmt.Errorf("%w: expected %s, got %T", ErrUnexpectedRecord, typeName, v)
	}
	return &valueReader{s: s}, nil
}

func (r *valueReader) fail(name string, v Value) {
	if r.err == nil {
		r.err = fmt.Errorf("%s.%s: unexpected value %T", r.s.Name, name, v)
	}
}

func (r *valueReader) uint(name string) uint64 {
	v := r.s.Get(name)
	n, ok := v.(uint64)
	if !ok {
		r.fail(name, v)
	}
	return n
}

func (r *valueReader) u16(name string) uint16 {
	return uint16(r.uint(name))
}

func (r *valueReader) fraction(name string) float64 {
	return U16ToFloat(r.u16(name))
}

func (r *valueReader) bool(name string) bool {
	v := r.s.Get(name)
	b, ok := v.(bool)
	if !ok {
		r.fail(name, v)
	}
	return b
}

func (r *valueReader) big(name string) *big.Int {
	v := r.s.Get(name)
	b, ok := v.(*big.Int)
	if !ok {
		r.fail(name, v)
	}
	return b
}

func (r *valueReader) account(name string) string {
	v := r.s.Get(name)
	ret, err := accountFromValue(v)
	if err != nil {
		r.fail(name, v)
	}
	return ret
}

func (r *valueReader) list(name string) []Value {
	v := r.s.Get(name)
	ret, ok := v.([]Value)
	if !ok {
		r.fail(name, v)
	}
	return ret
}

func (r *valueReader) sub(name string, typeName string) *valueReader {
	v := r.s.Get(name)
	ret, err := newValueReader(v, typeName)
	if err != nil {
		r.fail(name, v)
		return &valueReader{s: &Struct{Name: typeName}}
	}
	return ret
}

func accountFromValue(v Value) (string, error) {
	b, ok := v.([]byte)
	if !ok || len(b) != AccountIDSize {
		return "", ErrInvalidAccountID
	}
	return SS58Encode(b, SS58Format)
}

func accountToValue(addr string) (Value, error) {
	id, err := AccountIDFromSS58(addr)
	if err != nil {
		return nil, fmt.Errorf("account %q: %w", addr, err)
	}
	return id[:], nil
}

// pairs reads a Vec of 2-tuples
func pairs(items []Value) ([][2]Value, error) {
	ret := make([][2]Value, 0, len(items))
	for _, item := range items {
		tuple, ok := item.([]Value)
		if !ok || len(tuple) != 2 {
			return nil, fmt.Errorf("%w: expected pair, got %T", ErrUnexpectedRecord, item)
		}
		ret = append(ret, [2]Value{tuple[0], tuple[1]})
	}
	return ret, nil
}

func recordFromValue(kind RecordKind, v Value) (Record, error) {
	switch kind {
	case KindParticipantInfo:
		return participantFromValue(v)
	case KindParticipantInfoLite:
		return participantLiteFromValue(v, "NeuronInfoLite")
	case KindSubnetInfo:
		return subnetInfoFromValue(v)
	case KindStakeInfo:
		return stakeInfoFromValue(v)
	case KindDelegateInfo:
		return delegateInfoFromValue(v)
	case KindDelegatedInfo:
		return delegatedInfoFromValue(v)
	case KindEndpointInfo:
		return endpointInfoFromValue(v, "", "")
	case KindPrometheusInfo:
		return prometheusInfoFromValue(v)
	case KindSubnetHyperparams:
		return subnetHyperparamsFromValue(v)
	}
	return nil, fmt.Errorf("%w: unknown kind %s", ErrUnexpectedRecord, kind)
}

func recordToValue(kind RecordKind, rec Record) (Value, error) {
	if rec.RecordKind() != kind {
		return nil, fmt.Errorf("%w: %s is not %s", ErrUnexpectedRecord, rec.RecordKind(), kind)
	}
	switch r := rec.(type) {
	case ParticipantInfo:
		return participantToValue(r)
	case ParticipantInfoLite:
		return participantLiteToValue(r)
	case SubnetInfo:
		return subnetInfoToValue(r)
	case StakeInfo:
		return stakeInfoToValue(r)
	case DelegateInfo:
		return delegateInfoToValue(r)
	case DelegatedInfo:
		return delegatedInfoToValue(r)
	case EndpointInfo:
		return endpointInfoToValue(r)
	case PrometheusInfo:
		return prometheusInfoToValue(r)
	case SubnetHyperparams:
		return subnetHyperparamsToValue(r), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnexpectedRecord, rec)
}

func endpointInfoFromValue(v Value, hotkey string, coldkey string) (EndpointInfo, error) {
	r, err := newValueReader(v, "AxonInfo")
	if err != nil {
		return EndpointInfo{}, err
	}
	ipType := uint8(r.uint("ip_type"))
	ret := EndpointInfo{
		Block:        r.uint("block"),
		Version:      uint32(r.uint("version")),
		IP:           IntToIP(r.big("ip"), ipType),
		Port:         r.u16("port"),
		IPType:       ipType,
		Protocol:     uint8(r.uint("protocol")),
		Placeholder1: uint8(r.uint("placeholder1")),
		Placeholder2: uint8(r.uint("placeholder2")),
		Hotkey:       hotkey,
		Coldkey:      coldkey,
	}
	return ret, r.err
}

func endpointInfoToValue(e EndpointInfo) (Value, error) {
	ip, err := ipValue(e.IP, e.IPType)
	if err != nil {
		return nil, err
	}
	return &Struct{Name: "AxonInfo", Fields: []Field{
		{"block", e.Block},
		{"version", uint64(e.Version)},
		{"ip", ip},
		{"port", uint64(e.Port)},
		{"ip_type", uint64(e.IPType)},
		{"protocol", uint64(e.Protocol)},
		{"placeholder1", uint64(e.Placeholder1)},
		{"placeholder2", uint64(e.Placeholder2)},
	}}, nil
}

func prometheusInfoFromValue(v Value) (PrometheusInfo, error) {
	r, err := newValueReader(v, "PrometheusInfo")
	if err != nil {
		return PrometheusInfo{}, err
	}
	ipType := uint8(r.uint("ip_type"))
	ret := PrometheusInfo{
		Block:   r.uint("block"),
		Version: uint32(r.uint("version")),
		IP:      IntToIP(r.big("ip"), ipType),
		Port:    r.u16("port"),
		IPType:  ipType,
	}
	return ret, r.err
}

func prometheusInfoToValue(p PrometheusInfo) (Value, error) {
	ip, err := ipValue(p.IP, p.IPType)
	if err != nil {
		return nil, err
	}
	return &Struct{Name: "PrometheusInfo", Fields: []Field{
		{"block", p.Block},
		{"version", uint64(p.Version)},
		{"ip", ip},
		{"port", uint64(p.Port)},
		{"ip_type", uint64(p.IPType)},
	}}, nil
}

func participantLiteFromValue(v Value, typeName string) (ParticipantInfoLite, error) {
	r, err := newValueReader(v, typeName)
	if err != nil {
		return ParticipantInfoLite{}, err
	}
	ret := ParticipantInfoLite{
		Hotkey:          r.account("hotkey"),
		Coldkey:         r.account("coldkey"),
		UID:             r.u16("uid"),
		NetUID:          r.u16("netuid"),
		Active:          r.bool("active"),
		Rank:            r.fraction("rank"),
		Emission:        Balance(r.uint("emission")),
		Incentive:       r.fraction("incentive"),
		Consensus:       r.fraction("consensus"),
		Trust:           r.fraction("trust"),
		ValidatorTrust:  r.fraction("validator_trust"),
		Dividends:       r.fraction("dividends"),
		LastUpdate:      r.uint("last_update"),
		ValidatorPermit: r.bool("validator_permit"),
		PruningScore:    r.u16("pruning_score"),
	}
	if r.err != nil {
		return ParticipantInfoLite{}, r.err
	}
	ret.EndpointInfo, err = endpointInfoFromValue(r.s.Get("axon_info"), ret.Hotkey, ret.Coldkey)
	if err != nil {
		return ParticipantInfoLite{}, err
	}
	ret.PrometheusInfo, err = prometheusInfoFromValue(r.s.Get("prometheus_info"))
	if err != nil {
		return ParticipantInfoLite{}, err
	}
	stakes, err := pairs(r.list("stake"))
	if err != nil {
		return ParticipantInfoLite{}, err
	}
	ret.Stakes = make([]StakeEntry, 0, len(stakes))
	for _, pair := range stakes {
		coldkey, err := accountFromValue(pair[0])
		if err != nil {
			return ParticipantInfoLite{}, err
		}
		amount, ok := pair[1].(uint64)
		if !ok {
			return ParticipantInfoLite{}, fmt.Errorf("%w: stake amount %T", ErrUnexpectedRecord, pair[1])
		}
		ret.Stakes = append(ret.Stakes, StakeEntry{Coldkey: coldkey, Stake: Balance(amount)})
		ret.Stake += Balance(amount)
	}
	return ret, r.err
}

func participantLiteFields(p ParticipantInfoLite) ([]Field, error) {
	hotkey, err := accountToValue(p.Hotkey)
	if err != nil {
		return nil, err
	}
	coldkey, err := accountToValue(p.Coldkey)
	if err != nil {
		return nil, err
	}
	axon, err := endpointInfoToValue(p.EndpointInfo)
	if err != nil {
		return nil, err
	}
	prometheus, err := prometheusInfoToValue(p.PrometheusInfo)
	if err != nil {
		return nil, err
	}
	stakes := make([]Value, 0, len(p.Stakes))
	for _, entry := range p.Stakes {
		acct, err := accountToValue(entry.Coldkey)
		if err != nil {
			return nil, err
		}
		stakes = append(stakes, []Value{acct, entry.Stake.Rao()})
	}
	return []Field{
		{"hotkey", hotkey},
		{"coldkey", coldkey},
		{"uid", uint64(p.UID)},
		{"netuid", uint64(p.NetUID)},
		{"active", p.Active},
		{"axon_info", axon},
		{"prometheus_info", prometheus},
		{"stake", stakes},
		{"rank", uint64(FloatToU16(p.Rank))},
		{"emission", p.Emission.Rao()},
		{"incentive", uint64(FloatToU16(p.Incentive))},
		{"consensus", uint64(FloatToU16(p.Consensus))},
		{"trust", uint64(FloatToU16(p.Trust))},
		{"validator_trust", uint64(FloatToU16(p.ValidatorTrust))},
		{"dividends", uint64(FloatToU16(p.Dividends))},
		{"last_update", p.LastUpdate},
		{"validator_permit", p.ValidatorPermit},
		{"pruning_score", uint64(p.PruningScore)},
	}, nil
}

func participantLiteToValue(p ParticipantInfoLite) (Value, error) {
	fields, err := participantLiteFields(p)
	if err != nil {
		return nil, err
	}
	return &Struct{Name: "NeuronInfoLite", Fields: fields}, nil
}

func participantFromValue(v Value) (ParticipantInfo, error) {
	lite, err := participantLiteFromValue(v, "NeuronInfo")
	if err != nil {
		return ParticipantInfo{}, err
	}
	s := v.(*Struct)
	ret := ParticipantInfo{ParticipantInfoLite: lite}
	if ret.Weights, err = weightPairsFromValue(s.Get("weights")); err != nil {
		return ParticipantInfo{}, err
	}
	if ret.Bonds, err = weightPairsFromValue(s.Get("bonds")); err != nil {
		return ParticipantInfo{}, err
	}
	return ret, nil
}

func participantToValue(p ParticipantInfo) (Value, error) {
	fields, err := participantLiteFields(p.ParticipantInfoLite)
	if err != nil {
		return nil, err
	}
	// weights and bonds sit between validator_permit and pruning_score
	last := fields[len(fields)-1]
	fields = append(fields[:len(fields)-1],
		Field{"weights", weightPairsToValue(p.Weights)},
		Field{"bonds", weightPairsToValue(p.Bonds)},
		last,
	)
	return &Struct{Name: "NeuronInfo", Fields: fields}, nil
}

func weightPairsFromValue(v Value) ([]WeightPair, error) {
	items, ok := v.([]Value)
	if !ok {
		return nil, fmt.Errorf("%w: expected weight list, got %T", ErrUnexpectedRecord, v)
	}
	list, err := pairs(items)
	if err != nil {
		return nil, err
	}
	ret := make([]WeightPair, 0, len(list))
	for _, pair := range list {
		uid, ok1 := pair[0].(uint64)
		value, ok2 := pair[1].(uint64)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: weight pair", ErrUnexpectedRecord)
		}
		ret = append(ret, WeightPair{UID: uint16(uid), Value: uint16(value)})
	}
	return ret, nil
}

func weightPairsToValue(list []WeightPair) []Value {
	ret := make([]Value, 0, len(list))
	for _, pair := range list {
		ret = append(ret, []Value{uint64(pair.UID), uint64(pair.Value)})
	}
	return ret
}

func subnetInfoFromValue(v Value) (SubnetInfo, error) {
	r, err := newValueReader(v, "SubnetInfo")
	if err != nil {
		return SubnetInfo{}, err
	}
	ret := SubnetInfo{
		NetUID:               r.u16("netuid"),
		Rho:                  r.u16("rho"),
		Kappa:                r.fraction("kappa"),
		Difficulty:           r.uint("difficulty"),
		ImmunityPeriod:       r.u16("immunity_period"),
		MaxAllowedValidators: r.u16("max_allowed_validators"),
		MinAllowedWeights:    r.u16("min_allowed_weights"),
		MaxWeightsLimit:      r.u16("max_weights_limit"),
		ScalingLawPower:      r.u16("scaling_law_power"),
		SubnetworkN:          r.u16("subnetwork_n"),
		MaxN:                 r.u16("max_allowed_uids"),
		BlocksSinceEpoch:     r.uint("blocks_since_last_step"),
		Tempo:                r.u16("tempo"),
		Modality:             r.u16("network_modality"),
		EmissionValue:        r.uint("emission_values"),
		Burn:                 Balance(r.uint("burn")),
		Owner:                r.account("owner"),
	}
	connections := r.list("network_connect")
	if r.err != nil {
		return SubnetInfo{}, r.err
	}
	ret.ConnectionRequirements = make([]SubnetConnection, 0, len(connections))
	for _, item := range connections {
		pair, ok := item.([]Value)
		if !ok || len(pair) != 2 {
			return SubnetInfo{}, fmt.Errorf("%w: network_connect entry %T", ErrUnexpectedRecord, item)
		}
		netuid, ok1 := pair[0].(uint64)
		req, ok2 := pair[1].(uint64)
		if !ok1 || !ok2 {
			return SubnetInfo{}, fmt.Errorf("%w: network_connect entry", ErrUnexpectedRecord)
		}
		ret.ConnectionRequirements = append(ret.ConnectionRequirements, SubnetConnection{
			NetUID:      uint16(netuid),
			Requirement: U16ToFloat(uint16(req)),
		})
	}
	return ret, nil
}

func subnetInfoToValue(s SubnetInfo) (Value, error) {
	owner, err := accountToValue(s.Owner)
	if err != nil {
		return nil, err
	}
	connections := make([]Value, 0, len(s.ConnectionRequirements))
	for _, conn := range s.ConnectionRequirements {
		connections = append(connections, []Value{uint64(conn.NetUID), uint64(FloatToU16(conn.Requirement))})
	}
	return &Struct{Name: "SubnetInfo", Fields: []Field{
		{"netuid", uint64(s.NetUID)},
		{"rho", uint64(s.Rho)},
		{"kappa", uint64(FloatToU16(s.Kappa))},
		{"difficulty", s.Difficulty},
		{"immunity_period", uint64(s.ImmunityPeriod)},
		{"max_allowed_validators", uint64(s.MaxAllowedValidators)},
		{"min_allowed_weights", uint64(s.MinAllowedWeights)},
		{"max_weights_limit", uint64(s.MaxWeightsLimit)},
		{"scaling_law_power", uint64(s.ScalingLawPower)},
		{"subnetwork_n", uint64(s.SubnetworkN)},
		{"max_allowed_uids", uint64(s.MaxN)},
		{"blocks_since_last_step", s.BlocksSinceEpoch},
		{"tempo", uint64(s.Tempo)},
		{"network_modality", uint64(s.Modality)},
		{"network_connect", connections},
		{"emission_values", s.EmissionValue},
		{"burn", s.Burn.Rao()},
		{"owner", owner},
	}}, nil
}

func subnetHyperparamsFromValue(v Value) (SubnetHyperparams, error) {
	r, err := newValueReader(v, "SubnetHyperparameters")
	if err != nil {
		return SubnetHyperparams{}, err
	}
	ret := SubnetHyperparams{
		Rho:                   r.u16("rho"),
		Kappa:                 r.u16("kappa"),
		ImmunityPeriod:        r.u16("immunity_period"),
		MinAllowedWeights:     r.u16("min_allowed_weights"),
		MaxWeightsLimit:       r.u16("max_weights_limit"),
		Tempo:                 r.u16("tempo"),
		MinDifficulty:         r.uint("min_difficulty"),
		MaxDifficulty:         r.uint("max_difficulty"),
		WeightsVersion:        r.uint("weights_version"),
		WeightsRateLimit:      r.uint("weights_rate_limit"),
		AdjustmentInterval:    r.u16("adjustment_interval"),
		ActivityCutoff:        r.u16("activity_cutoff"),
		RegistrationAllowed:   r.bool("registration_allowed"),
		TargetRegsPerInterval: r.u16("target_regs_per_interval"),
		MinBurn:               Balance(r.uint("min_burn")),
		MaxBurn:               Balance(r.uint("max_burn")),
		BondsMovingAvg:        r.uint("bonds_moving_avg"),
		MaxRegsPerBlock:       r.u16("max_regs_per_block"),
	}
	return ret, r.err
}

func subnetHyperparamsToValue(h SubnetHyperparams) Value {
	return &Struct{Name: "SubnetHyperparameters", Fields: []Field{
		{"rho", uint64(h.Rho)},
		{"kappa", uint64(h.Kappa)},
		{"immunity_period", uint64(h.ImmunityPeriod)},
		{"min_allowed_weights", uint64(h.MinAllowedWeights)},
		{"max_weights_limit", uint64(h.MaxWeightsLimit)},
		{"tempo", uint64(h.Tempo)},
		{"min_difficulty", h.MinDifficulty},
		{"max_difficulty", h.MaxDifficulty},
		{"weights_version", h.WeightsVersion},
		{"weights_rate_limit", h.WeightsRateLimit},
		{"adjustment_interval", uint64(h.AdjustmentInterval)},
		{"activity_cutoff", uint64(h.ActivityCutoff)},
		{"registration_allowed", h.RegistrationAllowed},
		{"target_regs_per_interval", uint64(h.TargetRegsPerInterval)},
		{"min_burn", h.MinBurn.Rao()},
		{"max_burn", h.MaxBurn.Rao()},
		{"bonds_moving_avg", h.BondsMovingAvg},
		{"max_regs_per_block", uint64(h.MaxRegsPerBlock)},
	}}
}

func stakeInfoFromValue(v Value) (StakeInfo, error) {
	r, err := newValueReader(v, "StakeInfo")
	if err != nil {
		return StakeInfo{}, err
	}
	ret := StakeInfo{
		Hotkey:  r.account("hotkey"),
		Coldkey: r.account("coldkey"),
		Stake:   Balance(r.uint("stake")),
	}
	return ret, r.err
}

func stakeInfoToValue(s StakeInfo) (Value, error) {
	hotkey, err := accountToValue(s.Hotkey)
	if err != nil {
		return nil, err
	}
	coldkey, err := accountToValue(s.Coldkey)
	if err != nil {
		return nil, err
	}
	return &Struct{Name: "StakeInfo", Fields: []Field{
		{"hotkey", hotkey},
		{"coldkey", coldkey},
		{"stake", s.Stake.Rao()},
	}}, nil
}

func delegateInfoFromValue(v Value) (DelegateInfo, error) {
	r, err := newValueReader(v, "DelegateInfo")
	if err != nil {
		return DelegateInfo{}, err
	}
	ret := DelegateInfo{
		Hotkey:           r.account("delegate_ss58"),
		Take:             r.fraction("take"),
		Owner:            r.account("owner_ss58"),
		ReturnPer1000:    Balance(r.uint("return_per_1000")),
		TotalDailyReturn: Balance(r.uint("total_daily_return")),
	}
	nominators := r.list("nominators")
	registrations := r.list("registrations")
	permits := r.list("validator_permits")
	if r.err != nil {
		return DelegateInfo{}, r.err
	}
	list, err := pairs(nominators)
	if err != nil {
		return DelegateInfo{}, err
	}
	ret.Nominators = make([]Nominator, 0, len(list))
	for _, pair := range list {
		coldkey, err := accountFromValue(pair[0])
		if err != nil {
			return DelegateInfo{}, err
		}
		amount, ok := pair[1].(uint64)
		if !ok {
			return DelegateInfo{}, fmt.Errorf("%w: nominator stake %T", ErrUnexpectedRecord, pair[1])
		}
		ret.Nominators = append(ret.Nominators, Nominator{Coldkey: coldkey, Stake: Balance(amount)})
		ret.TotalStake += Balance(amount)
	}
	if ret.Registrations, err = u16List(registrations); err != nil {
		return DelegateInfo{}, err
	}
	if ret.ValidatorPermits, err = u16List(permits); err != nil {
		return DelegateInfo{}, err
	}
	return ret, nil
}

func delegateInfoToValue(d DelegateInfo) (Value, error) {
	hotkey, err := accountToValue(d.Hotkey)
	if err != nil {
		return nil, err
	}
	owner, err := accountToValue(d.Owner)
	if err != nil {
		return nil, err
	}
	nominators := make([]Value, 0, len(d.Nominators))
	for _, nom := range d.Nominators {
		acct, err := accountToValue(nom.Coldkey)
		if err != nil {
			return nil, err
		}
		nominators = append(nominators, []Value{acct, nom.Stake.Rao()})
	}
	return &Struct{Name: "DelegateInfo", Fields: []Field{
		{"delegate_ss58", hotkey},
		{"take", uint64(FloatToU16(d.Take))},
		{"nominators", nominators},
		{"owner_ss58", owner},
		{"registrations", u16Values(d.Registrations)},
		{"validator_permits", u16Values(d.ValidatorPermits)},
		{"return_per_1000", d.ReturnPer1000.Rao()},
		{"total_daily_return", d.TotalDailyReturn.Rao()},
	}}, nil
}

func delegatedInfoFromValue(v Value) (DelegatedInfo, error) {
	tuple, ok := v.([]Value)
	if !ok || len(tuple) != 2 {
		return DelegatedInfo{}, fmt.Errorf("%w: expected (DelegateInfo, stake), got %T", ErrUnexpectedRecord, v)
	}
	delegate, err := delegateInfoFromValue(tuple[0])
	if err != nil {
		return DelegatedInfo{}, err
	}
	stake, ok := tuple[1].(uint64)
	if !ok {
		return DelegatedInfo{}, fmt.Errorf("%w: delegated stake %T", ErrUnexpectedRecord, tuple[1])
	}
	return DelegatedInfo{Delegate: delegate, Stake: Balance(stake)}, nil
}

func delegatedInfoToValue(d DelegatedInfo) (Value, error) {
	delegate, err := delegateInfoToValue(d.Delegate)
	if err != nil {
		return nil, err
	}
	return []Value{delegate, d.Stake.Rao()}, nil
}

func u16List(items []Value) ([]uint16, error) {
	ret := make([]uint16, 0, len(items))
	for _, item := range items {
		n, ok := item.(uint64)
		if !ok {
			return nil, fmt.Errorf("%w: expected integer, got %T", ErrUnexpectedRecord, item)
		}
		ret = append(ret, uint16(n))
	}
	return ret, nil
}

func u16Values(list []uint16) []Value {
	ret := make([]Value, 0, len(list))
	for _, n := range list {
		ret = append(ret, uint64(n))
	}
	return ret
}
