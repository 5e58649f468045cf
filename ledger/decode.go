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
	"errors"
	"fmt"
)

// RecordKind identifies one of the record types the codec understands
type RecordKind uint8

const (
	KindParticipantInfo RecordKind = iota + 1
	KindParticipantInfoLite
	KindSubnetInfo
	KindStakeInfo
	KindDelegateInfo
	KindDelegatedInfo
	KindEndpointInfo
	KindPrometheusInfo
	KindSubnetHyperparams
)

var recordKindTypes = map[RecordKind]string{
	KindParticipantInfo:     "NeuronInfo",
	KindParticipantInfoLite: "NeuronInfoLite",
	KindSubnetInfo:          "SubnetInfo",
	KindStakeInfo:           "StakeInfo",
	KindDelegateInfo:        "DelegateInfo",
	KindDelegatedInfo:       tupleTypeString("DelegateInfo", "Compact<u64>"),
	KindEndpointInfo:        "AxonInfo",
	KindPrometheusInfo:      "PrometheusInfo",
	KindSubnetHyperparams:   "SubnetHyperparameters",
}

var recordKindNames = map[RecordKind]string{
	KindParticipantInfo:     "ParticipantInfo",
	KindParticipantInfoLite: "ParticipantInfoLite",
	KindSubnetInfo:          "SubnetInfo",
	KindStakeInfo:           "StakeInfo",
	KindDelegateInfo:        "DelegateInfo",
	KindDelegatedInfo:       "DelegatedInfo",
	KindEndpointInfo:        "EndpointInfo",
	KindPrometheusInfo:      "PrometheusInfo",
	KindSubnetHyperparams:   "SubnetHyperparams",
}

func (k RecordKind) String() string {
	if name, ok := recordKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("RecordKind(%d)", uint8(k))
}

// TypeString returns the wire type string used to decode the record kind
func (k RecordKind) TypeString() string {
	ret, ok := recordKindTypes[k]
	if !ok {
		panic(fmt.Sprintf("ledger: unknown record kind %d", uint8(k)))
	}
	return ret
}

// Wrapper describes the container a record is wrapped in on the wire
type Wrapper uint8

const (
	WrapNone Wrapper = iota
	WrapVec
	WrapOption
	WrapOptionVec
	WrapVecOption
)

// WrapperFor returns the wrapper for the given vector and option flags. When
// both are set the option wraps the vector
func WrapperFor(isVec bool, isOption bool) Wrapper {
	switch {
	case isVec && isOption:
		return WrapOptionVec
	case isVec:
		return WrapVec
	case isOption:
		return WrapOption
	}
	return WrapNone
}

var ErrUnexpectedRecord = errors.New("unexpected record type")

// Decode decodes data holding a record of the given kind in the given
// wrapper. Empty input yields (nil, nil). The result is:
//
//   - WrapNone: a Record
//   - WrapVec: []Record
//   - WrapOption: a Record, or nil when absent
//   - WrapOptionVec: []Record, or nil when absent
//   - WrapVecOption: []Record with nil entries for absent items
func Decode(kind RecordKind, data []byte, wrap Wrapper) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	v, err := DecodeValue(wrapTypeString(kind.TypeString(), wrap), data)
	if err != nil {
		return nil, err
	}
	switch wrap {
	case WrapNone:
		return recordFromValue(kind, v)
	case WrapOption:
		if v == nil {
			return nil, nil
		}
		return recordFromValue(kind, v)
	case WrapVec, WrapOptionVec:
		if v == nil {
			return nil, nil
		}
		return recordsFromValues(kind, v.([]Value))
	case WrapVecOption:
		items := v.([]Value)
		ret := make([]Record, len(items))
		for idx, item := range items {
			if item == nil {
				continue
			}
			rec, err := recordFromValue(kind, item)
			if err != nil {
				return nil, err
			}
			ret[idx] = rec
		}
		return ret, nil
	}
	return nil, fmt.Errorf("unknown wrapper %d", wrap)
}

// Encode is the inverse of Decode. The accepted shapes of v match what Decode
// returns for the wrapper
func Encode(kind RecordKind, v any, wrap Wrapper) ([]byte, error) {
	var tree Value
	var err error
	switch wrap {
	case WrapNone:
		tree, err = encodeRecordValue(kind, v)
	case WrapOption:
		if v != nil {
			tree, err = encodeRecordValue(kind, v)
		}
	case WrapVec, WrapOptionVec, WrapVecOption:
		tree, err = encodeRecordValues(kind, v, wrap)
	default:
		return nil, fmt.Errorf("unknown wrapper %d", wrap)
	}
	if err != nil {
		return nil, err
	}
	return EncodeValue(wrapTypeString(kind.TypeString(), wrap), tree)
}

func encodeRecordValue(kind RecordKind, v any) (Value, error) {
	rec, ok := v.(Record)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a record", ErrUnexpectedRecord, v)
	}
	return recordToValue(kind, rec)
}

func encodeRecordValues(kind RecordKind, v any, wrap Wrapper) (Value, error) {
	if v == nil {
		if wrap == WrapOptionVec {
			return nil, nil
		}
		return []Value{}, nil
	}
	recs, ok := v.([]Record)
	if !ok {
		return nil, fmt.Errorf("%w: expected []Record, got %T", ErrUnexpectedRecord, v)
	}
	ret := make([]Value, 0, len(recs))
	for _, rec := range recs {
		if rec == nil {
			if wrap != WrapVecOption {
				return nil, fmt.Errorf("%w: nil record", ErrUnexpectedRecord)
			}
			ret = append(ret, nil)
			continue
		}
		item, err := recordToValue(kind, rec)
		if err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, nil
}

func recordsFromValues(kind RecordKind, items []Value) ([]Record, error) {
	ret := make([]Record, 0, len(items))
	for _, item := range items {
		rec, err := recordFromValue(kind, item)
		if err != nil {
			return nil, err
		}
		ret = append(ret, rec)
	}
	return ret, nil
}

// BytesFromInts converts the small-integer sequence form some RPC responses
// use into raw bytes
func BytesFromInts(values []int) ([]byte, error) {
	ret := make([]byte, len(values))
	for idx, v := range values {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("value %d at index %d is not a byte", v, idx)
		}
		ret[idx] = byte(v)
	}
	return ret, nil
}

func decodeTyped[T Record](kind RecordKind, data []byte) (*T, error) {
	v, err := Decode(kind, data, WrapNone)
	if err != nil || v == nil {
		return nil, err
	}
	ret, ok := v.(T)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedRecord, v)
	}
	return &ret, nil
}

func decodeTypedOption[T Record](kind RecordKind, data []byte) (*T, error) {
	v, err := Decode(kind, data, WrapOption)
	if err != nil || v == nil {
		return nil, err
	}
	ret, ok := v.(T)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedRecord, v)
	}
	return &ret, nil
}

func decodeTypedVec[T Record](kind RecordKind, data []byte) ([]T, error) {
	v, err := Decode(kind, data, WrapVec)
	if err != nil || v == nil {
		return nil, err
	}
	recs := v.([]Record)
	ret := make([]T, 0, len(recs))
	for _, rec := range recs {
		item, ok := rec.(T)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrUnexpectedRecord, rec)
		}
		ret = append(ret, item)
	}
	return ret, nil
}

// DecodeParticipantsLite decodes a Vec<NeuronInfoLite>
func DecodeParticipantsLite(data []byte) ([]ParticipantInfoLite, error) {
	return decodeTypedVec[ParticipantInfoLite](KindParticipantInfoLite, data)
}

// DecodeParticipants decodes a Vec<NeuronInfo>
func DecodeParticipants(data []byte) ([]ParticipantInfo, error) {
	return decodeTypedVec[ParticipantInfo](KindParticipantInfo, data)
}

// DecodeParticipant decodes an Option<NeuronInfo>. An absent participant
// yields nil
func DecodeParticipant(data []byte) (*ParticipantInfo, error) {
	return decodeTypedOption[ParticipantInfo](KindParticipantInfo, data)
}

// DecodeSubnetInfo decodes an Option<SubnetInfo>
func DecodeSubnetInfo(data []byte) (*SubnetInfo, error) {
	return decodeTypedOption[SubnetInfo](KindSubnetInfo, data)
}

// DecodeSubnetInfos decodes a Vec<Option<SubnetInfo>>, skipping absent entries
func DecodeSubnetInfos(data []byte) ([]SubnetInfo, error) {
	v, err := Decode(KindSubnetInfo, data, WrapVecOption)
	if err != nil || v == nil {
		return nil, err
	}
	var ret []SubnetInfo
	for _, rec := range v.([]Record) {
		if rec == nil {
			continue
		}
		ret = append(ret, rec.(SubnetInfo))
	}
	return ret, nil
}

// DecodeSubnetHyperparams decodes an Option<SubnetHyperparameters>
func DecodeSubnetHyperparams(data []byte) (*SubnetHyperparams, error) {
	return decodeTypedOption[SubnetHyperparams](KindSubnetHyperparams, data)
}

// DecodeDelegates decodes a Vec<DelegateInfo>
func DecodeDelegates(data []byte) ([]DelegateInfo, error) {
	return decodeTypedVec[DelegateInfo](KindDelegateInfo, data)
}

// DecodeDelegated decodes a Vec<(DelegateInfo, Compact<u64>)>
func DecodeDelegated(data []byte) ([]DelegatedInfo, error) {
	return decodeTypedVec[DelegatedInfo](KindDelegatedInfo, data)
}

// DecodeStakeInfos decodes a Vec<StakeInfo>
func DecodeStakeInfos(data []byte) ([]StakeInfo, error) {
	return decodeTypedVec[StakeInfo](KindStakeInfo, data)
}

// DecodeEndpointInfo decodes a bare AxonInfo. Hotkey and coldkey are not part
// of the record and are left empty
func DecodeEndpointInfo(data []byte) (*EndpointInfo, error) {
	return decodeTyped[EndpointInfo](KindEndpointInfo, data)
}

// DecodePrometheusInfo decodes a bare PrometheusInfo
func DecodePrometheusInfo(data []byte) (*PrometheusInfo, error) {
	return decodeTyped[PrometheusInfo](KindPrometheusInfo, data)
}
