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
	"strconv"
	"strings"
	"sync"
)

// RegistryVersion identifies the layout of the type registry below. It is
// bumped whenever a record layout changes on chain
const RegistryVersion = 1

type fieldDef struct {
	Name string
	Type string
}

// typeRegistry maps each named record type to its ordered field list. Field
// order is the wire order
var typeRegistry = map[string][]fieldDef{
	"AxonInfo": {
		{"block", "u64"},
		{"version", "u32"},
		{"ip", "u128"},
		{"port", "u16"},
		{"ip_type", "u8"},
		{"protocol", "u8"},
		{"placeholder1", "u8"},
		{"placeholder2", "u8"},
	},
	"PrometheusInfo": {
		{"block", "u64"},
		{"version", "u32"},
		{"ip", "u128"},
		{"port", "u16"},
		{"ip_type", "u8"},
	},
	"NeuronInfo": {
		{"hotkey", "AccountId"},
		{"coldkey", "AccountId"},
		{"uid", "Compact<u16>"},
		{"netuid", "Compact<u16>"},
		{"active", "bool"},
		{"axon_info", "AxonInfo"},
		{"prometheus_info", "PrometheusInfo"},
		{"stake", "Vec<(AccountId, Compact<u64>)>"},
		{"rank", "Compact<u16>"},
		{"emission", "Compact<u64>"},
		{"incentive", "Compact<u16>"},
		{"consensus", "Compact<u16>"},
		{"trust", "Compact<u16>"},
		{"validator_trust", "Compact<u16>"},
		{"dividends", "Compact<u16>"},
		{"last_update", "Compact<u64>"},
		{"validator_permit", "bool"},
		{"weights", "Vec<(Compact<u16>, Compact<u16>)>"},
		{"bonds", "Vec<(Compact<u16>, Compact<u16>)>"},
		{"pruning_score", "Compact<u16>"},
	},
	"NeuronInfoLite": {
		{"hotkey", "AccountId"},
		{"coldkey", "AccountId"},
		{"uid", "Compact<u16>"},
		{"netuid", "Compact<u16>"},
		{"active", "bool"},
		{"axon_info", "AxonInfo"},
		{"prometheus_info", "PrometheusInfo"},
		{"stake", "Vec<(AccountId, Compact<u64>)>"},
		{"rank", "Compact<u16>"},
		{"emission", "Compact<u64>"},
		{"incentive", "Compact<u16>"},
		{"consensus", "Compact<u16>"},
		{"trust", "Compact<u16>"},
		{"validator_trust", "Compact<u16>"},
		{"dividends", "Compact<u16>"},
		{"last_update", "Compact<u64>"},
		{"validator_permit", "bool"},
		{"pruning_score", "Compact<u16>"},
	},
	"SubnetInfo": {
		{"netuid", "Compact<u16>"},
		{"rho", "Compact<u16>"},
		{"kappa", "Compact<u16>"},
		{"difficulty", "Compact<u64>"},
		{"immunity_period", "Compact<u16>"},
		{"max_allowed_validators", "Compact<u16>"},
		{"min_allowed_weights", "Compact<u16>"},
		{"max_weights_limit", "Compact<u16>"},
		{"scaling_law_power", "Compact<u16>"},
		{"subnetwork_n", "Compact<u16>"},
		{"max_allowed_uids", "Compact<u16>"},
		{"blocks_since_last_step", "Compact<u64>"},
		{"tempo", "Compact<u16>"},
		{"network_modality", "Compact<u16>"},
		{"network_connect", "Vec<[u16; 2]>"},
		{"emission_values", "Compact<u64>"},
		{"burn", "Compact<u64>"},
		{"owner", "AccountId"},
	},
	"SubnetHyperparameters": {
		{"rho", "Compact<u16>"},
		{"kappa", "Compact<u16>"},
		{"immunity_period", "Compact<u16>"},
		{"min_allowed_weights", "Compact<u16>"},
		{"max_weights_limit", "Compact<u16>"},
		{"tempo", "Compact<u16>"},
		{"min_difficulty", "Compact<u64>"},
		{"max_difficulty", "Compact<u64>"},
		{"weights_version", "Compact<u64>"},
		{"weights_rate_limit", "Compact<u64>"},
		{"adjustment_interval", "Compact<u16>"},
		{"activity_cutoff", "Compact<u16>"},
		{"registration_allowed", "bool"},
		{"target_regs_per_interval", "Compact<u16>"},
		{"min_burn", "Compact<u64>"},
		{"max_burn", "Compact<u64>"},
		{"bonds_moving_avg", "Compact<u64>"},
		{"max_regs_per_block", "Compact<u16>"},
	},
	"DelegateInfo": {
		{"delegate_ss58", "AccountId"},
		{"take", "Compact<u16>"},
		{"nominators", "Vec<(AccountId, Compact<u64>)>"},
		{"owner_ss58", "AccountId"},
		{"registrations", "Vec<Compact<u16>>"},
		{"validator_permits", "Vec<Compact<u16>>"},
		{"return_per_1000", "Compact<u64>"},
		{"total_daily_return", "Compact<u64>"},
	},
	"StakeInfo": {
		{"hotkey", "AccountId"},
		{"coldkey", "AccountId"},
		{"stake", "Compact<u64>"},
	},
	"AccountData": {
		{"free", "u64"},
		{"reserved", "u64"},
		{"frozen", "u64"},
		{"flags", "u128"},
	},
	"AccountInfo": {
		{"nonce", "u32"},
		{"consumers", "u32"},
		{"providers", "u32"},
		{"sufficients", "u32"},
		{"data", "AccountData"},
	},
}

// typeAliases expand to another type expression before parsing
var typeAliases = map[string]string{
	"AccountId": "[u8; 32]",
}

type exprKind int

const (
	exprPrimitive exprKind = iota
	exprCompact
	exprVec
	exprOption
	exprTuple
	exprArray
	exprNamed
)

// typeExpr is the parsed form of a type string
type typeExpr struct {
	kind  exprKind
	name  string // primitive or named type
	elems []*typeExpr
	size  int // fixed array length
}

var primitives = map[string]bool{
	"u8":   true,
	"u16":  true,
	"u32":  true,
	"u64":  true,
	"u128": true,
	"bool": true,
	"Str":  true,
}

var (
	typeExprCache      = map[string]*typeExpr{}
	typeExprCacheMutex sync.RWMutex
)

// mustParseType parses a type string, consulting the cache first. Unknown
// type names are programmer errors and panic
func mustParseType(typeString string) *typeExpr {
	typeExprCacheMutex.RLock()
	expr, ok := typeExprCache[typeString]
	typeExprCacheMutex.RUnlock()
	if ok {
		return expr
	}
	p := &typeParser{input: typeString}
	expr, err := p.parse()
	if err != nil {
		panic(fmt.Sprintf("ledger: invalid type %q: %s", typeString, err))
	}
	typeExprCacheMutex.Lock()
	typeExprCache[typeString] = expr
	typeExprCacheMutex.Unlock()
	return expr
}

type typeParser struct {
	input string
	pos   int
}

func (p *typeParser) parse() (*typeExpr, error) {
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("unexpected %q at offset %d", p.input[p.pos:], p.pos)
	}
	return expr, nil
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.input) || p.input[p.pos] != c {
		return fmt.Errorf("expected %q at offset %d", c, p.pos)
	}
	p.pos++
	return nil
}

func (p *typeParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == '<' || c == '>' || c == ',' || c == ';' || c == '(' || c == ')' ||
			c == '[' || c == ']' || c == ' ' {
			break
		}
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *typeParser) parseExpr() (*typeExpr, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("unexpected end of type")
	}
	switch p.input[p.pos] {
	case '(':
		p.pos++
		ret := &typeExpr{kind: exprTuple}
		for {
			elem, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			ret.elems = append(ret.elems, elem)
			p.skipSpace()
			if p.pos < len(p.input) && p.input[p.pos] == ',' {
				p.pos++
				continue
			}
			break
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return ret, nil
	case '[':
		p.pos++
		elem, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(';'); err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(p.ident())
		if err != nil {
			return nil, fmt.Errorf("invalid array length: %w", err)
		}
		if err := p.expect(']'); err != nil {
			return nil, err
		}
		return &typeExpr{kind: exprArray, elems: []*typeExpr{elem}, size: size}, nil
	}
	name := p.ident()
	if name == "" {
		return nil, fmt.Errorf("expected type name at offset %d", p.pos)
	}
	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == '<' {
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect('>'); err != nil {
			return nil, err
		}
		switch name {
		case "Compact":
			if inner.kind != exprPrimitive || inner.name == "bool" || inner.name == "Str" {
				return nil, fmt.Errorf("compact of non-integer type %q", inner.name)
			}
			return &typeExpr{kind: exprCompact, name: inner.name}, nil
		case "Vec":
			return &typeExpr{kind: exprVec, elems: []*typeExpr{inner}}, nil
		case "Option":
			return &typeExpr{kind: exprOption, elems: []*typeExpr{inner}}, nil
		}
		return nil, fmt.Errorf("unknown generic type %q", name)
	}
	if alias, ok := typeAliases[name]; ok {
		sub := &typeParser{input: alias}
		return sub.parse()
	}
	if primitives[name] {
		return &typeExpr{kind: exprPrimitive, name: name}, nil
	}
	if _, ok := typeRegistry[name]; ok {
		return &typeExpr{kind: exprNamed, name: name}, nil
	}
	return nil, fmt.Errorf("unknown type %q", name)
}

// wrapTypeString synthesizes the full type string for a record and wrapper
func wrapTypeString(typeName string, wrap Wrapper) string {
	switch wrap {
	case WrapVec:
		return "Vec<" + typeName + ">"
	case WrapOption:
		return "Option<" + typeName + ">"
	case WrapOptionVec:
		return "Option<Vec<" + typeName + ">>"
	case WrapVecOption:
		return "Vec<Option<" + typeName + ">>"
	}
	return typeName
}

// tupleTypeString synthesizes a tuple type string from its member types
func tupleTypeString(members ...string) string {
	return "(" + strings.Join(members, ", ") + ")"
}
