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

	"github.com/blinklabs-io/gotensor/keypair"
)

// Backend is the transport used to talk to the ledger. Block hashes are hex
// strings with a 0x prefix, and an empty hash means the latest block.
// Storage parameters are values accepted by scale.Marshal
type Backend interface {
	// QueryStorage returns the raw value of a storage item, or nil if it is
	// not set
	QueryStorage(ctx context.Context, module string, item string, params []any, blockHash string) ([]byte, error)
	// QueryMap returns all entries of a storage map under the given leading
	// key parameters. Exactly one key parameter must be left open
	QueryMap(ctx context.Context, module string, item string, params []any, blockHash string) ([]MapEntry, error)
	// QueryConstant returns the raw value of a runtime constant
	QueryConstant(ctx context.Context, module string, name string, blockHash string) ([]byte, error)
	// QueryRuntimeAPI calls a runtime API method with SCALE encoded
	// parameters and returns the SCALE encoded result
	QueryRuntimeAPI(ctx context.Context, api string, method string, params []byte, blockHash string) ([]byte, error)
	// SubmitExtrinsic signs and submits a call
	SubmitExtrinsic(ctx context.Context, call Call, signer keypair.Signer, wait WaitMode) (*ExtrinsicReceipt, error)
	// GetBlockHash returns the hash of the block with the given number
	GetBlockHash(ctx context.Context, block uint64) (string, error)
	// GetCurrentBlock returns the number of the best block
	GetCurrentBlock(ctx context.Context) (uint64, error)
	// Close releases the resources held by the backend
	Close() error
}

// MapEntry is a single entry of a storage map. Key holds the SCALE encoding
// of the open key parameter
type MapEntry struct {
	Key   []byte
	Value []byte
}

// WaitMode selects how long SubmitExtrinsic waits after submission
type WaitMode uint8

const (
	WaitNone WaitMode = iota
	WaitInclusion
	WaitFinalization
)

func (w WaitMode) String() string {
	switch w {
	case WaitNone:
		return "none"
	case WaitInclusion:
		return "inclusion"
	case WaitFinalization:
		return "finalization"
	}
	return "unknown"
}

// ExtrinsicReceipt is the outcome of a submitted extrinsic
type ExtrinsicReceipt struct {
	Success     bool
	Hash        string
	BlockHash   string
	BlockNumber uint64
	Message     string
}
