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

// Package rpc reads ledger state and submits extrinsics.
//
// A Client wraps a Backend, which is either an HTTPBackend talking JSON-RPC
// to a node or an in-memory ledger in tests. The client retries transport
// failures with exponential backoff, resolves storage items to their typed
// values, and can be pinned to a block with At:
//
//	client := rpc.NewClient(rpc.NewHTTPBackend("wss://entrypoint-finney.opentensor.ai:443"))
//	participants, err := client.At(4_000_000).ParticipantsLite(ctx, 1)
//
// Queries against a future block fail with ErrFutureBlock.
package rpc
