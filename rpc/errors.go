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
	"strings"
)

var (
	// ErrFutureBlock is returned when a query is pinned to a block after the
	// current block
	ErrFutureBlock = errors.New("requested block is in the future")
	// ErrUnsupported is returned by backends that cannot serve a query
	ErrUnsupported = errors.New("operation not supported by backend")
	// ErrUnknownStorage is returned for storage items missing from the layout
	ErrUnknownStorage = errors.New("unknown storage item")
	// ErrUnknownCall is returned for calls missing from the call index table
	ErrUnknownCall = errors.New("unknown call")
	// ErrClosed is returned after the client or backend has been closed
	ErrClosed = errors.New("rpc client closed")
)

// TransportError is a failure to reach the ledger. Only transport errors are
// retried
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error calling %s: %s", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RPCError is an error object returned by the JSON-RPC server
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s: %v", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ExtrinsicError is a rejected extrinsic
type ExtrinsicError struct {
	Message string
}

func (e *ExtrinsicError) Error() string {
	return "extrinsic failed: " + e.Message
}

var alreadyRegisteredMessages = []string{
	"AlreadyRegistered",
	"HotKeyAlreadyRegisteredInSubNet",
	"already registered",
}

// IsAlreadyRegistered reports whether err is a rejection caused by the hotkey
// already being registered
func IsAlreadyRegistered(err error) bool {
	var extErr *ExtrinsicError
	if !errors.As(err, &extErr) {
		return false
	}
	for _, msg := range alreadyRegisteredMessages {
		if strings.Contains(extErr.Message, msg) {
			return true
		}
	}
	return false
}
