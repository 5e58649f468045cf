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

// Package nucleon implements the envelope exchanged between a dispatcher and
// an endpoint. A nucleon carries the identity of both terminals, a timeout,
// a nonce, a signature and a typed request body.
package nucleon

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/blinklabs-io/gotensor/keypair"
	"github.com/jinzhu/copier"
	"golang.org/x/crypto/sha3"
)

// Status codes and messages assigned by the dispatcher when a call fails
// before the endpoint answers
const (
	StatusOK                  = 200
	StatusBadRequest          = 400
	StatusUnauthorized        = 401
	StatusNotFound            = 404
	StatusTimeout             = 408
	StatusParseFailure        = 422
	StatusInternalError       = 500
	StatusServiceUnavailable  = 503
	MessageSuccess            = "Success"
	MessageTimeout            = "Timed out"
	MessageServiceUnavailable = "Service unavailable"
	MessageParseFailure       = "Failed to parse response"
)

// DefaultTimeout is the call timeout used when none is given
const DefaultTimeout = 12 * time.Second

var (
	ErrInvalidBody      = errors.New("invalid nucleon body")
	ErrMissingSignature = errors.New("missing signature")
)

// TerminalInfo describes one side of an exchange
type TerminalInfo struct {
	StatusCode    int     `json:"status_code,omitempty"`
	StatusMessage string  `json:"status_message,omitempty"`
	ProcessTime   float64 `json:"process_time,omitempty"`
	IP            string  `json:"ip,omitempty"`
	Port          uint16  `json:"port,omitempty"`
	Version       uint32  `json:"version,omitempty"`
	Nonce         uint64  `json:"nonce,omitempty"`
	UUID          string  `json:"uuid,omitempty"`
	Hotkey        string  `json:"hotkey,omitempty"`
	Signature     string  `json:"signature,omitempty"`
}

// Nucleon is the request/response envelope of one query to one endpoint.
// Body must be a pointer to a JSON-serializable struct
type Nucleon struct {
	Name             string       `json:"name"`
	Timeout          float64      `json:"timeout"`
	TotalSize        int          `json:"total_size"`
	HeaderSize       int          `json:"header_size"`
	Dispatcher       TerminalInfo `json:"dispatcher"`
	Endpoint         TerminalInfo `json:"endpoint"`
	ComputedBodyHash string       `json:"computed_body_hash,omitempty"`
	AllowMutation    bool         `json:"allow_mutation"`
	Body             any          `json:"body,omitempty"`
}

// Named is implemented by bodies that choose their own request name
type Named interface {
	Name() string
}

// NameOf returns the request name of a body. Bodies that do not implement
// Named use their type name
func NameOf(body any) string {
	if named, ok := body.(Named); ok {
		return named.Name()
	}
	t := reflect.TypeOf(body)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// New returns an envelope for body with the default timeout
func New(body any) *Nucleon {
	return &Nucleon{
		Name:    NameOf(body),
		Timeout: DefaultTimeout.Seconds(),
		Body:    body,
	}
}

// TimeoutDuration returns the timeout as a time.Duration, falling back to
// DefaultTimeout when unset
func (n *Nucleon) TimeoutDuration() time.Duration {
	if n.Timeout <= 0 {
		return DefaultTimeout
	}
	return time.Duration(n.Timeout * float64(time.Second))
}

// IsSuccess reports whether the endpoint answered with status 200
func (n *Nucleon) IsSuccess() bool {
	return n.Endpoint.StatusCode == StatusOK
}

// IsTimeout reports whether the call timed out
func (n *Nucleon) IsTimeout() bool {
	return n.Endpoint.StatusCode == StatusTimeout
}

// IsFailure reports whether the call completed with an error status
func (n *Nucleon) IsFailure() bool {
	return n.Endpoint.StatusCode != 0 && n.Endpoint.StatusCode != StatusOK
}

// Fail records a failure status on the endpoint terminal
func (n *Nucleon) Fail(code int, message string) {
	n.Endpoint.StatusCode = code
	n.Endpoint.StatusMessage = message
}

// HashBytes returns the hex sha3-256 digest of an encoded body
func HashBytes(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// BodyHash returns the hex sha3-256 digest of the JSON encoding of body
func BodyHash(body any) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	return HashBytes(data), nil
}

// HashBody computes the body hash and the total size of the envelope
func (n *Nucleon) HashBody() error {
	data, err := json.Marshal(n.Body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	n.ComputedBodyHash = HashBytes(data)
	n.TotalSize = len(data)
	return nil
}

// SignatureMessage builds the message signed by both terminals
func SignatureMessage(nonce uint64, dispatcherHotkey string, endpointHotkey string, uuid string, bodyHash string) string {
	return fmt.Sprintf(
		"%d.%s.%s.%s.%s",
		nonce,
		dispatcherHotkey,
		endpointHotkey,
		uuid,
		bodyHash,
	)
}

// Message returns the signature message for the envelope as it stands
func (n *Nucleon) Message() string {
	return SignatureMessage(
		n.Dispatcher.Nonce,
		n.Dispatcher.Hotkey,
		n.Endpoint.Hotkey,
		n.Dispatcher.UUID,
		n.ComputedBodyHash,
	)
}

// Sign stores the dispatcher signature of Message
func (n *Nucleon) Sign(signer keypair.Signer) error {
	sig, err := signer.Sign([]byte(n.Message()))
	if err != nil {
		return err
	}
	n.Dispatcher.Signature = "0x" + hex.EncodeToString(sig)
	return nil
}

// SignEndpoint stores the endpoint signature of Message
func (n *Nucleon) SignEndpoint(signer keypair.Signer) error {
	sig, err := signer.Sign([]byte(n.Message()))
	if err != nil {
		return err
	}
	n.Endpoint.Signature = "0x" + hex.EncodeToString(sig)
	return nil
}

// Verify checks the dispatcher signature against the dispatcher hotkey
func (n *Nucleon) Verify() error {
	return verify(n.Dispatcher.Hotkey, n.Message(), n.Dispatcher.Signature)
}

// VerifyEndpoint checks the endpoint signature against the endpoint hotkey
func (n *Nucleon) VerifyEndpoint() error {
	return verify(n.Endpoint.Hotkey, n.Message(), n.Endpoint.Signature)
}

func verify(address string, message string, signature string) error {
	if signature == "" {
		return ErrMissingSignature
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return fmt.Errorf("%w: %w", keypair.ErrInvalidSignature, err)
	}
	return keypair.VerifyAddress(address, []byte(message), sig)
}

// CloneBody returns a deep copy of a body, which must be a non-nil pointer
// to a struct
func CloneBody(body any) (any, error) {
	v := reflect.ValueOf(body)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: expected pointer to struct, got %T", ErrInvalidBody, body)
	}
	ret := reflect.New(v.Elem().Type()).Interface()
	if err := copier.CopyWithOption(ret, body, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	return ret, nil
}

// Clone returns a deep copy of the envelope and its body
func (n *Nucleon) Clone() (*Nucleon, error) {
	ret := *n
	if n.Body != nil {
		body, err := CloneBody(n.Body)
		if err != nil {
			return nil, err
		}
		ret.Body = body
	}
	return &ret, nil
}

// envelope decodes a nucleon while keeping the body raw
type envelope struct {
	Nucleon
	Body json.RawMessage `json:"body,omitempty"`
}

// Decode parses a JSON envelope. The body is decoded into body, which
// becomes the Body of the returned nucleon. A body that cannot be decoded
// yields the envelope alongside an error wrapping ErrInvalidBody
func Decode(data []byte, body any) (*Nucleon, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	ret := env.Nucleon
	ret.Body = body
	if len(env.Body) > 0 && body != nil && string(env.Body) != "null" {
		if err := json.Unmarshal(env.Body, body); err != nil {
			return &ret, fmt.Errorf("%w: %w", ErrInvalidBody, err)
		}
	}
	return &ret, nil
}

// RawBody returns the undecoded body of a JSON envelope
func RawBody(data []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return env.Body, nil
}

// StreamingBody is implemented by bodies that accumulate a streamed
// response one chunk at a time
type StreamingBody interface {
	ApplyChunk(chunk []byte) error
}

// Deserializer is implemented by bodies that reduce a response to a single
// result value
type Deserializer interface {
	Deserialize() any
}

// Result returns the deserialized body when the body implements
// Deserializer and the body itself otherwise
func (n *Nucleon) Result() any {
	if d, ok := n.Body.(Deserializer); ok {
		return d.Deserialize()
	}
	return n.Body
}
