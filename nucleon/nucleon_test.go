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

package nucleon_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/blinklabs-io/gotensor/internal/test"
	"github.com/blinklabs-io/gotensor/keypair"
	"github.com/blinklabs-io/gotensor/nucleon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoBody struct {
	Input  string            `json:"input"`
	Output []string          `json:"output,omitempty"`
	Scores map[string]uint16 `json:"scores,omitempty"`
}

type namedBody struct {
	Value int `json:"value"`
}

func (namedBody) Name() string {
	return "custom"
}

func testKeypair(t *testing.T, b byte) *keypair.Keypair {
	t.Helper()
	kp, err := keypair.NewFromSeed(bytes.Repeat([]byte{b}, keypair.SeedSize))
	require.NoError(t, err)
	return kp
}

func TestNameOf(t *testing.T) {
	assert.Equal(t, "echoBody", nucleon.NameOf(&echoBody{}))
	assert.Equal(t, "echoBody", nucleon.NameOf(echoBody{}))
	assert.Equal(t, "custom", nucleon.NameOf(&namedBody{}))
	assert.Equal(t, "", nucleon.NameOf(nil))
	n := nucleon.New(&echoBody{})
	assert.Equal(t, "echoBody", n.Name)
	assert.Equal(t, nucleon.DefaultTimeout, n.TimeoutDuration())
	n.Timeout = 1.5
	assert.Equal(t, 1500*time.Millisecond, n.TimeoutDuration())
}

func TestSignatureMessage(t *testing.T) {
	assert.Equal(
		t,
		"7."+test.AliceAddress+"."+test.BobAddress+".abc.ff00",
		nucleon.SignatureMessage(7, test.AliceAddress, test.BobAddress, "abc", "ff00"),
	)
}

func TestSignDeterministic(t *testing.T) {
	dispatcher := testKeypair(t, 1)
	build := func(nonce uint64) *nucleon.Nucleon {
		n := nucleon.New(&echoBody{Input: "hello"})
		require.NoError(t, n.HashBody())
		n.Dispatcher.Nonce = nonce
		n.Dispatcher.Hotkey = dispatcher.Address()
		n.Dispatcher.UUID = "8b1c3e2a-0000-4000-8000-000000000001"
		n.Endpoint.Hotkey = test.BobAddress
		require.NoError(t, n.Sign(dispatcher))
		return n
	}
	first := build(1)
	second := build(1)
	third := build(2)
	assert.Equal(t, first.Dispatcher.Signature, second.Dispatcher.Signature)
	assert.NotEqual(t, first.Dispatcher.Signature, third.Dispatcher.Signature)
	require.NoError(t, first.Verify())
	// tampering with the body hash invalidates the signature
	first.ComputedBodyHash = third.ComputedBodyHash + "00"
	assert.ErrorIs(t, first.Verify(), keypair.ErrInvalidSignature)
	first.Dispatcher.Signature = ""
	assert.ErrorIs(t, first.Verify(), nucleon.ErrMissingSignature)
}

func TestEndpointSignature(t *testing.T) {
	dispatcher := testKeypair(t, 1)
	endpoint := testKeypair(t, 2)
	n := nucleon.New(&echoBody{Input: "x"})
	require.NoError(t, n.HashBody())
	n.Dispatcher.Nonce = 3
	n.Dispatcher.Hotkey = dispatcher.Address()
	n.Dispatcher.UUID = "u"
	n.Endpoint.Hotkey = endpoint.Address()
	require.NoError(t, n.SignEndpoint(endpoint))
	assert.NoError(t, n.VerifyEndpoint())
	n.Endpoint.Hotkey = dispatcher.Address()
	assert.Error(t, n.VerifyEndpoint())
}

func TestBodyHash(t *testing.T) {
	hash, err := nucleon.BodyHash(&echoBody{Input: "hello"})
	require.NoError(t, err)
	assert.Len(t, hash, 64)
	again, err := nucleon.BodyHash(&echoBody{Input: "hello"})
	require.NoError(t, err)
	assert.Equal(t, hash, again)
	other, err := nucleon.BodyHash(&echoBody{Input: "hello!"})
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)
	n := nucleon.New(&echoBody{Input: "hello"})
	require.NoError(t, n.HashBody())
	assert.Equal(t, hash, n.ComputedBodyHash)
	assert.Equal(t, len(`{"input":"hello"}`), n.TotalSize)
	_, err = nucleon.BodyHash(make(chan int))
	assert.ErrorIs(t, err, nucleon.ErrInvalidBody)
}

func TestHeadersRoundTrip(t *testing.T) {
	n := nucleon.New(&echoBody{Input: "hello"})
	n.Timeout = 2.5
	require.NoError(t, n.HashBody())
	n.Dispatcher = nucleon.TerminalInfo{
		IP:        "10.0.0.1",
		Port:      8091,
		Version:   400,
		Nonce:     1_700_000_000_000,
		UUID:      "dispatcher-uuid",
		Hotkey:    test.AliceAddress,
		Signature: "0xabcd",
	}
	n.Endpoint = nucleon.TerminalInfo{
		StatusCode:    200,
		StatusMessage: nucleon.MessageSuccess,
		ProcessTime:   0.25,
		IP:            "10.0.0.2",
		Port:          8092,
		Hotkey:        test.BobAddress,
	}
	n.ComputeHeaderSize()
	assert.Positive(t, n.HeaderSize)
	headers := n.Headers()
	assert.Equal(t, "echoBody", headers[nucleon.HeaderName])
	assert.Equal(t, "2.5", headers[nucleon.HeaderTimeout])
	assert.Equal(t, "1700000000000", headers["gt-dispatcher-nonce"])
	assert.NotContains(t, headers, "gt-endpoint-nonce")
	require.NoError(t, nucleon.CheckRequired(headers))
	parsed, err := nucleon.ParseHeaders(headers)
	require.NoError(t, err)
	n.Body = nil
	assert.Equal(t, n, parsed)

	// through net/http canonicalization
	h := http.Header{}
	parsed.WriteHTTPHeaders(h)
	assert.Equal(t, "dispatcher-uuid", h.Get("Gt-Dispatcher-Uuid"))
	fromHTTP, err := nucleon.ParseHeaders(nucleon.HTTPHeaderMap(h))
	require.NoError(t, err)
	assert.Equal(t, n, fromHTTP)
}

func TestParseHeadersErrors(t *testing.T) {
	testDefs := []map[string]string{
		{"timeout": "soon"},
		{"total-size": "-x"},
		{"gt-dispatcher-port": "70000"},
		{"gt-endpoint-status-code": "ok"},
		{"gt-dispatcher-nonce": "-1"},
	}
	for _, headers := range testDefs {
		_, err := nucleon.ParseHeaders(headers)
		assert.ErrorIs(t, err, nucleon.ErrInvalidHeader, "headers %v", headers)
	}
	err := nucleon.CheckRequired(map[string]string{"name": "x"})
	assert.ErrorIs(t, err, nucleon.ErrMissingHeader)
}

func TestClone(t *testing.T) {
	body := &echoBody{
		Input:  "hello",
		Output: []string{"a"},
		Scores: map[string]uint16{"a": 1},
	}
	n := nucleon.New(body)
	clone, err := n.Clone()
	require.NoError(t, err)
	cloned := clone.Body.(*echoBody)
	assert.Equal(t, body, cloned)
	cloned.Output[0] = "b"
	cloned.Scores["a"] = 2
	assert.Equal(t, "a", body.Output[0])
	assert.Equal(t, uint16(1), body.Scores["a"])
	_, err = nucleon.CloneBody(echoBody{})
	assert.ErrorIs(t, err, nucleon.ErrInvalidBody)
	_, err = nucleon.CloneBody((*echoBody)(nil))
	assert.ErrorIs(t, err, nucleon.ErrInvalidBody)
}

func TestDecode(t *testing.T) {
	n := nucleon.New(&echoBody{Input: "hello", Output: []string{"world"}})
	n.AllowMutation = true
	n.Endpoint.StatusCode = nucleon.StatusOK
	data, err := json.Marshal(n)
	require.NoError(t, err)
	decoded, err := nucleon.Decode(data, &echoBody{})
	require.NoError(t, err)
	assert.Equal(t, n, decoded)
	assert.True(t, decoded.IsSuccess())
	assert.False(t, decoded.IsFailure())

	raw, err := nucleon.RawBody(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"input":"hello","output":["world"]}`, string(raw))

	// a body of the wrong shape still yields the envelope
	bad := []byte(`{"name":"echoBody","timeout":1,"total_size":0,"header_size":0,"dispatcher":{},"endpoint":{"status_code":200},"allow_mutation":true,"body":{"input":42}}`)
	decoded, err = nucleon.Decode(bad, &echoBody{})
	assert.ErrorIs(t, err, nucleon.ErrInvalidBody)
	require.NotNil(t, decoded)
	assert.Equal(t, nucleon.StatusOK, decoded.Endpoint.StatusCode)
	_, err = nucleon.Decode([]byte("{"), &echoBody{})
	assert.Error(t, err)
}

func TestFail(t *testing.T) {
	n := nucleon.New(&echoBody{})
	assert.False(t, n.IsFailure())
	n.Fail(nucleon.StatusTimeout, nucleon.MessageTimeout)
	assert.True(t, n.IsTimeout())
	assert.True(t, n.IsFailure())
	assert.False(t, n.IsSuccess())
}

type countBody struct {
	Items []string `json:"items"`
}

func (c *countBody) Deserialize() any {
	return len(c.Items)
}

func TestResult(t *testing.T) {
	n := nucleon.New(&countBody{Items: []string{"a", "b"}})
	assert.Equal(t, 2, n.Result())
	plain := nucleon.New(&echoBody{Input: "x"})
	assert.Equal(t, &echoBody{Input: "x"}, plain.Result())
}
