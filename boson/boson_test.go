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

package boson_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/gotensor/boson"
	"github.com/blinklabs-io/gotensor/keypair"
	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/blinklabs-io/gotensor/nucleon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type echoBody struct {
	Input  string `json:"input"`
	Output string `json:"output,omitempty"`
}

func testKeypair(t *testing.T, b byte) *keypair.Keypair {
	t.Helper()
	kp, err := keypair.NewFromSeed(bytes.Repeat([]byte{b}, keypair.SeedSize))
	require.NoError(t, err)
	return kp
}

func endpointFor(t *testing.T, serverURL string, hotkey string) ledger.EndpointInfo {
	t.Helper()
	u, err := url.Parse(serverURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return ledger.EndpointInfo{
		IP:     u.Hostname(),
		Port:   uint16(port),
		IPType: ledger.IPTypeV4,
		Hotkey: hotkey,
	}
}

// deadEndpoint returns an endpoint nothing listens on
func deadEndpoint(t *testing.T) ledger.EndpointInfo {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	require.NoError(t, l.Close())
	return ledger.EndpointInfo{IP: "127.0.0.1", Port: uint16(addr.Port), IPType: ledger.IPTypeV4}
}

// echoHandler answers like an endpoint that upper-cases nothing but copies
// the input into the output
func echoHandler(t *testing.T, mutate bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body echoBody
		data := new(bytes.Buffer)
		_, _ = data.ReadFrom(r.Body)
		n, err := nucleon.Decode(data.Bytes(), &body)
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		parsed, err := nucleon.ParseHeaders(nucleon.HTTPHeaderMap(r.Header))
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.NoError(t, parsed.Verify())
		assert.Equal(t, nucleon.HashBytes(mustMarshal(t, &body)), parsed.ComputedBodyHash)
		body.Output = "echo:" + body.Input
		n.AllowMutation = mutate
		n.Endpoint.StatusCode = nucleon.StatusOK
		n.Endpoint.StatusMessage = nucleon.MessageSuccess
		n.Endpoint.ProcessTime = 0.001
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(n)
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestPartialFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	first := httptest.NewServer(echoHandler(t, true))
	defer first.Close()
	second := httptest.NewServer(echoHandler(t, true))
	defer second.Close()
	b := boson.New(testKeypair(t, 1))
	defer b.Close()
	endpoints := []ledger.EndpointInfo{
		endpointFor(t, first.URL, testKeypair(t, 2).Address()),
		deadEndpoint(t),
		endpointFor(t, second.URL, testKeypair(t, 3).Address()),
	}
	ret := b.ForwardMany(context.Background(), endpoints, &echoBody{Input: "ping"})
	require.Len(t, ret, 3)
	unavailable := 0
	for idx, n := range ret {
		if n.Endpoint.StatusCode == nucleon.StatusServiceUnavailable {
			unavailable++
			assert.Equal(t, 1, idx)
			assert.Equal(t, nucleon.MessageServiceUnavailable, n.Endpoint.StatusMessage)
			continue
		}
		assert.True(t, n.IsSuccess())
		assert.Equal(t, "echo:ping", n.Body.(*echoBody).Output)
		assert.Equal(t, endpoints[idx].Port, n.Endpoint.Port)
	}
	assert.Equal(t, 1, unavailable)
}

func TestScalarAndList(t *testing.T) {
	defer goleak.VerifyNone(t)
	server := httptest.NewServer(echoHandler(t, true))
	defer server.Close()
	b := boson.New(testKeypair(t, 1))
	defer b.Close()
	endpoint := endpointFor(t, server.URL, testKeypair(t, 2).Address())
	single := b.Forward(context.Background(), endpoint, &echoBody{Input: "one"})
	require.NotNil(t, single)
	assert.Equal(t, "echo:one", single.Body.(*echoBody).Output)
	list := b.ForwardMany(context.Background(), []ledger.EndpointInfo{endpoint}, &echoBody{Input: "one"})
	require.Len(t, list, 1)
	assert.Equal(t, "echo:one", list[0].Body.(*echoBody).Output)
	assert.Empty(t, b.ForwardMany(context.Background(), nil, &echoBody{}))
}

func TestTimeoutIsolation(t *testing.T) {
	defer goleak.VerifyNone(t)
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()
	fast := httptest.NewServer(echoHandler(t, true))
	defer fast.Close()
	b := boson.New(testKeypair(t, 1))
	defer b.Close()
	ret := b.ForwardMany(
		context.Background(),
		[]ledger.EndpointInfo{
			endpointFor(t, slow.URL, ""),
			endpointFor(t, fast.URL, ""),
		},
		&echoBody{Input: "x"},
		boson.WithTimeout(200*time.Millisecond),
	)
	require.Len(t, ret, 2)
	assert.Equal(t, nucleon.StatusTimeout, ret[0].Endpoint.StatusCode)
	assert.Equal(t, nucleon.MessageTimeout, ret[0].Endpoint.StatusMessage)
	assert.True(t, ret[0].IsTimeout())
	assert.True(t, ret[1].IsSuccess())
	assert.InDelta(t, 0.2, ret[0].Timeout, 1e-9)
}

func TestFailureStatuses(t *testing.T) {
	testDefs := []struct {
		name    string
		handler http.HandlerFunc
		code    int
		message string
	}{
		{
			name: "plain error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "overloaded", http.StatusTooManyRequests)
			},
			code:    http.StatusTooManyRequests,
			message: "overloaded",
		},
		{
			name: "envelope error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(&nucleon.Nucleon{
					Endpoint: nucleon.TerminalInfo{StatusCode: 401, StatusMessage: "signature mismatch"},
				})
			},
			code:    http.StatusUnauthorized,
			message: "signature mismatch",
		},
		{
			name: "garbage",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
			code:    nucleon.StatusParseFailure,
			message: nucleon.MessageParseFailure,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			server := httptest.NewServer(testDef.handler)
			defer server.Close()
			b := boson.New(testKeypair(t, 1))
			defer b.Close()
			n := b.Forward(context.Background(), endpointFor(t, server.URL, ""), &echoBody{Input: "x"})
			assert.Equal(t, testDef.code, n.Endpoint.StatusCode)
			assert.Equal(t, testDef.message, n.Endpoint.StatusMessage)
			assert.True(t, n.IsFailure())
			// local body is untouched on failure
			assert.Equal(t, &echoBody{Input: "x"}, n.Body)
		})
	}
}

func TestInvalidBody(t *testing.T) {
	b := boson.New(testKeypair(t, 1))
	defer b.Close()
	n := b.Forward(context.Background(), deadEndpoint(t), echoBody{Input: "not a pointer"})
	assert.Equal(t, nucleon.StatusParseFailure, n.Endpoint.StatusCode)
}

func TestMergeRules(t *testing.T) {
	server := httptest.NewServer(echoHandler(t, false))
	defer server.Close()
	b := boson.New(testKeypair(t, 1))
	defer b.Close()
	endpoint := endpointFor(t, server.URL, "")
	// mutation not allowed: terminal info is merged, body is kept
	n := b.Forward(context.Background(), endpoint, &echoBody{Input: "x"})
	assert.True(t, n.IsSuccess())
	assert.InDelta(t, 0.001, n.Endpoint.ProcessTime, 1e-9)
	assert.Empty(t, n.Body.(*echoBody).Output)

	mutating := httptest.NewServer(echoHandler(t, true))
	defer mutating.Close()
	n = b.Forward(
		context.Background(),
		endpointFor(t, mutating.URL, ""),
		&echoBody{Input: "x"},
		boson.WithDeserialize(false),
	)
	assert.True(t, n.IsSuccess())
	assert.Empty(t, n.Body.(*echoBody).Output)
}

func TestMergeMismatchedBody(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"echoBody","timeout":1,"total_size":0,"header_size":0,"dispatcher":{},"endpoint":{"status_code":200},"allow_mutation":true,"body":{"input":42}}`))
	}))
	defer server.Close()
	b := boson.New(testKeypair(t, 1), boson.WithLogger(zap.New(core)))
	defer b.Close()
	n := b.Forward(context.Background(), endpointFor(t, server.URL, ""), &echoBody{Input: "x"})
	assert.True(t, n.IsSuccess())
	assert.Equal(t, &echoBody{Input: "x"}, n.Body)
	assert.Equal(t, 1, logs.FilterMessageSnippet("keeping local body").Len())
}

func TestLoopback(t *testing.T) {
	server := httptest.NewServer(echoHandler(t, true))
	defer server.Close()
	endpoint := endpointFor(t, server.URL, "")
	endpoint.IP = "203.0.113.7"
	b := boson.New(testKeypair(t, 1), boson.WithExternalIP("203.0.113.7"))
	defer b.Close()
	n := b.Forward(context.Background(), endpoint, &echoBody{Input: "self"})
	assert.True(t, n.IsSuccess(), "status %d", n.Endpoint.StatusCode)
	assert.Equal(t, "203.0.113.7", n.Endpoint.IP)
	assert.Equal(t, "203.0.113.7", n.Dispatcher.IP)
}

func TestSequential(t *testing.T) {
	var mutex sync.Mutex
	var order []string
	echo := echoHandler(t, true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mutex.Lock()
		order = append(order, r.Header.Get("Gt-Endpoint-Hotkey"))
		mutex.Unlock()
		// later arrivals would overtake earlier ones if calls overlapped
		time.Sleep(20 * time.Millisecond)
		echo(w, r)
	}))
	defer server.Close()
	b := boson.New(testKeypair(t, 1))
	defer b.Close()
	var endpoints []ledger.EndpointInfo
	var expected []string
	for idx := range 4 {
		hotkey := testKeypair(t, byte(10+idx)).Address()
		endpoints = append(endpoints, endpointFor(t, server.URL, hotkey))
		expected = append(expected, hotkey)
	}
	ret := b.ForwardMany(context.Background(), endpoints, &echoBody{Input: "x"}, boson.WithSequential())
	require.Len(t, ret, 4)
	assert.Equal(t, expected, order)
	nonces := make([]uint64, len(ret))
	for idx, n := range ret {
		assert.True(t, n.IsSuccess())
		nonces[idx] = n.Dispatcher.Nonce
	}
	for idx := 1; idx < len(nonces); idx++ {
		assert.Greater(t, nonces[idx], nonces[idx-1])
	}
}

func TestHistory(t *testing.T) {
	b := boson.New(testKeypair(t, 1), boson.WithHistorySize(2))
	defer b.Close()
	dead := deadEndpoint(t)
	for _, input := range []string{"a", "b", "c"} {
		b.Forward(context.Background(), dead, &echoBody{Input: input})
	}
	history := b.History()
	require.Len(t, history, 2)
	assert.Equal(t, "b", history[0].Body.(*echoBody).Input)
	assert.Equal(t, "c", history[1].Body.(*echoBody).Input)
	assert.Equal(t, nucleon.StatusServiceUnavailable, history[1].Endpoint.StatusCode)
	// archived entries are copies
	history[0].Body.(*echoBody).Input = "changed"
	assert.Equal(t, "b", b.History()[0].Body.(*echoBody).Input)
	b.ClearHistory()
	assert.Empty(t, b.History())
	none := boson.New(testKeypair(t, 1), boson.WithHistorySize(0))
	defer none.Close()
	none.Forward(context.Background(), dead, &echoBody{})
	assert.Empty(t, none.History())
}

func TestQueryAndClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	server := httptest.NewServer(echoHandler(t, true))
	defer server.Close()
	b := boson.New(testKeypair(t, 1))
	endpoint := endpointFor(t, server.URL, "")
	ret := b.Query([]ledger.EndpointInfo{endpoint}, &echoBody{Input: "q"})
	require.Len(t, ret, 1)
	assert.True(t, ret[0].IsSuccess())
	// the pool is recreated after Query released it
	assert.True(t, b.Forward(context.Background(), endpoint, &echoBody{}).IsSuccess())
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	n := b.Forward(context.Background(), endpoint, &echoBody{})
	assert.Equal(t, nucleon.StatusServiceUnavailable, n.Endpoint.StatusCode)
}

func TestCloseCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()
	b := boson.New(testKeypair(t, 1))
	done := make(chan *nucleon.Nucleon, 1)
	go func() {
		done <- b.Forward(
			context.Background(),
			endpointFor(t, server.URL, ""),
			&echoBody{},
			boson.WithTimeout(10*time.Second),
		)
	}()
	<-started
	require.NoError(t, b.Close())
	select {
	case n := <-done:
		assert.Equal(t, nucleon.StatusServiceUnavailable, n.Endpoint.StatusCode)
	case <-time.After(5 * time.Second):
		t.Fatal("forward did not return after Close")
	}
}

func TestIdentity(t *testing.T) {
	kp := testKeypair(t, 1)
	b := boson.New(kp)
	defer b.Close()
	other := boson.New(kp)
	defer other.Close()
	assert.Equal(t, kp.Address(), b.Hotkey())
	assert.NotEmpty(t, b.UUID())
	assert.NotEqual(t, b.UUID(), other.UUID())
}

type linesBody struct {
	Lines []string `json:"lines,omitempty"`
}

func (l *linesBody) ApplyChunk(chunk []byte) error {
	l.Lines = append(l.Lines, string(chunk))
	return nil
}

func TestForwardStream(t *testing.T) {
	defer goleak.VerifyNone(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-ndjson", r.Header.Get("Accept"))
		w.Header().Set("Gt-Endpoint-Status-Code", "200")
		w.Header().Set("Gt-Endpoint-Status-Message", "streamed")
		_, _ = w.Write([]byte("{\"n\":1}\n\n{\"n\":2}\n"))
	}))
	defer server.Close()
	b := boson.New(testKeypair(t, 1))
	defer b.Close()
	var items []boson.StreamItem
	for item := range b.ForwardStream(context.Background(), endpointFor(t, server.URL, ""), &linesBody{}) {
		items = append(items, item)
	}
	require.Len(t, items, 3)
	assert.Equal(t, `{"n":1}`, string(items[0].Chunk))
	assert.Equal(t, `{"n":2}`, string(items[1].Chunk))
	final := items[2].Nucleon
	require.NotNil(t, final)
	assert.Nil(t, items[2].Chunk)
	assert.Equal(t, "streamed", final.Endpoint.StatusMessage)
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`}, final.Body.(*linesBody).Lines)
	require.Len(t, b.History(), 1)
}

func TestForwardStreamFailure(t *testing.T) {
	b := boson.New(testKeypair(t, 1))
	defer b.Close()
	var items []boson.StreamItem
	for item := range b.ForwardStream(context.Background(), deadEndpoint(t), &linesBody{}) {
		items = append(items, item)
	}
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Nucleon)
	assert.Equal(t, nucleon.StatusServiceUnavailable, items[0].Nucleon.Endpoint.StatusCode)
}
