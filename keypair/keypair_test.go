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

package keypair_test

import (
	"bytes"
	"testing"

	"github.com/blinklabs-io/gotensor/internal/test"
	"github.com/blinklabs-io/gotensor/keypair"
	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 8032 section 7.1, test 1
const (
	rfcSeed      = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"
	rfcPublicKey = "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a"
	rfcSignature = "e5564300c360ac729086e2cc806e828a84877f1eb8e5d974d873e065224901555fb8821590a33bacc61e39701cf9b46bd25bf5f0595bbe24655141438e7a100b"
)

func TestKeypairVector(t *testing.T) {
	kp, err := keypair.NewFromHexSeed("0x" + rfcSeed)
	require.NoError(t, err)
	assert.Equal(t, test.DecodeHexString(rfcPublicKey), kp.PublicKey())
	sig, err := kp.Sign(nil)
	require.NoError(t, err)
	assert.Equal(t, test.DecodeHexString(rfcSignature), sig)
	expectedAddr, err := ledger.SS58Encode(test.DecodeHexString(rfcPublicKey), ledger.SS58Format)
	require.NoError(t, err)
	assert.Equal(t, expectedAddr, kp.Address())
	assert.Equal(t, test.DecodeHexString(rfcSeed), kp.Seed())
}

func TestSignVerify(t *testing.T) {
	kp, err := keypair.Generate(bytes.NewReader(bytes.Repeat([]byte{7}, keypair.SeedSize)))
	require.NoError(t, err)
	msg := []byte("1.hotkey.hotkey.uuid.hash")
	sig, err := kp.Sign(msg)
	require.NoError(t, err)
	again, err := kp.Sign(msg)
	require.NoError(t, err)
	assert.Equal(t, sig, again, "signatures should be deterministic")
	assert.NoError(t, keypair.Verify(kp.PublicKey(), msg, sig))
	assert.NoError(t, keypair.VerifyAddress(kp.Address(), msg, sig))
	assert.ErrorIs(t, keypair.Verify(kp.PublicKey(), []byte("other"), sig), keypair.ErrInvalidSignature)
	assert.ErrorIs(t, keypair.Verify(kp.PublicKey(), msg, sig[:10]), keypair.ErrInvalidSignature)
}

func TestGenerateRandom(t *testing.T) {
	a, err := keypair.Generate(nil)
	require.NoError(t, err)
	b, err := keypair.Generate(nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.Address(), b.Address())
	_, err = keypair.Generate(bytes.NewReader([]byte{1, 2}))
	assert.Error(t, err)
}

func TestValidatePublicKey(t *testing.T) {
	assert.ErrorIs(t, keypair.ValidatePublicKey([]byte{1, 2, 3}), keypair.ErrInvalidPublicKey)
	identity := make([]byte, keypair.PublicKeySize)
	identity[0] = 0x01
	assert.ErrorIs(t, keypair.ValidatePublicKey(identity), keypair.ErrSmallOrderKey)
	assert.NoError(t, keypair.ValidatePublicKey(test.DecodeHexString(rfcPublicKey)))
}

func TestInvalidSeed(t *testing.T) {
	_, err := keypair.NewFromSeed([]byte{1})
	assert.ErrorIs(t, err, keypair.ErrInvalidSeed)
	_, err = keypair.NewFromHexSeed("zz")
	assert.ErrorIs(t, err, keypair.ErrInvalidSeed)
}
