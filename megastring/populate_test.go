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

package megastring

import (
	"math"
	"testing"

	"github.com/blinklabs-io/gotensor/ledger"
	"github.com/stretchr/testify/assert"
)

func TestPopulateUIDRange(t *testing.T) {
	m := New("local", 1)
	err := m.populate(make([]ledger.ParticipantInfoLite, math.MaxUint16+1))
	assert.ErrorIs(t, err, ErrInconsistent)
	assert.Equal(t, uint16(0), m.N)
	assert.Empty(t, m.Stake)
}

func TestPopulateDuplicateUID(t *testing.T) {
	m := New("local", 1)
	err := m.populate([]ledger.ParticipantInfoLite{{UID: 1}, {UID: 1}})
	assert.ErrorIs(t, err, ErrInconsistent)
}
