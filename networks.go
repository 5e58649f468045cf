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

package gotensor

import "github.com/blinklabs-io/gotensor/ledger"

// Network definitions
var (
	NetworkFinney = Network{
		Name:          "finney",
		ChainEndpoint: "wss://entrypoint-finney.opentensor.ai:443",
		SS58Format:    ledger.SS58Format,
	}
	NetworkTest = Network{
		Name:          "test",
		ChainEndpoint: "wss://test.finney.opentensor.ai:443",
		SS58Format:    ledger.SS58Format,
	}
	NetworkLocal = Network{
		Name:          "local",
		ChainEndpoint: "ws://127.0.0.1:9944",
		SS58Format:    ledger.SS58Format,
	}

	NetworkInvalid = Network{
		Name: "invalid",
	} // NetworkInvalid is used as a return value for lookup functions when a network isn't found
)

// List of valid networks for use in lookup functions
var networks = []Network{
	NetworkFinney,
	NetworkTest,
	NetworkLocal,
}

// NetworkByName returns a predefined network by name
func NetworkByName(name string) Network {
	for _, network := range networks {
		if network.Name == name {
			return network
		}
	}
	return NetworkInvalid
}

// NetworkByChainEndpoint returns a predefined network by its chain endpoint
func NetworkByChainEndpoint(endpoint string) Network {
	for _, network := range networks {
		if network.ChainEndpoint == endpoint {
			return network
		}
	}
	return NetworkInvalid
}

// Network represents a ledger network
type Network struct {
	Name          string
	ChainEndpoint string
	SS58Format    uint16
}

// Valid reports whether the network is one of the predefined networks
func (n Network) Valid() bool {
	return n.Name != NetworkInvalid.Name && n.ChainEndpoint != ""
}

func (n Network) String() string {
	return n.Name
}
