// Package network provides named deployment presets for the raffle and the
// deploy pipeline that wires a raffle to its randomness coordinator.
//
// A preset bundles everything that differs between networks: where the
// coordinator lives, which gas lane and subscription pay for randomness,
// how long a round lasts and how many confirmations a deployment waits for.
// Local presets carry no coordinator address; the deploy pipeline deploys a
// local coordinator and opens a funded subscription instead.
//
// Usage:
//
//	preset, err := network.GetPresetByName("hardhat")
//	cfg := raffle.DefaultConfig()
//	network.ApplyPreset(&cfg, preset)
package network

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"

	"github.com/rony4d/go-opera-raffle/raffle"
)

// Preset captures the per-network deployment parameters.
type Preset struct {
	Name               string         // identifier used by --network
	ChainID            uint64         // EIP-155 chain id
	IsLocal            bool           // deploy a local coordinator instead of using Coordinator
	Coordinator        common.Address // randomness coordinator, zero for local presets
	KeyHash            common.Hash    // gas lane
	SubscriptionID     uint64         // funded subscription, zero for local presets
	CallbackGasLimit   uint32         // gas forwarded to the fulfillment
	Interval           time.Duration  // round length
	BlockConfirmations uint64         // blocks a deployment waits for
	SubscriptionFund   *big.Int       // juels a local subscription is funded with
	BaseFee            *big.Int       // local coordinator flat fee, in juels
	GasPriceLink       *big.Int       // local coordinator price per callback gas, in juels
}

var sepoliaKeyHash = common.HexToHash("0x474e34a077df58807dbe9c96d3c009b23b3c6d0cce433e59bbf5b34f823bc56c")

// SepoliaPreset returns the public testnet deployment: a live coordinator
// and an existing subscription, one round per day.
func SepoliaPreset() Preset {
	return Preset{
		Name:               "sepolia",
		ChainID:            11155111,
		Coordinator:        common.HexToAddress("0x8103B0A8A00be2DDC778e6e7eaa21791Cd364625"),
		KeyHash:            sepoliaKeyHash,
		SubscriptionID:     1637,
		CallbackGasLimit:   raffle.DefaultCallbackGasLimit,
		Interval:           24 * time.Hour,
		BlockConfirmations: 6,
	}
}

// HardhatPreset returns the in-process development network. The gas lane,
// callback gas and interval follow the testnet so rounds behave the same.
func HardhatPreset() Preset {
	testnet := SepoliaPreset()
	return Preset{
		Name:               "hardhat",
		ChainID:            31337,
		IsLocal:            true,
		KeyHash:            testnet.KeyHash,
		CallbackGasLimit:   testnet.CallbackGasLimit,
		Interval:           testnet.Interval,
		BlockConfirmations: 1,
		SubscriptionFund:   new(big.Int).Mul(big.NewInt(5), big.NewInt(params.Ether)), // 5 LINK
		BaseFee:            new(big.Int).Div(big.NewInt(params.Ether), big.NewInt(4)), // 0.25 LINK
		GasPriceLink:       big.NewInt(params.GWei),
	}
}

// LocalhostPreset is HardhatPreset under the name of a standalone local
// node.
func LocalhostPreset() Preset {
	cfg := HardhatPreset()
	cfg.Name = "localhost"
	return cfg
}

var presets = map[string]func() Preset{
	"sepolia":   SepoliaPreset,
	"hardhat":   HardhatPreset,
	"localhost": LocalhostPreset,
}

// PresetNames returns the known preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPresetByName looks up a preset by its identifier.
func GetPresetByName(name string) (Preset, error) {
	mk, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown network: %q (valid: %v)", name, PresetNames())
	}
	return mk(), nil
}

// ApplyPreset copies the network specific settings of preset into target.
// Zero fields of the preset leave target untouched, so it can be applied on
// top of defaults without clobbering them.
func ApplyPreset(target *raffle.Config, preset Preset) {
	if preset.Coordinator != (common.Address{}) {
		target.Coordinator = preset.Coordinator
	}
	if preset.KeyHash != (common.Hash{}) {
		target.KeyHash = preset.KeyHash
	}
	if preset.SubscriptionID != 0 {
		target.SubscriptionID = preset.SubscriptionID
	}
	if preset.CallbackGasLimit != 0 {
		target.CallbackGasLimit = preset.CallbackGasLimit
	}
	if preset.Interval > 0 {
		target.Interval = preset.Interval
	}
}
