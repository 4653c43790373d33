// Package evmcore provides the simulated execution environment the raffle is
// deployed into: a block clock and an account ledger backed by go-ethereum's
// StateDB. It plays the role a local development chain plays for a contract.
//
// Key concepts:
//   - EvmHeader: minimal header of a mined block (number, time, state root)
//   - Chain: mutable head of the simulated chain, also the raffle's Ledger and Clock
//   - Fake genesis: pre-funded deterministic accounts, block 0
//
// Usage:
//
//	chain, err := evmcore.NewChain(evmcore.FakeGenesisTime, balances)
//	chain.IncreaseTime(time.Hour) // mines a block one hour later
//	err = chain.Transfer(from, to, amount)
package evmcore

import (
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/rony4d/go-opera-raffle/inter"
)

// EvmHeader is the header of a block mined by the simulated chain. Only the
// fields contracts can observe (number and timestamp) plus the state root
// are tracked.
type EvmHeader struct {
	Number     idx.Block       // block height, genesis is 0
	ParentHash common.Hash     // hash of the previous header, zero for genesis
	Root       common.Hash     // state root after the block
	Time       inter.Timestamp // block timestamp in seconds
}

// Hash returns the keccak256 hash of the RLP-encoded header.
func (h *EvmHeader) Hash() common.Hash {
	enc, err := rlp.EncodeToBytes(h)
	if err != nil {
		// all header fields are fixed-size and always encodable
		panic(err)
	}
	return crypto.Keccak256Hash(enc)
}

// next builds the child header of h at the given time and root.
func (h *EvmHeader) next(time inter.Timestamp, root common.Hash) *EvmHeader {
	if time < h.Time {
		time = h.Time
	}
	return &EvmHeader{
		Number:     h.Number + 1,
		ParentHash: h.Hash(),
		Root:       root,
		Time:       time,
	}
}
