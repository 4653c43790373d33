// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package evmcore

import (
	"crypto/ecdsa"
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"

	"github.com/rony4d/go-opera-raffle/inter"
)

// FakeGenesisTime is the default timestamp of a fake genesis block
// (1608600000, December 22, 2020).
var FakeGenesisTime = inter.Timestamp(1608600000)

// applyFakeGenesis funds the given accounts, commits the state and returns the
// genesis header (block 0) carrying the resulting root.
func applyFakeGenesis(statedb *state.StateDB, time inter.Timestamp, balances map[common.Address]*big.Int) (*EvmHeader, error) {
	for acc, balance := range balances {
		statedb.SetBalance(acc, new(big.Int).Set(balance))
	}

	root, err := flush(statedb)
	if err != nil {
		return nil, err
	}

	return &EvmHeader{
		Number: 0,
		Root:   root,
		Time:   time,
	}, nil
}

// flush commits pending state changes to the trie and the trie to the
// backing database, returning the new state root.
func flush(statedb *state.StateDB) (root common.Hash, err error) {
	root, err = statedb.Commit(true)
	if err != nil {
		return
	}
	err = statedb.Database().TrieDB().Commit(root, false, nil)
	return
}

// FakeKey generates a deterministic secp256k1 private key. The same n always
// yields the same key, which makes test accounts reproducible across runs.
func FakeKey(n int) *ecdsa.PrivateKey {
	reader := rand.New(rand.NewSource(int64(n)))

	key, err := ecdsa.GenerateKey(crypto.S256(), reader)
	if err != nil {
		panic(err)
	}

	return key
}

// FakeAccount returns the address of FakeKey(n).
func FakeAccount(n int) common.Address {
	return crypto.PubkeyToAddress(FakeKey(n).PublicKey)
}

// FakeAccounts returns the first n fake accounts, ordered by index.
func FakeAccounts(n int) []common.Address {
	accs := make([]common.Address, n)
	for i := range accs {
		accs[i] = FakeAccount(i)
	}
	return accs
}

// ContractAddress returns the address a contract deployed by deployer with
// the given account nonce receives.
func ContractAddress(deployer common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(deployer, nonce)
}

// MustNewChain is NewChain that aborts the process on failure. It is meant
// for tests and the simulation command, where a broken genesis is fatal.
func MustNewChain(genesisTime inter.Timestamp, balances map[common.Address]*big.Int) *Chain {
	chain, err := NewChain(genesisTime, balances)
	if err != nil {
		log.WithError(err).Fatal("Failed to apply fake genesis")
	}
	return chain
}
