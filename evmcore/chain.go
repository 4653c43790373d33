package evmcore

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/vm"
	log "github.com/sirupsen/logrus"

	"github.com/rony4d/go-opera-raffle/inter"
)

// ErrNegativeValue is returned when a transfer amount is negative.
var ErrNegativeValue = errors.New("negative transfer value")

// Chain is an in-memory chain with a single writer view of account state.
// It mines a block whenever time advances and keeps balances in a StateDB
// over a memory database. All methods are safe for concurrent use.
//
// StateDB lookups resolve trie nodes and fill caches even on reads, so every
// access, reads included, holds the exclusive lock.
type Chain struct {
	mu sync.Mutex

	statedb *state.StateDB
	genesis *EvmHeader
	head    *EvmHeader

	// accounts whose receive hook reverts
	rejecting map[common.Address]struct{}
}

// NewChain creates a chain whose genesis block at genesisTime funds the given
// balances.
func NewChain(genesisTime inter.Timestamp, balances map[common.Address]*big.Int) (*Chain, error) {
	db := state.NewDatabase(rawdb.NewMemoryDatabase())
	statedb, err := state.New(common.Hash{}, db, nil)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}

	genesis, err := applyFakeGenesis(statedb, genesisTime, balances)
	if err != nil {
		return nil, fmt.Errorf("apply genesis: %w", err)
	}

	log.WithFields(log.Fields{
		"root":     genesis.Root.Hex(),
		"time":     genesis.Time,
		"accounts": len(balances),
	}).Debug("Applied fake genesis")

	return &Chain{
		statedb:   statedb,
		genesis:   genesis,
		head:      genesis,
		rejecting: make(map[common.Address]struct{}),
	}, nil
}

// Genesis returns the genesis header.
func (c *Chain) Genesis() EvmHeader {
	return *c.genesis
}

// Head returns a copy of the latest header.
func (c *Chain) Head() EvmHeader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.head
}

// Now returns the timestamp of the latest block.
func (c *Chain) Now() inter.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head.Time
}

// BlockNumber returns the height of the latest block.
func (c *Chain) BlockNumber() idx.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head.Number
}

// Mine seals a new block at the current head time.
func (c *Chain) Mine() EvmHeader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mine(c.head.Time)
}

// IncreaseTime mines a block d after the current head, the same way a
// development node's time.increase does.
func (c *Chain) IncreaseTime(d time.Duration) EvmHeader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mine(c.head.Time.Add(d))
}

func (c *Chain) mine(at inter.Timestamp) EvmHeader {
	root := c.statedb.IntermediateRoot(true)
	c.head = c.head.next(at, root)
	return *c.head
}

// Balance returns a copy of the balance held by addr.
func (c *Chain) Balance(addr common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.statedb.GetBalance(addr))
}

// SetBalance overwrites the balance of addr.
func (c *Chain) SetBalance(addr common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statedb.SetBalance(addr, new(big.Int).Set(amount))
}

// SetRevertOnReceive marks addr as an account whose receive hook reverts, so
// every transfer to it fails. Passing false clears the mark.
func (c *Chain) SetRevertOnReceive(addr common.Address, revert bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if revert {
		c.rejecting[addr] = struct{}{}
	} else {
		delete(c.rejecting, addr)
	}
}

// Transfer moves amount from one account to another. It either applies in
// full or leaves both balances untouched.
func (c *Chain) Transfer(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeValue
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.rejecting[to]; ok {
		return fmt.Errorf("transfer to %s: %w", to.Hex(), vm.ErrExecutionReverted)
	}
	if c.statedb.GetBalance(from).Cmp(amount) < 0 {
		return fmt.Errorf("transfer of %s from %s: %w", amount, from.Hex(), vm.ErrInsufficientBalance)
	}

	c.statedb.SubBalance(from, amount)
	c.statedb.AddBalance(to, amount)
	return nil
}

// Commit flushes the state to the memory database and returns the root.
func (c *Chain) Commit() (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return flush(c.statedb)
}
