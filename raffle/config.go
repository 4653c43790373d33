package raffle

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

const (
	// DefaultRequestConfirmations is the number of blocks the oracle waits
	// before answering a randomness request.
	DefaultRequestConfirmations uint16 = 3

	// DefaultNumWords is the number of random words requested per round. One
	// word is enough to pick a single winner.
	DefaultNumWords uint32 = 1

	// DefaultCallbackGasLimit is the gas budget the oracle forwards to the
	// fulfillment callback.
	DefaultCallbackGasLimit uint32 = 200000

	// DefaultInterval is the minimum length of a round.
	DefaultInterval = 24 * time.Hour
)

// DefaultEntryFee is 0.1 ether.
var DefaultEntryFee = new(big.Int).Div(big.NewInt(params.Ether), big.NewInt(10))

// Config holds the per-deployment parameters of a raffle. A raffle keeps its
// own copy, so a Config can be reused after it has been passed to New.
type Config struct {
	EntryFee             *big.Int       // minimum value, in wei, that buys an entry
	Interval             time.Duration  // minimum time between round start and close
	CallbackGasLimit     uint32         // gas forwarded to RawFulfillRandomWords
	RequestConfirmations uint16         // blocks the oracle waits before fulfilling
	NumWords             uint32         // random words per request, always 1
	KeyHash              common.Hash    // oracle gas lane
	SubscriptionID       uint64         // oracle subscription paying for requests
	Coordinator          common.Address // the only caller allowed to deliver randomness
}

// DefaultConfig returns a config with the contract defaults. The key hash,
// subscription and coordinator are deployment specific and left empty.
func DefaultConfig() Config {
	return Config{
		EntryFee:             new(big.Int).Set(DefaultEntryFee),
		Interval:             DefaultInterval,
		CallbackGasLimit:     DefaultCallbackGasLimit,
		RequestConfirmations: DefaultRequestConfirmations,
		NumWords:             DefaultNumWords,
	}
}

var (
	errNoEntryFee      = errors.New("entry fee is not set")
	errNoCoordinator   = errors.New("coordinator address is not set")
	errNumWords        = errors.New("exactly one random word must be requested")
	errNegativeSetting = errors.New("negative setting")
)

// Validate reports whether the config can be used to deploy a raffle.
func (c Config) Validate() error {
	if c.EntryFee == nil {
		return errNoEntryFee
	}
	if c.EntryFee.Sign() < 0 {
		return fmt.Errorf("entry fee %s: %w", c.EntryFee, errNegativeSetting)
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval %s: %w", c.Interval, errNegativeSetting)
	}
	if c.NumWords != DefaultNumWords {
		return fmt.Errorf("%d words: %w", c.NumWords, errNumWords)
	}
	if c.Coordinator == (common.Address{}) {
		return errNoCoordinator
	}
	return nil
}

// Copy returns a deep copy of the config.
func (c Config) Copy() Config {
	cp := c
	if c.EntryFee != nil {
		cp.EntryFee = new(big.Int).Set(c.EntryFee)
	}
	return cp
}

// String returns a JSON representation for logs and config dumps.
func (c Config) String() string {
	b, err := json.Marshal(&c)
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(b)
}
