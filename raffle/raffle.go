// Package raffle implements an automated lottery driven by an external
// automation trigger and a verifiable randomness oracle.
//
// The raffle cycles between two states:
//   - Open: participants enter by paying the entry fee
//   - AwaitingRandomness: the round is closed and exactly one randomness
//     request is outstanding at the coordinator
//
// The automation trigger polls CheckUpkeep and calls PerformUpkeep once the
// round interval elapsed with at least one paying participant. The
// coordinator later calls RawFulfillRandomWords with the random words; the
// raffle then picks the winner, pays out the whole pool and reopens.
//
// Usage:
//
//	r, err := raffle.New(addr, cfg, raffle.Deps{Coordinator: c, Ledger: chain, Clock: chain})
//	err = r.Enter(player, fee)
//	if needed, _ := r.CheckUpkeep(nil); needed {
//	    requestID, err := r.PerformUpkeep(nil)
//	}
package raffle

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	log "github.com/sirupsen/logrus"

	"github.com/rony4d/go-opera-raffle/inter"
)

// Coordinator is the randomness oracle as seen by the raffle. A request
// returns immediately with its id; the random words arrive later through
// RawFulfillRandomWords.
type Coordinator interface {
	RequestRandomWords(consumer common.Address, keyHash common.Hash, subID uint64,
		minConfirmations uint16, callbackGasLimit uint32, numWords uint32) (*big.Int, error)
}

// Ledger holds account balances. Transfer either applies in full or fails
// without effect.
type Ledger interface {
	Balance(addr common.Address) *big.Int
	Transfer(from, to common.Address, amount *big.Int) error
}

// Clock reports the current block timestamp.
type Clock interface {
	Now() inter.Timestamp
}

// Deps bundles the external collaborators of a raffle.
type Deps struct {
	Coordinator Coordinator
	Ledger      Ledger
	Clock       Clock
}

// Raffle is one deployed lottery instance. Each action runs under a single
// lock, so entries, round closes and fulfillments never interleave.
type Raffle struct {
	address     common.Address
	cfg         Config
	coordinator Coordinator
	ledger      Ledger
	clock       Clock

	mu            sync.Mutex
	state         State
	players       []common.Address
	lastTimeStamp inter.Timestamp
	requestID     *big.Int // outstanding request, nil while Open
	recentWinner  common.Address
	round         uint64

	// notifications queued under mu, delivered in order by flush
	pending  []interface{}
	notifyMu sync.Mutex

	enteredFeed   event.Feed
	requestedFeed event.Feed
	winnerFeed    event.Feed
	scope         event.SubscriptionScope
}

// New deploys a raffle at address. The round clock starts at the current
// time of deps.Clock.
func New(address common.Address, cfg Config, deps Deps) (*Raffle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid raffle config: %w", err)
	}
	if deps.Coordinator == nil || deps.Ledger == nil || deps.Clock == nil {
		return nil, errors.New("raffle requires a coordinator, a ledger and a clock")
	}

	r := &Raffle{
		address:       address,
		cfg:           cfg.Copy(),
		coordinator:   deps.Coordinator,
		ledger:        deps.Ledger,
		clock:         deps.Clock,
		state:         Open,
		lastTimeStamp: deps.Clock.Now(),
	}

	log.WithFields(log.Fields{
		"raffle":   address.Hex(),
		"entryFee": cfg.EntryFee,
		"interval": cfg.Interval,
	}).Info("Raffle deployed")

	return r, nil
}

// Enter adds caller to the current round. value is moved from caller to the
// raffle and must be at least the entry fee; any excess stays in the pool.
func (r *Raffle) Enter(caller common.Address, value *big.Int) error {
	if value == nil {
		value = new(big.Int)
	}

	r.mu.Lock()
	if value.Cmp(r.cfg.EntryFee) < 0 {
		r.mu.Unlock()
		return &InsufficientEntryFeeError{Sent: new(big.Int).Set(value)}
	}
	if r.state != Open {
		r.mu.Unlock()
		return ErrRoundNotOpen
	}
	if err := r.ledger.Transfer(caller, r.address, value); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("entry payment: %w", err)
	}

	r.players = append(r.players, caller)
	r.pending = append(r.pending, Entered{
		Player: caller,
		Value:  new(big.Int).Set(value),
		Round:  r.round,
	})
	count := len(r.players)
	r.mu.Unlock()

	log.WithFields(log.Fields{
		"raffle":  r.address.Hex(),
		"player":  caller.Hex(),
		"players": count,
	}).Debug("Raffle entered")

	r.flush()
	return nil
}

// CheckUpkeep reports whether the round can be closed: the raffle is Open,
// the interval has elapsed, and it holds at least one player and a non-zero
// balance. It never changes state. The returned perform data is always
// empty; checkData is ignored.
func (r *Raffle) CheckUpkeep(checkData []byte) (bool, []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	needed, _ := r.upkeepNeeded()
	return needed, []byte{}
}

// upkeepNeeded evaluates the predicate and returns the inputs it used.
// Callers must hold r.mu.
func (r *Raffle) upkeepNeeded() (bool, *UpkeepNotNeededError) {
	now := r.clock.Now()
	balance := r.ledger.Balance(r.address)

	isOpen := r.state == Open
	timePassed := now.Since(r.lastTimeStamp) >= r.cfg.Interval
	hasPlayers := len(r.players) > 0
	hasBalance := balance.Sign() > 0

	snapshot := &UpkeepNotNeededError{
		State:       r.state,
		PlayerCount: uint64(len(r.players)),
		Timestamp:   now,
		Balance:     balance,
	}
	return isOpen && timePassed && hasPlayers && hasBalance, snapshot
}

// PerformUpkeep closes the round and requests randomness from the
// coordinator. It fails with an *UpkeepNotNeededError unless CheckUpkeep
// currently holds, so at most one request is ever outstanding. performData
// is ignored.
func (r *Raffle) PerformUpkeep(performData []byte) (*big.Int, error) {
	r.mu.Lock()

	needed, snapshot := r.upkeepNeeded()
	if !needed {
		r.mu.Unlock()
		return nil, snapshot
	}

	requestID, err := r.coordinator.RequestRandomWords(
		r.address,
		r.cfg.KeyHash,
		r.cfg.SubscriptionID,
		r.cfg.RequestConfirmations,
		r.cfg.CallbackGasLimit,
		r.cfg.NumWords,
	)
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("request random words: %w", err)
	}
	if requestID == nil {
		r.mu.Unlock()
		return nil, errors.New("request random words: coordinator returned no request id")
	}

	r.state = AwaitingRandomness
	r.requestID = new(big.Int).Set(requestID)
	r.pending = append(r.pending, RandomnessRequested{
		RequestID:            new(big.Int).Set(requestID),
		KeyHash:              r.cfg.KeyHash,
		SubscriptionID:       r.cfg.SubscriptionID,
		RequestConfirmations: r.cfg.RequestConfirmations,
		CallbackGasLimit:     r.cfg.CallbackGasLimit,
		NumWords:             r.cfg.NumWords,
		Round:                r.round,
	})
	players := len(r.players)
	r.mu.Unlock()

	log.WithFields(log.Fields{
		"raffle":    r.address.Hex(),
		"requestId": requestID,
		"players":   players,
	}).Info("Raffle closed, randomness requested")

	r.flush()
	return new(big.Int).Set(requestID), nil
}

// RawFulfillRandomWords delivers the random words for requestID. Only the
// configured coordinator may call it, and only for the outstanding request.
// On success the winner receives the whole pool, the registry is cleared,
// the round clock restarts and the raffle reopens. On any error nothing
// changes.
func (r *Raffle) RawFulfillRandomWords(caller common.Address, requestID *big.Int, randomWords []*big.Int) error {
	if caller != r.cfg.Coordinator {
		log.WithFields(log.Fields{
			"raffle": r.address.Hex(),
			"caller": caller.Hex(),
		}).Warn("Rejected fulfillment from unauthorized caller")
		return &UnauthorizedCallerError{Have: caller, Want: r.cfg.Coordinator}
	}

	r.mu.Lock()

	if r.state != AwaitingRandomness || r.requestID == nil || requestID == nil || r.requestID.Cmp(requestID) != 0 {
		r.mu.Unlock()
		return &UnknownRequestError{RequestID: copyBig(requestID)}
	}
	if len(randomWords) == 0 || randomWords[0] == nil {
		r.mu.Unlock()
		return ErrNoRandomWords
	}
	if len(r.players) == 0 {
		r.mu.Unlock()
		return ErrNoPlayers
	}

	// random mod n is slightly biased towards low indices when n does not
	// divide 2^256; accepted given the size of the word.
	n := big.NewInt(int64(len(r.players)))
	index := new(big.Int).Mod(randomWords[0], n).Uint64()
	winner := r.players[index]

	prize := r.ledger.Balance(r.address)
	if err := r.ledger.Transfer(r.address, winner, prize); err != nil {
		r.mu.Unlock()
		log.WithFields(log.Fields{
			"raffle": r.address.Hex(),
			"winner": winner.Hex(),
			"prize":  prize,
		}).WithError(err).Error("Payout to winner failed")
		return &PayoutFailedError{Winner: winner, Amount: prize, Err: err}
	}

	now := r.clock.Now()
	players := len(r.players)
	completed := r.round

	r.recentWinner = winner
	r.players = nil
	r.lastTimeStamp = now
	r.requestID = nil
	r.round++
	r.state = Open
	r.pending = append(r.pending, WinnerPicked{
		Winner:    winner,
		RequestID: new(big.Int).Set(requestID),
		Prize:     prize,
		Round:     completed,
		Players:   players,
		Time:      now,
	})
	r.mu.Unlock()

	log.WithFields(log.Fields{
		"raffle":  r.address.Hex(),
		"round":   completed,
		"winner":  winner.Hex(),
		"index":   index,
		"prize":   prize,
		"players": players,
	}).Info("Winner picked")

	r.flush()
	return nil
}

// flush delivers queued notifications in the order their actions committed.
// It runs without r.mu so subscribers may call back into the raffle.
func (r *Raffle) flush() {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, ev := range pending {
		switch ev := ev.(type) {
		case Entered:
			r.enteredFeed.Send(ev)
		case RandomnessRequested:
			r.requestedFeed.Send(ev)
		case WinnerPicked:
			r.winnerFeed.Send(ev)
		}
	}
}

// SubscribeEntered registers ch for Entered notifications.
func (r *Raffle) SubscribeEntered(ch chan<- Entered) event.Subscription {
	return r.scope.Track(r.enteredFeed.Subscribe(ch))
}

// SubscribeRequested registers ch for RandomnessRequested notifications.
func (r *Raffle) SubscribeRequested(ch chan<- RandomnessRequested) event.Subscription {
	return r.scope.Track(r.requestedFeed.Subscribe(ch))
}

// SubscribeWinnerPicked registers ch for WinnerPicked notifications.
func (r *Raffle) SubscribeWinnerPicked(ch chan<- WinnerPicked) event.Subscription {
	return r.scope.Track(r.winnerFeed.Subscribe(ch))
}

// Close unsubscribes every subscriber.
func (r *Raffle) Close() {
	r.scope.Close()
}

// Address returns the raffle's account, which holds the pool.
func (r *Raffle) Address() common.Address { return r.address }

// Config returns a copy of the deployment parameters.
func (r *Raffle) Config() Config { return r.cfg.Copy() }

// EntryFee returns the minimum entry value in wei.
func (r *Raffle) EntryFee() *big.Int { return new(big.Int).Set(r.cfg.EntryFee) }

// Interval returns the minimum round length.
func (r *Raffle) Interval() time.Duration { return r.cfg.Interval }

// CallbackGasLimit returns the gas forwarded to the fulfillment.
func (r *Raffle) CallbackGasLimit() uint32 { return r.cfg.CallbackGasLimit }

// NumWords returns the number of random words requested per round.
func (r *Raffle) NumWords() uint32 { return r.cfg.NumWords }

// RequestConfirmations returns the confirmations requested from the oracle.
func (r *Raffle) RequestConfirmations() uint16 { return r.cfg.RequestConfirmations }

// Coordinator returns the address allowed to deliver randomness.
func (r *Raffle) Coordinator() common.Address { return r.cfg.Coordinator }

// KeyHash returns the oracle gas lane.
func (r *Raffle) KeyHash() common.Hash { return r.cfg.KeyHash }

// SubscriptionID returns the oracle subscription.
func (r *Raffle) SubscriptionID() uint64 { return r.cfg.SubscriptionID }

// State returns the current lifecycle state.
func (r *Raffle) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// PlayerCount returns the size of the current registry.
func (r *Raffle) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Player returns the i-th participant of the current round.
func (r *Raffle) Player(i int) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.players) {
		return common.Address{}, fmt.Errorf("player index %d out of range [0, %d)", i, len(r.players))
	}
	return r.players[i], nil
}

// Players returns a copy of the current registry in entry order.
func (r *Raffle) Players() []common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]common.Address(nil), r.players...)
}

// RecentWinner returns the last winner, or the zero address before the
// first payout.
func (r *Raffle) RecentWinner() common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recentWinner
}

// LastTimeStamp returns the start of the current round.
func (r *Raffle) LastTimeStamp() inter.Timestamp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastTimeStamp
}

// RequestID returns the outstanding request id, or nil while Open.
func (r *Raffle) RequestID() *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyBig(r.requestID)
}

// Round returns the number of completed rounds.
func (r *Raffle) Round() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.round
}

// Balance returns the pool held by the raffle.
func (r *Raffle) Balance() *big.Int {
	return r.ledger.Balance(r.address)
}

func copyBig(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}
