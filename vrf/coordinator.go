// Package vrf implements a local verifiable-randomness coordinator with
// subscription billing. It answers randomness requests from registered
// consumers with pseudo-random words derived from the request id, and is
// used wherever no real oracle network is reachable.
package vrf

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/params"
	log "github.com/sirupsen/logrus"

	"github.com/rony4d/go-opera-raffle/evmcore"
)

const (
	// MaxNumWords is the largest number of words one request may ask for.
	MaxNumWords = 500
	// MaxCallbackGasLimit is the largest gas budget a request may forward.
	MaxCallbackGasLimit = 2500000
)

var (
	ErrInvalidSubscription = errors.New("invalid subscription")
	ErrInvalidConsumer     = errors.New("invalid consumer")
	ErrTooManyConsumers    = errors.New("too many consumers")
	ErrInsufficientBalance = errors.New("insufficient subscription balance")
	ErrNumWordsTooBig      = errors.New("num words too big")
	ErrGasLimitTooBig      = errors.New("gas limit too big")
	ErrNonexistentRequest  = errors.New("nonexistent request")
	ErrWrongNumberOfWords  = errors.New("wrong number of words")
)

// InvalidConsumerError is returned when a consumer is not registered on the
// subscription it uses.
type InvalidConsumerError struct {
	SubID    uint64
	Consumer common.Address
}

func (e *InvalidConsumerError) Error() string {
	return fmt.Sprintf("%s: %s on subscription %d", ErrInvalidConsumer, e.Consumer.Hex(), e.SubID)
}

func (e *InvalidConsumerError) Is(target error) bool { return target == ErrInvalidConsumer }

// Consumer receives random words from the coordinator.
type Consumer interface {
	Address() common.Address
	RawFulfillRandomWords(caller common.Address, requestID *big.Int, randomWords []*big.Int) error
}

// Chain is the block source the coordinator counts confirmations on.
type Chain interface {
	BlockNumber() idx.Block
	Mine() evmcore.EvmHeader
}

// Config holds the billing parameters, both in juels.
type Config struct {
	BaseFee      *big.Int // flat fee per fulfillment
	GasPriceLink *big.Int // price of one unit of callback gas
}

// DefaultConfig returns the parameters of a local development coordinator:
// 0.25 LINK base fee and 1e9 juels per gas.
func DefaultConfig() Config {
	return Config{
		BaseFee:      new(big.Int).Div(big.NewInt(params.Ether), big.NewInt(4)),
		GasPriceLink: big.NewInt(params.GWei),
	}
}

// Payment returns what a fulfillment with the given callback gas limit
// costs the subscription.
func (c Config) Payment(callbackGasLimit uint32) *big.Int {
	gas := new(big.Int).Mul(c.GasPriceLink, new(big.Int).SetUint64(uint64(callbackGasLimit)))
	return gas.Add(gas, c.BaseFee)
}

// Request is an accepted, not yet fulfilled randomness request.
type Request struct {
	ID                   *big.Int
	PreSeed              *big.Int
	KeyHash              common.Hash
	SubID                uint64
	Consumer             common.Address
	RequestConfirmations uint16
	CallbackGasLimit     uint32
	NumWords             uint32
	Block                idx.Block // block the request was accepted in
}

func (r *Request) copy() Request {
	cp := *r
	cp.ID = new(big.Int).Set(r.ID)
	cp.PreSeed = new(big.Int).Set(r.PreSeed)
	return cp
}

// RandomWordsRequested is sent for every accepted request.
type RandomWordsRequested struct {
	Request
}

// RandomWordsFulfilled is sent for every delivered request. Success is false
// when the consumer rejected the words; the request is consumed anyway.
type RandomWordsFulfilled struct {
	RequestID  *big.Int
	OutputSeed *big.Int
	Payment    *big.Int
	Success    bool
	Err        error // consumer error when Success is false
}

// Coordinator is a local randomness coordinator. All methods are safe for
// concurrent use. Consumers are called without the coordinator lock held,
// so they may call back into it.
type Coordinator struct {
	address common.Address
	cfg     Config
	chain   Chain

	mu            sync.Mutex
	subs          map[uint64]*subscription
	consumers     map[common.Address]Consumer
	requests      map[uint64]*Request
	lastSubID     uint64
	lastRequestID uint64
	lastPreSeed   uint64

	requestFeed   event.Feed
	fulfilledFeed event.Feed
	scope         event.SubscriptionScope
	wg            sync.WaitGroup
}

// NewCoordinator deploys a coordinator at address.
func NewCoordinator(address common.Address, cfg Config, chain Chain) *Coordinator {
	if cfg.BaseFee == nil {
		cfg.BaseFee = new(big.Int)
	}
	if cfg.GasPriceLink == nil {
		cfg.GasPriceLink = new(big.Int)
	}

	log.WithFields(log.Fields{
		"coordinator":  address.Hex(),
		"baseFee":      cfg.BaseFee,
		"gasPriceLink": cfg.GasPriceLink,
	}).Info("VRF coordinator deployed")

	return &Coordinator{
		address:     address,
		cfg:         cfg,
		chain:       chain,
		subs:        make(map[uint64]*subscription),
		consumers:   make(map[common.Address]Consumer),
		requests:    make(map[uint64]*Request),
		lastPreSeed: 100,
	}
}

// Address returns the identity the coordinator presents to consumers.
func (c *Coordinator) Address() common.Address { return c.address }

// RequestRandomWords accepts a request from consumer and returns its id.
// Request ids start at 1. The words are delivered later by one of the
// fulfill methods.
func (c *Coordinator) RequestRandomWords(consumer common.Address, keyHash common.Hash, subID uint64,
	minConfirmations uint16, callbackGasLimit uint32, numWords uint32) (*big.Int, error) {
	c.mu.Lock()

	sub, ok := c.subs[subID]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("subscription %d: %w", subID, ErrInvalidSubscription)
	}
	if !sub.hasConsumer(consumer) {
		c.mu.Unlock()
		return nil, &InvalidConsumerError{SubID: subID, Consumer: consumer}
	}
	if callbackGasLimit > MaxCallbackGasLimit {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: have %d, want at most %d", ErrGasLimitTooBig, callbackGasLimit, MaxCallbackGasLimit)
	}
	if numWords > MaxNumWords {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: have %d, want at most %d", ErrNumWordsTooBig, numWords, MaxNumWords)
	}

	c.lastRequestID++
	c.lastPreSeed++
	sub.reqCount++
	req := &Request{
		ID:                   new(big.Int).SetUint64(c.lastRequestID),
		PreSeed:              new(big.Int).SetUint64(c.lastPreSeed),
		KeyHash:              keyHash,
		SubID:                subID,
		Consumer:             consumer,
		RequestConfirmations: minConfirmations,
		CallbackGasLimit:     callbackGasLimit,
		NumWords:             numWords,
		Block:                c.chain.BlockNumber(),
	}
	c.requests[c.lastRequestID] = req
	ev := RandomWordsRequested{req.copy()}
	c.mu.Unlock()

	log.WithFields(log.Fields{
		"requestId": req.ID,
		"subId":     subID,
		"consumer":  consumer.Hex(),
		"numWords":  numWords,
		"block":     req.Block,
	}).Info("Random words requested")

	c.requestFeed.Send(ev)
	return new(big.Int).Set(req.ID), nil
}

// RandomWords derives the n words the coordinator delivers for requestID:
// word i is keccak256(abi.encode(requestID, i)).
func RandomWords(requestID *big.Int, n uint32) []*big.Int {
	words := make([]*big.Int, n)
	for i := range words {
		enc, err := wordArgs.Pack(requestID, big.NewInt(int64(i)))
		if err != nil {
			panic(err)
		}
		words[i] = new(big.Int).SetBytes(crypto.Keccak256(enc))
	}
	return words
}

var wordArgs = func() abi.Arguments {
	uint256Ty, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: uint256Ty}, {Type: uint256Ty}}
}()

// FulfillRandomWords delivers the derived words of requestID to consumer.
func (c *Coordinator) FulfillRandomWords(requestID *big.Int, consumer common.Address) (*RandomWordsFulfilled, error) {
	return c.FulfillRandomWordsWithOverride(requestID, consumer, nil)
}

// FulfillRandomWordsWithOverride delivers words to consumer in answer to
// requestID. Empty words fall back to the derived ones; otherwise exactly
// the requested number of words must be given. The subscription is charged
// and the request consumed before the consumer is called, so a consumer
// error is reported in the result rather than as an error.
func (c *Coordinator) FulfillRandomWordsWithOverride(requestID *big.Int, consumer common.Address, words []*big.Int) (*RandomWordsFulfilled, error) {
	if requestID == nil || !requestID.IsUint64() {
		return nil, fmt.Errorf("request %v: %w", requestID, ErrNonexistentRequest)
	}

	c.mu.Lock()
	id := requestID.Uint64()
	req, ok := c.requests[id]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("request %d: %w", id, ErrNonexistentRequest)
	}
	target, ok := c.consumers[consumer]
	if !ok {
		c.mu.Unlock()
		return nil, &InvalidConsumerError{SubID: req.SubID, Consumer: consumer}
	}
	if len(words) == 0 {
		words = RandomWords(req.ID, req.NumWords)
	} else if len(words) != int(req.NumWords) {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: have %d, want %d", ErrWrongNumberOfWords, len(words), req.NumWords)
	}

	payment := c.cfg.Payment(req.CallbackGasLimit)
	sub, ok := c.subs[req.SubID]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("subscription %d: %w", req.SubID, ErrInvalidSubscription)
	}
	if sub.balance.Cmp(payment) < 0 {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: have %s, want %s", ErrInsufficientBalance, sub.balance, payment)
	}
	sub.balance.Sub(sub.balance, payment)
	delete(c.requests, id)
	c.mu.Unlock()

	res := &RandomWordsFulfilled{
		RequestID:  new(big.Int).Set(req.ID),
		OutputSeed: new(big.Int).Set(req.ID),
		Payment:    payment,
		Success:    true,
	}
	if err := target.RawFulfillRandomWords(c.address, req.ID, words); err != nil {
		res.Success = false
		res.Err = err
	}

	entry := log.WithFields(log.Fields{
		"requestId": req.ID,
		"consumer":  consumer.Hex(),
		"payment":   payment,
		"success":   res.Success,
	})
	if res.Err != nil {
		entry.WithError(res.Err).Warn("Consumer rejected random words")
	} else {
		entry.Info("Random words fulfilled")
	}

	c.fulfilledFeed.Send(*res)
	return res, nil
}

// PendingRequests returns the outstanding requests ordered by id.
func (c *Coordinator) PendingRequests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	reqs := make([]Request, 0, len(c.requests))
	for _, r := range c.requests {
		reqs = append(reqs, r.copy())
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].ID.Cmp(reqs[j].ID) < 0 })
	return reqs
}

func (c *Coordinator) confirmed(r Request) bool {
	return c.chain.BlockNumber() >= r.Block+idx.Block(r.RequestConfirmations)
}

// FulfillReady fulfills every pending request whose confirmation depth has
// been reached on the chain, in id order. Requests that cannot be fulfilled
// stay pending and their errors are joined.
func (c *Coordinator) FulfillReady() ([]*RandomWordsFulfilled, error) {
	var (
		done []*RandomWordsFulfilled
		errs []error
	)
	for _, r := range c.PendingRequests() {
		if !c.confirmed(r) {
			continue
		}
		res, err := c.FulfillRandomWords(r.ID, r.Consumer)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		done = append(done, res)
	}
	return done, errors.Join(errs...)
}

// SubscribeRequested registers ch for RandomWordsRequested notifications.
func (c *Coordinator) SubscribeRequested(ch chan<- RandomWordsRequested) event.Subscription {
	return c.scope.Track(c.requestFeed.Subscribe(ch))
}

// SubscribeFulfilled registers ch for RandomWordsFulfilled notifications.
func (c *Coordinator) SubscribeFulfilled(ch chan<- RandomWordsFulfilled) event.Subscription {
	return c.scope.Track(c.fulfilledFeed.Subscribe(ch))
}

// Start answers every new request automatically until ctx is done: it mines
// blocks until the requested confirmation depth is reached and then
// fulfills the request with derived words.
func (c *Coordinator) Start(ctx context.Context) {
	ch := make(chan RandomWordsRequested, 16)
	sub := c.SubscribeRequested(ch)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer sub.Unsubscribe()
		for {
			select {
			case ev := <-ch:
				c.wg.Add(1)
				go func(r Request) {
					defer c.wg.Done()
					c.autoFulfill(ctx, r)
				}(ev.Request)
			case <-sub.Err():
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (c *Coordinator) autoFulfill(ctx context.Context, r Request) {
	for !c.confirmed(r) {
		if ctx.Err() != nil {
			return
		}
		c.chain.Mine()
	}
	if _, err := c.FulfillRandomWords(r.ID, r.Consumer); err != nil {
		log.WithField("requestId", r.ID).WithError(err).Error("Automatic fulfillment failed")
	}
}

// Close ends all subscriptions and waits for automatic fulfillments in
// flight.
func (c *Coordinator) Close() {
	c.scope.Close()
	c.wg.Wait()
}
