package vrf

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// MaxConsumers is the number of consumers a single subscription may carry.
const MaxConsumers = 100

// Subscription is a snapshot of a funded subscription.
type Subscription struct {
	ID        uint64
	Owner     common.Address
	Balance   *big.Int // in juels, 1e-18 LINK
	ReqCount  uint64
	Consumers []common.Address // in the order they were added
}

type subscription struct {
	owner     common.Address
	balance   *big.Int
	reqCount  uint64
	consumers []common.Address
}

func (s *subscription) hasConsumer(addr common.Address) bool {
	for _, c := range s.consumers {
		if c == addr {
			return true
		}
	}
	return false
}

// CreateSubscription opens an empty subscription for owner and returns its
// id. Ids start at 1.
func (c *Coordinator) CreateSubscription(owner common.Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastSubID++
	id := c.lastSubID
	c.subs[id] = &subscription{
		owner:   owner,
		balance: new(big.Int),
	}

	log.WithFields(log.Fields{
		"subId": id,
		"owner": owner.Hex(),
	}).Debug("Subscription created")

	return id
}

// FundSubscription adds amount juels to the subscription balance.
func (c *Coordinator) FundSubscription(subID uint64, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid funding amount %v", amount)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[subID]
	if !ok {
		return fmt.Errorf("subscription %d: %w", subID, ErrInvalidSubscription)
	}
	old := new(big.Int).Set(sub.balance)
	sub.balance.Add(sub.balance, amount)

	log.WithFields(log.Fields{
		"subId":      subID,
		"oldBalance": old,
		"newBalance": sub.balance,
	}).Debug("Subscription funded")

	return nil
}

// AddConsumer allows consumer to request randomness on the subscription.
// Adding a consumer twice is a no-op.
func (c *Coordinator) AddConsumer(subID uint64, consumer Consumer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[subID]
	if !ok {
		return fmt.Errorf("subscription %d: %w", subID, ErrInvalidSubscription)
	}
	addr := consumer.Address()
	if sub.hasConsumer(addr) {
		return nil
	}
	if len(sub.consumers) >= MaxConsumers {
		return fmt.Errorf("subscription %d: %w", subID, ErrTooManyConsumers)
	}

	sub.consumers = append(sub.consumers, addr)
	c.consumers[addr] = consumer

	log.WithFields(log.Fields{
		"subId":    subID,
		"consumer": addr.Hex(),
	}).Debug("Consumer added")

	return nil
}

// RemoveConsumer revokes the consumer from the subscription. Once no
// subscription lists it, the consumer can no longer be fulfilled.
func (c *Coordinator) RemoveConsumer(subID uint64, addr common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[subID]
	if !ok {
		return fmt.Errorf("subscription %d: %w", subID, ErrInvalidSubscription)
	}
	for i, have := range sub.consumers {
		if have != addr {
			continue
		}
		sub.consumers = append(sub.consumers[:i], sub.consumers[i+1:]...)
		if !c.isConsumer(addr) {
			delete(c.consumers, addr)
		}

		log.WithFields(log.Fields{
			"subId":    subID,
			"consumer": addr.Hex(),
		}).Debug("Consumer removed")
		return nil
	}
	return &InvalidConsumerError{SubID: subID, Consumer: addr}
}

// isConsumer reports whether any subscription lists addr. The caller holds c.mu.
func (c *Coordinator) isConsumer(addr common.Address) bool {
	for _, sub := range c.subs {
		if sub.hasConsumer(addr) {
			return true
		}
	}
	return false
}

// GetSubscription returns a snapshot of the subscription.
func (c *Coordinator) GetSubscription(subID uint64) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[subID]
	if !ok {
		return Subscription{}, fmt.Errorf("subscription %d: %w", subID, ErrInvalidSubscription)
	}
	return Subscription{
		ID:        subID,
		Owner:     sub.owner,
		Balance:   new(big.Int).Set(sub.balance),
		ReqCount:  sub.reqCount,
		Consumers: append([]common.Address(nil), sub.consumers...),
	}, nil
}
