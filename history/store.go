// Package history keeps a persistent record of completed raffle rounds. It
// consumes WinnerPicked notifications and never touches raffle state.
package history

import (
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"time"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rlp"
	log "github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"

	"github.com/rony4d/go-opera-raffle/inter"
	"github.com/rony4d/go-opera-raffle/raffle"
)

const roundsBucket = "rounds"

// ErrNotFound is returned for a round that has no record.
var ErrNotFound = errors.New("round not found")

// Record describes one completed round.
type Record struct {
	Round     uint64
	Winner    common.Address
	Prize     *big.Int
	RequestID *big.Int
	Players   uint64
	Time      inter.Timestamp
}

// FromEvent converts a WinnerPicked notification into a record.
func FromEvent(ev raffle.WinnerPicked) Record {
	return Record{
		Round:     ev.Round,
		Winner:    ev.Winner,
		Prize:     ev.Prize,
		RequestID: ev.RequestID,
		Players:   uint64(ev.Players),
		Time:      ev.Time,
	}
}

// WinnerSource publishes completed rounds.
type WinnerSource interface {
	SubscribeWinnerPicked(ch chan<- raffle.WinnerPicked) event.Subscription
}

// Store is a bbolt-backed round history keyed by round number.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(roundsBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create rounds bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put stores rec, replacing any earlier record of the same round.
func (s *Store) Put(rec Record) error {
	payload, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return fmt.Errorf("encode round %d: %w", rec.Round, err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(roundsBucket)).Put(bigendian.Uint64ToBytes(rec.Round), payload)
	})
}

// Get returns the record of round.
func (s *Store) Get(round uint64) (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket([]byte(roundsBucket)).Get(bigendian.Uint64ToBytes(round))
		if payload == nil {
			return ErrNotFound
		}
		return decode(payload, &rec)
	})
	return rec, err
}

// Last returns the record with the highest round number.
func (s *Store) Last() (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		_, payload := tx.Bucket([]byte(roundsBucket)).Cursor().Last()
		if payload == nil {
			return ErrNotFound
		}
		return decode(payload, &rec)
	})
	return rec, err
}

// All returns every record ordered by round.
func (s *Store) All() ([]Record, error) {
	var recs []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(roundsBucket)).ForEach(func(k, payload []byte) error {
			var rec Record
			if err := decode(payload, &rec); err != nil {
				return err
			}
			if bigendian.BytesToUint64(k) != rec.Round {
				return fmt.Errorf("round %d stored under key %x", rec.Round, k)
			}
			recs = append(recs, rec)
			return nil
		})
	})
	return recs, err
}

func decode(payload []byte, rec *Record) error {
	if err := rlp.DecodeBytes(payload, rec); err != nil {
		return fmt.Errorf("decode round record: %w", err)
	}
	return nil
}

// Track stores every round source completes until the returned
// subscription is unsubscribed. Rounds already delivered when it is
// unsubscribed are still stored.
func (s *Store) Track(source WinnerSource) event.Subscription {
	ch := make(chan raffle.WinnerPicked, 16)
	sub := source.SubscribeWinnerPicked(ch)

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case ev := <-ch:
				if err := s.record(ev); err != nil {
					return err
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				for {
					select {
					case ev := <-ch:
						if err := s.record(ev); err != nil {
							return err
						}
					default:
						return nil
					}
				}
			}
		}
	})
}

func (s *Store) record(ev raffle.WinnerPicked) error {
	rec := FromEvent(ev)
	if err := s.Put(rec); err != nil {
		log.WithField("round", rec.Round).WithError(err).Error("Failed to store round")
		return err
	}
	log.WithFields(log.Fields{
		"round":  rec.Round,
		"winner": rec.Winner.Hex(),
	}).Debug("Round stored")
	return nil
}
