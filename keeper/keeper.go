// Package keeper is the automation trigger of an upkeep-driven contract. It
// polls the contract's upkeep predicate on a fixed cadence and performs the
// upkeep whenever the predicate holds.
package keeper

import (
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

// DefaultCadence is how often a started keeper checks its upkeep.
const DefaultCadence = 15 * time.Second

// Upkeep is a contract that can be kept.
type Upkeep interface {
	CheckUpkeep(checkData []byte) (bool, []byte)
	PerformUpkeep(performData []byte) (*big.Int, error)
}

// Config holds the keeper settings.
type Config struct {
	Cadence   time.Duration // time between two checks
	CheckData []byte        // passed to every CheckUpkeep call
}

// DefaultConfig returns a config polling every DefaultCadence.
func DefaultConfig() Config {
	return Config{Cadence: DefaultCadence}
}

// Keeper triggers an upkeep. Tick may be called directly; Start runs it on
// a scheduler. Ticks never overlap.
type Keeper struct {
	upkeep Upkeep
	cfg    Config

	tickMu    sync.Mutex
	performed uint64 // atomic
	failed    uint64 // atomic

	mu        sync.Mutex
	scheduler *gocron.Scheduler
}

// New creates a keeper for upkeep.
func New(upkeep Upkeep, cfg Config) *Keeper {
	if cfg.Cadence <= 0 {
		cfg.Cadence = DefaultCadence
	}
	return &Keeper{upkeep: upkeep, cfg: cfg}
}

// Tick checks the upkeep once and performs it if needed. It reports whether
// the upkeep was performed. A perform error is returned as is; the next tick
// will check again.
func (k *Keeper) Tick() (bool, error) {
	k.tickMu.Lock()
	defer k.tickMu.Unlock()

	needed, performData := k.upkeep.CheckUpkeep(k.cfg.CheckData)
	if !needed {
		return false, nil
	}

	requestID, err := k.upkeep.PerformUpkeep(performData)
	if err != nil {
		atomic.AddUint64(&k.failed, 1)
		return false, err
	}
	atomic.AddUint64(&k.performed, 1)

	log.WithField("requestId", requestID).Info("Upkeep performed")
	return true, nil
}

// Performed returns the number of successful upkeeps.
func (k *Keeper) Performed() uint64 { return atomic.LoadUint64(&k.performed) }

// Failed returns the number of upkeeps whose perform call failed.
func (k *Keeper) Failed() uint64 { return atomic.LoadUint64(&k.failed) }

var errAlreadyStarted = errors.New("keeper already started")

// Start runs Tick every cadence in the background until Stop.
func (k *Keeper) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.scheduler != nil {
		return errAlreadyStarted
	}

	s := gocron.NewScheduler(time.UTC)
	_, err := s.Every(k.cfg.Cadence).SingletonMode().Do(func() {
		if _, err := k.Tick(); err != nil {
			log.WithError(err).Warn("Upkeep failed")
		}
	})
	if err != nil {
		return err
	}
	s.StartAsync()
	k.scheduler = s

	log.WithField("cadence", k.cfg.Cadence).Info("Keeper started")
	return nil
}

// Stop halts the scheduler. It is a no-op on a keeper that is not running.
func (k *Keeper) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.scheduler == nil {
		return
	}
	k.scheduler.Stop()
	k.scheduler = nil

	log.Info("Keeper stopped")
}
