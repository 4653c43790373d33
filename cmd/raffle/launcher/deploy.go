package launcher

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/rony4d/go-opera-raffle/evmcore"
	"github.com/rony4d/go-opera-raffle/network"
)

// world is the in-process deployment both modes play on.
type world struct {
	*network.Deployment
	Players []common.Address
}

// makeWorld funds the deployer and cfg.Simulation.Players players at
// genesis and runs the deploy pipeline of the selected network.
func makeWorld(cfg Config) (*world, error) {
	preset, err := cfg.Preset()
	if err != nil {
		return nil, err
	}
	raffleCfg, err := cfg.RaffleConfig()
	if err != nil {
		return nil, err
	}
	funding, err := cfg.Funding()
	if err != nil {
		return nil, err
	}

	accounts := evmcore.FakeAccounts(cfg.Simulation.Players + 1)
	deployer, players := accounts[0], accounts[1:]

	balances := make(map[common.Address]*big.Int, len(accounts))
	for _, acc := range accounts {
		balances[acc] = funding
	}
	chain, err := evmcore.NewChain(evmcore.FakeGenesisTime, balances)
	if err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	d, err := network.Deploy(chain, deployer, preset, raffleCfg)
	if err != nil {
		return nil, err
	}
	return &world{Deployment: d, Players: players}, nil
}

// enterAll enters every player who can afford the fee and returns how many
// entered.
func (w *world) enterAll() int {
	fee := w.Raffle.EntryFee()
	entered := 0
	for _, p := range w.Players {
		if w.Chain.Balance(p).Cmp(fee) < 0 {
			continue
		}
		if err := w.Raffle.Enter(p, fee); err != nil {
			log.WithField("player", p.Hex()).WithError(err).Warn("Entry rejected")
			continue
		}
		entered++
	}
	return entered
}
