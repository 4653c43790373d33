package launcher

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-opera-raffle/flags"
	"github.com/rony4d/go-opera-raffle/history"
	"github.com/rony4d/go-opera-raffle/keeper"
	"github.com/rony4d/go-opera-raffle/raffle"
)

var simulateCommand = cli.Command{
	Name:  "simulate",
	Usage: "Play rounds deterministically on an in-process chain",
	Description: `
Deploys the raffle on a fresh in-process chain and plays --rounds rounds.
Every round all funded players enter, chain time jumps past the interval,
the keeper closes the round, the confirmations are mined and the local
coordinator delivers the random words. Winners are printed and, with
--history, stored.`,
	Flags:  flags.AllFlags(),
	Action: simulate,
}

func simulate(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.Logging); err != nil {
		return err
	}
	keeperCfg, err := cfg.KeeperConfig()
	if err != nil {
		return err
	}

	w, err := makeWorld(cfg)
	if err != nil {
		return err
	}
	defer w.Close()

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		sub := store.Track(w.Raffle)
		defer sub.Unsubscribe()
	}

	winners := make(chan raffle.WinnerPicked, 1)
	sub := w.Raffle.SubscribeWinnerPicked(winners)
	defer sub.Unsubscribe()

	out := ctx.App.Writer
	k := keeper.New(w.Raffle, keeperCfg)

	for round := 0; round < cfg.Simulation.Rounds; round++ {
		if w.enterAll() == 0 {
			fmt.Fprintln(out, "No player can afford the entry fee")
			break
		}
		w.Chain.IncreaseTime(w.Raffle.Interval())

		performed, err := k.Tick()
		if err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}
		if !performed {
			return fmt.Errorf("round %d: upkeep not needed after the interval", round)
		}

		for i := uint16(0); i < w.Raffle.RequestConfirmations(); i++ {
			w.Chain.Mine()
		}
		done, err := w.Coordinator.FulfillReady()
		if err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}
		for _, res := range done {
			if !res.Success {
				return fmt.Errorf("round %d: request %s: %w", round, res.RequestID, res.Err)
			}
		}

		ev := <-winners
		fmt.Fprintf(out, "Round %d: %s won %s wei among %d players\n",
			ev.Round, ev.Winner.Hex(), ev.Prize, ev.Players)
	}

	root, err := w.Chain.Commit()
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"rounds": w.Raffle.Round(),
		"block":  w.Chain.BlockNumber(),
		"root":   root.Hex(),
	}).Info("Simulation finished")
	return nil
}
