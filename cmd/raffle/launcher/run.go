package launcher

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-opera-raffle/flags"
	"github.com/rony4d/go-opera-raffle/history"
	"github.com/rony4d/go-opera-raffle/keeper"
	"github.com/rony4d/go-opera-raffle/raffle"
)

var runCommand = cli.Command{
	Name:  "run",
	Usage: "Play rounds in real time until --rounds winners or interrupted",
	Description: `
Deploys the raffle on an in-process chain that mines a block every
--blocktime. The keeper polls the upkeep every --keeper.cadence and the local
coordinator answers requests on its own. Players re-enter after every payout.
Use a short --raffle.interval, the network presets default to a day.`,
	Flags:  flags.AllFlags(),
	Action: run,
}

func run(ctx *cli.Context) error {
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
	blockTime, err := cfg.BlockTime()
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

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Coordinator.Start(runCtx)

	blocks := gocron.NewScheduler(time.UTC)
	if _, err := blocks.Every(blockTime).SingletonMode().Do(func() {
		w.Chain.IncreaseTime(blockTime)
	}); err != nil {
		return fmt.Errorf("block producer: %w", err)
	}
	blocks.StartAsync()
	defer blocks.Stop()

	k := keeper.New(w.Raffle, keeperCfg)
	if err := k.Start(); err != nil {
		return err
	}
	defer k.Stop()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	out := ctx.App.Writer
	w.enterAll()
	for played := 0; played < cfg.Simulation.Rounds; {
		select {
		case ev := <-winners:
			played++
			fmt.Fprintf(out, "Round %d: %s won %s wei among %d players\n",
				ev.Round, ev.Winner.Hex(), ev.Prize, ev.Players)
			if played < cfg.Simulation.Rounds {
				w.enterAll()
			}
		case err := <-sub.Err():
			return err
		case s := <-sigs:
			log.WithField("signal", s).Info("Got interrupt, shutting down")
			return nil
		}
	}
	return nil
}
