package flags

import (
	"time"

	"gopkg.in/urfave/cli.v1"
)

// SimulationFlags drive the in-process players, keeper and history store.
func SimulationFlags() []cli.Flag {
	return []cli.Flag{
		cli.IntFlag{
			Name:  "players",
			Usage: "Number of funded players entering every round",
			Value: 5,
		},
		cli.IntFlag{
			Name:  "rounds",
			Usage: "Rounds to play before exiting",
			Value: 3,
		},
		cli.StringFlag{
			Name:  "funding",
			Usage: "Genesis balance of every player in wei",
			Value: "10000000000000000000",
		},
		cli.DurationFlag{
			Name:  "keeper.cadence",
			Usage: "How often the keeper checks the upkeep in real time mode",
			Value: time.Second,
		},
		cli.DurationFlag{
			Name:  "blocktime",
			Usage: "Block period of the in-process chain in real time mode",
			Value: time.Second,
		},
		cli.StringFlag{
			Name:  "history",
			Usage: "Path of the round history database (disabled when empty)",
		},
	}
}
