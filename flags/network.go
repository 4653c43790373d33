package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// NetworkFlags selects the deployment preset and tunes the raffle deployed
// on it.
func NetworkFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "network",
			Usage: "Deployment preset (hardhat|localhost|sepolia)",
			Value: "hardhat",
		},
		cli.StringFlag{
			Name:  "raffle.fee",
			Usage: "Entry fee in wei (decimal or 0x-prefixed hex)",
			Value: "100000000000000000",
		},
		cli.DurationFlag{
			Name:  "raffle.interval",
			Usage: "Minimum round length (defaults to the network preset)",
		},
		cli.UintFlag{
			Name:  "raffle.gaslimit",
			Usage: "Callback gas limit (defaults to the network preset)",
		},
		cli.UintFlag{
			Name:  "raffle.confirmations",
			Usage: "Block confirmations requested from the randomness oracle",
			Value: 3,
		},
	}
}
