package launcher

import (
	"fmt"
	"text/tabwriter"

	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-opera-raffle/network"
)

var presetsCommand = cli.Command{
	Name:   "presets",
	Usage:  "Print the network presets",
	Action: printPresets,
}

func printPresets(ctx *cli.Context) error {
	tw := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCHAIN ID\tLOCAL\tCOORDINATOR\tSUB ID\tGAS LIMIT\tINTERVAL\tCONFIRMATIONS")
	for _, name := range network.PresetNames() {
		p, err := network.GetPresetByName(name)
		if err != nil {
			return err
		}
		coordinator := "(deployed)"
		if !p.IsLocal {
			coordinator = p.Coordinator.Hex()
		}
		fmt.Fprintf(tw, "%s\t%d\t%t\t%s\t%d\t%d\t%s\t%d\n",
			p.Name, p.ChainID, p.IsLocal, coordinator, p.SubscriptionID,
			p.CallbackGasLimit, p.Interval, p.BlockConfirmations)
	}
	return tw.Flush()
}
