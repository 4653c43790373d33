package launcher

import (
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-opera-raffle/flags"
)

func newApp() *cli.App {
	app := flags.NewApp()
	app.Commands = []cli.Command{
		simulateCommand,
		runCommand,
		presetsCommand,
	}
	return app
}

// Launch parses args and runs the selected command.
func Launch(args []string) error {
	return newApp().Run(args)
}
