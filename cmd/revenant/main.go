// The revenant command is the main entrypoint for running the agent. It
// authenticates against the logon server, establishes a world session, and
// drives the movement loop until interrupted.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := app().Run(os.Args); err != nil {
		fmt.Printf("revenant error: %v\n", err)
		os.Exit(1)
	}
}

func app() *cli.App {
	app := cli.NewApp()
	app.Name = "revenant"
	app.Usage = "headless game client agent"
	app.Action = run
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the directory containing the agent config file",
			EnvVars: []string{"REVENANT_CONFIG"},
			Value:   "./",
		},
	}

	return app
}
