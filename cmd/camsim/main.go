package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/camsim"
)

func main() {
	app := &cli.App{
		Name:        "camsim",
		Usage:       "Simulated camera peer",
		Description: "Connects to a running coordinator as a fake camera: pairs, reports status, answers record and mark commands and serves generated clips",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "coordinator",
				Value: "localhost:8975",
				Usage: "host and port of the coordinator",
			},
			&cli.StringFlag{
				Name:  "peer-id",
				Usage: "peer id to announce, a random UUID when omitted",
			},
			&cli.StringFlag{
				Name:  "token",
				Usage: "one-time pairing token from the operator console, for first contact",
			},
			&cli.StringFlag{
				Name:  "device-key",
				Usage: "device key from a previous pairing, skips the token",
			},
		},
		Action: startSimulator,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("%v\n", err)
	}
}

func startSimulator(c *cli.Context) error {
	sim := camsim.New(
		c.String("coordinator"),
		c.String("peer-id"),
		c.String("token"),
		c.String("device-key"),
	)

	return sim.Start()
}
