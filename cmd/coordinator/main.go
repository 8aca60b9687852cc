package main

import (
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/urfave/cli/v2"

	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/config"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/core"
	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/server"
)

func main() {
	app := &cli.App{
		Name:        "varcoord",
		Usage:       "Instant replay coordinator",
		Description: "Pairs ringside cameras over the local network, drives recording sessions and pulls incident clips for review",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "env",
				Usage:    "environment: either 'development' or 'production'",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the YAML config file, optional",
			},
			&cli.StringFlag{
				Name:  "address",
				Usage: "listen IP and port, example: ':8975' for listen on 0.0.0.0:8975, overrides the config file",
			},
		},
		Action: startCoordinator,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

func startCoordinator(c *cli.Context) error {
	conf, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if address := c.String("address"); address != "" {
		conf.App.Address = address
	}

	db, err := sqlx.Connect("sqlite3", conf.App.DatabasePath)
	if err != nil {
		return err
	}

	coordApp := server.New(server.AppOptions{
		Env:    core.Environment(c.String("env")),
		Config: conf,
		DB:     db,
	})

	return coordApp.Start()
}
