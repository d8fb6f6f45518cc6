package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const AppName = "quicbench"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Coordinate distributed QUIC benchmarks across remote hosts",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "coordinate",
		Usage:     "Run one full (possibly multi-iteration) benchmark from a config file",
		ArgsUsage: "<config-file>",
		Action:    app.coordinate,
		Flags:     benchmarkFlags(),
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "drive",
		Usage:     "Run the coordinator once per config file found in a directory",
		ArgsUsage: "<config-dir>",
		Action:    app.drive,
		Flags:     benchmarkFlags(),
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "List previous benchmark runs",
		Action: app.list,
		Flags: []cli.Flag{
			resultsDirFlag(),
			&cli.StringFlag{
				Name:    "test",
				Aliases: []string{"t"},
				Usage:   "Filter by test name",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
		},
	})
	return app
}

func benchmarkFlags() []cli.Flag {
	return []cli.Flag{
		resultsDirFlag(),
		&cli.StringFlag{
			Name:  "scripts-dir",
			Usage: "Directory holding the collaborator scripts uploaded to each host",
			Value: "scripts",
		},
		&cli.StringFlag{
			Name:    "identity-file",
			Aliases: []string{"i"},
			Usage:   "SSH identity file (private key) for remote hosts",
		},
	}
}

func resultsDirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "results-dir",
		Usage: "Local directory session results are written under",
		Value: "results",
	}
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && commit != "" {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}
