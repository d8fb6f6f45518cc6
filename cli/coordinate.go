package cli

// This file contains the coordinate command: one full benchmark run
// from a single config file.

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/quicbench/quicbench/cli/ssh"
	"github.com/quicbench/quicbench/config"
	"github.com/quicbench/quicbench/remote"
	"github.com/quicbench/quicbench/session"
)

func (a *App) coordinate(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("config file argument required (usage: %s coordinate <config-file>)", AppName)
	}

	cfg, err := config.Load(ctx.Args().First())
	if err != nil {
		return err
	}

	return a.runBenchmark(ctx, cfg)
}

// runBenchmark executes one configured benchmark: it connects the
// fleet, wires an interrupt context so Ctrl-C triggers the session's
// shutdown path instead of killing the process, and hands control to
// the iteration runner.
func (a *App) runBenchmark(cliCtx *cli.Context, cfg *config.Config) error {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sshOpts []ssh.Option
	if identity := cliCtx.String("identity-file"); identity != "" {
		sshOpts = append(sshOpts, ssh.WithIdentityFile(identity))
	}

	a.logger.Info().
		Str("test", cfg.TestName).
		Str("server", cfg.ServerVM).
		Int("client_vms", len(cfg.ClientVMs)).
		Msg("Connecting to benchmark fleet")

	server := ssh.New(a.logger, cfg.ServerVM, sshOpts...)
	defer server.Close()

	clients := make([]remote.Target, 0, len(cfg.ClientVMs))
	for _, vm := range cfg.ClientVMs {
		client := ssh.New(a.logger, vm, sshOpts...)
		defer client.Close()
		clients = append(clients, client)
	}

	runner := session.NewRunner(a.logger, cfg, server, clients,
		cliCtx.String("results-dir"), cliCtx.String("scripts-dir"))

	if err := runner.Run(runCtx); err != nil {
		a.logger.Error().Err(err).Msg("Benchmark run failed")
		return err
	}

	a.logger.Info().Str("test", cfg.TestName).Msg("Benchmark run complete")
	return nil
}
