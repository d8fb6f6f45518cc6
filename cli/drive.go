package cli

// This file contains the drive command: run the coordinator once per
// benchmark config file found directly inside a directory.

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/quicbench/quicbench/config"
)

// drivePause separates successive config files so the fleet quiesces
// between benchmarks.
const drivePause = 30 * time.Second

func (a *App) drive(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("config directory argument required (usage: %s drive <config-dir>)", AppName)
	}
	dir := ctx.Args().First()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read config directory: %w", err)
	}

	var configs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			configs = append(configs, filepath.Join(dir, name))
		}
	}
	sort.Strings(configs)

	if len(configs) == 0 {
		return fmt.Errorf("no benchmark config files found in %s", dir)
	}

	a.logger.Info().Int("configs", len(configs)).Str("dir", dir).Msg("Driving benchmark series")

	for i, path := range configs {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		a.logger.Info().
			Str("config", path).
			Int("index", i+1).
			Int("of", len(configs)).
			Msg("Starting benchmark")

		if err := a.runBenchmark(ctx, cfg); err != nil {
			return fmt.Errorf("benchmark %s failed: %w", path, err)
		}

		if i < len(configs)-1 {
			a.logger.Info().Dur("pause", drivePause).Msg("Pausing before next benchmark")
			select {
			case <-ctx.Context.Done():
				return ctx.Context.Err()
			case <-time.After(drivePause):
			}
		}
	}

	return nil
}
