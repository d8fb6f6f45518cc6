package cli

// This file contains the list command for displaying previous
// benchmark runs.

import (
	"fmt"
	"sort"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/quicbench/quicbench/history"
)

func (a *App) list(ctx *cli.Context) error {
	filterTest := ctx.String("test")
	limit := ctx.Int("limit")
	resultsRoot := ctx.String("results-dir")

	entries, err := history.LoadEntries(a.logger, resultsRoot)
	if err != nil {
		return fmt.Errorf("failed to load run history: %w", err)
	}

	// Apply test name filter if specified
	var filtered []history.Entry
	for _, entry := range entries {
		if filterTest == "" || entry.Record.TestName == filterTest {
			filtered = append(filtered, entry)
		}
	}

	if len(filtered) == 0 {
		if filterTest != "" {
			fmt.Printf("No runs found for test: %s\n", filterTest)
		} else {
			fmt.Println("No runs found")
		}
		return nil
	}

	// Sort by timestamp (newest first)
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Record.Timestamp.After(filtered[j].Record.Timestamp)
	})

	// Apply limit
	display := filtered
	if limit > 0 && limit < len(display) {
		display = display[:limit]
	}

	fmt.Printf("\n=== Benchmark runs (%d total) ===\n\n", len(filtered))

	for _, entry := range display {
		rec := entry.Record
		timestamp := rec.Timestamp.Format("2006-01-02 15:04:05")
		duration := rec.Duration.Round(time.Second)

		status := "✓"
		if rec.ExitCode != 0 {
			status = "✗"
		}

		shortID := rec.ID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		fmt.Printf("%s  %s  [%s]  %s", status, timestamp, duration, rec.TestName)
		if rec.Iterations > 1 {
			fmt.Printf(" (iteration %d/%d)", rec.Iteration, rec.Iterations)
		}
		fmt.Printf("  id=%s\n", shortID)

		fmt.Printf("   Server: %s  Clients: %d VMs x %d = %d\n",
			rec.Topology.ServerVM,
			len(rec.Topology.ClientVMs),
			rec.Topology.ClientsPerVM,
			rec.Topology.TotalClients)
		if len(rec.MissingTargets) > 0 {
			fmt.Printf("   Missing results: %d target(s)\n", len(rec.MissingTargets))
		}
		fmt.Printf("   Path: %s\n", entry.FullPath)
	}

	return nil
}
