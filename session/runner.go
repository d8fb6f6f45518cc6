package session

// runner.go repeats sessions for multi-iteration runs. An iteration
// failure aborts the whole run immediately: a corrupted iteration must
// not be averaged together with good ones by the downstream tooling.

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quicbench/quicbench/config"
	"github.com/quicbench/quicbench/remote"
)

// DefaultIterationPause separates successive iterations so the fleet
// quiesces between attempts.
const DefaultIterationPause = 30 * time.Second

// Runner executes the configured number of iterations, fail-fast.
type Runner struct {
	logger      zerolog.Logger
	cfg         *config.Config
	server      remote.Target
	clients     []remote.Target
	resultsRoot string
	scriptsDir  string
	pause       time.Duration

	// seam for tests
	runOne func(ctx context.Context, iteration int) error
}

// NewRunner creates a Runner over the configured fleet.
func NewRunner(logger zerolog.Logger, cfg *config.Config, server remote.Target, clients []remote.Target, resultsRoot, scriptsDir string) *Runner {
	r := &Runner{
		logger:      logger,
		cfg:         cfg,
		server:      server,
		clients:     clients,
		resultsRoot: resultsRoot,
		scriptsDir:  scriptsDir,
		pause:       DefaultIterationPause,
	}
	r.runOne = r.runSession
	return r
}

// Run executes iterations 1..N. The first failing iteration aborts
// the run; remaining iterations never start. An operator interrupt
// lets the in-flight session finish its shutdown and collection, then
// stops the loop.
func (r *Runner) Run(ctx context.Context) error {
	n := r.cfg.Iterations
	if n > 1 {
		r.logger.Info().Int("iterations", n).Msg("Starting multi-iteration run")
	}

	for iter := 1; iter <= n; iter++ {
		if n > 1 {
			r.logger.Info().Int("iteration", iter).Int("of", n).Msg("Starting iteration")
		}

		if err := r.runOne(ctx, iter); err != nil {
			return fmt.Errorf("iteration %d failed: %w", iter, err)
		}

		if ctx.Err() != nil {
			r.logger.Warn().Int("completed", iter).Msg("Run interrupted, skipping remaining iterations")
			return fmt.Errorf("run interrupted: %w", ctx.Err())
		}

		if iter < n {
			r.logger.Info().Dur("pause", r.pause).Msg("Pausing before next iteration")
			sleepCtx(ctx, r.pause)
			if ctx.Err() != nil {
				r.logger.Warn().Int("completed", iter).Msg("Run interrupted during pause, skipping remaining iterations")
				return fmt.Errorf("run interrupted: %w", ctx.Err())
			}
		}
	}

	return nil
}

func (r *Runner) runSession(ctx context.Context, iteration int) error {
	sess := New(r.logger, Params{
		Config:      r.cfg,
		Server:      r.server,
		Clients:     r.clients,
		Iteration:   iteration,
		ResultsRoot: r.resultsRoot,
		ScriptsDir:  r.scriptsDir,
	})
	return sess.Run(ctx)
}
