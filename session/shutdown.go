package session

// shutdown.go contains the single-fire teardown sequence. Shutdown can
// be reached from any trigger, and duplicate signal delivery while a
// shutdown is already running is legal, so the whole sequence sits
// behind a one-shot latch.

import (
	"context"
	"path/filepath"
	"time"

	"github.com/quicbench/quicbench/remote"
)

// Shutdown stops the remote workloads. It executes at most once no
// matter how many triggers fire; later calls return immediately.
// Shutdown never fails the session: every remote signal delivery
// failure is a logged warning, and stopping an already-exited process
// is a no-op.
func (s *Session) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
}

func (s *Session) shutdown() {
	// Shutdown must complete even when the session context is already
	// cancelled; every remote call is individually bounded by the
	// transport's connection timeout.
	ctx := context.Background()

	s.logger.Info().Msg("Stopping test")

	clientPattern := filepath.Base(s.cfg.ClientBinary)
	serverPattern := filepath.Base(s.cfg.ServerBinary)

	// Graceful client stops, by wrapper group name and by binary name.
	for i, t := range s.clients {
		s.bestEffort(ctx, t, buildStopCommand(clientGroupName(s.cfg.TestName, i)), "stop client group")
		s.bestEffort(ctx, t, buildStopCommand(clientPattern), "stop client processes")
	}

	// Graceful server stop, interrupt-class and scoped to the test
	// name so other tests sharing the host are untouched.
	s.bestEffort(ctx, s.server, buildInterruptCommand(s.cfg.TestName), "interrupt server")

	time.Sleep(s.t.shutdownGrace)

	// Escalate unconditionally; a no-op for anything already exited.
	s.bestEffort(ctx, s.server, buildForceKillCommand(serverPattern), "force-kill server")
	for _, t := range s.clients {
		s.bestEffort(ctx, t, buildForceKillCommand(clientPattern), "force-kill clients")
	}

	s.logger.Info().Msg("Test stopped")
}

// bestEffort runs a stop command and absorbs every failure. pkill
// exits 1 when nothing matched, which is expected here.
func (s *Session) bestEffort(ctx context.Context, t remote.Target, cmd, what string) {
	res, err := t.Execute(ctx, cmd)
	if err != nil {
		s.logger.Warn().Err(err).Str("host", t.Addr()).Msgf("Failed to %s", what)
		return
	}
	if res.ExitCode > 1 {
		s.logger.Debug().
			Int("exit_code", res.ExitCode).
			Str("host", t.Addr()).
			Msgf("Unexpected exit from %s", what)
	}
}
