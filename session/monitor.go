package session

// monitor.go contains the liveness monitoring loop that supervises the
// running phase. Three triggers race to end it: the workload finishing
// naturally (server process count drops to zero), an operator
// interrupt delivered through the parent context, and the optional
// max-duration timeout. Exactly one wins; the context plumbing disarms
// the rest.

import (
	"context"
	"path/filepath"
	"time"
)

// trigger identifies which race winner ended the monitoring phase.
type trigger int

const (
	triggerNatural trigger = iota
	triggerSignal
	triggerTimeout
)

func (t trigger) String() string {
	switch t {
	case triggerNatural:
		return "natural termination"
	case triggerSignal:
		return "operator interrupt"
	case triggerTimeout:
		return "max duration reached"
	}
	return "unknown"
}

// monitor polls the server target until a trigger fires. The timeout
// timer is armed when monitoring starts and cancels the poll loop from
// the outside; natural termination or an interrupt cancels the timer
// on return via the deferred cancel.
func (s *Session) monitor(ctx context.Context) trigger {
	monCtx := ctx
	cancel := context.CancelFunc(func() {})
	if s.t.maxDuration > 0 {
		monCtx, cancel = context.WithTimeout(ctx, s.t.maxDuration)
		s.logger.Info().Dur("max_duration", s.t.maxDuration).Msg("Monitoring with duration limit")
	} else {
		s.logger.Info().Msg("Monitoring until workload terminates")
	}
	defer cancel()

	pattern := filepath.Base(s.cfg.ServerBinary)
	started := time.Now()
	polls := 0

	ticker := time.NewTicker(s.t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-monCtx.Done():
			// Parent cancellation means the operator asked to stop;
			// otherwise the duration limit expired.
			if ctx.Err() != nil {
				return triggerSignal
			}
			return triggerTimeout
		case <-ticker.C:
			polls++
			count := s.server.AliveCount(monCtx, pattern)
			s.serverLiveness = count

			if count == 0 {
				// A cancelled or expired context makes AliveCount fail
				// safe to zero; let the Done branch classify it.
				if monCtx.Err() != nil {
					continue
				}
				s.logger.Info().
					Dur("elapsed", time.Since(started).Round(time.Second)).
					Msg("Server no longer running, test finished")
				return triggerNatural
			}

			if polls%s.t.statusEvery == 0 {
				s.logger.Info().
					Dur("elapsed", time.Since(started).Round(time.Second)).
					Int("server_processes", count).
					Msg("Test running")
			}
		}
	}
}
