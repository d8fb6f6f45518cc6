package session

// collect.go pulls the newest matching remote result directory from
// each target into the session's local directory. Absence of results
// on a target is a recorded warning, never a session failure: a
// session with zero collected artifacts is structurally complete,
// just data-poor.

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

// collectResult records what collection managed to retrieve.
type collectResult struct {
	// serverDir is the local server results directory, empty if the
	// server target produced nothing.
	serverDir string
	// clientDirs holds one local path per configured client target,
	// empty string where collection found nothing.
	clientDirs []string
	// missing lists the addresses of targets with no results.
	missing []string
}

// collect waits a short settle window for remote writers to flush,
// then retrieves results from the server target and every client
// target in order.
func (s *Session) collect() collectResult {
	time.Sleep(s.t.collectSettle)

	// Collection proceeds even after an operator interrupt; each
	// transfer is bounded by the transport's connection timeout.
	ctx := context.Background()

	col := collectResult{clientDirs: make([]string, len(s.clients))}

	s.logger.Info().Msg("Collecting results")

	serverLocal := filepath.Join(s.localDir, "server")
	pattern := resultsPattern(s.cfg.RemoteDir, s.cfg.TestName)
	remoteDir, err := s.server.DownloadNewest(ctx, pattern, serverLocal)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Str("host", s.server.Addr()).Msg("Failed to collect server results")
		col.missing = append(col.missing, s.server.Addr())
	case remoteDir == "":
		s.logger.Warn().Str("host", s.server.Addr()).Msg("No server results found")
		col.missing = append(col.missing, s.server.Addr())
	default:
		s.logger.Info().Str("remote", remoteDir).Str("local", serverLocal).Msg("Collected server results")
		col.serverDir = serverLocal
	}

	for i, t := range s.clients {
		localDir := filepath.Join(s.localDir, fmt.Sprintf("client_vm%d", i))
		pattern := resultsPattern(s.cfg.RemoteDir, clientGroupName(s.cfg.TestName, i))
		remoteDir, err := t.DownloadNewest(ctx, pattern, localDir)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Str("host", t.Addr()).Msg("Failed to collect client results")
			col.missing = append(col.missing, t.Addr())
		case remoteDir == "":
			s.logger.Warn().Str("host", t.Addr()).Msg("No client results found")
			col.missing = append(col.missing, t.Addr())
		default:
			s.logger.Info().Str("remote", remoteDir).Str("local", localDir).Msg("Collected client results")
			col.clientDirs[i] = localDir
		}
	}

	return col
}
