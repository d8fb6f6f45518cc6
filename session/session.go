package session

// Package session implements the distributed run coordinator: one
// Session drives a single benchmark attempt end-to-end across remote
// targets (upload, launch, liveness supervision, shutdown escalation,
// collection, summary), and Runner repeats Sessions with fail-fast
// iteration semantics.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quicbench/quicbench/config"
	"github.com/quicbench/quicbench/model"
	"github.com/quicbench/quicbench/remote"
)

// State is a Session lifecycle phase.
type State string

const (
	StateInitializing    State = "initializing"
	StateUploading       State = "uploading"
	StateServerStarting  State = "server_starting"
	StateServerVerified  State = "server_verified"
	StateClientsStarting State = "clients_starting"
	StateMonitoring      State = "monitoring"
	StateShuttingDown    State = "shutting_down"
	StateCollecting      State = "collecting"
	StateComplete        State = "complete"
	StateFailed          State = "failed"
)

// timings holds every fixed wait the coordinator uses. Tests compress
// them; production sessions run with defaultTimings.
type timings struct {
	verifyGrace    time.Duration // before the first server liveness check
	verifyInterval time.Duration // between verification attempts
	verifyAttempts int
	launchStagger  time.Duration // between successive client target launches
	pollInterval   time.Duration // monitoring liveness poll spacing
	statusEvery    int           // status line every Nth poll
	shutdownGrace  time.Duration // between graceful stop and escalation
	collectSettle  time.Duration // before collection, lets remote writers flush
	maxDuration    time.Duration // 0 = unbounded
}

func defaultTimings(cfg *config.Config) timings {
	return timings{
		verifyGrace:    5 * time.Second,
		verifyInterval: 3 * time.Second,
		verifyAttempts: 3,
		launchStagger:  2 * time.Second,
		pollInterval:   10 * time.Second,
		statusEvery:    3,
		shutdownGrace:  5 * time.Second,
		collectSettle:  2 * time.Second,
		maxDuration:    time.Duration(cfg.MaxTestDuration) * time.Second,
	}
}

// Params configures one Session.
type Params struct {
	Config *config.Config
	Server remote.Target
	// Clients in config order; index i collects into client_vm<i>.
	Clients []remote.Target
	// Iteration is the 1-based position within the run.
	Iteration int
	// ResultsRoot is the local directory session directories are
	// created under.
	ResultsRoot string
	// ScriptsDir holds the collaborator scripts to upload.
	ScriptsDir string
}

// Session is one end-to-end benchmark attempt. It owns its local
// results directory exclusively and borrows the targets read-only.
type Session struct {
	logger  zerolog.Logger
	cfg     *config.Config
	server  remote.Target
	clients []remote.Target

	iteration   int
	resultsRoot string
	scriptsDir  string
	t           timings

	id         string
	localDir   string
	state      State
	startedAt  time.Time
	clientArgs string

	// last observed server process count, -1 until first poll
	serverLiveness int

	shutdownOnce sync.Once
}

// New creates a Session for one iteration.
func New(logger zerolog.Logger, p Params) *Session {
	id := uuid.NewString()
	return &Session{
		logger: logger.With().
			Str("test", p.Config.TestName).
			Int("iteration", p.Iteration).
			Logger(),
		cfg:            p.Config,
		server:         p.Server,
		clients:        p.Clients,
		iteration:      p.Iteration,
		resultsRoot:    p.ResultsRoot,
		scriptsDir:     p.ScriptsDir,
		t:              defaultTimings(p.Config),
		id:             id,
		state:          StateInitializing,
		serverLiveness: -1,
	}
}

// State returns the session's current lifecycle phase.
func (s *Session) State() State {
	return s.state
}

// LocalDir returns the session's local results directory. Empty until
// Run has initialized the session.
func (s *Session) LocalDir() string {
	return s.localDir
}

// Run drives the attempt end-to-end. Only local setup failures are
// returned as errors; every remote-side fault is absorbed as a
// warning and the session degrades to a data-poor but structurally
// complete result. Cancelling ctx (operator interrupt) ends the
// running phase and proceeds straight to shutdown and collection.
func (s *Session) Run(ctx context.Context) (err error) {
	s.startedAt = time.Now()
	s.setState(StateInitializing)

	if err := s.prepareLocalDir(); err != nil {
		s.setState(StateFailed)
		return err
	}

	var artifacts []model.Artifact
	var missing []string
	defer func() {
		exitCode := 0
		if err != nil {
			exitCode = 1
		}
		s.writeRecord(exitCode, artifacts, missing)
	}()

	// Substituted exactly once, before any client launch.
	s.clientArgs = s.cfg.ResolvedClientArgs()

	s.logger.Info().
		Str("session_id", s.id).
		Str("server", s.server.Addr()).
		Int("client_vms", len(s.clients)).
		Int("clients_per_vm", s.cfg.ClientsPerVM).
		Int("total_clients", s.cfg.TotalClients()).
		Str("results_dir", s.localDir).
		Msg("Starting benchmark session")

	s.setState(StateUploading)
	s.upload(ctx)

	if ctx.Err() == nil {
		s.launchServer(ctx)
		s.launchClients(ctx)

		s.setState(StateMonitoring)
		trigger := s.monitor(ctx)
		s.logger.Info().Str("trigger", trigger.String()).Msg("Running phase ended")
	} else {
		s.logger.Warn().Msg("Interrupted before launch completed, proceeding to shutdown")
	}

	s.setState(StateShuttingDown)
	s.Shutdown()

	s.setState(StateCollecting)
	col := s.collect()
	missing = col.missing

	artifacts = s.writeSummary(col)

	s.setState(StateComplete)
	s.logger.Info().
		Str("results_dir", s.localDir).
		Dur("duration", time.Since(s.startedAt)).
		Msg("Session complete")
	return nil
}

// prepareLocalDir creates the session-unique local results directory
// and preserves a copy of the benchmark definition inside it. The
// short session ID keeps two sessions started within the same second
// from sharing a directory.
func (s *Session) prepareLocalDir() error {
	name := s.cfg.TestName
	if s.cfg.Iterations > 1 {
		name = fmt.Sprintf("%s_iter%d", name, s.iteration)
	}
	name = fmt.Sprintf("%s_%s_%s", name, s.startedAt.Format("20060102_150405"), s.id[:8])

	s.localDir = filepath.Join(s.resultsRoot, name)
	if err := os.MkdirAll(s.localDir, 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	if s.cfg.Path != "" {
		dst := filepath.Join(s.localDir, "test_config.yaml")
		if err := copyFile(s.cfg.Path, dst); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to preserve config copy")
		}
	}

	return nil
}

// upload pushes the collaborator scripts to the server target and then
// every client target, in config order. Per-target failures are
// warnings: a host that never got its scripts fails its own liveness
// checks later, which is where the coordinator stops trusting it.
func (s *Session) upload(ctx context.Context) {
	var paths []string
	for _, script := range CollaboratorScripts() {
		p := filepath.Join(s.scriptsDir, script)
		if _, err := os.Stat(p); err != nil {
			s.logger.Warn().Str("script", p).Msg("Collaborator script missing locally, skipping upload")
			continue
		}
		paths = append(paths, p)
	}
	if len(paths) == 0 {
		s.logger.Warn().Str("dir", s.scriptsDir).Msg("No collaborator scripts found to upload")
		return
	}

	targets := append([]remote.Target{s.server}, s.clients...)
	for _, t := range targets {
		if ctx.Err() != nil {
			return
		}
		s.logger.Info().Str("host", t.Addr()).Msg("Uploading scripts")
		if err := t.Upload(ctx, paths, s.cfg.RemoteDir); err != nil {
			s.logger.Warn().Err(err).Str("host", t.Addr()).Msg("Upload failed, continuing")
		}
	}
}

// launchServer fires the detached server wrapper and verifies a
// matching process shows up. Verification failing is a warning, not an
// abort: a slow-starting server is expected, and the monitoring loop
// catches a truly dead one.
func (s *Session) launchServer(ctx context.Context) {
	s.setState(StateServerStarting)

	logFile := fmt.Sprintf("%s_server.log", s.cfg.TestName)
	cmd := buildLaunchCommand(s.cfg.RemoteDir, s.cfg.TestName, 1, s.cfg.ServerBinary, s.cfg.ServerArgs, logFile)

	s.logger.Info().Str("host", s.server.Addr()).Msg("Launching server")
	if res, err := s.server.Execute(ctx, cmd); err != nil {
		s.logger.Warn().Err(err).Msg("Server launch command failed")
	} else if res.ExitCode != 0 {
		s.logger.Warn().Int("exit_code", res.ExitCode).Str("stderr", res.Stderr).Msg("Server launch command exited non-zero")
	}

	sleepCtx(ctx, s.t.verifyGrace)

	pattern := filepath.Base(s.cfg.ServerBinary)
	for attempt := 1; attempt <= s.t.verifyAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		count := s.server.AliveCount(ctx, pattern)
		s.serverLiveness = count
		if count > 0 {
			s.logger.Info().Int("processes", count).Msg("Server verified running")
			s.setState(StateServerVerified)
			return
		}
		s.logger.Debug().
			Int("attempt", attempt).
			Int("max_attempts", s.t.verifyAttempts).
			Msg("Server not detected yet")
		if attempt < s.t.verifyAttempts {
			sleepCtx(ctx, s.t.verifyInterval)
		}
	}

	s.logger.Warn().Msg("Server not detected after verification attempts, proceeding anyway")
}

// launchClients starts the client fleet, one wrapper invocation per
// target, with a fixed stagger between targets to avoid a connection
// burst against the server.
func (s *Session) launchClients(ctx context.Context) {
	s.setState(StateClientsStarting)

	for i, t := range s.clients {
		if ctx.Err() != nil {
			return
		}
		name := clientGroupName(s.cfg.TestName, i)
		cmd := buildLaunchCommand(s.cfg.RemoteDir, name, s.cfg.ClientsPerVM, s.cfg.ClientBinary, s.clientArgs, name+".log")

		s.logger.Info().
			Str("host", t.Addr()).
			Str("group", name).
			Int("count", s.cfg.ClientsPerVM).
			Msg("Launching clients")
		if res, err := t.Execute(ctx, cmd); err != nil {
			s.logger.Warn().Err(err).Str("host", t.Addr()).Msg("Client launch failed, continuing")
		} else if res.ExitCode != 0 {
			s.logger.Warn().
				Int("exit_code", res.ExitCode).
				Str("host", t.Addr()).
				Str("stderr", res.Stderr).
				Msg("Client launch exited non-zero, continuing")
		}

		if i < len(s.clients)-1 {
			sleepCtx(ctx, s.t.launchStagger)
		}
	}
}

// writeRecord persists the run record into the session directory.
func (s *Session) writeRecord(exitCode int, artifacts []model.Artifact, missing []string) {
	if s.localDir == "" {
		return
	}

	record := model.Record{
		ID:         s.id,
		TestName:   s.cfg.TestName,
		Iteration:  s.iteration,
		Iterations: s.cfg.Iterations,
		Timestamp:  s.startedAt,
		Duration:   time.Since(s.startedAt),
		ExitCode:   exitCode,
		Topology: model.Topology{
			ServerVM:     s.server.Addr(),
			ClientVMs:    targetAddrs(s.clients),
			ClientsPerVM: s.cfg.ClientsPerVM,
			TotalClients: s.cfg.TotalClients(),
		},
		Artifacts:      artifacts,
		MissingTargets: missing,
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode run record")
		return
	}
	path := filepath.Join(s.localDir, model.RecordFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write run record")
	}
}

func (s *Session) setState(st State) {
	s.logger.Debug().
		Str("from", string(s.state)).
		Str("to", string(st)).
		Msg("State transition")
	s.state = st
}

func targetAddrs(targets []remote.Target) []string {
	addrs := make([]string, 0, len(targets))
	for _, t := range targets {
		addrs = append(addrs, t.Addr())
	}
	return addrs
}

// sleepCtx waits for d or until ctx is cancelled, whichever comes
// first. Every coordinator wait is either bounded or cancellable.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return nil
}
