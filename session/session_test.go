package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/quicbench/quicbench/config"
	"github.com/quicbench/quicbench/model"
	"github.com/quicbench/quicbench/remote"
)

// fakeTarget records every capability call so tests can assert on the
// exact remote traffic a session generates.
type fakeTarget struct {
	mu       sync.Mutex
	addr     string
	commands []string
	uploads  [][]string

	// alive values are consumed one per AliveCount call; the last
	// value is sticky once the sequence is exhausted.
	alive    []int
	aliveIdx int

	// aliveWaitsForCtx makes AliveCount block until the context ends
	// and then report zero, mimicking a transport failure folded to a
	// safe count.
	aliveWaitsForCtx bool

	// noResults makes DownloadNewest report absence.
	noResults bool
	// resultFiles are written into the local directory on download.
	resultFiles map[string]string
}

func (f *fakeTarget) Addr() string { return f.addr }

func (f *fakeTarget) Host() string {
	if i := strings.LastIndex(f.addr, "@"); i >= 0 {
		return f.addr[i+1:]
	}
	return f.addr
}

func (f *fakeTarget) Execute(ctx context.Context, command string) (remote.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	return remote.Result{ExitCode: 0}, nil
}

func (f *fakeTarget) Upload(ctx context.Context, localPaths []string, remoteDir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, localPaths)
	return nil
}

func (f *fakeTarget) DownloadNewest(ctx context.Context, pattern, localDir string) (string, error) {
	if f.noResults {
		return "", nil
	}
	if err := os.MkdirAll(localDir, 0755); err != nil {
		return "", err
	}
	for name, content := range f.resultFiles {
		if err := os.WriteFile(filepath.Join(localDir, name), []byte(content), 0644); err != nil {
			return "", err
		}
	}
	return "/remote" + pattern, nil
}

func (f *fakeTarget) AliveCount(ctx context.Context, pattern string) int {
	if f.aliveWaitsForCtx {
		<-ctx.Done()
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.alive) == 0 {
		return 0
	}
	v := f.alive[f.aliveIdx]
	if f.aliveIdx < len(f.alive)-1 {
		f.aliveIdx++
	}
	return v
}

func (f *fakeTarget) commandsMatching(substr string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.commands {
		if strings.Contains(c, substr) {
			out = append(out, c)
		}
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		ServerVM:     "perf@10.0.0.1",
		ClientVMs:    []string{"perf@10.0.0.2"},
		ClientsPerVM: 1,
		Iterations:   1,
		TestName:     "t1",
		ServerBinary: "/opt/quic/server",
		ClientBinary: "/opt/quic/client",
		ServerArgs:   "--port 4433",
		ClientArgs:   "--connect SERVER_IP:4433",
		RemoteDir:    "~/quic_tests",
	}
}

func testTimings() timings {
	return timings{
		verifyGrace:    time.Millisecond,
		verifyInterval: time.Millisecond,
		verifyAttempts: 3,
		launchStagger:  time.Millisecond,
		pollInterval:   2 * time.Millisecond,
		statusEvery:    3,
		shutdownGrace:  time.Millisecond,
		collectSettle:  time.Millisecond,
	}
}

func newTestSession(t *testing.T, cfg *config.Config, server *fakeTarget, clients ...*fakeTarget) *Session {
	t.Helper()
	targets := make([]remote.Target, 0, len(clients))
	for _, c := range clients {
		targets = append(targets, c)
	}
	s := New(zerolog.Nop(), Params{
		Config:      cfg,
		Server:      server,
		Clients:     targets,
		Iteration:   1,
		ResultsRoot: t.TempDir(),
		ScriptsDir:  t.TempDir(),
	})
	s.t = testTimings()
	return s
}

func TestSessionNaturalTermination(t *testing.T) {
	server := &fakeTarget{
		addr:        "perf@10.0.0.1",
		alive:       []int{1, 1, 0},
		resultFiles: map[string]string{"pidstat.log": "data"},
	}
	client := &fakeTarget{
		addr:        "perf@10.0.0.2",
		resultFiles: map[string]string{"test_config.txt": "duration: 30\n"},
	}

	s := newTestSession(t, testConfig(), server, client)
	require.NoError(t, s.Run(context.Background()))
	require.Equal(t, StateComplete, s.State())

	// Exactly one results directory with server and client subtrees.
	require.FileExists(t, filepath.Join(s.LocalDir(), "server", "pidstat.log"))
	require.FileExists(t, filepath.Join(s.LocalDir(), "client_vm0", "test_config.txt"))
	require.FileExists(t, filepath.Join(s.LocalDir(), model.RecordFile))

	summary, err := os.ReadFile(filepath.Join(s.LocalDir(), summaryFile))
	require.NoError(t, err)
	require.Contains(t, string(summary), "Total Clients: 1")
	require.Contains(t, string(summary), "duration: 30")
}

func TestSessionServerNeverDetected(t *testing.T) {
	// A server that never shows up fails verification and then ends
	// monitoring on the first poll; the session still completes.
	server := &fakeTarget{addr: "perf@10.0.0.1", noResults: true}
	client := &fakeTarget{addr: "perf@10.0.0.2", noResults: true}

	s := newTestSession(t, testConfig(), server, client)
	require.NoError(t, s.Run(context.Background()))
	require.Equal(t, StateComplete, s.State())
}

func TestClientArgsSubstitutedInLaunch(t *testing.T) {
	server := &fakeTarget{addr: "perf@10.0.0.1", alive: []int{1, 0}}
	client := &fakeTarget{addr: "perf@10.0.0.2"}

	s := newTestSession(t, testConfig(), server, client)
	require.NoError(t, s.Run(context.Background()))

	launches := client.commandsMatching("nohup")
	require.Len(t, launches, 1)
	require.Contains(t, launches[0], "10.0.0.1:4433")
	require.NotContains(t, launches[0], "SERVER_IP")
}

func TestClientFleetLaunch(t *testing.T) {
	cfg := testConfig()
	cfg.ClientVMs = []string{"perf@10.0.0.2", "perf@10.0.0.3", "perf@10.0.0.4"}
	cfg.ClientsPerVM = 4

	server := &fakeTarget{addr: "perf@10.0.0.1", alive: []int{1, 0}, noResults: true}
	clients := []*fakeTarget{
		{addr: "perf@10.0.0.2", noResults: true},
		{addr: "perf@10.0.0.3", noResults: true},
		{addr: "perf@10.0.0.4", noResults: true},
	}

	s := newTestSession(t, cfg, server, clients...)
	require.NoError(t, s.Run(context.Background()))

	// One wrapper invocation per target, each carrying the full
	// per-target process count and the target's group name.
	for i, c := range clients {
		launches := c.commandsMatching("nohup")
		require.Len(t, launches, 1, "client %d", i)
		require.Contains(t, launches[0], "t1_client"+string(rune('0'+i)))
		require.Contains(t, launches[0], " 4 ")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	server := &fakeTarget{addr: "perf@10.0.0.1"}
	client := &fakeTarget{addr: "perf@10.0.0.2"}

	s := newTestSession(t, testConfig(), server, client)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Shutdown()
		}()
	}
	wg.Wait()
	s.Shutdown()

	// One graceful stop pair plus one escalation per client target.
	require.Len(t, client.commandsMatching("pkill"), 3)
	// One interrupt plus one escalation on the server.
	require.Len(t, server.commandsMatching("pkill"), 2)
	require.Len(t, server.commandsMatching("pkill -INT"), 1)
	require.Len(t, server.commandsMatching("pkill -KILL"), 1)
}

func TestMonitorTimeout(t *testing.T) {
	server := &fakeTarget{addr: "perf@10.0.0.1", alive: []int{1}}

	cfg := testConfig()
	s := newTestSession(t, cfg, server, &fakeTarget{addr: "perf@10.0.0.2"})
	s.t.maxDuration = 20 * time.Millisecond

	start := time.Now()
	trig := s.monitor(context.Background())
	require.Equal(t, triggerTimeout, trig)
	// Shutdown must begin within maxDuration plus one poll interval.
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestMonitorSignal(t *testing.T) {
	server := &fakeTarget{addr: "perf@10.0.0.1", alive: []int{1}}

	s := newTestSession(t, testConfig(), server, &fakeTarget{addr: "perf@10.0.0.2"})
	s.t.maxDuration = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	trig := s.monitor(ctx)
	require.Equal(t, triggerSignal, trig)
}

func TestMonitorTimeoutDuringPoll(t *testing.T) {
	// The duration limit expiring while a poll is in flight must be
	// reported as a timeout, not as natural termination: the dead
	// context makes the liveness check fail safe to zero.
	server := &fakeTarget{addr: "perf@10.0.0.1", aliveWaitsForCtx: true}

	s := newTestSession(t, testConfig(), server, &fakeTarget{addr: "perf@10.0.0.2"})
	s.t.maxDuration = 10 * time.Millisecond

	trig := s.monitor(context.Background())
	require.Equal(t, triggerTimeout, trig)
}

func TestMonitorNaturalTermination(t *testing.T) {
	server := &fakeTarget{addr: "perf@10.0.0.1", alive: []int{2, 2, 0}}

	s := newTestSession(t, testConfig(), server, &fakeTarget{addr: "perf@10.0.0.2"})

	trig := s.monitor(context.Background())
	require.Equal(t, triggerNatural, trig)
	require.Equal(t, 0, s.serverLiveness)
}

func TestSessionDirsDistinctWithinSameSecond(t *testing.T) {
	root := t.TempDir()
	when := time.Now()

	var dirs []string
	for range 2 {
		s := New(zerolog.Nop(), Params{
			Config:      testConfig(),
			Server:      &fakeTarget{addr: "perf@10.0.0.1"},
			Iteration:   1,
			ResultsRoot: root,
		})
		s.startedAt = when
		require.NoError(t, s.prepareLocalDir())
		dirs = append(dirs, s.LocalDir())
	}
	require.NotEqual(t, dirs[0], dirs[1])
}

func TestSessionDirCarriesIterationMarker(t *testing.T) {
	cfg := testConfig()
	cfg.Iterations = 3

	s := New(zerolog.Nop(), Params{
		Config:      cfg,
		Server:      &fakeTarget{addr: "perf@10.0.0.1"},
		Iteration:   2,
		ResultsRoot: t.TempDir(),
	})
	s.startedAt = time.Now()
	require.NoError(t, s.prepareLocalDir())
	require.Contains(t, filepath.Base(s.LocalDir()), "_iter2_")
}

func TestSessionInterruptedBeforeLaunch(t *testing.T) {
	server := &fakeTarget{addr: "perf@10.0.0.1", noResults: true}
	client := &fakeTarget{addr: "perf@10.0.0.2", noResults: true}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestSession(t, testConfig(), server, client)
	require.NoError(t, s.Run(ctx))

	// The session still runs its shutdown sequence and completes.
	require.Equal(t, StateComplete, s.State())
	require.NotEmpty(t, server.commandsMatching("pkill"))
	require.Empty(t, server.commandsMatching("nohup"))
}
