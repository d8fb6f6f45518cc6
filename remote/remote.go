package remote

// Package remote defines the capability a coordinator needs from a
// benchmark host: run a command, move files both ways, and report
// whether a named workload is still alive. Implementations are
// best-effort transports; a failed operation comes back as a value,
// never as a panic or a process-fatal condition.

import "context"

// Result holds the outcome of one remote command invocation.
type Result struct {
	// ExitCode is the remote command's exit status. -1 when the
	// command never ran (connection failure, cancellation).
	ExitCode int
	Stdout   string
	Stderr   string
}

// Target is the execution capability for a single benchmark host.
//
// All methods honour the context for cancellation and are safe for the
// caller to retry; the capability itself never retries.
type Target interface {
	// Addr returns the login principal and address, e.g. "perf@10.0.0.4".
	Addr() string

	// Host returns the address portion of Addr, without the login
	// principal.
	Host() string

	// Execute runs a shell command on the target. A non-zero remote
	// exit status is reported through Result, not through err; err is
	// reserved for transport-level failures (unreachable host,
	// cancelled context).
	Execute(ctx context.Context, command string) (Result, error)

	// Upload copies local files into remoteDir on the target, creating
	// the directory if needed and marking the files executable.
	Upload(ctx context.Context, localPaths []string, remoteDir string) error

	// DownloadNewest copies the newest remote directory matching
	// pattern into localDir and returns its remote path. An empty
	// return path with nil error means no directory matched.
	DownloadNewest(ctx context.Context, pattern, localDir string) (string, error)

	// AliveCount reports how many live processes on the target match
	// pattern. Any failure to poll or to parse the poll output is
	// folded into zero, so callers always read "not running" rather
	// than an error when the host is unreachable.
	AliveCount(ctx context.Context, pattern string) int
}
