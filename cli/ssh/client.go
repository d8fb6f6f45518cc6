package ssh

// Package ssh provides the SSH-backed implementation of the
// remote.Target capability. It manages a multiplexed connection per
// host and shells out to the system ssh/scp binaries, so the
// operator's existing SSH configuration (agents, jump hosts) keeps
// working.

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"

	"github.com/quicbench/quicbench/remote"
)

// connectTimeout bounds every connection attempt so a dead host can
// never hang a phase indefinitely.
const connectTimeout = 10

// Client manages an SSH connection to a specific benchmark host.
type Client struct {
	logger         zerolog.Logger
	addr           string
	controlPath    string
	identityFile   string
	knownHostsFile string
	proxyCommand   string
	extraOptions   []string
}

// Option is a function that configures an SSH client.
type Option func(*Client)

// WithIdentityFile sets the identity file (private key) to use for authentication.
func WithIdentityFile(path string) Option {
	return func(c *Client) {
		c.identityFile = path
	}
}

// WithKnownHostsFile sets the known hosts file to use for host verification.
func WithKnownHostsFile(path string) Option {
	return func(c *Client) {
		c.knownHostsFile = path
	}
}

// WithProxyCommand sets a proxy command for the SSH connection.
func WithProxyCommand(command string) Option {
	return func(c *Client) {
		c.proxyCommand = command
	}
}

// WithExtraOptions adds extra SSH options to the connection.
func WithExtraOptions(options ...string) Option {
	return func(c *Client) {
		c.extraOptions = append(c.extraOptions, options...)
	}
}

// New creates a client for addr ("user@host") and tries to establish a
// multiplexed master connection. A multiplexing failure is downgraded
// to a warning: the client still works, each operation just pays the
// full connection cost and the host's liveness checks will report the
// real state.
func New(logger zerolog.Logger, addr string, opts ...Option) *Client {
	c := &Client{
		logger: logger,
		addr:   addr,
	}

	for _, opt := range opts {
		opt(c)
	}

	controlPath, err := c.setupMultiplexing()
	if err != nil {
		c.logger.Warn().Err(err).Str("host", addr).Msg("SSH multiplexing unavailable, falling back to per-command connections")
	} else {
		c.controlPath = controlPath
	}

	return c
}

// Close closes the master connection and removes the control socket.
func (c *Client) Close() {
	if c.controlPath == "" {
		return
	}

	c.logger.Debug().Str("controlPath", c.controlPath).Msg("Cleaning up SSH multiplexing")

	args := []string{
		"-o", fmt.Sprintf("ControlPath=%s", c.controlPath),
		"-O", "exit",
		c.addr,
	}
	cmd := exec.Command("ssh", args...)
	_ = cmd.Run() // Ignore errors on cleanup

	_ = os.Remove(c.controlPath)
}

// Addr returns the full "user@host" identity of this client.
func (c *Client) Addr() string {
	return c.addr
}

// Host returns the address portion of Addr.
func (c *Client) Host() string {
	if i := strings.LastIndex(c.addr, "@"); i >= 0 {
		return c.addr[i+1:]
	}
	return c.addr
}

// Execute runs a command on the host. A non-zero remote exit status is
// reported through the Result; err covers transport failures only.
func (c *Client) Execute(ctx context.Context, command string) (remote.Result, error) {
	args := c.buildSSHArgs()
	args = append(args, c.addr, command)

	cmd := exec.CommandContext(ctx, "ssh", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug().
		Str("host", c.addr).
		Str("command", command).
		Msg("Running remote command")

	err := cmd.Run()
	res := remote.Result{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			// The remote command ran and exited non-zero; that is a
			// result, not a transport failure.
			return res, nil
		}
		res.ExitCode = -1
		return res, fmt.Errorf("ssh to %s failed: %w (stderr: %s)", c.addr, err, stderr.String())
	}

	return res, nil
}

// Upload copies localPaths into remoteDir, creating the directory
// first and marking the uploads executable.
func (c *Client) Upload(ctx context.Context, localPaths []string, remoteDir string) error {
	mkdirCmd := fmt.Sprintf("mkdir -p %s", remoteDir)
	if res, err := c.Execute(ctx, mkdirCmd); err != nil {
		return fmt.Errorf("failed to create remote directory: %w", err)
	} else if res.ExitCode != 0 {
		return fmt.Errorf("failed to create remote directory %s: %s", remoteDir, strings.TrimSpace(res.Stderr))
	}

	args := c.buildSSHArgs()
	args = append(args, localPaths...)
	args = append(args, fmt.Sprintf("%s:%s/", c.addr, remoteDir))
	cmd := exec.CommandContext(ctx, "scp", args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	c.logger.Debug().
		Str("command", cmd.String()).
		Msg("Executing scp")

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to copy files to %s: %w (stderr: %s)", c.addr, err, stderr.String())
	}

	// Paths stay unquoted so a ~ in the remote directory expands on
	// the remote shell; the file names themselves are fixed script
	// names.
	names := make([]string, 0, len(localPaths))
	for _, p := range localPaths {
		names = append(names, fmt.Sprintf("%s/%s", remoteDir, filepath.Base(p)))
	}
	chmodCmd := fmt.Sprintf("chmod +x %s", strings.Join(names, " "))
	if _, err := c.Execute(ctx, chmodCmd); err != nil {
		return fmt.Errorf("failed to make uploads executable: %w", err)
	}

	return nil
}

// DownloadNewest copies the newest remote directory matching pattern
// into localDir and returns its remote path. An empty path with nil
// error means nothing matched.
func (c *Client) DownloadNewest(ctx context.Context, pattern, localDir string) (string, error) {
	// Timestamp-suffixed directory names sort lexicographically into
	// creation order, so the last entry is the newest.
	listCmd := fmt.Sprintf("ls -1d %s 2>/dev/null | sort | tail -n 1", pattern)
	res, err := c.Execute(ctx, listCmd)
	if err != nil {
		return "", err
	}

	remotePath := strings.TrimSpace(res.Stdout)
	if remotePath == "" {
		return "", nil
	}

	if err := os.MkdirAll(localDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create local directory: %w", err)
	}

	args := c.buildSSHArgs()
	args = append(args, "-r", fmt.Sprintf("%s:%s/.", c.addr, remotePath), localDir)
	cmd := exec.CommandContext(ctx, "scp", args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	c.logger.Debug().
		Str("command", cmd.String()).
		Msg("Executing scp")

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to copy %s from %s: %w (stderr: %s)", remotePath, c.addr, err, stderr.String())
	}

	return remotePath, nil
}

// AliveCount reports how many live processes match pattern. Poll
// failures of any kind fold into zero.
func (c *Client) AliveCount(ctx context.Context, pattern string) int {
	countCmd := fmt.Sprintf("pgrep -c -f %s", shellescape.Quote(pattern))
	res, err := c.Execute(ctx, countCmd)
	if err != nil {
		c.logger.Debug().Err(err).Str("host", c.addr).Msg("Liveness poll failed, treating as zero")
		return 0
	}

	count, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
	if err != nil {
		return 0
	}
	return count
}

// buildSSHArgs constructs the SSH arguments with all configured options.
func (c *Client) buildSSHArgs() []string {
	args := []string{
		"-o", fmt.Sprintf("ConnectTimeout=%d", connectTimeout),
		"-o", "BatchMode=yes",
	}

	// Add control path options if using multiplexing
	if c.controlPath != "" {
		args = append(args,
			"-o", fmt.Sprintf("ControlPath=%s", c.controlPath),
			"-o", "ControlMaster=no",
		)
	}

	// Add identity file if specified
	if c.identityFile != "" {
		args = append(args, "-i", c.identityFile)
	}

	// Add known hosts file if specified
	if c.knownHostsFile != "" {
		args = append(args, "-o", fmt.Sprintf("UserKnownHostsFile=%s", c.knownHostsFile))
	}

	// Add proxy command if specified
	if c.proxyCommand != "" {
		args = append(args, "-o", fmt.Sprintf("ProxyCommand=%s", c.proxyCommand))
	}

	// Add extra options
	for _, opt := range c.extraOptions {
		args = append(args, "-o", opt)
	}

	return args
}

// setupMultiplexing establishes an SSH master connection for multiplexing.
func (c *Client) setupMultiplexing() (string, error) {
	controlDir := c.getControlSocketDir()

	if err := os.MkdirAll(controlDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create control directory: %w", err)
	}

	// Create a short hash of the host to avoid Unix socket path length limits
	// Unix domain sockets have a path length limit (typically 104-108 chars)
	hash := sha256.Sum256([]byte(c.addr))
	hostHash := hex.EncodeToString(hash[:])[:12]

	socketName := fmt.Sprintf("ssh-%s", hostHash)
	controlPath := filepath.Join(controlDir, socketName)

	c.logger.Debug().
		Str("host", c.addr).
		Str("controlPath", controlPath).
		Msg("Setting up SSH multiplexing")

	args := []string{
		"-o", "ControlMaster=auto",
		"-o", fmt.Sprintf("ControlPath=%s", controlPath),
		"-o", "ControlPersist=30s",
		"-o", fmt.Sprintf("ConnectTimeout=%d", connectTimeout),
		"-o", "ServerAliveInterval=15",
		"-o", "ServerAliveCountMax=3",
		"-o", "BatchMode=yes",
	}

	if c.identityFile != "" {
		args = append(args, "-i", c.identityFile)
	}

	if c.knownHostsFile != "" {
		args = append(args, "-o", fmt.Sprintf("UserKnownHostsFile=%s", c.knownHostsFile))
	}

	if c.proxyCommand != "" {
		args = append(args, "-o", fmt.Sprintf("ProxyCommand=%s", c.proxyCommand))
	}

	for _, opt := range c.extraOptions {
		args = append(args, "-o", opt)
	}

	args = append(args,
		"-f", // Run in background
		"-N", // Don't execute a remote command
		c.addr,
	)

	cmd := exec.Command("ssh", args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to establish SSH master connection: %w (stderr: %s)", err, stderr.String())
	}

	c.logger.Debug().Str("host", c.addr).Msg("SSH master connection established")
	return controlPath, nil
}

// getControlSocketDir returns the directory to use for SSH control sockets.
func (c *Client) getControlSocketDir() string {
	// Try XDG_RUNTIME_DIR first (preferred for runtime sockets)
	// Keep path short to avoid Unix socket path length limits (104-108 chars)
	if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
		return filepath.Join(xdgRuntime, "quicbench")
	}

	// Fall back to XDG_CONFIG_HOME or ~/.config
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		if home := os.Getenv("HOME"); home != "" {
			configHome = filepath.Join(home, ".config")
		}
	}

	if configHome != "" {
		return filepath.Join(configHome, "quicbench")
	}

	// Last resort: use temp directory
	return filepath.Join(os.TempDir(), "quicbench")
}
