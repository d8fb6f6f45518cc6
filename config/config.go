package config

// Package config loads and validates the benchmark definition file.
// The file is YAML: scalar keys plus one list of client hosts. A
// config fault is the only error class that aborts a run before any
// remote side effect has happened, so validation here is strict.

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerIPToken is the placeholder in client_args that the coordinator
// replaces with the server's address before any client is launched.
const ServerIPToken = "SERVER_IP"

// DefaultRemoteDir is the working directory expected on every target.
const DefaultRemoteDir = "~/quic_tests"

// Config is the materialized benchmark definition. It is immutable for
// the lifetime of a run; sessions borrow it read-only.
type Config struct {
	// ServerVM is the server target as "user@host".
	ServerVM string `yaml:"server_vm"`
	// ClientVMs is the ordered, non-empty client target list.
	ClientVMs []string `yaml:"client_vms"`
	// ClientsPerVM is the number of client processes launched per
	// client target. Defaults to 1.
	ClientsPerVM int `yaml:"clients_per_vm"`
	// Iterations is the number of full sessions to run. Defaults to 1.
	Iterations int `yaml:"iterations"`
	// TestName namespaces result directories on every host and must be
	// filesystem-safe.
	TestName string `yaml:"test_name"`
	// ServerBinary and ClientBinary are paths on the respective
	// remote hosts.
	ServerBinary string `yaml:"server_binary"`
	ClientBinary string `yaml:"client_binary"`
	// ServerArgs and ClientArgs are opaque argument strings passed to
	// the remote wrapper. ClientArgs may contain ServerIPToken.
	ServerArgs string `yaml:"server_args"`
	ClientArgs string `yaml:"client_args"`
	// MaxTestDuration bounds one session in seconds; 0 means unbounded.
	MaxTestDuration int `yaml:"max_test_duration"`
	// RemoteDir is the working directory on every target holding the
	// uploaded collaborator scripts. Defaults to DefaultRemoteDir.
	RemoteDir string `yaml:"remote_dir"`

	// Path the config was loaded from, kept so each session can
	// preserve a copy next to its collected results.
	Path string `yaml:"-"`
}

// Load reads a benchmark definition file, applies defaults and
// validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.Path = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ClientsPerVM == 0 {
		c.ClientsPerVM = 1
	}
	if c.Iterations == 0 {
		c.Iterations = 1
	}
	if c.RemoteDir == "" {
		c.RemoteDir = DefaultRemoteDir
	}
}

// Validate enforces the fatal configuration-fault class.
func (c *Config) Validate() error {
	if c.ServerVM == "" {
		return fmt.Errorf("server_vm is required")
	}
	if len(c.ClientVMs) == 0 {
		return fmt.Errorf("client_vms must list at least one host")
	}
	for i, vm := range c.ClientVMs {
		if strings.TrimSpace(vm) == "" {
			return fmt.Errorf("client_vms entry %d is empty", i)
		}
	}
	if c.ClientsPerVM < 1 {
		return fmt.Errorf("clients_per_vm must be >= 1, got %d", c.ClientsPerVM)
	}
	if c.Iterations < 1 {
		return fmt.Errorf("iterations must be >= 1, got %d", c.Iterations)
	}
	if c.MaxTestDuration < 0 {
		return fmt.Errorf("max_test_duration must be >= 0, got %d", c.MaxTestDuration)
	}
	if c.TestName == "" {
		return fmt.Errorf("test_name is required")
	}
	if !filesystemSafe(c.TestName) {
		return fmt.Errorf("test_name %q contains characters unsafe for directory names", c.TestName)
	}
	if c.ServerBinary == "" {
		return fmt.Errorf("server_binary is required")
	}
	if c.ClientBinary == "" {
		return fmt.Errorf("client_binary is required")
	}
	return nil
}

// TotalClients is the number of client processes one session launches.
func (c *Config) TotalClients() int {
	return c.ClientsPerVM * len(c.ClientVMs)
}

// ResolvedClientArgs returns ClientArgs with every occurrence of
// ServerIPToken replaced by the address portion of server_vm. Called
// exactly once per session, before any client launch.
func (c *Config) ResolvedClientArgs() string {
	return strings.ReplaceAll(c.ClientArgs, ServerIPToken, HostPart(c.ServerVM))
}

// HostPart returns the address portion of a "user@host" target
// identity. A target without a login principal is returned unchanged.
func HostPart(target string) string {
	if i := strings.LastIndex(target, "@"); i >= 0 {
		return target[i+1:]
	}
	return target
}

func filesystemSafe(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return false
		}
	}
	return true
}
