package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteSummary(t *testing.T) {
	cfg := testConfig()
	cfg.ClientVMs = []string{"perf@10.0.0.2", "perf@10.0.0.3"}
	cfg.ClientsPerVM = 8

	server := &fakeTarget{addr: "perf@10.0.0.1"}
	s := newTestSession(t, cfg, server,
		&fakeTarget{addr: "perf@10.0.0.2"},
		&fakeTarget{addr: "perf@10.0.0.3"})
	require.NoError(t, s.prepareLocalDir())

	// One collected client with a test_config artifact, one missing.
	clientDir := filepath.Join(s.LocalDir(), "client_vm0")
	require.NoError(t, os.MkdirAll(clientDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(clientDir, remoteConfigFile), []byte("streams: 4\n"), 0644))

	col := collectResult{
		clientDirs: []string{clientDir, ""},
		missing:    []string{"perf@10.0.0.3"},
	}

	s.writeSummary(col)

	summary, err := os.ReadFile(filepath.Join(s.LocalDir(), summaryFile))
	require.NoError(t, err)
	text := string(summary)

	require.Contains(t, text, "Test Summary: t1")
	require.Contains(t, text, "Server VM: perf@10.0.0.1")
	require.Contains(t, text, "Client VMs: 2")
	require.Contains(t, text, "Clients per VM: 8")
	require.Contains(t, text, "Total Clients: 16")
	require.Contains(t, text, "--- Client VM 0 (perf@10.0.0.2) ---")
	require.Contains(t, text, "streams: 4")
	require.Contains(t, text, "No results collected from perf@10.0.0.3")

	// No server results collected: the analysis artifact still exists
	// with a placeholder.
	analysis, err := os.ReadFile(filepath.Join(s.LocalDir(), analysisFile))
	require.NoError(t, err)
	require.Contains(t, string(analysis), "Server analysis unavailable")
}

func TestWriteSummaryOmitsMissingExcerpt(t *testing.T) {
	server := &fakeTarget{addr: "perf@10.0.0.1"}
	s := newTestSession(t, testConfig(), server, &fakeTarget{addr: "perf@10.0.0.2"})
	require.NoError(t, s.prepareLocalDir())

	// Collected directory without a test_config artifact: the excerpt
	// is silently omitted, not an error.
	clientDir := filepath.Join(s.LocalDir(), "client_vm0")
	require.NoError(t, os.MkdirAll(clientDir, 0755))

	col := collectResult{clientDirs: []string{clientDir}}
	artifacts := s.writeSummary(col)

	summary, err := os.ReadFile(filepath.Join(s.LocalDir(), summaryFile))
	require.NoError(t, err)
	require.Contains(t, string(summary), "--- Client VM 0 (perf@10.0.0.2) ---")
	require.NotContains(t, string(summary), "No results collected")

	// Artifact list reflects what exists.
	var files []string
	for _, a := range artifacts {
		files = append(files, a.File)
	}
	require.Contains(t, files, summaryFile)
	require.Contains(t, files, analysisFile)
	require.Contains(t, files, "client_vm0")
}
