package session

// summary.go assembles the per-session report: analyzer output for the
// collected server results plus a human-readable summary combining
// topology and per-target excerpts.

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/quicbench/quicbench/model"
)

const (
	analysisFile = "server_analysis.txt"
	summaryFile  = "test_summary.txt"

	// Written by the remote wrapper into each result directory.
	remoteConfigFile = "test_config.txt"
)

// writeSummary produces server_analysis.txt and test_summary.txt in
// the session directory and returns the artifact list for the run
// record. Summary generation is best-effort throughout; a missing
// analyzer or missing per-target data degrades the report, never the
// session.
func (s *Session) writeSummary(col collectResult) []model.Artifact {
	analysis := s.runAnalyzer(col.serverDir)

	analysisPath := filepath.Join(s.localDir, analysisFile)
	if err := os.WriteFile(analysisPath, []byte(analysis), 0644); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write analysis artifact")
	}

	summary := s.composeSummary(col, analysis)
	summaryPath := filepath.Join(s.localDir, summaryFile)
	if err := os.WriteFile(summaryPath, []byte(summary), 0644); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write summary artifact")
	}

	s.logger.Info().Str("summary", summaryPath).Msg("Summary written")

	artifacts := []model.Artifact{
		{Type: model.ArtifactTypeConfigCopy, File: "test_config.yaml"},
		{Type: model.ArtifactTypeServerAnalysis, File: analysisFile},
		{Type: model.ArtifactTypeSummary, File: summaryFile},
	}
	if col.serverDir != "" {
		artifacts = append(artifacts, model.Artifact{Type: model.ArtifactTypeServerResults, File: "server"})
	}
	for i, dir := range col.clientDirs {
		if dir != "" {
			artifacts = append(artifacts, model.Artifact{
				Type: model.ArtifactTypeClientResults,
				File: fmt.Sprintf("client_vm%d", i),
			})
		}
	}
	return artifacts
}

// runAnalyzer invokes the external result analyzer against the
// collected server subtree and captures its output. Unavailability of
// the analyzer or of server results yields a placeholder.
func (s *Session) runAnalyzer(serverDir string) string {
	if serverDir == "" {
		return "Server analysis unavailable: no server results were collected\n"
	}

	analyzer := filepath.Join(s.scriptsDir, analyzerScript)
	if _, err := os.Stat(analyzer); err != nil {
		return fmt.Sprintf("Server analysis unavailable: analyzer not found at %s\n", analyzer)
	}

	cmd := exec.Command("python3", analyzer, serverDir)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	s.logger.Info().Str("analyzer", analyzer).Str("dir", serverDir).Msg("Running result analyzer")
	if err := cmd.Run(); err != nil {
		s.logger.Warn().Err(err).Msg("Analyzer failed")
		return fmt.Sprintf("Server analysis unavailable: %v\n%s", err, out.String())
	}

	return out.String()
}

// composeSummary builds the final human-readable report.
func (s *Session) composeSummary(col collectResult, analysis string) string {
	var b strings.Builder

	fmt.Fprintln(&b, "==========================================")
	fmt.Fprintf(&b, "Test Summary: %s\n", s.cfg.TestName)
	fmt.Fprintf(&b, "Generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintln(&b, "==========================================")
	fmt.Fprintln(&b)
	if s.cfg.Iterations > 1 {
		fmt.Fprintf(&b, "Iteration: %d of %d\n", s.iteration, s.cfg.Iterations)
	}
	fmt.Fprintf(&b, "Server VM: %s\n", s.server.Addr())
	fmt.Fprintf(&b, "Client VMs: %d\n", len(s.clients))
	fmt.Fprintf(&b, "Clients per VM: %d\n", s.cfg.ClientsPerVM)
	fmt.Fprintf(&b, "Total Clients: %d\n", s.cfg.TotalClients())
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "--- Server Analysis ---")
	fmt.Fprint(&b, analysis)
	if !strings.HasSuffix(analysis, "\n") {
		fmt.Fprintln(&b)
	}

	for i, t := range s.clients {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "--- Client VM %d (%s) ---\n", i, t.Addr())

		if col.clientDirs[i] == "" || slices.Contains(col.missing, t.Addr()) {
			fmt.Fprintf(&b, "No results collected from %s\n", t.Addr())
			continue
		}

		excerpt, err := os.ReadFile(filepath.Join(col.clientDirs[i], remoteConfigFile))
		if err != nil {
			// Collected but without a test_config artifact; omitted.
			continue
		}
		b.Write(excerpt)
		if !bytes.HasSuffix(excerpt, []byte("\n")) {
			fmt.Fprintln(&b)
		}
	}

	return b.String()
}
