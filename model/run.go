package model

import "time"

// RecordFile is the name of the run record written into each session
// directory.
const RecordFile = "run.json"

// Record describes one completed benchmark session. It is written as
// JSON into the session's local results directory so the external
// comparison tooling (and the `list` command) can index runs without
// re-parsing summaries.
type Record struct {
	// Unique ID for this session (UUID)
	ID string `json:"id"`
	// Benchmark test name from the config
	TestName string `json:"test_name"`
	// 1-based iteration index within the run
	Iteration int `json:"iteration"`
	// Total iterations configured for the run
	Iterations int `json:"iterations"`
	// Timestamp when the session started
	Timestamp time.Time `json:"timestamp"`
	// Duration of the session end-to-end
	Duration time.Duration `json:"duration"`
	// Exit code of the session (0 = Complete, 1 = Failed)
	ExitCode int `json:"exit_code"`
	// Benchmark topology
	Topology Topology `json:"topology"`
	// Artifacts collected into the session directory
	Artifacts []Artifact `json:"artifacts,omitempty"`
	// Targets whose results could not be collected
	MissingTargets []string `json:"missing_targets,omitempty"`
}

// Topology records the fleet a session ran against.
type Topology struct {
	// Server target as "user@host"
	ServerVM string `json:"server_vm"`
	// Ordered client targets as "user@host"
	ClientVMs []string `json:"client_vms"`
	// Client processes launched per client target
	ClientsPerVM int `json:"clients_per_vm"`
	// ClientsPerVM * len(ClientVMs)
	TotalClients int `json:"total_clients"`
}

// ArtifactType identifies the type of artifact
type ArtifactType uint8

const (
	ArtifactTypeConfigCopy ArtifactType = iota
	ArtifactTypeServerResults
	ArtifactTypeClientResults
	ArtifactTypeServerAnalysis
	ArtifactTypeSummary
)

// Artifact represents a file or directory in the session directory.
type Artifact struct {
	Type ArtifactType `json:"type"`
	// Path relative to the session directory
	File string `json:"file"`
}
