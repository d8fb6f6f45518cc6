package session

import (
	"strings"
	"testing"
)

func TestBuildLaunchCommand(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		contains []string
	}{
		{
			name: "server launch",
			cmd:  buildLaunchCommand("~/quic_tests", "t1", 1, "/opt/quic/server", "--port 4433", "t1_server.log"),
			contains: []string{
				"cd ~/quic_tests &&",
				"nohup ./run_test.sh t1 1 /opt/quic/server --port 4433",
				"> t1_server.log 2>&1 < /dev/null &",
			},
		},
		{
			name: "client group launch",
			cmd:  buildLaunchCommand("~/quic_tests", "t1_client0", 8, "/opt/quic/client", "--connect 10.0.0.1:4433", "t1_client0.log"),
			contains: []string{
				"./run_test.sh t1_client0 8 /opt/quic/client",
				"--connect 10.0.0.1:4433",
			},
		},
		{
			name: "argument with shell metacharacters is quoted",
			cmd:  buildLaunchCommand("~/quic_tests", "t1", 1, "/opt/quic/server", "--label a;b", "t1.log"),
			contains: []string{
				"'a;b'",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, want := range tt.contains {
				if !strings.Contains(tt.cmd, want) {
					t.Errorf("command %q does not contain %q", tt.cmd, want)
				}
			}
		})
	}
}

func TestStopCommands(t *testing.T) {
	if got := buildStopCommand("t1_client0"); got != "pkill -f t1_client0" {
		t.Errorf("buildStopCommand() = %q", got)
	}
	if got := buildInterruptCommand("t1"); got != "pkill -INT -f t1" {
		t.Errorf("buildInterruptCommand() = %q", got)
	}
	if got := buildForceKillCommand("server"); got != "pkill -KILL -f server" {
		t.Errorf("buildForceKillCommand() = %q", got)
	}
}

func TestResultsPattern(t *testing.T) {
	got := resultsPattern("~/quic_tests", "t1_client2")
	want := "~/quic_tests/results/t1_client2_*"
	if got != want {
		t.Errorf("resultsPattern() = %q, want %q", got, want)
	}
}

func TestClientGroupName(t *testing.T) {
	if got := clientGroupName("multicast_test", 3); got != "multicast_test_client3" {
		t.Errorf("clientGroupName() = %q", got)
	}
}
