package session

// command.go contains builders for the shell commands the coordinator
// sends to targets: wrapper launches, stop signals and result
// directory patterns. Everything assembled from config-derived strings
// goes through shell escaping.

import (
	"fmt"
	"strconv"
	"strings"

	"al.essio.dev/pkg/shellescape"
)

// Collaborator scripts uploaded to every target. The wrapper starts a
// workload under resource sampling: run_test.sh <name> <count> <binary>
// [args...]. The stop script signals a workload group by name. The
// analyzer turns a raw result directory into a summary and also runs
// locally against collected results.
const (
	wrapperScript  = "run_test.sh"
	stopScript     = "stop_test.sh"
	analyzerScript = "analyze_results.py"
)

// CollaboratorScripts lists the scripts uploaded to each target, in
// upload order.
func CollaboratorScripts() []string {
	return []string{wrapperScript, stopScript, analyzerScript}
}

// buildLaunchCommand builds the detached wrapper invocation for one
// workload group. nohup plus backgrounding keeps the workload alive
// after the triggering SSH session disconnects; the launch succeeding
// only means the remote shell accepted the command.
func buildLaunchCommand(remoteDir, name string, count int, binary, argStr, logFile string) string {
	parts := []string{
		"./" + wrapperScript,
		shellescape.Quote(name),
		strconv.Itoa(count),
		shellescape.Quote(binary),
	}
	for _, arg := range strings.Fields(argStr) {
		parts = append(parts, shellescape.Quote(arg))
	}

	return fmt.Sprintf("cd %s && nohup %s > %s 2>&1 < /dev/null &",
		remoteDir, strings.Join(parts, " "), shellescape.Quote(logFile))
}

// buildStopCommand builds a graceful pattern-match stop (SIGTERM).
func buildStopCommand(pattern string) string {
	return fmt.Sprintf("pkill -f %s", shellescape.Quote(pattern))
}

// buildInterruptCommand builds an interrupt-class stop scoped to
// pattern, used for the server so other tests sharing the host are
// left alone.
func buildInterruptCommand(pattern string) string {
	return fmt.Sprintf("pkill -INT -f %s", shellescape.Quote(pattern))
}

// buildForceKillCommand builds the non-catchable escalation kill.
func buildForceKillCommand(pattern string) string {
	return fmt.Sprintf("pkill -KILL -f %s", shellescape.Quote(pattern))
}

// resultsPattern is the remote glob for result directories written by
// the wrapper under a workload group name.
func resultsPattern(remoteDir, name string) string {
	return fmt.Sprintf("%s/results/%s_*", remoteDir, name)
}

// clientGroupName names the wrapper invocation for one client target.
// Index is the target's position in the configured client list.
func clientGroupName(testName string, index int) string {
	return fmt.Sprintf("%s_client%d", testName, index)
}
