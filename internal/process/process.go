// Package process detects whether the host game is running. Patching
// control files under a live game invites the game overwriting them on
// exit, so callers check here before applying changes.
//
// Detection shells out to the Windows process tooling; on platforms
// where those tools are absent the host is reported as not running.
package process

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// IsRunning reports whether a process with the given image name exists.
func IsRunning(processName string) bool {
	cmd := exec.Command("tasklist", "/FI", fmt.Sprintf("IMAGENAME eq %s", processName), "/NH")
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(output)), strings.ToLower(processName))
}

// IsRunningInDir reports whether the named executable is running from
// the given directory. A host executable of the same name running from
// elsewhere (another install) does not count.
func IsRunningInDir(dir, exeName string) bool {
	expectedPath := filepath.Join(dir, exeName)
	expectedPath = strings.ToLower(filepath.Clean(expectedPath))

	cmd := exec.Command("wmic", "process", "where",
		fmt.Sprintf("name='%s'", exeName), "get", "ExecutablePath", "/format:list")
	output, err := cmd.Output()
	if err != nil {
		return false
	}

	// Output format is "ExecutablePath=C:\path\to\game.exe" per line.
	lines := strings.Split(string(output), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "ExecutablePath=") {
			processPath := strings.TrimPrefix(line, "ExecutablePath=")
			processPath = strings.ToLower(filepath.Clean(processPath))

			if processPath == expectedPath {
				return true
			}
		}
	}

	return false
}

// WaitForExit polls until the named process is no longer running.
// Returns true if the process exited, false on timeout.
func WaitForExit(processName string, timeout time.Duration) bool {
	start := time.Now()
	for time.Since(start) < timeout {
		if !IsRunning(processName) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
