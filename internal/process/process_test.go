package process

import (
	"path/filepath"
	"testing"
	"time"
)

func TestIsRunningInDir_NonexistentDir(t *testing.T) {
	// A directory that does not exist cannot host a running process.
	if IsRunningInDir(filepath.Join(t.TempDir(), "nope"), "game.exe") {
		t.Error("IsRunningInDir() = true for a nonexistent directory")
	}
}

func TestIsRunning_ImprobableName(t *testing.T) {
	if IsRunning("vpklink-test-no-such-process-000.exe") {
		t.Error("IsRunning() = true for an improbable process name")
	}
}

func TestWaitForExit_AlreadyExited(t *testing.T) {
	start := time.Now()
	ok := WaitForExit("vpklink-test-no-such-process-000.exe", 5*time.Second)
	elapsed := time.Since(start)

	if !ok {
		t.Error("WaitForExit() = false for a process that never existed")
	}
	if elapsed > 2*time.Second {
		t.Errorf("WaitForExit() took %v for an absent process, want immediate return", elapsed)
	}
}

func TestWaitForExit_ZeroTimeout(t *testing.T) {
	// Zero timeout must not hang regardless of outcome.
	done := make(chan bool, 1)
	go func() {
		done <- WaitForExit("anything.exe", 0)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForExit() with zero timeout did not return")
	}
}
