package integration

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/distantorigin/vpklink"
	testutil "github.com/distantorigin/vpklink/testing"
)

// TestFreshInstall_CompleteFlow walks the first-run path: nothing
// installed, check, install, verify on disk, re-check.
func TestFreshInstall_CompleteFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := SetupTestEnvironment(t)
	ctx := context.Background()

	// Step 1: an empty host reports not-installed.
	status, err := env.Linker.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Code != vpklink.StatusNotInstalled {
		t.Fatalf("initial status = %v, want not-installed", status.Code)
	}
	if status.Action != vpklink.ActionInstall {
		t.Errorf("initial action = %v, want install", status.Action)
	}

	// Step 2: the update check sees a release and no local install.
	hasNewer, hasLocal, err := env.Linker.CheckForUpdate(ctx)
	if err != nil {
		t.Fatalf("CheckForUpdate() error = %v", err)
	}
	if !hasNewer || hasLocal {
		t.Fatalf("CheckForUpdate() = (%v, %v), want (true, false)", hasNewer, hasLocal)
	}

	// Step 3: install.
	var sawProgress bool
	result, err := env.Linker.Install(ctx, func(done, total int64, bps float64) {
		sawProgress = true
	})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if !result.Success || result.AlreadyUpToDate {
		t.Fatalf("Install() = %+v, want fresh success", result)
	}
	if !sawProgress {
		t.Error("Install() never reported progress")
	}

	// Step 4: the package and its hash record are on disk.
	testutil.AssertFileExists(t, filepath.Join(env.HostRoot, "vpklink", "pak01_dir.vpk"))
	testutil.AssertFileExists(t, env.Config.HashRecordPath())

	data, err := os.ReadFile(filepath.Join(env.HostRoot, "vpklink", "pak01_dir.vpk"))
	if err != nil {
		t.Fatalf("failed to read installed package: %v", err)
	}
	if string(data) != "vpk payload v1" {
		t.Errorf("installed package content = %q, want %q", data, "vpk payload v1")
	}

	// Step 5: re-check reports up to date, re-install is a no-op.
	hasNewer, hasLocal, err = env.Linker.CheckForUpdate(ctx)
	if err != nil {
		t.Fatalf("CheckForUpdate() error = %v", err)
	}
	if hasNewer || !hasLocal {
		t.Fatalf("post-install CheckForUpdate() = (%v, %v), want (false, true)", hasNewer, hasLocal)
	}

	result, err = env.Linker.Install(ctx, nil)
	if err != nil {
		t.Fatalf("second Install() error = %v", err)
	}
	if !result.AlreadyUpToDate {
		t.Error("second Install() should report already up to date")
	}

	// Step 6: installed but not yet linked.
	status, err = env.Linker.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Code != vpklink.StatusDisabled {
		t.Errorf("post-install status = %v, want disabled", status.Code)
	}
}

// TestInstall_MirrorFallback verifies the ordered-mirror contract: a
// failing mirror is retried, then abandoned for the next one.
func TestInstall_MirrorFallback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := SetupTestEnvironment(t)
	env.Remote.SetError("/broken.sha1", http.StatusInternalServerError, "mirror down")
	env.Config.HashMirrors = []string{
		env.Remote.URL + "/broken.sha1",
		env.Remote.URL + "/pack.sha1",
	}

	hasNewer, _, err := env.Linker.CheckForUpdate(context.Background())
	if err != nil {
		t.Fatalf("CheckForUpdate() error = %v", err)
	}
	if !hasNewer {
		t.Error("CheckForUpdate() should succeed through the second mirror")
	}

	// The broken mirror got the full retry budget before fallback.
	if got := env.Remote.GetRequestCount("/broken.sha1"); got != env.Config.RetryAttempts {
		t.Errorf("broken mirror request count = %d, want %d", got, env.Config.RetryAttempts)
	}
	if got := env.Remote.GetRequestCount("/pack.sha1"); got != 1 {
		t.Errorf("healthy mirror request count = %d, want 1", got)
	}
}

// TestInstall_CorruptDownloadRejected verifies that a hash mismatch
// discards the download before anything reaches the host.
func TestInstall_CorruptDownloadRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := SetupTestEnvironment(t)
	env.Remote.ServeHash("/pack.sha1", strings.Repeat("0", 40))

	_, err := env.Linker.Install(context.Background(), nil)
	if err == nil {
		t.Fatal("Install() should fail on hash mismatch")
	}
	if !vpklink.IsIntegrityMismatch(err) {
		t.Errorf("Install() error = %v, want integrity mismatch", err)
	}

	testutil.AssertFileNotExists(t, filepath.Join(env.HostRoot, "vpklink", "pak01_dir.vpk"))
	testutil.AssertFileNotExists(t, env.Config.HashRecordPath())
}

// TestInstall_AllMirrorsDown verifies the fatal-network error surfaces
// once every source is exhausted.
func TestInstall_AllMirrorsDown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := SetupTestEnvironment(t)
	env.Remote.SetError("/pack.sha1", http.StatusServiceUnavailable, "origin down")

	_, _, err := env.Linker.CheckForUpdate(context.Background())
	if err == nil {
		t.Fatal("CheckForUpdate() should fail with every mirror down")
	}
	if !vpklink.IsNetworkFatal(err) {
		t.Errorf("CheckForUpdate() error = %v, want all-mirrors-failed", err)
	}
}
