// Package selfupdate replaces the running vpklink binary with the
// latest published release.
package selfupdate

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/distantorigin/vpklink/internal/acquire"
)

// Config holds the configuration for self-update.
type Config struct {
	ReleasesURL    string
	CurrentVersion string
	// ExecutablePath overrides os.Executable, for tests.
	ExecutablePath string
}

// binaryAssetSuffix is the release asset this platform downloads.
func binaryAssetSuffix() string {
	if runtime.GOOS == "windows" {
		return "vpklink.exe"
	}
	return "vpklink-" + runtime.GOOS + "-" + runtime.GOARCH
}

// Check queries the releases API and, when a newer version is
// published, downloads it and swaps it in over the running executable.
// Returns true when the binary was replaced; the caller decides whether
// to restart.
func Check(ctx context.Context, acquirer *acquire.Acquirer, cfg Config, logger *zap.Logger) (bool, error) {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	tag, assetURL, err := acquirer.ResolveBinaryAsset(ctx, cfg.ReleasesURL, binaryAssetSuffix())
	if err != nil {
		return false, fmt.Errorf("failed to resolve release: %w", err)
	}

	remoteVersion := strings.TrimPrefix(tag, "v")
	if remoteVersion == "" || remoteVersion == strings.TrimPrefix(cfg.CurrentVersion, "v") {
		return false, nil
	}

	exePath := cfg.ExecutablePath
	if exePath == "" {
		exePath, err = os.Executable()
		if err != nil {
			return false, fmt.Errorf("failed to locate executable: %w", err)
		}
	}

	logger.Info("newer release found",
		zap.String("current", cfg.CurrentVersion),
		zap.String("remote", remoteVersion))

	data, err := acquirer.FetchFirst(ctx, []string{assetURL})
	if err != nil {
		return false, fmt.Errorf("failed to download release: %w", err)
	}

	if err := replaceExecutable(exePath, data); err != nil {
		return false, err
	}

	logger.Info("binary replaced", zap.String("path", exePath))
	return true, nil
}

// replaceExecutable swaps the new binary in via the rename dance: the
// running binary moves aside to .old (a running image can be renamed
// but not overwritten), the new one takes its place, and a failure
// moves the old one back.
func replaceExecutable(exePath string, data []byte) error {
	oldExe := exePath + ".old"
	_ = os.Remove(oldExe)

	if err := os.Rename(exePath, oldExe); err != nil {
		return fmt.Errorf("failed to move current binary aside: %w", err)
	}

	if err := os.WriteFile(exePath, data, 0755); err != nil {
		_ = os.Rename(oldExe, exePath)
		return fmt.Errorf("failed to write new binary: %w", err)
	}

	return nil
}

// CleanupOld removes the .old binary left behind by a previous update.
// Called at startup; failures are ignored, the file will go next time.
func CleanupOld() {
	exePath, err := os.Executable()
	if err != nil {
		return
	}
	_ = os.Remove(exePath + ".old")
}
