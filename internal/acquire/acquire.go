// Package acquire downloads the content package, verifies its published
// hash, extracts it into an isolated staging directory, and commits the
// staged files into the install directory through a single transaction.
package acquire

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cavaliergopher/grab/v3"
	"go.uber.org/zap"

	"github.com/distantorigin/vpklink/internal/fstx"
	"github.com/distantorigin/vpklink/internal/paths"
	"github.com/distantorigin/vpklink/internal/record"
)

var (
	// ErrAllMirrorsFailed means every source in the mirror list was
	// exhausted for one logical download.
	ErrAllMirrorsFailed = errors.New("all download sources failed")

	// ErrIntegrityMismatch means the downloaded file's hash did not
	// match the published hash. Nothing is committed after this error.
	ErrIntegrityMismatch = errors.New("downloaded file hash does not match published hash")
)

// hashRecordKey is the key under which the installed package hash is
// stored in the local key=value record.
const hashRecordKey = "hash"

// Manifest describes one package to acquire. Immutable for the duration
// of an operation once fetched.
type Manifest struct {
	RemoteHash  string
	DownloadURL string
}

// Progress reports download progress: bytes so far, total bytes (may be
// zero when unknown), and current transfer speed.
type Progress func(bytesComplete, totalBytes int64, bytesPerSecond float64)

// RetryPolicy bounds retries for transient HTTP failures against a
// single source.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy retries transient failures up to 3 attempts per
// source with a fixed delay.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Delay: 2 * time.Second}

// Acquirer resolves, downloads, verifies, and stages the content
// package. The HTTP client is injected so tests can point it at fake
// mirrors.
type Acquirer struct {
	httpClient *http.Client
	grabClient *grab.Client
	retry      RetryPolicy
	logger     *zap.Logger
}

// New creates an Acquirer. A nil httpClient gets a pooled default.
func New(httpClient *http.Client, retry RetryPolicy, logger *zap.Logger) *Acquirer {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if retry.Attempts <= 0 {
		retry = DefaultRetryPolicy
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	grabClient := grab.NewClient()
	grabClient.HTTPClient = httpClient

	return &Acquirer{
		httpClient: httpClient,
		grabClient: grabClient,
		retry:      retry,
		logger:     logger,
	}
}

// CheckForUpdate compares the remote hash against the local hash
// record. hasLocalInstall is true iff a local record exists; with no
// record, hasNewer is unconditionally true so a first-time install
// always looks new. Hash comparison is case-insensitive.
func (a *Acquirer) CheckForUpdate(localHashFile, remoteHash string) (hasNewer, hasLocalInstall bool) {
	values, err := record.Read(localHashFile)
	if err != nil {
		return true, false
	}

	localHash, ok := values[hashRecordKey]
	if !ok || localHash == "" {
		return true, false
	}

	return !strings.EqualFold(localHash, remoteHash), true
}

// DownloadAndStage downloads the package described by manifest,
// verifies its SHA-1 content hash against the published hash, and
// extracts the archive into an isolated staging directory. The caller
// owns the returned directory and should remove it when done.
func (a *Acquirer) DownloadAndStage(ctx context.Context, manifest Manifest, progress Progress) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	archivePath, err := a.downloadToTemp(ctx, manifest.DownloadURL, progress)
	if err != nil {
		return "", err
	}
	defer os.Remove(archivePath)

	actualHash, err := hashFileSHA1(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to hash download: %w", err)
	}
	if !strings.EqualFold(actualHash, manifest.RemoteHash) {
		a.logger.Error("integrity check failed",
			zap.String("expected", strings.ToLower(manifest.RemoteHash)),
			zap.String("actual", actualHash))
		return "", fmt.Errorf("%w (expected %s, got %s)", ErrIntegrityMismatch,
			strings.ToLower(manifest.RemoteHash), actualHash)
	}

	stagingDir, err := os.MkdirTemp("", "vpklink-stage-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	if err := extractZip(archivePath, stagingDir); err != nil {
		_ = os.RemoveAll(stagingDir)
		return "", fmt.Errorf("failed to extract package: %w", err)
	}

	a.logger.Info("package staged",
		zap.String("staging_dir", stagingDir),
		zap.String("hash", actualHash))
	return stagingDir, nil
}

// StageArchive extracts an in-memory archive into an isolated staging
// directory, the same shape DownloadAndStage produces. Used for
// offline installs from an archive bundled into the binary.
func (a *Acquirer) StageArchive(data []byte) (string, error) {
	tempFile, err := os.CreateTemp("", "vpklink-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath)

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return "", fmt.Errorf("failed to write archive: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	stagingDir, err := os.MkdirTemp("", "vpklink-stage-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	if err := extractZip(tempPath, stagingDir); err != nil {
		_ = os.RemoveAll(stagingDir)
		return "", fmt.Errorf("failed to extract package: %w", err)
	}

	return stagingDir, nil
}

// CommitStaged copies every staged file into the install directory as
// one transaction, then persists the new local hash record. The hash
// record is only written after the commit so a failed commit never
// claims the new version is installed.
func (a *Acquirer) CommitStaged(ctx context.Context, stagingDir, installDir, localHashFile, remoteHash string) error {
	tx := fstx.New(a.logger)
	tx.Add(fstx.CreateDir(installDir))

	err := filepath.Walk(stagingDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(stagingDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		dst := filepath.Join(installDir, rel)
		if _, err := paths.Within(installDir, dst); err != nil {
			return err
		}

		if info.IsDir() {
			tx.Add(fstx.CreateDir(dst))
		} else {
			tx.Add(fstx.Copy(path, dst, true))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to enumerate staged files: %w", err)
	}

	if err := tx.Execute(ctx); err != nil {
		return fmt.Errorf("failed to commit staged files: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	values := map[string]string{hashRecordKey: strings.ToLower(remoteHash)}
	if err := record.Write(localHashFile, values); err != nil {
		return fmt.Errorf("failed to persist hash record: %w", err)
	}

	return nil
}

// downloadToTemp downloads a single URL to a temp file with progress
// and speed reporting. The grab client resumes nothing; every download
// starts clean.
func (a *Acquirer) downloadToTemp(ctx context.Context, url string, progress Progress) (string, error) {
	tempFile, err := os.CreateTemp("", "vpklink-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	if err := tempFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	req, err := grab.NewRequest(tempPath, url)
	if err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.NoResume = true
	req = req.WithContext(ctx)

	resp := a.grabClient.Do(req)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for done := false; !done; {
		select {
		case <-ticker.C:
			if progress != nil {
				progress(resp.BytesComplete(), resp.Size(), resp.BytesPerSecond())
			}
		case <-resp.Done:
			done = true
		}
	}

	if err := resp.Err(); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("download failed: %w", err)
	}
	if progress != nil {
		progress(resp.BytesComplete(), resp.Size(), resp.BytesPerSecond())
	}

	return tempPath, nil
}

func hashFileSHA1(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha1.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
