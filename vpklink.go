// Package vpklink keeps a third-party content package correctly and
// safely linked into a host application's configuration. It downloads
// the package with integrity verification, performs a coordinated
// reversible modification of the host's two control files, detects
// host version drift, and watches the host for external change.
//
// The package is the caller-facing facade over the core engines in
// internal/; a UI or CLI drives it through CheckForUpdate, Install,
// Patch, Status, and StartWatching.
package vpklink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/distantorigin/vpklink/internal/acquire"
	"github.com/distantorigin/vpklink/internal/config"
	"github.com/distantorigin/vpklink/internal/embedded"
	"github.com/distantorigin/vpklink/internal/fingerprint"
	"github.com/distantorigin/vpklink/internal/patch"
	"github.com/distantorigin/vpklink/internal/status"
	"github.com/distantorigin/vpklink/internal/watch"
)

// Re-exports so callers only need this package.
type (
	// Config describes the host layout and remote sources.
	Config = config.Config

	// StatusResult is a terminal status verdict.
	StatusResult = status.Result

	// StatusCode enumerates the six terminal statuses.
	StatusCode = status.Code

	// Action is the recommended next step attached to a status.
	Action = status.Action

	// PatchResult is the outcome of one patch attempt.
	PatchResult = patch.Result

	// PatchState enumerates the patch lifecycle states.
	PatchState = patch.State

	// Progress reports download progress.
	Progress = acquire.Progress
)

const (
	StatusNotChecked   = status.NotChecked
	StatusNotInstalled = status.NotInstalled
	StatusDisabled     = status.Disabled
	StatusNeedUpdate   = status.NeedUpdate
	StatusReady        = status.Ready
	StatusError        = status.Error

	ActionNone    = status.ActionNone
	ActionInstall = status.ActionInstall
	ActionEnable  = status.ActionEnable
	ActionUpdate  = status.ActionUpdate

	PatchApplied   = patch.Patched
	PatchFailed    = patch.Failed
	PatchCancelled = patch.Cancelled
)

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	return config.Default()
}

// InstallResult is the outcome of an Install call.
type InstallResult struct {
	Success         bool
	AlreadyUpToDate bool
}

// Options configure a Linker. Config is required; Logger and HTTPClient
// fall back to production defaults. The HTTP client is injectable so
// tests can point the linker at fake mirrors.
type Options struct {
	Config     *Config
	Logger     *zap.Logger
	HTTPClient *http.Client
}

// Linker owns no long-lived mutable state beyond the on-disk control
// files and the persisted baseline fingerprint; everything else is
// recomputed from disk on every call.
type Linker struct {
	cfg      *Config
	logger   *zap.Logger
	acquirer *acquire.Acquirer
	fps      *fingerprint.Service
	engine   *patch.Engine
	pipeline *status.Pipeline

	// Reentrant-refresh guard: overlapping Status calls collapse into
	// one in-flight evaluation.
	mu      sync.Mutex
	current *inflight

	watcher  *watch.Watcher
	pollStop chan struct{}
	pollDone chan struct{}
}

type inflight struct {
	done   chan struct{}
	result StatusResult
	err    error
}

// New wires the core components from configuration.
func New(opts Options) (*Linker, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	acquirer := acquire.New(opts.HTTPClient, acquire.RetryPolicy{
		Attempts: cfg.RetryAttempts,
		Delay:    cfg.RetryDelay,
	}, logger)

	fps := fingerprint.NewService(fingerprint.Options{
		HostRoot:       cfg.HostRoot,
		VersionFile:    cfg.VersionFile,
		GameInfoFile:   cfg.GameInfoFile,
		GameInfoMarker: cfg.GameInfoMarker,
		BaselineFile:   cfg.BaselinePath(),
	}, logger)

	engine := patch.NewEngine(patch.Options{
		HostRoot:        cfg.HostRoot,
		SignatureFile:   cfg.SignatureFile,
		GameInfoFile:    cfg.GameInfoFile,
		PackageFile:     cfg.PackageFile,
		AnchorToken:     cfg.AnchorToken,
		GameInfoMarker:  cfg.GameInfoMarker,
		GameInfoMirrors: cfg.GameInfoMirrors,
	}, acquirer, fps, logger)

	pipeline := status.DefaultPipeline(status.Probes{
		HostRoot:      cfg.HostRoot,
		RequiredFiles: []string{cfg.HostExecutable, cfg.SignatureFile, cfg.GameInfoFile, cfg.VersionFile},
		PackageFile:   cfg.PackageFile,
		Engine:        engine,
		Fingerprints:  fps,
	}, logger)

	return &Linker{
		cfg:      cfg,
		logger:   logger,
		acquirer: acquirer,
		fps:      fps,
		engine:   engine,
		pipeline: pipeline,
	}, nil
}

// CheckForUpdate fetches the published package hash and compares it
// against the local hash record.
func (l *Linker) CheckForUpdate(ctx context.Context) (hasNewer, hasLocalInstall bool, err error) {
	remoteHash, err := l.acquirer.FetchRemoteHash(ctx, l.cfg.HashMirrors)
	if err != nil {
		return false, false, err
	}

	hasNewer, hasLocalInstall = l.acquirer.CheckForUpdate(l.cfg.HashRecordPath(), remoteHash)
	return hasNewer, hasLocalInstall, nil
}

// Install downloads, verifies, stages, and commits the content package.
// When the local record already matches the published hash the install
// is skipped and AlreadyUpToDate is set.
func (l *Linker) Install(ctx context.Context, progress Progress) (InstallResult, error) {
	remoteHash, err := l.acquirer.FetchRemoteHash(ctx, l.cfg.HashMirrors)
	if err != nil {
		// Offline builds carry a bundled archive as a last resort when
		// no mirror is reachable.
		if errors.Is(err, acquire.ErrAllMirrorsFailed) && embedded.HasArchive() {
			l.logger.Warn("no mirror reachable, installing bundled archive", zap.Error(err))
			return l.installEmbedded(ctx)
		}
		return InstallResult{}, err
	}

	hasNewer, _ := l.acquirer.CheckForUpdate(l.cfg.HashRecordPath(), remoteHash)
	if !hasNewer {
		return InstallResult{Success: true, AlreadyUpToDate: true}, nil
	}

	downloadURL, err := l.acquirer.ResolveAssetURL(ctx, l.cfg.ReleasesURL, l.cfg.AssetSuffix)
	if err != nil {
		return InstallResult{}, err
	}

	stagingDir, err := l.acquirer.DownloadAndStage(ctx, acquire.Manifest{
		RemoteHash:  remoteHash,
		DownloadURL: downloadURL,
	}, progress)
	if err != nil {
		return InstallResult{}, err
	}
	defer os.RemoveAll(stagingDir)

	installDir := filepath.Dir(filepath.Join(l.cfg.HostRoot, l.cfg.PackageFile))
	if err := l.acquirer.CommitStaged(ctx, stagingDir, installDir, l.cfg.HashRecordPath(), remoteHash); err != nil {
		return InstallResult{}, &Error{Op: "install", Path: installDir, Err: err}
	}

	l.logger.Info("package installed",
		zap.String("install_dir", installDir),
		zap.String("hash", remoteHash))
	return InstallResult{Success: true}, nil
}

// installEmbedded installs the archive bundled into the binary. The
// bundled archive was trusted at build time, so its own content hash
// stands in for the published one.
func (l *Linker) installEmbedded(ctx context.Context) (InstallResult, error) {
	hash := embedded.ContentHash()

	hasNewer, _ := l.acquirer.CheckForUpdate(l.cfg.HashRecordPath(), hash)
	if !hasNewer {
		return InstallResult{Success: true, AlreadyUpToDate: true}, nil
	}

	stagingDir, err := l.acquirer.StageArchive(embedded.Archive())
	if err != nil {
		return InstallResult{}, err
	}
	defer os.RemoveAll(stagingDir)

	installDir := filepath.Dir(filepath.Join(l.cfg.HostRoot, l.cfg.PackageFile))
	if err := l.acquirer.CommitStaged(ctx, stagingDir, installDir, l.cfg.HashRecordPath(), hash); err != nil {
		return InstallResult{}, &Error{Op: "install", Path: installDir, Err: err}
	}

	l.logger.Info("bundled package installed", zap.String("hash", hash))
	return InstallResult{Success: true}, nil
}

// Patch runs the two-control-file patch algorithm. Running it on an
// already-patched host is safe and produces identical files.
func (l *Linker) Patch(ctx context.Context) PatchResult {
	return l.engine.Apply(ctx)
}

// IsPatched is the idempotent fast path for callers that want to skip
// Patch when both markers are already in place and current.
func (l *Linker) IsPatched() (bool, error) {
	markers, err := l.engine.Markers()
	if err != nil {
		return false, err
	}
	return markers.SignaturePresent && markers.SignatureCurrent && markers.GameInfoPresent, nil
}

// Status evaluates the status pipeline. Overlapping calls collapse:
// callers arriving while an evaluation is in flight receive that
// evaluation's result instead of stacking a new one.
func (l *Linker) Status(ctx context.Context) (StatusResult, error) {
	l.mu.Lock()
	if cur := l.current; cur != nil {
		l.mu.Unlock()
		select {
		case <-cur.done:
			return cur.result, cur.err
		case <-ctx.Done():
			return StatusResult{Code: status.Error, Description: "status request cancelled"}, ctx.Err()
		}
	}

	cur := &inflight{done: make(chan struct{})}
	l.current = cur
	l.mu.Unlock()

	cur.result, cur.err = l.pipeline.Evaluate(ctx)

	l.mu.Lock()
	l.current = nil
	l.mu.Unlock()
	close(cur.done)

	return cur.result, cur.err
}

// StartWatching watches the host's control files and re-evaluates the
// status once each change burst settles, plus on a fixed interval as a
// fallback for changes the push-based watcher misses. onChange receives
// every evaluation result.
func (l *Linker) StartWatching(onChange func(StatusResult)) error {
	if onChange == nil {
		return fmt.Errorf("onChange callback is required")
	}

	notify := func() {
		result, err := l.Status(context.Background())
		if err != nil {
			l.logger.Warn("status re-evaluation failed", zap.Error(err))
		}
		onChange(result)
	}

	w := watch.New(l.cfg.DebounceWindow,
		func(ev watch.Event) {
			l.logger.Debug("host file changed",
				zap.String("path", ev.Path),
				zap.String("op", ev.Op.String()))
		},
		notify,
		l.logger)

	l.mu.Lock()
	if l.watcher != nil {
		l.mu.Unlock()
		return fmt.Errorf("already watching")
	}

	if err := w.Start(l.cfg.WatchedPaths()...); err != nil {
		l.mu.Unlock()
		return err
	}
	l.watcher = w

	pollStop := make(chan struct{})
	pollDone := make(chan struct{})
	l.pollStop = pollStop
	l.pollDone = pollDone
	l.mu.Unlock()

	go func() {
		defer close(pollDone)
		ticker := time.NewTicker(l.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				notify()
			case <-pollStop:
				return
			}
		}
	}()

	return nil
}

// StopWatching stops the watcher and the fallback timer. The waits
// happen outside the lock: the poll goroutine takes it inside Status.
func (l *Linker) StopWatching() {
	l.mu.Lock()
	w := l.watcher
	pollStop := l.pollStop
	pollDone := l.pollDone
	l.watcher = nil
	l.pollStop = nil
	l.pollDone = nil
	l.mu.Unlock()

	if w == nil {
		return
	}
	close(pollStop)
	w.Stop()
	<-pollDone
}
