// Package patch performs the coordinated, reversible modification of
// the host's two control files: the line-oriented signature file gets a
// generated marker line appended after its anchor, and the gameinfo
// file is replaced wholesale with a server-provided variant. Both
// replacements land in one transaction so the files can never disagree.
package patch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/distantorigin/vpklink/internal/fingerprint"
	"github.com/distantorigin/vpklink/internal/fstx"
	"github.com/distantorigin/vpklink/internal/paths"
)

// ErrAnchorMissing means the signature file does not contain the anchor
// line. The file is treated as corrupt and nothing is written.
var ErrAnchorMissing = errors.New("signature file anchor line not found")

// markerLinePattern recognizes a previously generated marker line.
var markerLinePattern = regexp.MustCompile(`^.+~SHA1:[0-9a-fA-F]{40};CRC:[0-9a-fA-F]{8}$`)

// State is the patch engine's lifecycle state for one attempt.
type State int

const (
	Unpatched State = iota
	Patching
	Patched
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Unpatched:
		return "unpatched"
	case Patching:
		return "patching"
	case Patched:
		return "patched"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Result is the terminal outcome of one Apply call.
type Result struct {
	State State
	Err   error
}

// Markers reports which of the two control files currently carry the
// integration marker.
type Markers struct {
	SignaturePresent bool
	SignatureCurrent bool // marker matches the current package checksums
	GameInfoPresent  bool
}

// PayloadFetcher downloads the replacement gameinfo payload from an
// ordered mirror list. Satisfied by acquire.Acquirer.
type PayloadFetcher interface {
	FetchFirst(ctx context.Context, urls []string) ([]byte, error)
}

// Options configure an Engine. File paths are relative to HostRoot.
type Options struct {
	HostRoot        string
	SignatureFile   string
	GameInfoFile    string
	PackageFile     string
	AnchorToken     string
	GameInfoMarker  string
	GameInfoMirrors []string
}

// Engine runs the patch algorithm. Running it twice is always safe: the
// truncate-then-append signature rewrite makes re-patching idempotent.
type Engine struct {
	opts    Options
	fetcher PayloadFetcher
	fps     *fingerprint.Service
	logger  *zap.Logger
}

// NewEngine creates a patch engine.
func NewEngine(opts Options, fetcher PayloadFetcher, fps *fingerprint.Service, logger *zap.Logger) *Engine {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Engine{opts: opts, fetcher: fetcher, fps: fps, logger: logger}
}

func (e *Engine) signaturePath() string {
	return filepath.Join(e.opts.HostRoot, e.opts.SignatureFile)
}

func (e *Engine) gameInfoPath() string {
	return filepath.Join(e.opts.HostRoot, e.opts.GameInfoFile)
}

func (e *Engine) packagePath() string {
	return filepath.Join(e.opts.HostRoot, e.opts.PackageFile)
}

// MarkerLine computes the signature marker line for the currently
// installed package: its fixed relative path plus a SHA1/CRC checksum
// pair of the archive content.
func (e *Engine) MarkerLine() (string, error) {
	file, err := os.Open(e.packagePath())
	if err != nil {
		return "", fmt.Errorf("failed to open package archive: %w", err)
	}
	defer file.Close()

	sha := sha1.New()
	crc := crc32.NewIEEE()
	if _, err := io.Copy(io.MultiWriter(sha, crc), file); err != nil {
		return "", fmt.Errorf("failed to checksum package archive: %w", err)
	}

	return fmt.Sprintf("%s~SHA1:%s;CRC:%08x",
		paths.Normalize(e.opts.PackageFile),
		hex.EncodeToString(sha.Sum(nil)),
		crc.Sum32()), nil
}

// Markers reads the current patch state of both control files. Used by
// the status pipeline and as an idempotent fast path for callers; Apply
// itself does not depend on it.
func (e *Engine) Markers() (Markers, error) {
	var m Markers

	sigData, err := os.ReadFile(e.signaturePath())
	if err != nil {
		return m, fmt.Errorf("failed to read signature file: %w", err)
	}

	_, tail, err := splitAtAnchor(string(sigData), e.opts.AnchorToken)
	if err != nil {
		return m, err
	}

	var markerLine string
	for _, line := range tail {
		line = strings.TrimRight(line, "\r")
		if markerLinePattern.MatchString(line) {
			m.SignaturePresent = true
			markerLine = line
			break
		}
	}

	if m.SignaturePresent {
		if expected, err := e.MarkerLine(); err == nil {
			m.SignatureCurrent = markerLine == expected
		}
	}

	giData, err := os.ReadFile(e.gameInfoPath())
	if err != nil {
		return m, fmt.Errorf("failed to read gameinfo file: %w", err)
	}
	m.GameInfoPresent = strings.Contains(string(giData), e.opts.GameInfoMarker)

	return m, nil
}

// Apply runs the full patch algorithm. See Result for terminal states;
// Cancelled before any write needs no rollback, and any mid-transaction
// failure rolls back through the transaction itself.
func (e *Engine) Apply(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Result{State: Cancelled, Err: err}
	}

	sigPath := e.signaturePath()
	giPath := e.gameInfoPath()

	for _, required := range []string{sigPath, giPath, e.packagePath()} {
		if _, err := os.Stat(required); err != nil {
			return Result{State: Failed, Err: fmt.Errorf("required host file missing: %w", err)}
		}
	}

	sigData, err := os.ReadFile(sigPath)
	if err != nil {
		return Result{State: Failed, Err: fmt.Errorf("failed to read signature file: %w", err)}
	}

	newSigContent, err := e.buildSignatureContent(string(sigData))
	if err != nil {
		return Result{State: Failed, Err: err}
	}

	if markers, err := e.Markers(); err == nil {
		e.logger.Info("patch state before apply",
			zap.Bool("signature_marker", markers.SignaturePresent),
			zap.Bool("gameinfo_marker", markers.GameInfoPresent))
	}

	if err := ctx.Err(); err != nil {
		return Result{State: Cancelled, Err: err}
	}

	sigTemp := sigPath + ".new"
	if err := os.WriteFile(sigTemp, []byte(newSigContent), 0644); err != nil {
		return Result{State: Failed, Err: fmt.Errorf("failed to write signature temp: %w", err)}
	}

	if err := ctx.Err(); err != nil {
		_ = os.Remove(sigTemp)
		return Result{State: Cancelled, Err: err}
	}

	// Nothing in the install has been modified yet, so a download
	// failure here is reported directly without rollback.
	payload, err := e.fetcher.FetchFirst(ctx, e.opts.GameInfoMirrors)
	if err != nil {
		_ = os.Remove(sigTemp)
		if ctx.Err() != nil {
			return Result{State: Cancelled, Err: ctx.Err()}
		}
		return Result{State: Failed, Err: fmt.Errorf("failed to download gameinfo payload: %w", err)}
	}

	giTemp := giPath + ".new"
	if err := os.WriteFile(giTemp, payload, 0644); err != nil {
		_ = os.Remove(sigTemp)
		return Result{State: Failed, Err: fmt.Errorf("failed to write gameinfo temp: %w", err)}
	}

	if err := ctx.Err(); err != nil {
		_ = os.Remove(sigTemp)
		_ = os.Remove(giTemp)
		return Result{State: Cancelled, Err: err}
	}

	tx := fstx.New(e.logger)
	tx.Add(
		fstx.Move(sigTemp, sigPath),
		fstx.Move(giTemp, giPath),
	)
	if err := tx.Execute(ctx); err != nil {
		_ = os.Remove(sigTemp)
		_ = os.Remove(giTemp)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{State: Cancelled, Err: err}
		}
		return Result{State: Failed, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return Result{State: Failed, Err: err}
	}

	// The patch itself already succeeded; a snapshot failure only
	// degrades drift detection, so it is logged and swallowed.
	if e.fps != nil {
		if err := e.fps.Snapshot(); err != nil {
			e.logger.Warn("failed to snapshot fingerprint baseline", zap.Error(err))
		}
	}

	e.logger.Info("patch applied",
		zap.String("signature_file", e.opts.SignatureFile),
		zap.String("gameinfo_file", e.opts.GameInfoFile))
	return Result{State: Patched}
}

// buildSignatureContent keeps everything at or before the anchor line
// verbatim and replaces everything after it with exactly one marker
// line. A second run over the output produces byte-identical content.
func (e *Engine) buildSignatureContent(content string) (string, error) {
	head, _, err := splitAtAnchor(content, e.opts.AnchorToken)
	if err != nil {
		return "", err
	}

	marker, err := e.MarkerLine()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, line := range head {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteString(marker)
	sb.WriteByte('\n')
	return sb.String(), nil
}

// splitAtAnchor splits a signature file into the lines up to and
// including the anchor line, and the lines after it.
func splitAtAnchor(content, anchorToken string) (head, tail []string, err error) {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimRight(line, "\r"), anchorToken) {
			return lines[:i+1], lines[i+1:], nil
		}
	}
	return nil, nil, ErrAnchorMissing
}
