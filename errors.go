package vpklink

import (
	"context"
	"errors"

	"github.com/distantorigin/vpklink/internal/acquire"
	"github.com/distantorigin/vpklink/internal/patch"
)

// Sentinel errors re-exported from the core packages so callers can
// classify failures without importing internals.
var (
	// ErrAllMirrorsFailed is a fatal network error: every source for
	// one logical download was exhausted. No partial state change
	// accompanies it.
	ErrAllMirrorsFailed = acquire.ErrAllMirrorsFailed

	// ErrIntegrityMismatch means a downloaded file failed hash
	// verification and was discarded before any commit.
	ErrIntegrityMismatch = acquire.ErrIntegrityMismatch

	// ErrAnchorMissing means the signature control file is corrupt:
	// its anchor line is gone and patching refuses to write anything.
	ErrAnchorMissing = patch.ErrAnchorMissing
)

// Error annotates a failure with the operation and the filesystem path
// it touched. Filesystem failures during install and patch carry one so
// callers can report which host file was involved.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsFileSystem reports whether the failure happened while touching the
// host filesystem (as opposed to the network or verification).
func IsFileSystem(err error) bool {
	var fe *Error
	return errors.As(err, &fe)
}

// IsNetworkFatal reports whether every download source was exhausted.
func IsNetworkFatal(err error) bool {
	return errors.Is(err, ErrAllMirrorsFailed)
}

// IsIntegrityMismatch reports whether a download failed verification.
func IsIntegrityMismatch(err error) bool {
	return errors.Is(err, ErrIntegrityMismatch)
}

// IsCancelled reports whether an operation ended due to cancellation
// rather than failure.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
