// Package fstx provides a transactional file writer. Operations are
// queued without touching the disk, executed in order, and rolled back
// in reverse order when any of them fails, so a half-finished patch
// never leaves the install directory in a mixed state.
package fstx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// backupSuffix marks the implicit backup taken before a destination is
// overwritten. Backups live next to the destination so a rename back is
// atomic on the same filesystem.
const backupSuffix = ".vpkbak"

// ErrNotExecuted is returned by Commit when the transaction has not
// completed a successful Execute.
var ErrNotExecuted = errors.New("transaction has not been executed")

type opKind int

const (
	opCreateDir opKind = iota
	opCopy
	opMove
)

// Operation is a single queued filesystem change.
type Operation struct {
	kind      opKind
	src       string
	dst       string
	overwrite bool
}

// CreateDir queues creation of a directory (including missing parents).
func CreateDir(path string) Operation {
	return Operation{kind: opCreateDir, dst: path}
}

// Copy queues copying src to dst. When overwrite is false and dst
// already exists, execution fails.
func Copy(src, dst string, overwrite bool) Operation {
	return Operation{kind: opCopy, src: src, dst: dst, overwrite: overwrite}
}

// Move queues an atomic replace of dst with src. The source is expected
// to be a fully written temporary file on the same filesystem as dst; a
// crash mid-transaction leaves dst either untouched or fully replaced,
// never truncated.
func Move(src, dst string) Operation {
	return Operation{kind: opMove, src: src, dst: dst}
}

func (o Operation) String() string {
	switch o.kind {
	case opCreateDir:
		return fmt.Sprintf("mkdir %s", o.dst)
	case opCopy:
		return fmt.Sprintf("copy %s -> %s", o.src, o.dst)
	case opMove:
		return fmt.Sprintf("move %s -> %s", o.src, o.dst)
	}
	return "unknown"
}

// completedOp records what an executed operation actually did, which is
// exactly the information rollback needs to undo it.
type completedOp struct {
	op          Operation
	createdDirs []string // deepest last
	backup      string   // backup of an overwritten destination, if any
}

// Transaction queues file operations and executes them as a unit.
// A Transaction is single-use: create one per attempt and discard it
// after Commit or Rollback.
type Transaction struct {
	ops       []Operation
	completed []completedOp
	executed  bool
	logger    *zap.Logger
}

// New creates an empty transaction.
func New(logger *zap.Logger) *Transaction {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Transaction{logger: logger}
}

// Add queues operations. No I/O happens until Execute.
func (t *Transaction) Add(ops ...Operation) {
	t.ops = append(t.ops, ops...)
}

// Len returns the number of queued operations.
func (t *Transaction) Len() int {
	return len(t.ops)
}

// Execute performs the queued operations in order. On the first failure
// every already-completed operation is rolled back in reverse order and
// the failure is returned. Cancellation is honored between operations,
// never mid-write.
func (t *Transaction) Execute(ctx context.Context) error {
	if t.executed {
		return errors.New("transaction already executed")
	}

	for _, op := range t.ops {
		if err := ctx.Err(); err != nil {
			t.rollback()
			return err
		}

		done, err := t.apply(op)
		if err != nil {
			// The failing op may already have parked its destination in
			// a backup; put that back before unwinding the earlier ops.
			t.restoreBackup(done)
			t.rollback()
			return fmt.Errorf("transaction failed (%s): %w", op, err)
		}
		t.completed = append(t.completed, done)
	}

	t.executed = true
	return nil
}

// Commit deletes leftover backup artifacts after a successful Execute.
// Calling Commit without a prior successful Execute is a programming
// error and returns ErrNotExecuted.
func (t *Transaction) Commit() error {
	if !t.executed {
		return ErrNotExecuted
	}

	for _, done := range t.completed {
		if done.backup == "" {
			continue
		}
		if err := os.Remove(done.backup); err != nil && !os.IsNotExist(err) {
			t.logger.Warn("failed to remove backup",
				zap.String("path", done.backup),
				zap.Error(err))
		}
	}
	t.completed = nil
	return nil
}

// Rollback undoes a transaction whose Execute succeeded but whose
// caller then hit a failure before Commit. Rollback is best-effort:
// individual failures are logged so they never mask the error that
// triggered the rollback.
func (t *Transaction) Rollback(ctx context.Context) error {
	_ = ctx
	t.rollback()
	t.executed = false
	return nil
}

func (t *Transaction) rollback() {
	for i := len(t.completed) - 1; i >= 0; i-- {
		t.undo(t.completed[i])
	}
	t.completed = nil
}

func (t *Transaction) apply(op Operation) (completedOp, error) {
	switch op.kind {
	case opCreateDir:
		return t.applyCreateDir(op)
	case opCopy:
		return t.applyCopy(op)
	case opMove:
		return t.applyMove(op)
	}
	return completedOp{}, fmt.Errorf("unknown operation kind %d", op.kind)
}

func (t *Transaction) applyCreateDir(op Operation) (completedOp, error) {
	missing := missingChain(op.dst)
	if err := os.MkdirAll(op.dst, 0755); err != nil {
		return completedOp{}, err
	}
	return completedOp{op: op, createdDirs: missing}, nil
}

func (t *Transaction) applyCopy(op Operation) (completedOp, error) {
	done := completedOp{op: op}

	if _, err := os.Stat(op.dst); err == nil {
		if !op.overwrite {
			return done, fmt.Errorf("destination already exists: %s", op.dst)
		}
		backup := op.dst + backupSuffix
		if err := os.Rename(op.dst, backup); err != nil {
			return done, fmt.Errorf("failed to back up destination: %w", err)
		}
		done.backup = backup
	}

	if err := copyFile(op.src, op.dst); err != nil {
		return done, err
	}
	return done, nil
}

func (t *Transaction) applyMove(op Operation) (completedOp, error) {
	done := completedOp{op: op}

	if _, err := os.Stat(op.dst); err == nil {
		backup := op.dst + backupSuffix
		if err := os.Rename(op.dst, backup); err != nil {
			return done, fmt.Errorf("failed to back up destination: %w", err)
		}
		done.backup = backup
	}

	if err := os.Rename(op.src, op.dst); err != nil {
		// Cross-device rename: fall back to copy + remove. The copy
		// goes to a sibling temp name first so dst still flips over
		// in a single rename.
		tmp := op.dst + ".vpktmp"
		if cerr := copyFile(op.src, tmp); cerr != nil {
			return done, fmt.Errorf("failed to move %s: %w", op.src, cerr)
		}
		if rerr := os.Rename(tmp, op.dst); rerr != nil {
			_ = os.Remove(tmp)
			return done, fmt.Errorf("failed to move %s: %w", op.src, rerr)
		}
		_ = os.Remove(op.src)
	}
	return done, nil
}

func (t *Transaction) undo(done completedOp) {
	switch done.op.kind {
	case opCreateDir:
		// Remove only directories this transaction created, deepest
		// first, and only while they are empty.
		for i := len(done.createdDirs) - 1; i >= 0; i-- {
			if err := os.Remove(done.createdDirs[i]); err != nil && !os.IsNotExist(err) {
				t.logger.Warn("rollback: failed to remove created directory",
					zap.String("path", done.createdDirs[i]),
					zap.Error(err))
				return
			}
		}
	case opCopy:
		if err := os.Remove(done.op.dst); err != nil && !os.IsNotExist(err) {
			t.logger.Warn("rollback: failed to remove copied file",
				zap.String("path", done.op.dst),
				zap.Error(err))
		}
		t.restoreBackup(done)
	case opMove:
		// Return the moved file to its source so the caller's temp
		// artifact survives for diagnosis, then restore the original
		// destination.
		if err := os.Rename(done.op.dst, done.op.src); err != nil && !os.IsNotExist(err) {
			t.logger.Warn("rollback: failed to restore moved file",
				zap.String("path", done.op.dst),
				zap.Error(err))
		}
		t.restoreBackup(done)
	}
}

func (t *Transaction) restoreBackup(done completedOp) {
	if done.backup == "" {
		return
	}
	if err := os.Rename(done.backup, done.op.dst); err != nil {
		t.logger.Warn("rollback: failed to restore backup",
			zap.String("backup", done.backup),
			zap.String("path", done.op.dst),
			zap.Error(err))
	}
}

// missingChain returns the directories MkdirAll would create for path,
// shallowest first.
func missingChain(path string) []string {
	var missing []string
	current := filepath.Clean(path)
	for {
		if _, err := os.Stat(current); err == nil {
			break
		}
		missing = append(missing, current)
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	// Reverse so the shallowest directory comes first.
	for i, j := 0, len(missing)-1; i < j; i, j = i+1, j-1 {
		missing[i], missing[j] = missing[j], missing[i]
	}
	return missing
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("failed to copy: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("failed to close destination: %w", err)
	}

	if info, err := in.Stat(); err == nil {
		_ = os.Chmod(dst, info.Mode().Perm())
	}
	return nil
}
