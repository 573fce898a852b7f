package fstx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestExecuteAndCommit(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "staged.txt")
	dst := filepath.Join(dir, "install", "file.txt")
	moveSrc := filepath.Join(dir, "replacement.tmp")
	moveDst := filepath.Join(dir, "install", "control.txt")
	write(t, src, "payload")
	write(t, moveSrc, "new control")

	tx := New(zap.NewNop())
	tx.Add(
		CreateDir(filepath.Join(dir, "install")),
		Copy(src, dst, false),
		Move(moveSrc, moveDst),
	)

	require.NoError(t, tx.Execute(context.Background()))
	require.NoError(t, tx.Commit())

	assert.Equal(t, "payload", read(t, dst))
	assert.Equal(t, "new control", read(t, moveDst))
	_, err := os.Stat(moveSrc)
	assert.True(t, os.IsNotExist(err), "move source should be consumed")
}

func TestCommitWithoutExecute(t *testing.T) {
	tx := New(zap.NewNop())
	assert.ErrorIs(t, tx.Commit(), ErrNotExecuted)
}

func TestRollbackRestoresOverwrittenDestination(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "control.txt")
	tmp := filepath.Join(dir, "control.tmp")
	write(t, dst, "original content")
	write(t, tmp, "replacement content")

	tx := New(zap.NewNop())
	tx.Add(
		Move(tmp, dst),
		// Missing source forces the transaction to fail after the
		// move has already replaced dst.
		Copy(filepath.Join(dir, "does-not-exist"), filepath.Join(dir, "other.txt"), false),
	)

	err := tx.Execute(context.Background())
	require.Error(t, err)

	assert.Equal(t, "original content", read(t, dst), "destination must be byte-identical after rollback")
	assert.Equal(t, "replacement content", read(t, tmp), "temp file should survive for diagnosis")
	_, statErr := os.Stat(filepath.Join(dir, "other.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRollbackRemovesCreatedDirectories(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c")

	tx := New(zap.NewNop())
	tx.Add(
		CreateDir(nested),
		Copy(filepath.Join(dir, "missing"), filepath.Join(nested, "x"), false),
	)

	require.Error(t, tx.Execute(context.Background()))

	_, err := os.Stat(filepath.Join(dir, "a"))
	assert.True(t, os.IsNotExist(err), "created directory chain should be removed")
}

func TestRollbackRemovesCopiedFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	write(t, src, "data")

	tx := New(zap.NewNop())
	tx.Add(
		Copy(src, dst, false),
		Copy(filepath.Join(dir, "missing"), filepath.Join(dir, "y"), false),
	)

	require.Error(t, tx.Execute(context.Background()))

	_, err := os.Stat(dst)
	assert.True(t, os.IsNotExist(err))
}

func TestFailedOverwriteRestoresOwnBackup(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "gameinfo.txt")
	write(t, dst, "original content")

	tests := []struct {
		name string
		op   Operation
	}{
		{"copy", Copy(filepath.Join(dir, "missing-src"), dst, true)},
		{"move", Move(filepath.Join(dir, "missing-src"), dst)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := New(zap.NewNop())
			tx.Add(tt.op)

			// The destination is backed up before the replacement write,
			// which then fails because the source is gone.
			require.Error(t, tx.Execute(context.Background()))

			assert.Equal(t, "original content", read(t, dst),
				"destination must be restored after a failed overwrite")
			_, err := os.Stat(dst + backupSuffix)
			assert.True(t, os.IsNotExist(err), "backup must not be left behind")
		})
	}
}

func TestCopyRefusesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	write(t, src, "new")
	write(t, dst, "existing")

	tx := New(zap.NewNop())
	tx.Add(Copy(src, dst, false))

	require.Error(t, tx.Execute(context.Background()))
	assert.Equal(t, "existing", read(t, dst))
}

func TestCopyOverwriteBacksUpAndCommitCleansUp(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	write(t, src, "new")
	write(t, dst, "old")

	tx := New(zap.NewNop())
	tx.Add(Copy(src, dst, true))

	require.NoError(t, tx.Execute(context.Background()))
	assert.FileExists(t, dst+backupSuffix)

	require.NoError(t, tx.Commit())
	assert.Equal(t, "new", read(t, dst))
	_, err := os.Stat(dst + backupSuffix)
	assert.True(t, os.IsNotExist(err), "commit should remove backups")
}

func TestExplicitRollbackAfterSuccessfulExecute(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "control.txt")
	tmp := filepath.Join(dir, "control.tmp")
	write(t, dst, "original")
	write(t, tmp, "replacement")

	tx := New(zap.NewNop())
	tx.Add(Move(tmp, dst))
	require.NoError(t, tx.Execute(context.Background()))

	require.NoError(t, tx.Rollback(context.Background()))
	assert.Equal(t, "original", read(t, dst))
}

func TestCancelledContextAbortsBeforeAnyWrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	write(t, src, "data")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tx := New(zap.NewNop())
	tx.Add(Copy(src, dst, false))

	err := tx.Execute(ctx)
	require.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}
