package patch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/distantorigin/vpklink/internal/fingerprint"
)

const (
	testAnchor    = "DIGEST:"
	testMarker    = "vpklink"
	testSignature = "SteamAppId=730\nItems=12\nDIGEST:4f2d8a\nstale~SHA1:0000000000000000000000000000000000000000;CRC:00000000\n"
	testGameInfo  = "GameInfo\n{\n\tGame host\n}\n"
	testPayload   = "GameInfo\n{\n\tGame vpklink\n\tGame host\n}\n"
)

type fakeFetcher struct {
	payload []byte
	err     error
	calls   int
	onFetch func()
}

func (f *fakeFetcher) FetchFirst(ctx context.Context, urls []string) ([]byte, error) {
	f.calls++
	if f.onFetch != nil {
		f.onFetch()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

type testEnv struct {
	hostRoot string
	engine   *Engine
	fetcher  *fakeFetcher
	fps      *fingerprint.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	hostRoot := t.TempDir()

	files := map[string]string{
		"signatures.txt": testSignature,
		"gameinfo.txt":   testGameInfo,
		"steam.inf":      "ClientVersion=5301\nPatchVersion=1.38.7.9\n",
		"pak01_dir.vpk":  "vpk archive content",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(hostRoot, name), []byte(content), 0644))
	}

	fps := fingerprint.NewService(fingerprint.Options{
		HostRoot:       hostRoot,
		VersionFile:    "steam.inf",
		GameInfoFile:   "gameinfo.txt",
		GameInfoMarker: testMarker,
		BaselineFile:   filepath.Join(hostRoot, ".vpklink-baseline.json"),
	}, zap.NewNop())

	fetcher := &fakeFetcher{payload: []byte(testPayload)}
	engine := NewEngine(Options{
		HostRoot:        hostRoot,
		SignatureFile:   "signatures.txt",
		GameInfoFile:    "gameinfo.txt",
		PackageFile:     "pak01_dir.vpk",
		AnchorToken:     testAnchor,
		GameInfoMarker:  testMarker,
		GameInfoMirrors: []string{"https://mirror.example.com/gameinfo.txt"},
	}, fetcher, fps, zap.NewNop())

	return &testEnv{hostRoot: hostRoot, engine: engine, fetcher: fetcher, fps: fps}
}

func (env *testEnv) read(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(env.hostRoot, name))
	require.NoError(t, err)
	return string(data)
}

func TestApplyPatchesBothControlFiles(t *testing.T) {
	env := newTestEnv(t)

	result := env.engine.Apply(context.Background())
	require.NoError(t, result.Err)
	require.Equal(t, Patched, result.State)

	sig := env.read(t, "signatures.txt")
	assert.Contains(t, sig, "SteamAppId=730\n")
	assert.Contains(t, sig, "DIGEST:4f2d8a\n")
	assert.NotContains(t, sig, "stale~SHA1:", "old marker lines must be dropped")
	assert.Regexp(t, `(?m)^pak01_dir\.vpk~SHA1:[0-9a-f]{40};CRC:[0-9a-f]{8}$`, sig)

	assert.Equal(t, testPayload, env.read(t, "gameinfo.txt"))

	_, err := os.Stat(filepath.Join(env.hostRoot, ".vpklink-baseline.json"))
	assert.NoError(t, err, "successful patch should snapshot a baseline")
}

func TestApplyIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	result := env.engine.Apply(context.Background())
	require.Equal(t, Patched, result.State)
	first := env.read(t, "signatures.txt")

	result = env.engine.Apply(context.Background())
	require.Equal(t, Patched, result.State)
	second := env.read(t, "signatures.txt")

	assert.Equal(t, first, second, "re-patching must produce byte-identical signature content")
}

func TestApplyFailsFastOnMissingAnchor(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(env.hostRoot, "signatures.txt"),
		[]byte("SteamAppId=730\nno anchor here\n"), 0644))

	result := env.engine.Apply(context.Background())
	assert.Equal(t, Failed, result.State)
	assert.ErrorIs(t, result.Err, ErrAnchorMissing)

	assert.Equal(t, testGameInfo, env.read(t, "gameinfo.txt"), "no write may happen before validation")
	assert.Equal(t, 0, env.fetcher.calls)
}

func TestApplyFailsWhenRequiredFilesMissing(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.Remove(filepath.Join(env.hostRoot, "pak01_dir.vpk")))

	result := env.engine.Apply(context.Background())
	assert.Equal(t, Failed, result.State)
	assert.Error(t, result.Err)
}

func TestApplyDownloadFailureLeavesFilesUntouched(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.err = errors.New("all mirrors down")

	result := env.engine.Apply(context.Background())
	assert.Equal(t, Failed, result.State)

	assert.Equal(t, testSignature, env.read(t, "signatures.txt"))
	assert.Equal(t, testGameInfo, env.read(t, "gameinfo.txt"))

	_, err := os.Stat(filepath.Join(env.hostRoot, "signatures.txt.new"))
	assert.True(t, os.IsNotExist(err), "temp artifacts must be cleaned up")
}

func TestApplyRollsBackSignatureOnTransactionFailure(t *testing.T) {
	env := newTestEnv(t)
	giPath := filepath.Join(env.hostRoot, "gameinfo.txt")

	// Sabotage the gameinfo move after validation has passed: the
	// destination becomes a directory whose backup slot is occupied by
	// a non-empty directory, so the transaction fails on its second
	// move, after the signature file was already replaced.
	env.fetcher.onFetch = func() {
		_ = os.Remove(giPath)
		_ = os.MkdirAll(giPath, 0755)
		_ = os.MkdirAll(giPath+".vpkbak", 0755)
		_ = os.WriteFile(filepath.Join(giPath+".vpkbak", "occupied"), []byte("x"), 0644)
	}

	result := env.engine.Apply(context.Background())
	assert.Equal(t, Failed, result.State)

	assert.Equal(t, testSignature, env.read(t, "signatures.txt"),
		"signature file must be byte-identical to pre-patch content after rollback")
}

func TestApplyCancelledBeforeAnyWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := env.engine.Apply(ctx)
	assert.Equal(t, Cancelled, result.State)

	assert.Equal(t, testSignature, env.read(t, "signatures.txt"))
	assert.Equal(t, testGameInfo, env.read(t, "gameinfo.txt"))
}

func TestMarkers(t *testing.T) {
	env := newTestEnv(t)

	markers, err := env.engine.Markers()
	require.NoError(t, err)
	assert.True(t, markers.SignaturePresent, "stale marker still counts as present")
	assert.False(t, markers.SignatureCurrent, "stale marker is not current")
	assert.False(t, markers.GameInfoPresent)

	result := env.engine.Apply(context.Background())
	require.Equal(t, Patched, result.State)

	markers, err = env.engine.Markers()
	require.NoError(t, err)
	assert.True(t, markers.SignaturePresent)
	assert.True(t, markers.SignatureCurrent)
	assert.True(t, markers.GameInfoPresent)

	// Package content drift makes the signature marker stale.
	require.NoError(t, os.WriteFile(filepath.Join(env.hostRoot, "pak01_dir.vpk"), []byte("new vpk content"), 0644))
	markers, err = env.engine.Markers()
	require.NoError(t, err)
	assert.True(t, markers.SignaturePresent)
	assert.False(t, markers.SignatureCurrent)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unpatched", Unpatched.String())
	assert.Equal(t, "patching", Patching.String())
	assert.Equal(t, "patched", Patched.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "cancelled", Cancelled.String())
}
