package integration

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/distantorigin/vpklink"
	testutil "github.com/distantorigin/vpklink/testing"
)

// PatchedGameInfo is the payload the mock origin serves for the game
// configuration: the stock content with the package entry added.
const PatchedGameInfo = "GameInfo\n{\n\tGame vpklink\n\tGame csgo\n\tGame core\n}\n"

// TestEnvironment wires a pristine host fixture, a mock distribution
// origin, and a linker pointed at both.
type TestEnvironment struct {
	T        *testing.T
	HostRoot string
	Remote   *testutil.MockRemote
	Config   *vpklink.Config
	Linker   *vpklink.Linker
	Archive  []byte
}

// SetupTestEnvironment creates a complete test environment: an
// unpatched host install and an origin publishing release v1.0.0.
func SetupTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	hostRoot := testutil.TempDir(t)
	testutil.WriteHostFixture(t, hostRoot)

	remote := testutil.NewMockRemote(t)
	env := &TestEnvironment{
		T:        t,
		HostRoot: hostRoot,
		Remote:   remote,
	}
	env.PublishArchive("v1.0.0", "vpk payload v1")
	remote.SetRawResponse("/gameinfo.txt", 200, []byte(PatchedGameInfo), nil)

	cfg := vpklink.DefaultConfig()
	cfg.HostRoot = hostRoot
	cfg.ReleasesURL = remote.URL + "/releases/latest"
	cfg.HashMirrors = []string{remote.URL + "/pack.sha1"}
	cfg.GameInfoMirrors = []string{remote.URL + "/gameinfo.txt"}
	cfg.RetryDelay = 5 * time.Millisecond
	cfg.DebounceWindow = 100 * time.Millisecond
	env.Config = cfg

	linker, err := vpklink.New(vpklink.Options{
		Config:     cfg,
		Logger:     zap.NewNop(),
		HTTPClient: remote.Client(),
	})
	if err != nil {
		t.Fatalf("failed to build linker: %v", err)
	}
	env.Linker = linker

	return env
}

// PublishArchive publishes a new release: a fresh archive with the
// given package content, plus its hash record. Calling it again
// simulates the origin shipping an update.
func (e *TestEnvironment) PublishArchive(tag, packageContent string) {
	e.T.Helper()

	e.Archive = testutil.BuildArchive(e.T, map[string]string{
		"pak01_dir.vpk": packageContent,
	})
	e.Remote.ServeRelease("/releases/latest", tag, "pack.vpk.zip", "/pack.vpk.zip")
	e.Remote.ServeArchive("/pack.vpk.zip", e.Archive)
	e.Remote.ServeHash("/pack.sha1", testutil.SHA1Hex(e.Archive))
}
