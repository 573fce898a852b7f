package testing

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
)

// Default control-file contents for a pristine, unpatched host install.
const (
	FixtureSignatures = "SteamAppId=730\nUseVAC=1\nDIGEST:9a3ff1b2c4\n"
	FixtureGameInfo   = "GameInfo\n{\n\tGame csgo\n\tGame core\n}\n"
	FixtureVersion    = "ClientVersion=2000340\nPatchVersion=1.38.0.1\n"
)

// WriteHostFixture lays out an unpatched host install in root: the game
// binary, the signature file, the game configuration, and the version
// file.
func WriteHostFixture(t *testing.T, root string) {
	t.Helper()
	WriteFile(t, filepath.Join(root, "csgo.exe"), "host binary")
	WriteFile(t, filepath.Join(root, "signatures.txt"), FixtureSignatures)
	WriteFile(t, filepath.Join(root, "gameinfo.txt"), FixtureGameInfo)
	WriteFile(t, filepath.Join(root, "steam.inf"), FixtureVersion)
}

// BuildArchive builds an in-memory zip archive from a name-to-content
// map, the shape a published content package has.
func BuildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s to archive: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finalize archive: %v", err)
	}
	return buf.Bytes()
}

// SHA1Hex returns the lowercase hex SHA-1 of data, the digest format
// published alongside release archives.
func SHA1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
