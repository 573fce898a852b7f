// Package embedded carries an optional content-package archive baked
// into the binary at build time, used as a last-resort install source
// when no mirror is reachable.
package embedded

import (
	"crypto/sha1"
	"encoding/hex"
)

// HasArchive returns true if an offline package archive is available.
// This is false for normal builds and true for builds with -tags embedded.
func HasArchive() bool {
	return len(archiveData()) > 0
}

// Archive returns the bundled package archive, or nil for normal builds.
func Archive() []byte {
	return archiveData()
}

// ContentHash returns the lowercase hex SHA-1 of the bundled archive,
// the same identity the published hash record uses. Empty when no
// archive is bundled.
func ContentHash() string {
	data := archiveData()
	if len(data) == 0 {
		return ""
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
