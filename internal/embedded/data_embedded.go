//go:build embedded

package embedded

import (
	_ "embed"
)

// Offline package archive - populated at build time.
// To build with an offline archive:
//   1. Place pack.vpk.zip in internal/embedded/release/
//   2. Run: go build -tags embedded

//go:embed release/pack.vpk.zip
var embeddedArchive []byte

func archiveData() []byte {
	return embeddedArchive
}
