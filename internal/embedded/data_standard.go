//go:build !embedded

package embedded

// Stub for normal builds without an offline archive.

func archiveData() []byte {
	return nil
}
