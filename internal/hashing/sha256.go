// -----------------------------------------------------------------------
// SHA256 - Chunked content hashing for exact duplicate detection
// -----------------------------------------------------------------------

package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// chunkSize keeps memory flat while hashing multi-gigabyte video files.
const chunkSize = 64 * 1024

// SHA256File returns the 64-hex SHA-256 digest of the file at path, reading
// in fixed-size chunks. The file is never loaded whole.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
