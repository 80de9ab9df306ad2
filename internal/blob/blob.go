// Package blob stores artifact bytes (HTML, screenshots, HAR, OCR output)
// under a local directory, addressed by job id and artifact type. No blob
// or object-storage client appears anywhere in the pack, and
// BlobStorageDir is a plain filesystem path rather than a bucket/endpoint
// pair, so this stays on os/crypto/sha256 — a documented stdlib exception.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store writes artifact bytes under a root directory.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

// Put writes data under <dir>/<jobID>/<artifactType>-<id>.bin and returns
// its location and sha256 checksum.
func (s *Store) Put(jobID uuid.UUID, artifactType string, data []byte) (location, checksum string, err error) {
	sum := sha256.Sum256(data)
	checksum = hex.EncodeToString(sum[:])

	jobDir := filepath.Join(s.dir, jobID.String())
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating artifact directory: %w", err)
	}

	location = filepath.Join(jobDir, fmt.Sprintf("%s-%s.bin", artifactType, checksum[:12]))
	if err := os.WriteFile(location, data, 0o644); err != nil {
		return "", "", fmt.Errorf("writing artifact: %w", err)
	}
	return location, checksum, nil
}
