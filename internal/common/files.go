package common

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// FileDigest identifies an input by content.
type FileDigest struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// DigestFile hashes the file at path. Reports stamp the schema and the
// recording with it so a decode can be reproduced.
func DigestFile(path string) (FileDigest, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileDigest{}, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return FileDigest{}, err
	}
	return FileDigest{Path: path, SHA256: hex.EncodeToString(h.Sum(nil)), Size: n}, nil
}

// DigestBytes hashes an in-memory input such as an uploaded schema.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
