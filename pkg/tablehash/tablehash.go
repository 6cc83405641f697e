// Package tablehash provides SHA-256 digests for snapshot integrity checks.
// The snapshot job writes a .sha256 sidecar next to every CSV it produces so
// that a restore can detect truncated or hand-edited files before loading
// them back into the store. Sidecars use the `sha256sum` line format, which
// keeps them verifiable with standard tooling.
package tablehash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Sum computes the hex SHA-256 digest of data read from r.
func Sum(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash data: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumBytes computes the hex SHA-256 digest of an in-memory snapshot.
func SumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether data read from r matches the expected digest.
// Digest comparison is case-insensitive; tools disagree on hex casing.
func Verify(r io.Reader, expected string) (bool, error) {
	actual, err := Sum(r)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actual, expected), nil
}

// Sidecar renders the content of a .sha256 sidecar file: the digest and the
// file name it covers, in the two-space `sha256sum` format.
func Sidecar(digest, filename string) string {
	return fmt.Sprintf("%s  %s\n", digest, filename)
}

// ParseSidecar extracts the digest and covered file name from sidecar
// content produced by Sidecar or by `sha256sum` itself.
func ParseSidecar(content string) (digest, filename string, err error) {
	line := strings.TrimSpace(content)
	digest, filename, ok := strings.Cut(line, "  ")
	if !ok || digest == "" || filename == "" {
		return "", "", fmt.Errorf("malformed sidecar line: %q", line)
	}
	if len(digest) != sha256.Size*2 {
		return "", "", fmt.Errorf("malformed digest in sidecar: %q", digest)
	}
	return digest, filename, nil
}
