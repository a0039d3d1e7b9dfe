package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

func DefaultAlgorithm() string {
	return "sha256"
}

func GetHasher(name string) hash.Hash {
	switch name {
	case "sha256":
		return sha256.New()
	default:
		return nil
	}
}

// HashFile returns the hex digest of the file at pathname.
func HashFile(name string, pathname string) (string, error) {
	hasher := GetHasher(name)
	if hasher == nil {
		return "", fmt.Errorf("unknown hash algorithm %q", name)
	}
	fp, err := os.Open(pathname)
	if err != nil {
		return "", err
	}
	defer fp.Close()

	if _, err := io.Copy(hasher, fp); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func HashReader(name string, rd io.Reader) (string, error) {
	hasher := GetHasher(name)
	if hasher == nil {
		return "", fmt.Errorf("unknown hash algorithm %q", name)
	}
	if _, err := io.Copy(hasher, rd); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// NormalizeDigest strips the "*" binary-mode marker some digest tools
// prepend to the pathname column and lowercases the hex text.
func NormalizeDigest(digest string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(digest), "*"))
}
