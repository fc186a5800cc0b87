// Package hashfs provides the SHA-256 hashing and atomic filesystem
// primitives every higher layer (writer, healer, rebalancer) builds on.
package hashfs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Hash streams the file at path through SHA-256 and returns uppercase hex.
func Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return HashReader(f)
}

// HashReader streams r through SHA-256 and returns uppercase hex, without
// requiring the caller to open a file.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil))), nil
}

// UniqSuffix returns a 32-hex-character unique token, used to build the
// `.2pc`, `.tmp`, and `.bak_*` sidecar names below.
func UniqSuffix() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// StageName returns the Phase-1 staging path for final: final.<32-hex>.2pc
func StageName(final string) string {
	return fmt.Sprintf("%s.%s.2pc", final, UniqSuffix())
}

// TempName returns the copy-with-replace staging path for dst: dst.<32-hex>.tmp
func TempName(dst string) string {
	return fmt.Sprintf("%s.%s.tmp", dst, UniqSuffix())
}

// BackupName returns the atomic-replace backup path for final: final.bak_<32-hex>
func BackupName(final string) string {
	return fmt.Sprintf("%s.bak_%s", final, UniqSuffix())
}
