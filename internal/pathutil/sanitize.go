// Package pathutil normalizes and validates the relative paths used as keys
// everywhere downstream in the engine.
package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"

	"kydras/internal/kerr"
)

// Sanitize normalizes separators to the host separator, strips leading
// separators, and rejects any ".." path segment. The result is the sole key
// shape used by the index, scheduler, writer, healer and rebalancer.
func Sanitize(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("empty relative path: %w", kerr.ErrInvalidPath)
	}

	normalized := strings.ReplaceAll(raw, "\\", "/")
	normalized = strings.ReplaceAll(normalized, "/", string(filepath.Separator))
	normalized = strings.TrimLeft(normalized, string(filepath.Separator))

	for _, seg := range strings.Split(normalized, string(filepath.Separator)) {
		if seg == ".." {
			return "", fmt.Errorf("path %q contains a parent-directory segment: %w", raw, kerr.ErrInvalidPath)
		}
	}

	cleaned := filepath.Clean(normalized)
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("path %q resolves to nothing: %w", raw, kerr.ErrInvalidPath)
	}
	if strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("path %q escapes the relative root: %w", raw, kerr.ErrInvalidPath)
	}

	return cleaned, nil
}
