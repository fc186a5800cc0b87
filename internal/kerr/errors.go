// Package kerr defines the sentinel error kinds surfaced across the Kydras
// placement and replication engine.
package kerr

import "errors"

var (
	// ErrInvalidPath is returned when the sanitizer rejects a relative path.
	ErrInvalidPath = errors.New("invalid path")

	// ErrNotSeekable is returned when a write needs more than one replica but
	// was handed a non-seekable stream.
	ErrNotSeekable = errors.New("stream must be seekable for duplication > 1")

	// ErrPoolNotFound is returned for an unknown pool ID.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrInsufficientReplicas is returned when fewer healthy eligible drives
	// exist than the rule's duplication level requires.
	ErrInsufficientReplicas = errors.New("insufficient eligible replicas")

	// ErrIntegrityMismatch is returned when staged replica hashes disagree,
	// or a post-copy verification fails.
	ErrIntegrityMismatch = errors.New("integrity mismatch")

	// ErrIoFailure wraps underlying filesystem or index errors.
	ErrIoFailure = errors.New("io failure")

	// ErrArgEmpty is returned by create_pool for blank name / empty drives.
	ErrArgEmpty = errors.New("required argument empty")
)
