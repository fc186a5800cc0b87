// Package writer implements the two-phase committed write path: stage
// every replica, verify they hash identically, then promote.
package writer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kydras/internal/driveprobe"
	"kydras/internal/hashfs"
	"kydras/internal/index"
	"kydras/internal/kerr"
	"kydras/internal/poolmodel"
	"kydras/internal/rules"
	"kydras/internal/scheduler"
)

var logger = log.New(os.Stderr, "[writer] ", log.LstdFlags)

// stagedReplica tracks one target drive's Phase-1 result.
type stagedReplica struct {
	drive    *poolmodel.PoolDrive
	finalPth string
	stagePth string
	sha256   string
	size     int64
}

// Write stages relPath onto the top-ranked `dup` eligible drives, verifies
// every staged copy hashes identically, then promotes each atomically and
// updates the index. size is a hint for the scheduler; pass -1 if unknown.
// stream must be an io.ReadSeeker when dup > 1, since every target rewinds
// and re-reads it.
func Write(pool *poolmodel.StoragePool, idx *index.Index, relPath string, stream io.Reader, size int64) error {
	rule, hasRule := rules.Resolve(pool.Rules, relPath)
	dup := 1
	if hasRule {
		dup = rule.EffectiveDuplication()
	}

	ranked := scheduler.Rank(pool.Drives, rule, hasRule, size)
	if len(ranked) < dup {
		return fmt.Errorf("need %d eligible drives, found %d: %w", dup, len(ranked), kerr.ErrInsufficientReplicas)
	}

	var seeker io.ReadSeeker
	if dup > 1 {
		s, ok := stream.(io.ReadSeeker)
		if !ok {
			return kerr.ErrNotSeekable
		}
		seeker = s
	}

	targets := make([]*poolmodel.PoolDrive, dup)
	for i := 0; i < dup; i++ {
		d := ranked[i]
		for j := range pool.Drives {
			if pool.Drives[j].RootPath == d.RootPath {
				targets[i] = &pool.Drives[j]
				break
			}
		}
	}

	staged, err := stagePhase(targets, relPath, stream, seeker, dup)
	if err != nil {
		return err
	}

	if err := verifyIntegrity(staged); err != nil {
		cleanupStaged(staged)
		return err
	}

	return promotePhase(pool.ID, idx, staged)
}

// stagePhase writes the stream to each target's staging temp, sequentially:
// all targets read from the same stream handle, so concurrent staging would
// race on its cursor.
func stagePhase(targets []*poolmodel.PoolDrive, relPath string, stream io.Reader, seeker io.ReadSeeker, dup int) ([]stagedReplica, error) {
	staged := make([]stagedReplica, 0, len(targets))

	for i, drive := range targets {
		if i > 0 {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				cleanupStaged(staged)
				return nil, fmt.Errorf("rewind stream for %s: %w", drive.RootPath, err)
			}
			stream = seeker
		}

		final := filepath.Join(drive.RootPath, relPath)
		stage := hashfs.StageName(final)

		if err := hashfs.EnsureParentDir(final); err != nil {
			cleanupStaged(staged)
			return nil, fmt.Errorf("%s: %w", drive.RootPath, kerr.ErrIoFailure)
		}

		n, sum, err := writeAndHash(stage, stream)
		if err != nil {
			cleanupStaged(staged)
			return nil, fmt.Errorf("stage %s: %w", stage, err)
		}

		staged = append(staged, stagedReplica{
			drive:    drive,
			finalPth: final,
			stagePth: stage,
			sha256:   sum,
			size:     n,
		})
	}

	return staged, nil
}

// writeAndHash copies r into a new file at path while hashing it in a
// single pass, avoiding a second read over the staged file just to hash it.
func writeAndHash(path string, r io.Reader) (int64, string, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, "", err
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), r)
	closeErr := f.Close()
	if err != nil {
		return 0, "", err
	}
	if closeErr != nil {
		return 0, "", closeErr
	}
	return n, strings.ToUpper(hex.EncodeToString(h.Sum(nil))), nil
}

// verifyIntegrity rejects the write unless every staged replica hashed to
// exactly the same digest.
func verifyIntegrity(staged []stagedReplica) error {
	seen := map[string]struct{}{}
	for _, s := range staged {
		seen[s.sha256] = struct{}{}
	}
	if len(seen) != 1 {
		return fmt.Errorf("staged replicas disagree (%d distinct hashes): %w", len(seen), kerr.ErrIntegrityMismatch)
	}
	return nil
}

func cleanupStaged(staged []stagedReplica) {
	for _, s := range staged {
		if err := os.Remove(s.stagePth); err != nil && !os.IsNotExist(err) {
			logger.Printf("cleanup failed for %s: %v", s.stagePth, err)
		}
	}
}

// promotePhase atomically replaces each final path with its staged temp and
// records the index row. Partial failure here is not rolled back — already
// promoted files stay, and convergence happens via rebalance/read-heal.
func promotePhase(poolID string, idx *index.Index, staged []stagedReplica) error {
	now := time.Now().UTC()

	for _, s := range staged {
		if err := hashfs.AtomicReplace(s.stagePth, s.finalPth); err != nil {
			logger.Printf("promote failed for %s: %v", s.finalPth, err)
			continue
		}

		if err := driveprobe.Refresh(s.drive); err != nil {
			logger.Printf("free-space refresh failed for %s: %v", s.drive.RootPath, err)
		}

		if err := idx.Upsert(index.Record{
			PoolID:      poolID,
			RelPath:     relPathFromFinal(s),
			DriveRoot:   s.drive.RootPath,
			SizeBytes:   s.size,
			SHA256:      s.sha256,
			ModifiedUTC: now,
		}); err != nil {
			logger.Printf("index upsert failed for %s: %v", s.finalPth, err)
		}
	}

	return nil
}

func relPathFromFinal(s stagedReplica) string {
	rel, err := filepath.Rel(s.drive.RootPath, s.finalPth)
	if err != nil {
		return s.finalPth
	}
	return rel
}
