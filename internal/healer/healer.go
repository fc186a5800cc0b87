// Package healer implements a read-time self-healing path: every read
// reconciles whichever replicas it finds against a chosen reference before
// handing back a stream.
package healer

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"kydras/internal/hashfs"
	"kydras/internal/index"
	"kydras/internal/kerr"
	"kydras/internal/poolmodel"
)

var logger = log.New(os.Stderr, "[healer] ", log.LstdFlags)

// RepairFunc is called once per replica actually repaired during a read.
type RepairFunc func(driveRoot string)

// observedReplica is one drive's on-disk state for relPath.
type observedReplica struct {
	drive  *poolmodel.PoolDrive
	path   string
	exists bool
	sha256 string
	size   int64
}

// Read heals relPath across every drive in pool, then opens and returns a
// stream from the reference replica it converged on. The caller owns the
// returned file and must close it. onRepair, if non-nil, is called once
// per replica that actually gets repaired; pass nil if the caller doesn't
// need to observe repairs.
func Read(pool *poolmodel.StoragePool, idx *index.Index, relPath string, onRepair RepairFunc) (*os.File, error) {
	observed, err := observe(pool, relPath)
	if err != nil {
		return nil, err
	}

	expected := expectedHash(idx, pool.ID, relPath)

	ref, ok := pickReference(observed, expected)
	if !ok {
		return nil, fmt.Errorf("%s has no readable replica: %w", relPath, kerr.ErrInsufficientReplicas)
	}

	if err := healPass(observed, ref, idx, pool.ID, relPath, onRepair); err != nil {
		logger.Printf("heal pass had errors for %s: %v", relPath, err)
	}

	now := time.Now().UTC()
	if err := idx.Upsert(index.Record{
		PoolID:      pool.ID,
		RelPath:     relPath,
		DriveRoot:   ref.drive.RootPath,
		SizeBytes:   ref.size,
		SHA256:      ref.sha256,
		ModifiedUTC: now,
	}); err != nil {
		logger.Printf("index upsert failed for observed source %s: %v", ref.path, err)
	}

	f, err := os.Open(ref.path)
	if err != nil {
		return nil, fmt.Errorf("open healed replica: %w", kerr.ErrIoFailure)
	}
	return f, nil
}

// observe stats and hashes relPath on every drive concurrently — each drive
// is an independent file handle, so unlike the writer's single-stream
// staging this fans out safely.
func observe(pool *poolmodel.StoragePool, relPath string) ([]*observedReplica, error) {
	out := make([]*observedReplica, len(pool.Drives))
	var g errgroup.Group

	for i := range pool.Drives {
		i := i
		d := &pool.Drives[i]
		out[i] = &observedReplica{drive: d, path: filepath.Join(d.RootPath, relPath)}

		g.Go(func() error {
			r := out[i]
			info, err := os.Stat(r.path)
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				logger.Printf("stat failed for %s: %v", r.path, err)
				return nil
			}
			if info.IsDir() {
				return nil
			}
			sum, err := hashfs.Hash(r.path)
			if err != nil {
				logger.Printf("hash failed for %s: %v", r.path, err)
				return nil
			}
			r.exists = true
			r.sha256 = sum
			r.size = info.Size()
			return nil
		})
	}

	_ = g.Wait() // per-replica errors are logged, never fatal to the read
	return out, nil
}

// expectedHash is the index's recorded digest for relPath, if any.
func expectedHash(idx *index.Index, poolID, relPath string) string {
	recs, err := idx.GetAll(poolID, relPath)
	if err != nil {
		logger.Printf("index lookup failed for %s: %v", relPath, err)
		return ""
	}
	if len(recs) == 0 {
		return ""
	}
	return recs[0].SHA256
}

// pickReference prefers a replica matching the index's expected hash; if
// none matches (or none is recorded), it falls back to any hashable
// replica.
func pickReference(observed []*observedReplica, expected string) (*observedReplica, bool) {
	if expected != "" {
		for _, r := range observed {
			if r.exists && r.sha256 == expected {
				return r, true
			}
		}
	}
	for _, r := range observed {
		if r.exists {
			return r, true
		}
	}
	return nil, false
}

// healPass repairs every replica that's missing or diverges from ref,
// fanning out the copies concurrently since each reads the same completed
// reference file independently. Each destination is re-hashed after the
// copy rather than assuming it matches ref's digest, and the index row is
// recorded with that freshly computed hash.
func healPass(observed []*observedReplica, ref *observedReplica, idx *index.Index, poolID, relPath string, onRepair RepairFunc) error {
	var g errgroup.Group

	for _, r := range observed {
		if r == ref || (r.exists && r.sha256 == ref.sha256) {
			continue
		}
		r := r
		g.Go(func() error {
			if err := hashfs.CopyWithReplace(ref.path, r.path); err != nil {
				logger.Printf("heal copy failed %s -> %s: %v", ref.path, r.path, err)
				return nil
			}

			sum, err := hashfs.Hash(r.path)
			if err != nil {
				logger.Printf("hash healed replica %s: %v", r.path, err)
				return nil
			}

			info, err := os.Stat(r.path)
			if err != nil {
				logger.Printf("stat healed replica %s: %v", r.path, err)
				return nil
			}

			if err := idx.Upsert(index.Record{
				PoolID:      poolID,
				RelPath:     relPath,
				DriveRoot:   r.drive.RootPath,
				SizeBytes:   info.Size(),
				SHA256:      sum,
				ModifiedUTC: time.Now().UTC(),
			}); err != nil {
				logger.Printf("index upsert failed for healed %s: %v", r.path, err)
			}

			if onRepair != nil {
				onRepair(r.drive.RootPath)
			}
			return nil
		})
	}

	return g.Wait()
}
