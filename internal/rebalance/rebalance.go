// Package rebalance implements a pool-wide convergence pass: every
// relpath's replica count is driven toward its rule's required duplication
// level.
package rebalance

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"kydras/internal/hashfs"
	"kydras/internal/index"
	"kydras/internal/kerr"
	"kydras/internal/poolmodel"
	"kydras/internal/rules"
	"kydras/internal/scheduler"
)

var logger = log.New(os.Stderr, "[rebalance] ", log.LstdFlags)

// Report summarizes one Run's outcome.
type Report struct {
	Converged int
	Copied    int
	Evicted   int
	Failed    []string
}

// Run enumerates every relpath found on any of the pool's drives, resolves
// its rule, and converges its replica count to the rule's required
// duplication level: copying to newly-eligible drives when under-replicated,
// evicting the lowest-ranked holders when over-replicated.
func Run(pool *poolmodel.StoragePool, idx *index.Index) (Report, error) {
	var report Report

	byPath, err := enumerate(pool)
	if err != nil {
		return report, err
	}

	for relPath, holders := range byPath {
		rule, hasRule := rules.Resolve(pool.Rules, relPath)
		want := 1
		if hasRule {
			want = rule.EffectiveDuplication()
		}

		if len(holders) == want {
			report.Converged++
			continue
		}

		if len(holders) < want {
			added, err := growReplicas(pool, idx, relPath, rule, hasRule, holders, want)
			report.Copied += added
			if err != nil {
				if errors.Is(err, kerr.ErrIntegrityMismatch) {
					return report, fmt.Errorf("%s: %w", relPath, err)
				}
				report.Failed = append(report.Failed, fmt.Sprintf("%s: %v", relPath, err))
			}
			continue
		}

		evicted := shrinkReplicas(idx, pool.ID, relPath, rule, hasRule, holders, want)
		report.Evicted += evicted
	}

	return report, nil
}

// enumerate walks every drive root and groups the relpaths it finds,
// recording which drives hold each one.
func enumerate(pool *poolmodel.StoragePool) (map[string][]poolmodel.PoolDrive, error) {
	byPath := map[string][]poolmodel.PoolDrive{}

	for i := range pool.Drives {
		d := pool.Drives[i]
		err := filepath.Walk(d.RootPath, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				logger.Printf("walk error under %s: %v", d.RootPath, err)
				return nil
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(d.RootPath, p)
			if err != nil {
				return nil
			}
			byPath[rel] = append(byPath[rel], d)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("enumerate %s: %w", d.RootPath, kerr.ErrIoFailure)
		}
	}

	return byPath, nil
}

// growReplicas copies relPath from a reference holder onto the best-ranked
// eligible drives not already holding it, until want is reached or eligible
// targets are exhausted.
func growReplicas(pool *poolmodel.StoragePool, idx *index.Index, relPath string, rule poolmodel.PoolRule, hasRule bool, holders []poolmodel.PoolDrive, want int) (int, error) {
	ref := holders[0]
	refPath := filepath.Join(ref.RootPath, relPath)
	refHash, err := hashfs.Hash(refPath)
	if err != nil {
		return 0, fmt.Errorf("hash reference %s: %w", refPath, kerr.ErrIoFailure)
	}

	have := map[string]bool{}
	for _, h := range holders {
		have[h.RootPath] = true
	}

	var candidates []poolmodel.PoolDrive
	for _, d := range scheduler.Rank(pool.Drives, rule, hasRule, -1) {
		if !have[d.RootPath] {
			candidates = append(candidates, d)
		}
	}

	need := want - len(holders)
	if need > len(candidates) {
		need = len(candidates)
	}
	targets := candidates[:need]

	var g errgroup.Group
	var added int32

	for _, t := range targets {
		t := t
		g.Go(func() error {
			dst := filepath.Join(t.RootPath, relPath)
			if err := hashfs.CopyWithReplace(refPath, dst); err != nil {
				logger.Printf("rebalance copy failed %s -> %s: %v", refPath, dst, err)
				return nil
			}

			sum, hashErr := hashfs.Hash(dst)
			if err := verifyGrownReplica(dst, sum, refHash, hashErr); err != nil {
				logger.Printf("rebalance copy diverged for %s: %v", dst, hashErr)
				return err
			}

			info, statErr := os.Stat(dst)
			var size int64
			if statErr == nil {
				size = info.Size()
			}
			if err := idx.Upsert(index.Record{
				PoolID:      pool.ID,
				RelPath:     relPath,
				DriveRoot:   t.RootPath,
				SizeBytes:   size,
				SHA256:      sum,
				ModifiedUTC: time.Now().UTC(),
			}); err != nil {
				logger.Printf("index upsert failed for %s: %v", dst, err)
			}

			atomic.AddInt32(&added, 1)
			return nil
		})
	}

	err = g.Wait()
	return int(added), err
}

// verifyGrownReplica reports the error a grown replica's post-copy
// verification should fail with, or nil if the copy matches the reference.
// A mismatch means the source changed between being hashed and copied, or
// the destination became unreadable right after; either way the caller
// aborts rather than counting it as added.
func verifyGrownReplica(dst, sum, refHash string, hashErr error) error {
	if hashErr != nil || sum != refHash {
		return fmt.Errorf("%s: %w", dst, kerr.ErrIntegrityMismatch)
	}
	return nil
}

// shrinkReplicas ranks the current holders with the same scoring function
// the scheduler uses for placement and evicts the lowest-ranked ones down
// to want.
func shrinkReplicas(idx *index.Index, poolID, relPath string, rule poolmodel.PoolRule, hasRule bool, holders []poolmodel.PoolDrive, want int) int {
	type scored struct {
		drive poolmodel.PoolDrive
		score float64
	}
	ranked := make([]scored, len(holders))
	for i, d := range holders {
		ranked[i] = scored{drive: d, score: scheduler.Score(d, rule, hasRule, 0)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	evicted := 0
	for _, s := range ranked[want:] {
		path := filepath.Join(s.drive.RootPath, relPath)
		if err := os.Remove(path); err != nil {
			logger.Printf("eviction failed for %s: %v", path, err)
			continue
		}
		if err := idx.Remove(poolID, relPath, s.drive.RootPath); err != nil {
			logger.Printf("index remove failed for %s: %v", path, err)
		}
		evicted++
	}
	return evicted
}
