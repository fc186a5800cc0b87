// Package engine wires the lower-level components into the pool operations
// exposed to callers.
package engine

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"kydras/internal/driveprobe"
	"kydras/internal/healer"
	"kydras/internal/index"
	"kydras/internal/kerr"
	"kydras/internal/pathutil"
	"kydras/internal/poolmodel"
	"kydras/internal/rebalance"
	"kydras/internal/writer"
)

var logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)

// Engine holds the process-lifetime pool map and the durable index handle.
type Engine struct {
	mu     sync.RWMutex
	pools  map[string]*poolmodel.StoragePool
	idx    *index.Index
	onHeal healer.RepairFunc
}

// New returns an Engine backed by the sidecar index at dbPath.
func New(dbPath string) (*Engine, error) {
	idx, err := index.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return &Engine{pools: map[string]*poolmodel.StoragePool{}, idx: idx}, nil
}

// CreatePool probes each drive path, assembles a new StoragePool, and
// registers it.
func (e *Engine) CreatePool(name string, drivePaths []string, poolType poolmodel.PoolType) (*poolmodel.StoragePool, error) {
	if name == "" || len(drivePaths) == 0 {
		return nil, kerr.ErrArgEmpty
	}

	drives := make([]poolmodel.PoolDrive, 0, len(drivePaths))
	for _, p := range drivePaths {
		d, err := driveprobe.Probe(p)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", p, err)
		}
		d.Health = driveprobe.CheckDriveHealth(p)
		drives = append(drives, d)
	}

	now := time.Now().UTC()
	pool := &poolmodel.StoragePool{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      poolType,
		MountHint: mountHint(name),
		Drives:    drives,
		CreatedAt: now,
		UpdatedAt: now,
	}

	e.mu.Lock()
	e.pools[pool.ID] = pool
	e.mu.Unlock()

	logger.Printf("created pool %s (%s) with %d drives", pool.ID, pool.Name, len(drives))
	return pool, nil
}

// mountHint derives a display-only mount point for the pool.
func mountHint(name string) string {
	if os.PathSeparator == '\\' {
		return fmt.Sprintf(`K:\%s`, name)
	}
	return fmt.Sprintf("/pools/%s", name)
}

// AddDrive probes path and appends it to the pool, updating its timestamp.
func (e *Engine) AddDrive(poolID, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, ok := e.pools[poolID]
	if !ok {
		return kerr.ErrPoolNotFound
	}

	d, err := driveprobe.Probe(path)
	if err != nil {
		return fmt.Errorf("probe %s: %w", path, err)
	}
	d.Health = driveprobe.CheckDriveHealth(path)

	pool.Drives = append(pool.Drives, d)
	pool.UpdatedAt = time.Now().UTC()
	return nil
}

// RemoveDrive removes a drive from the pool's membership. It does not
// delete any files.
func (e *Engine) RemoveDrive(poolID, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, ok := e.pools[poolID]
	if !ok {
		return kerr.ErrPoolNotFound
	}

	kept := pool.Drives[:0]
	found := false
	for _, d := range pool.Drives {
		if d.RootPath == path {
			found = true
			continue
		}
		kept = append(kept, d)
	}
	if !found {
		return fmt.Errorf("drive %s not in pool %s: %w", path, poolID, kerr.ErrInvalidPath)
	}
	pool.Drives = kept
	pool.UpdatedAt = time.Now().UTC()
	return nil
}

// SetRules replaces the pool's ordered rule list, used by the writer and
// rebalancer for first-match placement/duplication resolution. Rule order
// is significant — callers pass the list in the precedence they want.
func (e *Engine) SetRules(poolID string, rules []poolmodel.PoolRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, ok := e.pools[poolID]
	if !ok {
		return kerr.ErrPoolNotFound
	}

	pool.Rules = rules
	pool.UpdatedAt = time.Now().UTC()
	return nil
}

// GetPool returns the pool by ID, or (nil, false).
func (e *Engine) GetPool(poolID string) (*poolmodel.StoragePool, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pool, ok := e.pools[poolID]
	return pool, ok
}

// ListPools returns every registered pool.
func (e *Engine) ListPools() []*poolmodel.StoragePool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*poolmodel.StoragePool, 0, len(e.pools))
	for _, p := range e.pools {
		out = append(out, p)
	}
	return out
}

// Write sanitizes relPath and runs the two-phase committed write. stream
// must be an io.ReadSeeker when the resolved rule's duplication level is
// greater than 1.
func (e *Engine) Write(poolID, relPath string, stream io.Reader, size int64) error {
	pool, ok := e.GetPool(poolID)
	if !ok {
		return kerr.ErrPoolNotFound
	}

	clean, err := pathutil.Sanitize(relPath)
	if err != nil {
		return err
	}

	return writer.Write(pool, e.idx, clean, stream, size)
}

// Read sanitizes relPath and serves a self-healed replica.
func (e *Engine) Read(poolID, relPath string) (*os.File, error) {
	pool, ok := e.GetPool(poolID)
	if !ok {
		return nil, kerr.ErrPoolNotFound
	}

	clean, err := pathutil.Sanitize(relPath)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	onHeal := e.onHeal
	e.mu.RUnlock()

	return healer.Read(pool, e.idx, clean, onHeal)
}

// OnHeal registers a callback invoked once per replica repaired by a
// subsequent Read. Passing nil disables the callback. Intended for an
// operator-facing feed (e.g. the admin surface's monitor hub); the core
// read path works the same with or without one registered.
func (e *Engine) OnHeal(fn healer.RepairFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onHeal = fn
}

// Delete removes relPath from every drive in the pool and clears its index
// rows. Individual per-drive failures are logged and don't abort the
// overall delete, matching the engine's general swallow-and-log posture for
// multi-drive fan-out.
func (e *Engine) Delete(poolID, relPath string) error {
	pool, ok := e.GetPool(poolID)
	if !ok {
		return kerr.ErrPoolNotFound
	}

	clean, err := pathutil.Sanitize(relPath)
	if err != nil {
		return err
	}

	for _, d := range pool.Drives {
		full := filepath.Join(d.RootPath, clean)
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			logger.Printf("delete failed for %s: %v", full, err)
			continue
		}
		if err := e.idx.Remove(poolID, clean, d.RootPath); err != nil {
			logger.Printf("index remove failed for %s: %v", full, err)
		}
	}
	return nil
}

// Exists reports whether any drive in the pool holds relPath, regardless of
// hash agreement.
func (e *Engine) Exists(poolID, relPath string) (bool, error) {
	pool, ok := e.GetPool(poolID)
	if !ok {
		return false, kerr.ErrPoolNotFound
	}

	clean, err := pathutil.Sanitize(relPath)
	if err != nil {
		return false, err
	}

	for _, d := range pool.Drives {
		if _, err := os.Stat(filepath.Join(d.RootPath, clean)); err == nil {
			return true, nil
		}
	}
	return false, nil
}

// List returns the union of relpaths across every drive matching pattern,
// using the host's native glob per drive root rather than the index, since
// the index may disagree with what's actually on disk.
func (e *Engine) List(poolID, pattern string) ([]string, error) {
	pool, ok := e.GetPool(poolID)
	if !ok {
		return nil, kerr.ErrPoolNotFound
	}
	if pattern == "" {
		pattern = "*"
	}

	seen := map[string]struct{}{}
	var out []string

	for _, d := range pool.Drives {
		matches, err := filepath.Glob(filepath.Join(d.RootPath, pattern))
		if err != nil {
			logger.Printf("glob failed on %s: %v", d.RootPath, err)
			continue
		}
		for _, m := range matches {
			rel, err := filepath.Rel(d.RootPath, m)
			if err != nil {
				continue
			}
			if _, dup := seen[rel]; dup {
				continue
			}
			seen[rel] = struct{}{}
			out = append(out, rel)
		}
	}
	return out, nil
}

// Rebalance converges the pool's replica counts to their rules' required
// duplication levels.
func (e *Engine) Rebalance(poolID string) (rebalance.Report, error) {
	pool, ok := e.GetPool(poolID)
	if !ok {
		return rebalance.Report{}, kerr.ErrPoolNotFound
	}
	return rebalance.Run(pool, e.idx)
}

// CheckDriveHealth probes a root directly, independent of pool membership.
func (e *Engine) CheckDriveHealth(drivePath string) poolmodel.HealthState {
	return driveprobe.CheckDriveHealth(drivePath)
}
