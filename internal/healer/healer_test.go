package healer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"kydras/internal/hashfs"
	"kydras/internal/index"
	"kydras/internal/poolmodel"
)

func openTestIndex(t *testing.T) *index.Index {
	t.Helper()
	idx, err := index.Open(filepath.Join(t.TempDir(), "kydras.db"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	return idx
}

func drive(root string) poolmodel.PoolDrive {
	return poolmodel.PoolDrive{RootPath: root}
}

func writeReplica(t *testing.T, root, relPath string, content []byte) {
	t.Helper()
	full := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestReadHealsDeletedReplica: one replica is removed out-of-band; a read
// repairs it from the surviving replica and returns its content.
func TestReadHealsDeletedReplica(t *testing.T) {
	rootA, rootB := t.TempDir(), t.TempDir()
	content := []byte("durable bytes")
	writeReplica(t, rootA, "f.bin", content)
	writeReplica(t, rootB, "f.bin", content)

	sum, err := hashfs.HashReader(bytes.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}

	pool := &poolmodel.StoragePool{ID: "pool-1", Drives: []poolmodel.PoolDrive{drive(rootA), drive(rootB)}}
	idx := openTestIndex(t)
	if err := idx.Upsert(index.Record{PoolID: "pool-1", RelPath: "f.bin", DriveRoot: rootA, SHA256: sum, SizeBytes: int64(len(content))}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(index.Record{PoolID: "pool-1", RelPath: "f.bin", DriveRoot: rootB, SHA256: sum, SizeBytes: int64(len(content))}); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(rootB, "f.bin")); err != nil {
		t.Fatal(err)
	}

	var repaired []string
	f, err := Read(pool, idx, "f.bin", func(driveRoot string) {
		repaired = append(repaired, driveRoot)
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	f.Close()

	if len(repaired) != 1 || repaired[0] != rootB {
		t.Fatalf("expected onRepair called once for %s, got %v", rootB, repaired)
	}

	healed, err := os.ReadFile(filepath.Join(rootB, "f.bin"))
	if err != nil {
		t.Fatalf("expected healed replica, got: %v", err)
	}
	if string(healed) != string(content) {
		t.Fatalf("healed content mismatch: %q", healed)
	}
}

// TestReadHealsDivergentReplicaFromExpectedHash: one replica is overwritten
// out-of-band with different bytes; a read restores it from the index's
// recorded hash rather than trusting whichever replica it saw first.
func TestReadHealsDivergentReplicaFromExpectedHash(t *testing.T) {
	rootA, rootB := t.TempDir(), t.TempDir()
	good := []byte("the real content")
	writeReplica(t, rootA, "f.bin", good)
	writeReplica(t, rootB, "f.bin", good)

	sum, err := hashfs.HashReader(bytes.NewReader(good))
	if err != nil {
		t.Fatal(err)
	}

	pool := &poolmodel.StoragePool{ID: "pool-2", Drives: []poolmodel.PoolDrive{drive(rootA), drive(rootB)}}
	idx := openTestIndex(t)
	idx.Upsert(index.Record{PoolID: "pool-2", RelPath: "f.bin", DriveRoot: rootA, SHA256: sum, SizeBytes: int64(len(good))})
	idx.Upsert(index.Record{PoolID: "pool-2", RelPath: "f.bin", DriveRoot: rootB, SHA256: sum, SizeBytes: int64(len(good))})

	// Out-of-band corruption: rootB's bytes silently change.
	writeReplica(t, rootB, "f.bin", []byte("corrupted"))

	f, err := Read(pool, idx, "f.bin", nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	defer f.Close()

	restored, err := os.ReadFile(filepath.Join(rootB, "f.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if string(restored) != string(good) {
		t.Fatalf("expected divergent replica restored to %q, got %q", good, restored)
	}
}

// TestReadNoReplicasFails is the case where every drive is missing the
// file: read fails rather than fabricating content.
func TestReadNoReplicasFails(t *testing.T) {
	root := t.TempDir()
	pool := &poolmodel.StoragePool{ID: "pool-3", Drives: []poolmodel.PoolDrive{drive(root)}}
	idx := openTestIndex(t)

	if _, err := Read(pool, idx, "missing.bin", nil); err == nil {
		t.Fatal("expected error when no replica exists")
	}
}

// TestReadUpsertsSourceRowEvenWithoutRepair covers spec step 5: the source
// replica's own index row is upserted to reflect observation, even when
// every replica already agrees and no repair is needed.
func TestReadUpsertsSourceRowEvenWithoutRepair(t *testing.T) {
	root := t.TempDir()
	content := []byte("already placed out-of-band")
	writeReplica(t, root, "f.bin", content)

	pool := &poolmodel.StoragePool{ID: "pool-4", Drives: []poolmodel.PoolDrive{drive(root)}}
	idx := openTestIndex(t)

	rows, err := idx.GetAll("pool-4", "f.bin")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no prior index row, got %+v", rows)
	}

	f, err := Read(pool, idx, "f.bin", nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	f.Close()

	rows, err = idx.GetAll("pool-4", "f.bin")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].DriveRoot != root {
		t.Fatalf("expected source row recorded for %s, got %+v", root, rows)
	}
}

