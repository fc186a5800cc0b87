package index

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kydras.db")
	idx, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return idx
}

func TestUpsertAndGetAll(t *testing.T) {
	idx := openTestIndex(t)
	now := time.Now().UTC()

	if err := idx.Upsert(Record{PoolID: "p1", RelPath: "docs/a.txt", DriveRoot: "/d1", SizeBytes: 5, SHA256: "AAA", ModifiedUTC: now}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(Record{PoolID: "p1", RelPath: "docs/a.txt", DriveRoot: "/d2", SizeBytes: 5, SHA256: "AAA", ModifiedUTC: now}); err != nil {
		t.Fatal(err)
	}

	rows, err := idx.GetAll("p1", "docs/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
}

func TestUpsertReplacesExistingRow(t *testing.T) {
	idx := openTestIndex(t)
	now := time.Now().UTC()

	if err := idx.Upsert(Record{PoolID: "p1", RelPath: "a.txt", DriveRoot: "/d1", SizeBytes: 5, SHA256: "OLD", ModifiedUTC: now}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(Record{PoolID: "p1", RelPath: "a.txt", DriveRoot: "/d1", SizeBytes: 9, SHA256: "NEW", ModifiedUTC: now}); err != nil {
		t.Fatal(err)
	}

	rows, err := idx.GetAll("p1", "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].SHA256 != "NEW" || rows[0].SizeBytes != 9 {
		t.Fatalf("got %+v", rows)
	}
}

func TestRemove(t *testing.T) {
	idx := openTestIndex(t)
	now := time.Now().UTC()

	if err := idx.Upsert(Record{PoolID: "p1", RelPath: "a.txt", DriveRoot: "/d1", SizeBytes: 5, SHA256: "AAA", ModifiedUTC: now}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Remove("p1", "a.txt", "/d1"); err != nil {
		t.Fatal(err)
	}
	rows, err := idx.GetAll("p1", "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("got %d rows, want 0", len(rows))
	}
}
