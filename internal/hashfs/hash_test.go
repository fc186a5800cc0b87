package hashfs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashKnownVector(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(p, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Hash(p)
	if err != nil {
		t.Fatal(err)
	}
	want := "2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824"
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestAtomicReplaceOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "f.txt")
	temp := StageName(final)

	if err := os.WriteFile(final, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(temp, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := AtomicReplace(temp, final); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(final)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "new" {
		t.Fatalf("got %q want %q", b, "new")
	}
	if _, err := os.Stat(temp); !os.IsNotExist(err) {
		t.Fatal("expected temp to be gone")
	}

	matches, _ := filepath.Glob(final + ".bak_*")
	if len(matches) != 0 {
		t.Fatalf("expected no leftover backup files, got %v", matches)
	}
}

func TestAtomicReplaceRenamesWhenFinalMissing(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "sub", "f.txt")
	temp := filepath.Join(dir, "stage.tmp")
	if err := os.WriteFile(temp, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := AtomicReplace(temp, final); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(final)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "content" {
		t.Fatalf("got %q", b)
	}
}

func TestCopyWithReplace(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CopyWithReplace(src, dst); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "payload" {
		t.Fatalf("got %q", b)
	}
	matches, _ := filepath.Glob(dst + ".*.tmp")
	if len(matches) != 0 {
		t.Fatalf("expected no leftover tmp files, got %v", matches)
	}
}
