package mirror

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestMirrorCopiesTree(t *testing.T) {
	src, dst := t.TempDir(), filepath.Join(t.TempDir(), "dest")
	writeFile(t, filepath.Join(src, "a.txt"), "alpha", 0o644)
	writeFile(t, filepath.Join(src, "sub", "b.txt"), "beta", 0o600)
	if err := os.Symlink("a.txt", filepath.Join(src, "link")); err != nil {
		t.Fatal(err)
	}

	if err := (&Syncer{}).Mirror(src, dst); err != nil {
		t.Fatalf("Mirror: %v", err)
	}

	if got := readFile(t, filepath.Join(dst, "a.txt")); got != "alpha" {
		t.Errorf("a.txt = %q", got)
	}
	if got := readFile(t, filepath.Join(dst, "sub", "b.txt")); got != "beta" {
		t.Errorf("sub/b.txt = %q", got)
	}

	info, err := os.Lstat(filepath.Join(dst, "link"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Error("link was dereferenced instead of preserved")
	}
	if target, _ := os.Readlink(filepath.Join(dst, "link")); target != "a.txt" {
		t.Errorf("link target = %q, want a.txt", target)
	}

	if info, err := os.Stat(filepath.Join(dst, "sub", "b.txt")); err == nil {
		if info.Mode().Perm() != 0o600 {
			t.Errorf("b.txt mode = %o, want 600", info.Mode().Perm())
		}
	}
}

func TestMirrorDeletesExtraneous(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "keep.txt"), "keep", 0o644)
	writeFile(t, filepath.Join(dst, "keep.txt"), "stale", 0o644)
	writeFile(t, filepath.Join(dst, "gone.txt"), "obsolete", 0o644)
	writeFile(t, filepath.Join(dst, "olddir", "nested.txt"), "obsolete", 0o644)

	if err := (&Syncer{}).Mirror(src, dst); err != nil {
		t.Fatalf("Mirror: %v", err)
	}

	if got := readFile(t, filepath.Join(dst, "keep.txt")); got != "keep" {
		t.Errorf("keep.txt = %q, want fresh content", got)
	}
	for _, gone := range []string{"gone.txt", "olddir"} {
		if _, err := os.Lstat(filepath.Join(dst, gone)); !os.IsNotExist(err) {
			t.Errorf("%s still present after mirror", gone)
		}
	}
}

func TestMirrorIdempotent(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "data", "f.txt"), "content", 0o644)
	old := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := os.Chtimes(filepath.Join(src, "data", "f.txt"), old, old); err != nil {
		t.Fatal(err)
	}

	s := &Syncer{}
	if err := s.Mirror(src, dst); err != nil {
		t.Fatalf("first Mirror: %v", err)
	}

	first, err := os.Stat(filepath.Join(dst, "data", "f.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !first.ModTime().Equal(old) {
		t.Errorf("mtime = %v, want %v", first.ModTime(), old)
	}

	if err := s.Mirror(src, dst); err != nil {
		t.Fatalf("second Mirror: %v", err)
	}
	second, err := os.Stat(filepath.Join(dst, "data", "f.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !second.ModTime().Equal(first.ModTime()) {
		t.Error("second run rewrote an unchanged file")
	}
}

func TestMirrorReplacesFileWithDir(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "entry", "inner.txt"), "now a dir", 0o644)
	writeFile(t, filepath.Join(dst, "entry"), "was a file", 0o644)

	if err := (&Syncer{}).Mirror(src, dst); err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	if got := readFile(t, filepath.Join(dst, "entry", "inner.txt")); got != "now a dir" {
		t.Errorf("entry/inner.txt = %q", got)
	}
}

func TestMirrorRejectsMissingSource(t *testing.T) {
	if err := (&Syncer{}).Mirror(filepath.Join(t.TempDir(), "absent"), t.TempDir()); err == nil {
		t.Error("missing source accepted")
	}
}

func TestCopyFileOverwrites(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeFile(t, src, "new payload", 0o755)
	writeFile(t, dst, "old payload, and longer than the new one", 0o644)

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	if got := readFile(t, dst); got != "new payload" {
		t.Errorf("dst = %q", got)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("dst mode = %o, want 755", info.Mode().Perm())
	}
}
