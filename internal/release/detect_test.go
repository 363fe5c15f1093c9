package release

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOSReleaseDetect(t *testing.T) {
	write := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "os-release")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	t.Run("quoted version", func(t *testing.T) {
		path := write(t, "NAME=\"Pop!_OS\"\nVERSION_ID=\"20.04\"\nID=pop\n")
		major, minor, err := OSRelease{Path: path}.DetectVersion()
		if err != nil {
			t.Fatalf("DetectVersion: %v", err)
		}
		if major != 20 || minor != 4 {
			t.Errorf("got %d.%d, want 20.4", major, minor)
		}
	})

	t.Run("unquoted version", func(t *testing.T) {
		path := write(t, "VERSION_ID=21.04\n")
		major, minor, err := OSRelease{Path: path}.DetectVersion()
		if err != nil {
			t.Fatalf("DetectVersion: %v", err)
		}
		if major != 21 || minor != 4 {
			t.Errorf("got %d.%d, want 21.4", major, minor)
		}
	})

	t.Run("missing VERSION_ID", func(t *testing.T) {
		path := write(t, "NAME=Linux\n")
		_, _, err := OSRelease{Path: path}.DetectVersion()
		if !errors.Is(err, ErrVersionDetection) {
			t.Errorf("err = %v, want ErrVersionDetection", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := OSRelease{Path: filepath.Join(t.TempDir(), "nope")}.DetectVersion()
		if !errors.Is(err, ErrVersionDetection) {
			t.Errorf("err = %v, want ErrVersionDetection", err)
		}
	})

	t.Run("malformed version", func(t *testing.T) {
		path := write(t, "VERSION_ID=\"rolling\"\n")
		_, _, err := OSRelease{Path: path}.DetectVersion()
		if !errors.Is(err, ErrVersionDetection) {
			t.Errorf("err = %v, want ErrVersionDetection", err)
		}
	})
}

func TestMapArch(t *testing.T) {
	for _, machine := range []string{"x86_64", "amd64"} {
		arch, err := mapArch(machine)
		if err != nil || arch != "intel" {
			t.Errorf("mapArch(%q) = (%q, %v), want (intel, nil)", machine, arch, err)
		}
	}
	if _, err := mapArch("riscv64"); !errors.Is(err, ErrArchDetection) {
		t.Errorf("mapArch(riscv64) err = %v, want ErrArchDetection", err)
	}
}
