// Package mirror makes a destination tree an exact copy of a source
// tree. Deletion of destination-only files is deliberate: it is what
// lets an interrupted upgrade converge on a rerun.
package mirror

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Pair names one subtree to mirror onto one destination path.
type Pair struct {
	Source string
	Dest   string
}

// Syncer mirrors directory trees onto the recovery partition.
type Syncer struct {
	Log zerolog.Logger
}

// MirrorAll runs Mirror over each pair in order, stopping at the
// first failure.
func (s *Syncer) MirrorAll(pairs []Pair) error {
	for _, p := range pairs {
		if err := s.Mirror(p.Source, p.Dest); err != nil {
			return err
		}
	}
	return nil
}

// Mirror synchronizes dst to match src exactly. Symbolic links are
// recreated, not followed; permission bits and modification times are
// preserved; files present only in dst are removed. Regular files are
// rewritten in place rather than staged and renamed, trading update
// atomicity for headroom on a small partition.
func (s *Syncer) Mirror(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("mirror source %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mirror source %s is not a directory", src)
	}
	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return fmt.Errorf("mirror dest %s: %w", dst, err)
	}
	s.Log.Debug().Str("src", src).Str("dst", dst).Msg("mirroring tree")
	return s.mirrorDir(src, dst)
}

func (s *Syncer) mirrorDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}

	// Remove whatever the source no longer has.
	dstEntries, err := os.ReadDir(dst)
	if err != nil {
		return err
	}
	for _, e := range dstEntries {
		if !names[e.Name()] {
			s.Log.Debug().Str("path", filepath.Join(dst, e.Name())).Msg("deleting extraneous entry")
			if err := os.RemoveAll(filepath.Join(dst, e.Name())); err != nil {
				return err
			}
		}
	}

	for _, e := range entries {
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())
		info, err := e.Info()
		if err != nil {
			return err
		}
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			if err := replaceSymlink(srcPath, dstPath); err != nil {
				return err
			}
		case info.IsDir():
			if err := s.enterDir(srcPath, dstPath, info); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := syncFile(srcPath, dstPath, info); err != nil {
				return err
			}
		default:
			// Sockets, fifos and devices have no business on the
			// recovery partition; skip them.
			s.Log.Warn().Str("path", srcPath).Msg("skipping special file")
		}
	}
	return nil
}

func (s *Syncer) enterDir(src, dst string, info fs.FileInfo) error {
	if existing, err := os.Lstat(dst); err == nil {
		if !existing.IsDir() {
			if err := os.RemoveAll(dst); err != nil {
				return err
			}
			if err := os.Mkdir(dst, info.Mode().Perm()); err != nil {
				return err
			}
		}
	} else if os.IsNotExist(err) {
		if err := os.Mkdir(dst, info.Mode().Perm()); err != nil {
			return err
		}
	} else {
		return err
	}
	if err := s.mirrorDir(src, dst); err != nil {
		return err
	}
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func replaceSymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return err
	}
	if existing, err := os.Lstat(dst); err == nil {
		if existing.Mode()&fs.ModeSymlink != 0 {
			if current, err := os.Readlink(dst); err == nil && current == target {
				return nil
			}
		}
		if err := os.RemoveAll(dst); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.Symlink(target, dst)
}

// syncFile rewrites dst from src unless size and mtime already agree.
func syncFile(src, dst string, info fs.FileInfo) error {
	if existing, err := os.Lstat(dst); err == nil {
		if existing.Mode().IsRegular() &&
			existing.Size() == info.Size() &&
			existing.ModTime().Equal(info.ModTime()) {
			return nil
		}
		if !existing.Mode().IsRegular() {
			if err := os.RemoveAll(dst); err != nil {
				return err
			}
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	return CopyFile(src, dst)
}

// CopyFile copies src over dst in place, carrying the source's
// permission bits and modification time. Hard-linked sources become
// independent copies.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
