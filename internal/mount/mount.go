// Package mount provides scoped read-only mounts whose teardown runs
// exactly once on every exit path.
package mount

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Syscaller is the thin slice of mount(2)/umount2(2) used here,
// injectable so scope lifecycle is testable without privileges.
type Syscaller interface {
	Mount(source, target, fstype string, flags uintptr, data string) error
	Unmount(target string, flags int) error
}

type unixSyscaller struct{}

func (unixSyscaller) Mount(source, target, fstype string, flags uintptr, data string) error {
	return unix.Mount(source, target, fstype, flags, data)
}

func (unixSyscaller) Unmount(target string, flags int) error {
	return unix.Unmount(target, flags)
}

// Manager creates mount scopes. A zero Sys field uses real syscalls.
type Manager struct {
	Sys Syscaller
	Log zerolog.Logger
}

// Scope is an active mount at an exclusively owned temporary
// directory. Close unmounts and removes the directory; it is safe to
// call more than once but acts only on the first call.
type Scope struct {
	Dir string

	source string
	sys    Syscaller
	log    zerolog.Logger
	done   bool
}

// ReadOnly mounts source (an image file or block device) read-only at
// a fresh temporary directory. On any error the directory is removed
// before returning.
func (m *Manager) ReadOnly(source, fstype string) (*Scope, error) {
	sys := m.Sys
	if sys == nil {
		sys = unixSyscaller{}
	}

	dir, err := os.MkdirTemp("", "upgrade-mount-")
	if err != nil {
		return nil, fmt.Errorf("create mount dir: %w", err)
	}

	if err := sys.Mount(source, dir, fstype, unix.MS_RDONLY, ""); err != nil {
		os.Remove(dir)
		return nil, fmt.Errorf("mount %s (%s): %w", source, fstype, err)
	}

	m.Log.Debug().Str("source", source).Str("dir", dir).Str("fstype", fstype).Msg("mounted")
	return &Scope{Dir: dir, source: source, sys: sys, log: m.Log}, nil
}

// Close detaches the mount and removes its directory. Unmounting uses
// MNT_DETACH so a transiently busy file handle cannot wedge teardown.
func (s *Scope) Close() error {
	if s.done {
		return nil
	}
	s.done = true

	var firstErr error
	if err := s.sys.Unmount(s.Dir, unix.MNT_DETACH); err != nil {
		firstErr = fmt.Errorf("unmount %s: %w", s.Dir, err)
	}
	if err := os.Remove(s.Dir); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("remove %s: %w", s.Dir, err)
	}
	if firstErr != nil {
		s.log.Warn().Err(firstErr).Str("source", s.source).Msg("mount scope teardown")
	}
	return firstErr
}

// MountTemp satisfies the disks.TempMounter contract: a read-only
// mount handed back as a path plus its cleanup.
func (m *Manager) MountTemp(_ context.Context, source, fstype string) (string, func() error, error) {
	scope, err := m.ReadOnly(source, fstype)
	if err != nil {
		return "", nil, err
	}
	return scope.Dir, scope.Close, nil
}
