package disks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Daasin/upgrade/internal/mount"
)

// ErrNoMatch is returned by ProbeFor when no partition satisfies the
// marker-file predicate.
var ErrNoMatch = errors.New("no matching partition found")

// TempMounter mounts a partition read-only at a throwaway location so
// the probe can look for a marker file. Injected so probe logic is
// testable without privileges.
type TempMounter interface {
	MountTemp(ctx context.Context, source, fstype string) (mountpoint string, cleanup func() error, err error)
}

// Prober scans attached disks for a partition identified by a marker
// file. Zero fields fall back to the real lsblk and mount paths.
type Prober struct {
	Log     zerolog.Logger
	Collect func(context.Context) ([]Partition, error)
	Mounter TempMounter
}

// ProbeFor walks every partition whose filesystem satisfies fsOK and
// invokes handler on the first one carrying markerFile at its root.
//
// A candidate already mounted at alreadyMounted is handed to the
// handler in place; its mount is not owned here and is left alone.
// Any other candidate is mounted temporarily and unmounted again
// whether or not the handler succeeds.
//
// When several partitions qualify, the first reported by the scan
// wins; the choice is logged.
func (p *Prober) ProbeFor(
	ctx context.Context,
	markerFile string,
	alreadyMounted string,
	fsOK func(fstype string) bool,
	handler func(mountPoint string) error,
) error {
	collect := p.Collect
	if collect == nil {
		collect = Collect
	}

	parts, err := collect(ctx)
	if err != nil {
		return fmt.Errorf("partition scan: %w", err)
	}

	for _, part := range parts {
		if !fsOK(part.FSType) {
			continue
		}

		if part.MountedAt(alreadyMounted) {
			p.Log.Info().Str("device", part.Path).Str("mount", alreadyMounted).
				Msg("reusing existing mount")
			return handler(alreadyMounted)
		}

		ok, err := p.inspect(ctx, part, markerFile, handler)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	return ErrNoMatch
}

// inspect temp-mounts part and runs handler if the marker is present.
// The bool reports whether the partition matched.
func (p *Prober) inspect(ctx context.Context, part Partition, markerFile string, handler func(string) error) (bool, error) {
	mounter := p.Mounter
	if mounter == nil {
		mounter = &mount.Manager{Log: p.Log}
	}

	mountpoint, cleanup, err := mounter.MountTemp(ctx, part.Path, part.FSType)
	if err != nil {
		return false, fmt.Errorf("mount %s: %w", part.Path, err)
	}
	defer func() {
		if err := cleanup(); err != nil {
			p.Log.Warn().Err(err).Str("device", part.Path).Msg("probe unmount failed")
		}
	}()

	if _, err := os.Stat(filepath.Join(mountpoint, markerFile)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s on %s: %w", markerFile, part.Path, err)
	}

	p.Log.Info().Str("device", part.Path).Str("marker", markerFile).Msg("partition matched")
	return true, handler(mountpoint)
}
