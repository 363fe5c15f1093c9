// Package recovery sequences the end-to-end upgrade of the hidden
// recovery partition: find the partition, acquire and verify a new
// installer image, mount it, and mirror its contents onto the
// recovery and EFI partitions.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Daasin/upgrade/internal/catalog"
	"github.com/Daasin/upgrade/internal/checksum"
	"github.com/Daasin/upgrade/internal/config"
	"github.com/Daasin/upgrade/internal/disks"
	"github.com/Daasin/upgrade/internal/fetch"
	"github.com/Daasin/upgrade/internal/mirror"
	"github.com/Daasin/upgrade/internal/mount"
	"github.com/Daasin/upgrade/internal/release"
)

// MarkerFile identifies the recovery partition among FAT candidates.
const MarkerFile = "recovery.conf"

// CatalogAPI is the descriptor-resolution slice of the catalog client.
type CatalogAPI interface {
	Get(ctx context.Context, version, arch string) (*catalog.Release, error)
}

// PartitionProber locates the recovery partition.
type PartitionProber interface {
	ProbeFor(ctx context.Context, markerFile, alreadyMounted string,
		fsOK func(string) bool, handler func(mountPoint string) error) error
}

// ISOMounter provides a scoped read-only mount of the installer image.
type ISOMounter interface {
	MountTemp(ctx context.Context, source, fstype string) (mountpoint string, cleanup func() error, err error)
}

// ISOFetcher downloads the image.
type ISOFetcher interface {
	Fetch(ctx context.Context, url string, dst fetch.Destination, progress fetch.Progress) error
}

// TreeSyncer mirrors image subtrees onto the partitions.
type TreeSyncer interface {
	MirrorAll(pairs []mirror.Pair) error
}

// Upgrader drives the upgrade. Fields are initialized by New to real
// collaborators; tests swap in fakes.
type Upgrader struct {
	Catalog  CatalogAPI
	Resolver *release.Resolver
	Prober   PartitionProber
	Mounter  ISOMounter
	Fetcher  ISOFetcher
	Syncer   TreeSyncer

	// UUIDOf reads the filesystem UUID of a mounted path; per-UUID
	// directory names on both partitions derive from it.
	UUIDOf func(ctx context.Context, path string) (string, error)

	// Progress receives download progress for display.
	Progress fetch.Progress

	Log zerolog.Logger
	cfg config.Config
}

// New wires an Upgrader against the real system.
func New(cfg config.Config, log zerolog.Logger) *Upgrader {
	log = log.With().Str("run", uuid.NewString()).Logger()

	cat := &catalog.Client{BaseURL: cfg.CatalogURL, Log: log}
	return &Upgrader{
		Catalog: cat,
		Resolver: &release.Resolver{
			Catalog:  cat,
			Versions: release.OSRelease{},
			Arch:     release.Uname{},
			Log:      log,
		},
		Prober:  &disks.Prober{Log: log},
		Mounter: &mount.Manager{Log: log},
		Fetcher: &fetch.Fetcher{Threads: cfg.DownloadThreads, Log: log},
		Syncer:  &mirror.Syncer{Log: log},
		UUIDOf:  disks.FindmntUUID,
		Log:     log,
		cfg:     cfg,
	}
}

// DefaultBoot is a declared command that has never been implemented.
// It fails loudly instead of pretending to succeed.
func (u *Upgrader) DefaultBoot() error {
	return ErrNotImplemented
}

// UpgradeFromFile upgrades the recovery partition from an ISO already
// on disk.
func (u *Upgrader) UpgradeFromFile(ctx context.Context, path string) error {
	return u.upgrade(ctx, func(context.Context) (string, func(), error) {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return "", nil, ErrIsoNotFound
			}
			return "", nil, err
		}
		return path, func() {}, nil
	})
}

// UpgradeFromRelease resolves a release in the remote catalog,
// downloads and verifies its ISO, and upgrades from it. Empty version
// or arch are detected from the running system; next selects the
// development target decided by the release resolver.
func (u *Upgrader) UpgradeFromRelease(ctx context.Context, version, arch string, next bool) error {
	return u.upgrade(ctx, func(ctx context.Context) (string, func(), error) {
		return u.fromRelease(ctx, version, arch, next)
	})
}

func fatPredicate(fstype string) bool {
	return fstype == "vfat" || fstype == "fat16" || fstype == "fat32"
}

// upgrade probes for the recovery partition and runs the pipeline
// against it. resolveISO yields the image path plus a cleanup for any
// temporary backing storage; cleanup runs after the image has been
// unmounted.
func (u *Upgrader) upgrade(ctx context.Context, resolveISO func(context.Context) (string, func(), error)) error {
	var handlerErr error
	err := u.Prober.ProbeFor(ctx, MarkerFile, u.cfg.RecoveryMount, fatPredicate,
		func(recoveryPath string) error {
			handlerErr = u.install(ctx, recoveryPath, resolveISO)
			return handlerErr
		})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, disks.ErrNoMatch):
		return ErrRecoveryNotFound
	case handlerErr != nil && errors.Is(err, handlerErr):
		// The pipeline itself failed; the probe only relayed it.
		return err
	default:
		return &ProbeError{Err: err}
	}
}

func (u *Upgrader) install(ctx context.Context, recoveryPath string, resolveISO func(context.Context) (string, func(), error)) error {
	if _, err := os.Stat(u.cfg.EFIDir); err != nil {
		return ErrEfiNotFound
	}

	fsUUID, err := u.UUIDOf(ctx, recoveryPath)
	if err != nil {
		return &ProbeError{Err: err}
	}
	casperDir := "casper-" + fsUUID
	efiRecoveryDir := filepath.Join(u.cfg.EFIDir, "Recovery-"+fsUUID)

	iso, cleanup, err := resolveISO(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	isoMount, unmount, err := u.Mounter.MountTemp(ctx, iso, "iso9660")
	if err != nil {
		return err
	}
	defer func() {
		if err := unmount(); err != nil {
			u.Log.Warn().Err(err).Msg("ISO unmount failed")
		}
	}()

	u.Log.Info().Str("iso", iso).Str("recovery", recoveryPath).Msg("synchronizing recovery partition")
	err = u.Syncer.MirrorAll([]mirror.Pair{
		{Source: filepath.Join(isoMount, ".disk"), Dest: filepath.Join(recoveryPath, ".disk")},
		{Source: filepath.Join(isoMount, "dists"), Dest: filepath.Join(recoveryPath, "dists")},
		{Source: filepath.Join(isoMount, "pool"), Dest: filepath.Join(recoveryPath, "pool")},
		{Source: filepath.Join(isoMount, "casper"), Dest: filepath.Join(recoveryPath, casperDir)},
	})
	if err != nil {
		return err
	}

	// The EFI payloads come from the casper tree the mirror above just
	// populated, so this copy must run last.
	if err := os.MkdirAll(efiRecoveryDir, 0o755); err != nil {
		return err
	}
	for _, name := range []string{"initrd.gz", "vmlinuz.efi"} {
		src := filepath.Join(recoveryPath, casperDir, name)
		if err := mirror.CopyFile(src, filepath.Join(efiRecoveryDir, name)); err != nil {
			return fmt.Errorf("copy boot payload %s: %w", name, err)
		}
	}

	u.Log.Info().Str("uuid", fsUUID).Msg("recovery partition upgrade complete")
	return nil
}

// fromRelease downloads and verifies the ISO for the requested
// release into a private temporary directory.
func (u *Upgrader) fromRelease(ctx context.Context, version, arch string, next bool) (string, func(), error) {
	version, arch, err := u.resolveTarget(ctx, version, arch, next)
	if err != nil {
		return "", nil, err
	}

	rel, err := u.Catalog.Get(ctx, version, arch)
	if err != nil {
		return "", nil, &CatalogError{Err: err}
	}

	dir, err := os.MkdirTemp("", "upgrade-iso-")
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrTempResource, err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	path := filepath.Join(dir, "new.iso")
	if err := u.download(ctx, rel, path); err != nil {
		cleanup()
		return "", nil, &DownloadError{Err: err}
	}
	return path, cleanup, nil
}

func (u *Upgrader) resolveTarget(ctx context.Context, version, arch string, next bool) (string, string, error) {
	if arch == "" {
		detected, err := u.Resolver.Arch.DetectArch()
		if err != nil {
			return "", "", err
		}
		arch = detected
	}
	if version != "" {
		return version, arch, nil
	}

	if next {
		version, err := u.Resolver.NextVersion()
		if err != nil {
			return "", "", err
		}
		return version, arch, nil
	}

	version, _, err := u.Resolver.Current(ctx, "")
	if err != nil {
		return "", "", err
	}
	return version, arch, nil
}

// download fetches the release ISO to path and validates its digest.
// The file is fully flushed and rewound before any byte is hashed.
func (u *Upgrader) download(ctx context.Context, rel *catalog.Release, path string) error {
	u.Log.Info().Str("url", rel.URL).Msg("downloading ISO from remote")

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := u.Fetcher.Fetch(ctx, rel.URL, file, u.Progress); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		return err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return checksum.ValidateFile(file, path, rel.SHASum)
}
