package release

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrUnsupportedRelease means the running system is outside the known
// upgrade graph. This is unrecoverable: guessing a transition could
// write the wrong installer onto the recovery partition.
var ErrUnsupportedRelease = errors.New("this release is not supported for recovery upgrades")

// Catalog is the build-existence slice of the remote catalog client.
type Catalog interface {
	BuildExists(ctx context.Context, version, arch string) (int, error)
}

// transition is one row of the fixed forward-upgrade table.
type transition struct {
	current string
	next    string
	lts     bool
	// gated transitions query the catalog only when the caller opts
	// into development targets; otherwise they are blacklisted.
	gated bool
	// blocked transitions are blacklisted unconditionally, without a
	// catalog query.
	blocked bool
}

var transitions = map[[2]int]transition{
	{18, 4}:  {current: "18.04", next: "20.04", lts: true},
	{19, 10}: {current: "19.10", next: "20.04"},
	{20, 4}:  {current: "20.04", next: "20.10", lts: true},
	{20, 10}: {current: "20.10", next: "21.04", gated: true},
	{21, 4}:  {current: "21.04", next: "21.10", blocked: true},
}

// ReleaseString canonicalizes detected (major, minor) identifiers.
func ReleaseString(major, minor int) (string, error) {
	t, ok := transitions[[2]int{major, minor}]
	if !ok {
		return "", fmt.Errorf("%w: %d.%d", ErrUnsupportedRelease, major, minor)
	}
	return t.current, nil
}

// Resolver determines the current and next release for this machine.
type Resolver struct {
	Catalog  Catalog
	Versions VersionDetector
	Arch     ArchDetector
	Log      zerolog.Logger
}

// Current resolves the release to operate on and its build number.
// An explicit override version is looked up as-is; otherwise the
// installed release is detected and canonicalized.
func (r *Resolver) Current(ctx context.Context, override string) (string, int, error) {
	arch, err := r.Arch.DetectArch()
	if err != nil {
		return "", 0, err
	}

	version := override
	if version == "" {
		major, minor, err := r.Versions.DetectVersion()
		if err != nil {
			return "", 0, err
		}
		version, err = ReleaseString(major, minor)
		if err != nil {
			return "", 0, err
		}
	}

	build, err := r.Catalog.BuildExists(ctx, version, arch)
	if err != nil {
		return "", 0, fmt.Errorf("no build found for %s: %w", version, err)
	}
	return version, build, nil
}

// Next applies the forward-transition table to the detected release.
// development opens up transitions gated behind development targets.
func (r *Resolver) Next(ctx context.Context, development bool) (Status, error) {
	major, minor, err := r.Versions.DetectVersion()
	if err != nil {
		return Status{}, err
	}

	t, ok := transitions[[2]int{major, minor}]
	if !ok {
		return Status{}, fmt.Errorf("%w: %d.%d", ErrUnsupportedRelease, major, minor)
	}

	status := Status{Current: t.current, Next: t.next, IsLTS: t.lts}
	switch {
	case t.blocked:
		status.Build = Blacklisted()
	case t.gated && !development:
		status.Build = Blacklisted()
	default:
		status.Build = r.queryBuild(ctx, t.next)
	}

	r.Log.Info().
		Str("current", status.Current).
		Str("next", status.Next).
		Bool("lts", status.IsLTS).
		Stringer("build", status.Build).
		Msg("release status resolved")
	return status, nil
}

// NextVersion returns the next release in the table for the detected
// current one. No build-availability query is made.
func (r *Resolver) NextVersion() (string, error) {
	major, minor, err := r.Versions.DetectVersion()
	if err != nil {
		return "", err
	}
	t, ok := transitions[[2]int{major, minor}]
	if !ok {
		return "", fmt.Errorf("%w: %d.%d", ErrUnsupportedRelease, major, minor)
	}
	return t.next, nil
}

func (r *Resolver) queryBuild(ctx context.Context, version string) BuildStatus {
	arch, err := r.Arch.DetectArch()
	if err != nil {
		return BuildStatus{Kind: BuildInternalIssue, Err: err}
	}
	build, err := r.Catalog.BuildExists(ctx, version, arch)
	return FromQuery(build, err)
}
