package release

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrVersionDetection means the installed OS release could not be read.
var ErrVersionDetection = errors.New("cannot detect current OS release")

// ErrArchDetection means the machine architecture could not be mapped
// to a catalog architecture string.
var ErrArchDetection = errors.New("cannot detect release architecture")

// VersionDetector reads the installed OS's major/minor identifiers.
// Injected so resolution logic is testable off a target machine.
type VersionDetector interface {
	DetectVersion() (major, minor int, err error)
}

// ArchDetector maps the running machine onto a catalog architecture.
type ArchDetector interface {
	DetectArch() (string, error)
}

// OSRelease detects the version from an os-release file. The zero
// value reads /etc/os-release.
type OSRelease struct {
	Path string
}

func (o OSRelease) DetectVersion() (int, int, error) {
	path := o.Path
	if path == "" {
		path = "/etc/os-release"
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrVersionDetection, err)
	}
	for _, line := range strings.Split(string(b), "\n") {
		val, ok := strings.CutPrefix(line, "VERSION_ID=")
		if !ok {
			continue
		}
		return parseVersionID(strings.Trim(val, `"`))
	}
	return 0, 0, fmt.Errorf("%w: no VERSION_ID in %s", ErrVersionDetection, path)
}

func parseVersionID(v string) (int, int, error) {
	major, minor, ok := strings.Cut(v, ".")
	if !ok {
		return 0, 0, fmt.Errorf("%w: malformed VERSION_ID %q", ErrVersionDetection, v)
	}
	maj, err := strconv.Atoi(major)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: malformed VERSION_ID %q", ErrVersionDetection, v)
	}
	min, err := strconv.Atoi(minor)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: malformed VERSION_ID %q", ErrVersionDetection, v)
	}
	return maj, min, nil
}

// Uname detects the architecture from uname(2).
type Uname struct{}

func (Uname) DetectArch() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", fmt.Errorf("%w: %v", ErrArchDetection, err)
	}
	machine := unix.ByteSliceToString(uts.Machine[:])
	return mapArch(machine)
}

func mapArch(machine string) (string, error) {
	switch machine {
	case "x86_64", "amd64":
		return "intel", nil
	default:
		return "", fmt.Errorf("%w: unsupported machine %q", ErrArchDetection, machine)
	}
}
