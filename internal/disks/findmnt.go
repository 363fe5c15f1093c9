package disks

import (
	"context"
	"fmt"
	"time"

	"github.com/Daasin/upgrade/pkg/shell"
)

// FindmntUUID returns the filesystem UUID of whatever is mounted at
// path. Per-UUID directory names on the recovery and EFI partitions
// are derived from this value, so it must be stable across remounts.
func FindmntUUID(ctx context.Context, path string) (string, error) {
	out, err := shell.Line(ctx, 5*time.Second, "findmnt", "-rn", "-o", "UUID", path)
	if err != nil {
		return "", fmt.Errorf("findmnt %s: %w", path, err)
	}
	if out == "" {
		return "", fmt.Errorf("findmnt %s: no UUID reported", path)
	}
	return out, nil
}
