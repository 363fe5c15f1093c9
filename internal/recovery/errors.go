package recovery

import (
	"errors"
	"fmt"
)

// Stable failure kinds for the upgrade pipeline. Contextful failures
// (fetch, checksum, catalog) carry their own typed errors from the
// packages that raise them; these sentinels and wrappers cover the
// rest so callers can match with errors.Is / errors.As.
var (
	ErrIsoNotFound      = errors.New("ISO does not exist at path")
	ErrRecoveryNotFound = errors.New("recovery partition was not found")
	ErrEfiNotFound      = errors.New("EFI partition was not found")
	ErrTempResource     = errors.New("failed to create temporary directory for ISO")
	ErrNotImplemented   = errors.New("default-boot is not implemented")
)

// ProbeError means scanning for the recovery partition itself failed,
// as opposed to the partition simply not being there.
type ProbeError struct {
	Err error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("failed to probe for recovery partition: %v", e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// DownloadError wraps a failure inside the acquisition step (catalog
// resolution, transfer, or checksum), distinguishing it from failures
// of the surrounding pipeline.
type DownloadError struct {
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download ISO: %v", e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// CatalogError wraps the remote catalog's failure taxonomy.
type CatalogError struct {
	Err error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("failed to fetch release data from server: %v", e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }
