// Package release decides which release a machine runs, which one it
// should move to, and whether an installer build exists for it.
package release

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Daasin/upgrade/internal/catalog"
)

// BuildKind tags a BuildStatus variant.
type BuildKind int

const (
	// BuildAvailable means the catalog published a build for the target.
	BuildAvailable BuildKind = iota
	// BuildBlacklisted means policy forbids the transition outright.
	BuildBlacklisted
	// BuildConnectionIssue means the catalog was unreachable.
	BuildConnectionIssue
	// BuildServerIssue means the catalog answered with a non-success status.
	BuildServerIssue
	// BuildInternalIssue covers every other catalog-level failure.
	BuildInternalIssue
)

// BuildStatus classifies whether an installer build exists for a
// target release, and why not if absent.
type BuildStatus struct {
	Kind  BuildKind
	Build int   // valid when Kind == BuildAvailable
	Code  int   // HTTP status when Kind == BuildServerIssue
	Err   error // cause when Kind is a connection or internal issue
}

func Available(build int) BuildStatus {
	return BuildStatus{Kind: BuildAvailable, Build: build}
}

func Blacklisted() BuildStatus {
	return BuildStatus{Kind: BuildBlacklisted}
}

// FromQuery maps a catalog build-existence result onto a BuildStatus.
func FromQuery(build int, err error) BuildStatus {
	if err == nil {
		return Available(build)
	}
	var te *catalog.TransportError
	if errors.As(err, &te) {
		return BuildStatus{Kind: BuildConnectionIssue, Err: err}
	}
	var se *catalog.StatusError
	if errors.As(err, &se) {
		return BuildStatus{Kind: BuildServerIssue, Code: se.Code, Err: err}
	}
	return BuildStatus{Kind: BuildInternalIssue, Err: err}
}

// IsOk reports whether a build is actually available.
func (s BuildStatus) IsOk() bool { return s.Kind == BuildAvailable }

// StatusCode flattens the status for callers that speak exit codes:
// the build number when available, a fixed negative code otherwise.
func (s BuildStatus) StatusCode() int {
	switch s.Kind {
	case BuildAvailable:
		return s.Build
	case BuildInternalIssue:
		return -1
	case BuildServerIssue:
		return -2
	case BuildConnectionIssue:
		return -3
	default:
		return -4
	}
}

// Equal compares by variant kind only, except that two available
// builds must also agree on the build number.
func (s BuildStatus) Equal(o BuildStatus) bool {
	if s.Kind != o.Kind {
		return false
	}
	if s.Kind == BuildAvailable {
		return s.Build == o.Build
	}
	return true
}

func (s BuildStatus) String() string {
	switch s.Kind {
	case BuildAvailable:
		return fmt.Sprintf("available (build %d)", s.Build)
	case BuildBlacklisted:
		return "blacklisted"
	case BuildConnectionIssue:
		return fmt.Sprintf("connection issue: %v", s.Err)
	case BuildServerIssue:
		return fmt.Sprintf("server issue: status %d", s.Code)
	default:
		return fmt.Sprintf("internal issue: %v", s.Err)
	}
}

func (s BuildStatus) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind  string `json:"kind"`
		Build *int   `json:"build,omitempty"`
		Code  *int   `json:"status,omitempty"`
		Cause string `json:"cause,omitempty"`
	}{}
	switch s.Kind {
	case BuildAvailable:
		out.Kind = "available"
		out.Build = &s.Build
	case BuildBlacklisted:
		out.Kind = "blacklisted"
	case BuildConnectionIssue:
		out.Kind = "connection-issue"
	case BuildServerIssue:
		out.Kind = "server-issue"
		out.Code = &s.Code
	default:
		out.Kind = "internal-issue"
	}
	if s.Err != nil {
		out.Cause = s.Err.Error()
	}
	return json.Marshal(out)
}

// Status describes the upgrade path from the running release.
// Computed fresh per query, never persisted.
type Status struct {
	Current string      `json:"current"`
	Next    string      `json:"next"`
	Build   BuildStatus `json:"build"`
	IsLTS   bool        `json:"is_lts"`
}
