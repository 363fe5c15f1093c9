// Package catalog talks to the remote release catalog API. Given a
// release version and architecture it resolves the installer ISO's
// download URL, checksum, and build number.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Release is the catalog's descriptor for one installer build.
type Release struct {
	Version string `json:"version"`
	URL     string `json:"url"`
	SHASum  string `json:"sha_sum"`
	Build   int    `json:"build"`
	Size    int64  `json:"size"`
}

// TransportError reports that the catalog could not be reached at all.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("catalog request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a non-success response from the catalog.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog returned status %d for %s", e.Code, e.URL)
}

// DecodeError reports a response body the client could not interpret.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("catalog response from %s is malformed: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Client queries the release catalog. The zero HTTP field uses a
// client with a sane timeout.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Log     zerolog.Logger
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// Get resolves the release descriptor for (version, arch).
func (c *Client) Get(ctx context.Context, version, arch string) (*Release, error) {
	url := fmt.Sprintf("%s/builds/%s/%s", c.BaseURL, version, arch)
	c.Log.Debug().Str("url", url).Msg("querying release catalog")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, &DecodeError{URL: url, Err: err}
	}
	if rel.URL == "" || rel.SHASum == "" {
		return nil, &DecodeError{URL: url, Err: fmt.Errorf("descriptor missing url or sha_sum")}
	}
	return &rel, nil
}

// BuildExists returns the build number published for (version, arch).
func (c *Client) BuildExists(ctx context.Context, version, arch string) (int, error) {
	rel, err := c.Get(ctx, version, arch)
	if err != nil {
		return 0, err
	}
	return rel.Build, nil
}
