// Package fetch downloads a remote resource over several concurrent
// ranged requests, each writing its own disjoint region of the
// destination file.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultThreads          = 8
	defaultProgressInterval = time.Second
	copyChunk               = 256 * 1024
)

// Error wraps a failed transfer with the URL it was fetching.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetching from %s failed: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Progress receives (bytesSoFar, bytesTotal) at a bounded cadence.
// Purely informational; delivery timing carries no guarantees.
type Progress func(done, total int64)

// Destination is the byte sink workers write into. Disjoint ranges
// mean no locking is needed on the data path.
type Destination interface {
	io.WriterAt
	Truncate(size int64) error
}

// Fetcher performs parallel ranged downloads. Zero-value fields fall
// back to defaults.
type Fetcher struct {
	HTTP             *http.Client
	Threads          int
	ProgressInterval time.Duration
	Log              zerolog.Logger
}

func (f *Fetcher) httpClient() *http.Client {
	if f.HTTP != nil {
		return f.HTTP
	}
	return http.DefaultClient
}

func (f *Fetcher) threads() int {
	if f.Threads > 0 {
		return f.Threads
	}
	return DefaultThreads
}

// Fetch downloads url into dst, blocking until every worker finishes
// or the first one fails. The destination is pre-sized to the
// resource's advertised length; on failure its content is undefined.
func (f *Fetcher) Fetch(ctx context.Context, url string, dst Destination, progress Progress) error {
	total, ranged, err := f.resourceSize(ctx, url)
	if err != nil {
		return &Error{URL: url, Err: err}
	}

	threads := f.threads()
	if !ranged || total < int64(threads) {
		threads = 1
	}

	if total > 0 {
		if err := dst.Truncate(total); err != nil {
			return &Error{URL: url, Err: err}
		}
	}

	f.Log.Info().Str("url", url).Int64("size", total).Int("threads", threads).
		Msg("starting download")

	var done atomic.Int64
	stop := f.reportProgress(&done, total, progress)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	chunk := total / int64(threads)
	for i := 0; i < threads; i++ {
		start := int64(i) * chunk
		end := start + chunk - 1
		if i == threads-1 {
			end = total - 1
		}
		g.Go(func() error {
			return f.fetchRange(gctx, url, dst, start, end, ranged, &done)
		})
	}

	if err := g.Wait(); err != nil {
		return &Error{URL: url, Err: err}
	}
	return nil
}

// resourceSize asks the server for the resource's length and whether
// it accepts range requests.
func (f *Fetcher) resourceSize(ctx context.Context, url string) (int64, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := f.httpClient().Do(req)
	if err != nil {
		return 0, false, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	ranged := resp.Header.Get("Accept-Ranges") == "bytes" && resp.ContentLength > 0
	return resp.ContentLength, ranged, nil
}

func (f *Fetcher) fetchRange(ctx context.Context, url string, dst io.WriterAt, start, end int64, ranged bool, done *atomic.Int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	wantStatus := http.StatusOK
	if ranged {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
		wantStatus = http.StatusPartialContent
	}

	resp, err := f.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		return fmt.Errorf("range %d-%d: unexpected status %d", start, end, resp.StatusCode)
	}

	buf := make([]byte, copyChunk)
	offset := start
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := dst.WriteAt(buf[:n], offset); werr != nil {
				return werr
			}
			offset += int64(n)
			done.Add(int64(n))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// reportProgress drives the callback once per interval plus a final
// call when the transfer settles. The returned stop must be called.
func (f *Fetcher) reportProgress(done *atomic.Int64, total int64, progress Progress) func() {
	if progress == nil {
		return func() {}
	}
	interval := f.ProgressInterval
	if interval <= 0 {
		interval = defaultProgressInterval
	}

	quit := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				progress(done.Load(), total)
			case <-quit:
				progress(done.Load(), total)
				return
			}
		}
	}()

	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			close(quit)
			<-finished
		}
	}
}
