// Package fetch implements the HTTP resource fetcher and its two on-disk
// cache variants (spec.md §4.8): a TTL cache for the shell-project archive
// and a version-marker cache for companion Java sources.
package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/krkrport/mnemonic/pkg/errs"
)

// Fetcher performs GET requests with redirect-following and a timeout,
// classifying failures per spec.md §4.8.
type Fetcher struct {
	Client *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{Client: &http.Client{Timeout: timeout}}
}

// Get downloads url and returns the response body. Errors classify as
// NetworkError (transport-level failure), HTTPError (non-2xx status, the
// status code recorded via Error.Status), or TimeoutError.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.NetworkError, url, err.Error())
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, errs.New(errs.TimeoutError, url, "request exceeded timeout")
		}
		return nil, errs.New(errs.NetworkError, url, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.HTTP(url, resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(errs.NetworkError, url, "failed reading response body: "+err.Error())
	}
	return body, nil
}

// isTimeout recognizes both a context deadline and the net.Error.Timeout
// signal http.Client.Timeout produces.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// GetToFile downloads url and writes the body to destPath, creating parent
// directories as needed.
func (f *Fetcher) GetToFile(ctx context.Context, url, destPath string) error {
	body, err := f.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destPath, body, 0o644)
}
