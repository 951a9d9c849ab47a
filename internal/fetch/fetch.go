// Package fetch resolves image locations to bytes.
//
// A location is an http(s) URL, a file:// URL or a plain filesystem path.
// Every failure is reported as errors.CodeResourceUnavailable so callers can
// treat one unreachable image as a per-item problem.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/logging"
)

// DefaultTimeout bounds a single fetch when Client.Timeout is unset.
const DefaultTimeout = 5 * time.Second

// MaxBytes caps a single response body.
const MaxBytes = 256 << 20

// Client fetches image bytes from URLs and local paths.
type Client struct {
	HTTP    *http.Client
	Timeout time.Duration
}

// NewClient creates a client whose every fetch is bounded by timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		HTTP:    &http.Client{},
		Timeout: timeout,
	}
}

// Fetch returns the bytes at location.
//
// The timeout applies to this call only; a slow image never cancels fetches
// running alongside it. ctx cancellation still aborts the request.
func (c *Client) Fetch(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, errors.Input("empty location")
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logging.FromContext(ctx).Debug("fetching", "location", location)

	switch {
	case IsRemote(location):
		return c.fetchHTTP(ctx, location)
	case strings.HasPrefix(location, "file://"):
		u, err := url.Parse(location)
		if err != nil {
			return nil, errors.Wrap(errors.CodeInput, err, "parse location %s", location)
		}
		return readFile(ctx, u.Path)
	default:
		return readFile(ctx, location)
	}
}

// IsRemote reports whether location is an http or https URL.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

func (c *Client) fetchHTTP(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInput, err, "build request for %s", location)
	}
	req.Header.Set("Accept", "image/*")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Unavailable(err, "fetch %s", location)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Unavailable(fmt.Errorf("unexpected status %d", resp.StatusCode), "fetch %s", location)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBytes+1))
	if err != nil {
		return nil, errors.Unavailable(err, "read body of %s", location)
	}
	if len(data) > MaxBytes {
		return nil, errors.Unavailable(fmt.Errorf("body exceeds %d bytes", MaxBytes), "fetch %s", location)
	}
	return data, nil
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Unavailable(err, "read %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Unavailable(err, "read %s", path)
	}
	return data, nil
}
