// Package fetch retrieves listings and documents over HTTP and file URIs.
//
// Every load is bounded by a load budget; a load that fails within the
// budget surfaces as a document-not-found error, which the engine treats
// as a per-item failure rather than a fatal one.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/roach88/filingindex/internal/model"
)

// Config configures the client.
type Config struct {
	// UserAgent is sent with every request. SEC endpoints reject requests
	// without a contact address in the user agent.
	UserAgent string

	// CacheDir holds cached documents for FetchFile. Empty disables the
	// cache.
	CacheDir string

	// LoadBudget bounds the wall-clock time of one load, retries included.
	// Default: 20s.
	LoadBudget time.Duration

	// RetryPause is the wait between load attempts. Default: 500ms.
	RetryPause time.Duration

	// MaxBytes bounds a response body. Default: 512MB.
	MaxBytes int64

	// Now returns the wall-clock time. Default: time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.UserAgent == "" {
		c.UserAgent = "filingindex/1.0 admin@example.com"
	}
	if c.LoadBudget <= 0 {
		c.LoadBudget = 20 * time.Second
	}
	if c.RetryPause <= 0 {
		c.RetryPause = 500 * time.Millisecond
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 512 << 20
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client loads listings and documents.
type Client struct {
	http   *http.Client
	config Config
}

// New creates a Client.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		http: &http.Client{
			Timeout: cfg.LoadBudget,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		config: cfg,
	}
}

// errPermanent marks a load failure that retrying cannot fix.
type errPermanent struct{ err error }

func (e errPermanent) Error() string { return e.err.Error() }
func (e errPermanent) Unwrap() error { return e.err }

// Fetch loads a document without touching the cache.
func (c *Client) Fetch(ctx context.Context, uri string) ([]byte, error) {
	return c.load(ctx, uri)
}

// FetchFile loads a document through the on-disk cache. With reload set,
// the cached copy is refreshed from the source first; when the refresh
// fails, a cached copy is still served.
func (c *Client) FetchFile(ctx context.Context, uri string, reload bool) ([]byte, error) {
	path, cacheable := c.cachePath(uri)
	if !cacheable {
		return c.load(ctx, uri)
	}

	if !reload {
		if data, err := os.ReadFile(path); err == nil {
			return data, nil
		}
	}

	// A failed reload returns the error, never the stale cached copy.
	data, err := c.load(ctx, uri)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("write cache %s: %w", path, err)
	}
	return data, nil
}

// CachePath returns where FetchFile caches uri, if caching applies.
func (c *Client) CachePath(uri string) (string, bool) {
	return c.cachePath(uri)
}

func (c *Client) cachePath(uri string) (string, bool) {
	if c.config.CacheDir == "" {
		return "", false
	}
	u, err := url.Parse(uri)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	p := strings.TrimPrefix(u.Path, "/")
	if p == "" || strings.HasSuffix(p, "/") {
		p += "index.html"
	}
	return filepath.Join(c.config.CacheDir, u.Scheme, u.Host, filepath.FromSlash(p)), true
}

// load reads uri, retrying transient failures until the load budget is
// spent.
func (c *Client) load(ctx context.Context, uri string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.LoadBudget)
	defer cancel()

	attempt := 0
	for {
		attempt++
		data, err := c.loadOnce(ctx, uri)
		if err == nil {
			return data, nil
		}
		var perm errPermanent
		if errors.As(err, &perm) {
			return nil, model.WrapError(model.ErrCodeDocumentNotFound, "load "+uri, perm.err)
		}
		c.config.Logger.Debug("Load attempt failed", "uri", uri, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			if cause := context.Cause(ctx); errors.Is(cause, context.Canceled) {
				return nil, cause
			}
			return nil, model.WrapError(model.ErrCodeDocumentNotFound,
				fmt.Sprintf("load %s: gave up after %d attempt(s)", uri, attempt), err)
		case <-time.After(c.config.RetryPause):
		}
	}
}

func (c *Client) loadOnce(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errPermanent{fmt.Errorf("parse uri: %w", err)}
	}

	switch u.Scheme {
	case "file":
		data, err := os.ReadFile(filePath(u))
		if err != nil {
			return nil, errPermanent{err}
		}
		return data, nil
	case "http", "https":
	default:
		return nil, errPermanent{fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, errPermanent{fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, errPermanent{fmt.Errorf("http %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func filePath(u *url.URL) string {
	if u.Opaque != "" {
		return filepath.FromSlash(u.Opaque)
	}
	return filepath.FromSlash(u.Path)
}
