package flags

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/flag-avatar/pkg/types"
)

//go:embed assets
var embedded embed.FS

// Loader fetches named flag assets (the manifest and bitmaps)
type Loader interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// FSLoader reads assets from a file system
type FSLoader struct {
	FS fs.FS
}

// Embedded returns a loader for the catalog compiled into the binary
func Embedded() FSLoader {
	sub, err := fs.Sub(embedded, "assets")
	if err != nil {
		panic(err)
	}
	return FSLoader{FS: sub}
}

// Fetch implements Loader
func (l FSLoader) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(l.FS, path.Clean(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, types.ErrNotFound)
	}
	return data, err
}

// HTTPLoader fetches assets relative to a base URL
type HTTPLoader struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPLoader creates a loader for assets served under baseURL
func NewHTTPLoader(baseURL string) (*HTTPLoader, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
	}
	return &HTTPLoader{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Fetch implements Loader
func (l *HTTPLoader) Fetch(ctx context.Context, name string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.BaseURL+"/"+strings.TrimPrefix(name, "/"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", name, types.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: HTTP %d", name, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// RetryLoader retries a failing loader with capped exponential backoff.
// Missing assets and cancelled contexts are not retried.
type RetryLoader struct {
	Loader     Loader
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
	Logger     *zap.Logger
}

// NewRetryLoader wraps l with the given number of attempts
func NewRetryLoader(l Loader, attempts int, backoff time.Duration) *RetryLoader {
	return &RetryLoader{
		Loader:     l,
		Attempts:   attempts,
		Backoff:    backoff,
		MaxBackoff: 2 * time.Second,
		Logger:     zap.NewNop(),
	}
}

// Fetch implements Loader
func (r *RetryLoader) Fetch(ctx context.Context, name string) ([]byte, error) {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := r.Backoff
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		data, err := r.Loader.Fetch(ctx, name)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if errors.Is(err, types.ErrNotFound) || ctx.Err() != nil || attempt == attempts {
			break
		}

		logger.Warn("asset fetch failed, retrying",
			zap.String("name", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
		if r.MaxBackoff > 0 && backoff > r.MaxBackoff {
			backoff = r.MaxBackoff
		}
	}
	return nil, lastErr
}
