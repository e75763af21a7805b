// Package assetstore implements asset.Store over HTTP and the local
// filesystem.
package assetstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/skincheck/internal/domain/asset"
	"github.com/okian/skincheck/pkg/logger"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxBytes = 512 << 20
)

// HTTPStore fetches assets with GET requests. It never retries.
type HTTPStore struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	log      logger.Logger
}

// NewHTTPStore creates an HTTP store.
func NewHTTPStore(opts ...Option) *HTTPStore {
	s := &HTTPStore{
		client:   http.DefaultClient,
		timeout:  defaultTimeout,
		maxBytes: defaultMaxBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Named("assetstore")
	}
	return s
}

// Fetch downloads ref.
func (s *HTTPStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrTransport, ref, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrTransport, ref, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrTransport, ref, err)
	}
	if int64(len(body)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, ref, s.maxBytes)
	}

	s.log.Debug(ctx, "asset fetched",
		logger.String("ref", ref),
		logger.Int("bytes", len(body)),
		logger.Duration("elapsed", time.Since(start)))
	return body, nil
}

// FileStore reads assets from disk. Refs are paths, optionally file:// URLs.
type FileStore struct{}

// Fetch reads ref from disk.
func (FileStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.FromSlash(strings.TrimPrefix(ref, "file://"))
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return b, nil
}

// ForBase picks the store that understands base: HTTP for http(s) URLs,
// the filesystem otherwise.
func ForBase(base string, opts ...Option) asset.Store {
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		return NewHTTPStore(opts...)
	}
	return FileStore{}
}
