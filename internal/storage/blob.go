// Package storage defines the blob store abstraction used for sitemaps and
// exported artifacts, plus a constructor that selects a backend from config.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JakeFAU/location-crawler/internal/storage/gcs"
	"github.com/JakeFAU/location-crawler/internal/storage/local"
	"github.com/JakeFAU/location-crawler/internal/storage/memory"
)

// ErrNotFound is returned by ReadObject for a missing path.
var ErrNotFound = errors.New("object not found")

// BlobStore persists named artifacts.
type BlobStore interface {
	// PutObject writes data at path and returns a URI for it.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// ReadObject returns the content stored at path.
	ReadObject(ctx context.Context, path string) ([]byte, error)
	// Exists reports whether path has been written.
	Exists(ctx context.Context, path string) (bool, error)
}

// Backend names a BlobStore implementation.
type Backend string

// Supported backends.
const (
	BackendLocal  Backend = "local"
	BackendMemory Backend = "memory"
	BackendGCS    Backend = "gcs"
)

// Config selects and configures a backend.
type Config struct {
	Backend Backend `mapstructure:"backend"`
	BaseDir string  `mapstructure:"base_dir"`
	Bucket  string  `mapstructure:"bucket"`
	Prefix  string  `mapstructure:"prefix"`
}

// Open builds the configured BlobStore. The returned close func releases any
// client the store owns.
func Open(ctx context.Context, cfg Config) (BlobStore, func() error, error) {
	noop := func() error { return nil }
	switch Backend(strings.ToLower(string(cfg.Backend))) {
	case BackendLocal, "":
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, nil, fmt.Errorf("open local blob store: %w", err)
		}
		return localStore{store}, noop, nil
	case BackendMemory:
		return memoryStore{memory.NewBlobStore()}, noop, nil
	case BackendGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, nil, fmt.Errorf("open gcs blob store: %w", err)
		}
		return gcsStore{store}, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}

// The adapters translate each backend's not-found error into ErrNotFound.

type localStore struct{ *local.BlobStore }

func (s localStore) ReadObject(ctx context.Context, path string) ([]byte, error) {
	data, err := s.BlobStore.ReadObject(ctx, path)
	if errors.Is(err, local.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return data, err
}

type memoryStore struct{ *memory.BlobStore }

func (s memoryStore) ReadObject(_ context.Context, path string) ([]byte, error) {
	data, ok := s.BlobStore.Get(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return data, nil
}

type gcsStore struct{ *gcs.BlobStore }

func (s gcsStore) ReadObject(ctx context.Context, path string) ([]byte, error) {
	data, err := s.BlobStore.ReadObject(ctx, path)
	if errors.Is(err, gcs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return data, err
}
