// Package gcs implements a ledger.Store that keeps the ledger snapshot as a single
// object in Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/price-error-watch/internal/ledger"
)

// Config captures the parameters required to locate the ledger object.
type Config struct {
	Bucket string
	Object string
}

// object is the subset of *storage.ObjectHandle used by Store.
type object interface {
	NewReader(ctx context.Context) (io.ReadCloser, error)
	NewWriter(ctx context.Context) io.WriteCloser
}

// Store reads and rewrites the ledger snapshot object.
type Store struct {
	obj  object
	path string
}

// New creates a GCS-backed store.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if strings.TrimSpace(cfg.Object) == "" {
		cfg.Object = "ledger/price_history.json"
	}
	handle := client.Bucket(cfg.Bucket).Object(cfg.Object)
	return &Store{
		obj:  &objectHandle{handle: handle},
		path: fmt.Sprintf("gs://%s/%s", cfg.Bucket, cfg.Object),
	}, nil
}

// URI returns the gs:// location of the snapshot.
func (s *Store) URI() string {
	return s.path
}

// Load downloads and decodes the snapshot. A missing object yields ledger.ErrNotFound.
func (s *Store) Load(ctx context.Context) (ledger.Snapshot, error) {
	r, err := s.obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ledger.ErrNotFound
		}
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer func() { _ = r.Close() }()

	snap := ledger.Snapshot{}
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	return snap, nil
}

// Save uploads the whole snapshot, replacing the object.
func (s *Store) Save(ctx context.Context, snap ledger.Snapshot, _ string) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	writer := s.obj.NewWriter(ctx)
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

type objectHandle struct {
	handle *storage.ObjectHandle
}

func (o *objectHandle) NewReader(ctx context.Context) (io.ReadCloser, error) {
	r, err := o.handle.NewReader(ctx)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (o *objectHandle) NewWriter(ctx context.Context) io.WriteCloser {
	w := o.handle.NewWriter(ctx)
	w.ContentType = "application/json"
	return w
}
