// Package gcs implements harvest.StreamWriter on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/sports-harvester/internal/harvest"
	"github.com/JakeFAU/sports-harvester/internal/metrics"
	storagecopy "github.com/JakeFAU/sports-harvester/internal/storage"
)

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
	// ChunkSize is the read size used while copying bodies.
	ChunkSize int
	// UploadChunkSize is passed to storage.Writer.ChunkSize; 0 sends each
	// object in a single request.
	UploadChunkSize int
}

// Writer streams bodies into objects named after the destination path.
type Writer struct {
	client          *storage.Client
	bucket          string
	prefix          string
	chunkSize       int
	uploadChunkSize int
}

// New creates a GCS-backed writer.
func New(client *storage.Client, cfg Config) (*Writer, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &Writer{
		client:          client,
		bucket:          cfg.Bucket,
		prefix:          strings.Trim(cfg.Prefix, "/"),
		chunkSize:       cfg.ChunkSize,
		uploadChunkSize: cfg.UploadChunkSize,
	}, nil
}

// ObjectName maps a destination path onto an object key.
func (w *Writer) ObjectName(dest string) string {
	name := strings.TrimLeft(filepath.ToSlash(filepath.Clean(dest)), "/")
	name = strings.TrimPrefix(name, "./")
	if w.prefix == "" {
		return name
	}
	return path.Join(w.prefix, name)
}

// WriteStream uploads body to the object for dest. A failed copy cancels the
// upload so no partial object is committed.
func (w *Writer) WriteStream(ctx context.Context, body io.ReadCloser, dest string) (n int64, err error) {
	defer func() {
		if closeErr := body.Close(); closeErr != nil && err == nil {
			err = &harvest.StorageError{Path: dest, Op: harvest.OpClose, Err: closeErr}
		}
		metrics.ObserveStorageWrite("gcs", err)
	}()

	name := w.ObjectName(dest)
	if name == "" || name == "." {
		return 0, &harvest.StorageError{Path: dest, Op: harvest.OpOpen, Err: errors.New("empty object name")}
	}
	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := w.client.Bucket(w.bucket).Object(name).NewWriter(uploadCtx)
	writer.ChunkSize = w.uploadChunkSize

	n, err = storagecopy.CopyChunks(ctx, writer, body, w.chunkSize)
	if err != nil {
		cancel()
		_ = writer.Close()
		return n, storagecopy.AsStorageError(dest, err)
	}
	if err := writer.Close(); err != nil {
		return n, &harvest.StorageError{Path: dest, Op: harvest.OpClose, Err: fmt.Errorf("commit gs://%s/%s: %w", w.bucket, name, err)}
	}
	return n, nil
}
