// Package local implements harvest.StreamWriter on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/sports-harvester/internal/harvest"
	"github.com/JakeFAU/sports-harvester/internal/metrics"
	"github.com/JakeFAU/sports-harvester/internal/storage"
)

// Config captures the parameters for the filesystem writer.
type Config struct {
	// ChunkSize is the read size used while copying bodies.
	ChunkSize int `mapstructure:"chunk_bytes" yaml:"chunk_bytes"`
	// KeepPartial leaves a truncated file behind when a copy fails.
	KeepPartial bool `mapstructure:"keep_partial" yaml:"keep_partial"`
}

// Writer streams bodies into files. Destination directories must already
// exist; see Bootstrap.
type Writer struct {
	chunkSize   int
	keepPartial bool
}

// New builds a Writer.
func New(cfg Config) *Writer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = storage.DefaultChunkSize
	}
	return &Writer{chunkSize: cfg.ChunkSize, keepPartial: cfg.KeepPartial}
}

// WriteStream truncates or creates dest, copies body into it chunk by chunk,
// and closes both on every path.
func (w *Writer) WriteStream(ctx context.Context, body io.ReadCloser, dest string) (n int64, err error) {
	defer func() {
		if closeErr := body.Close(); closeErr != nil && err == nil {
			err = &harvest.StorageError{Path: dest, Op: harvest.OpClose, Err: closeErr}
		}
		metrics.ObserveStorageWrite("local", err)
	}()

	f, err := os.OpenFile(filepath.Clean(dest), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, &harvest.StorageError{Path: dest, Op: harvest.OpOpen, Err: err}
	}

	n, err = storage.CopyChunks(ctx, f, body, w.chunkSize)
	closeErr := f.Close()
	if err == nil && closeErr != nil {
		err = &harvest.StorageError{Path: dest, Op: harvest.OpClose, Err: closeErr}
	}
	if err != nil {
		if !w.keepPartial {
			_ = os.Remove(dest)
		}
		return n, storage.AsStorageError(dest, err)
	}
	return n, nil
}

// Bootstrap creates root and one folder per category beneath it.
func Bootstrap(root string, categories []string) error {
	if strings.TrimSpace(root) == "" {
		return errors.New("output root is required")
	}
	info, err := os.Stat(root)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("output root %s is not a directory", root)
	case err != nil && !os.IsNotExist(err):
		return fmt.Errorf("stat output root: %w", err)
	}
	for _, category := range categories {
		dir := filepath.Join(root, category)
		cleanRoot := filepath.Clean(root)
		if !strings.HasPrefix(filepath.Clean(dir), cleanRoot+string(filepath.Separator)) {
			return fmt.Errorf("category %q escapes output root", category)
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create category folder %s: %w", dir, err)
		}
	}
	if len(categories) == 0 {
		if err := os.MkdirAll(root, 0o750); err != nil {
			return fmt.Errorf("create output root: %w", err)
		}
	}
	return nil
}
