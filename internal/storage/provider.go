// Package storage holds the chunked copy loop shared by the StreamWriter
// backends. The local and gcs subpackages implement harvest.StreamWriter on
// top of it.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/JakeFAU/sports-harvester/internal/harvest"
)

// DefaultChunkSize is the read size used when none is configured.
const DefaultChunkSize = 1024

// CopyError reports which side of a chunked copy failed.
type CopyError struct {
	Op  string
	Err error
}

func (e *CopyError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the I/O error.
func (e *CopyError) Unwrap() error {
	return e.Err
}

// CopyChunks reads src in chunkSize pieces and writes each to dst in order
// until EOF. ctx is checked between chunks. It never delegates to
// io.ReaderFrom or io.WriterTo, so every transfer has the same shape.
func CopyChunks(ctx context.Context, dst io.Writer, src io.Reader, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	buf := make([]byte, chunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, &CopyError{Op: harvest.OpRead, Err: err}
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			m, writeErr := dst.Write(buf[:n])
			written += int64(m)
			if writeErr == nil && m != n {
				writeErr = io.ErrShortWrite
			}
			if writeErr != nil {
				return written, &CopyError{Op: harvest.OpWrite, Err: writeErr}
			}
		}
		if errors.Is(readErr, io.EOF) {
			return written, nil
		}
		if readErr != nil {
			return written, &CopyError{Op: harvest.OpRead, Err: readErr}
		}
	}
}

// AsStorageError converts a CopyError into a harvest.StorageError for path.
func AsStorageError(path string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CopyError
	if errors.As(err, &ce) {
		return &harvest.StorageError{Path: path, Op: ce.Op, Err: ce.Err}
	}
	var se *harvest.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &harvest.StorageError{Path: path, Op: harvest.OpWrite, Err: err}
}
