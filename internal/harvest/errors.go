package harvest

import (
	"fmt"
	"net/http"
)

// NetworkError reports a non-200 response or a transport failure. Status is
// zero when no response was received.
type NetworkError struct {
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		if e.Status != 0 {
			return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
		}
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d (%s)", e.URL, e.Status, http.StatusText(e.Status))
}

// Unwrap exposes the transport error, if any.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ExtractionError reports that a document did not have the expected structure.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract identifiers from %s: %v", e.URL, e.Err)
}

// Unwrap returns the parser error.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Storage operations named in StorageError.Op.
const (
	OpOpen  = "open"
	OpRead  = "read"
	OpWrite = "write"
	OpClose = "close"
)

// StorageError reports a failure persisting a body to Path.
type StorageError struct {
	Path string
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying I/O error.
func (e *StorageError) Unwrap() error {
	return e.Err
}
