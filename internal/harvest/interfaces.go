package harvest

import (
	"context"
	"io"
)

// Fetcher issues a single GET. A nil error means Status was 200 and Body is
// readable; anything else is returned as *NetworkError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchOutcome, error)
}

// Extractor turns a fetched document into Identifiers.
type Extractor interface {
	Extract(doc []byte) ([]Identifier, error)
}

// StreamWriter persists body to dest and reports the bytes written. It closes
// body on every path. Failures are returned as *StorageError.
type StreamWriter interface {
	WriteStream(ctx context.Context, body io.ReadCloser, dest string) (int64, error)
}

// UnitProcessor runs one WorkUnit to a terminal state. Process must always
// return a result; failures are carried inside it.
type UnitProcessor interface {
	Process(ctx context.Context, unit WorkUnit) UnitResult
}

// Gate bounds concurrent work. *limiter.Limiter satisfies it.
type Gate interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

// ProcessorFunc adapts a function to UnitProcessor.
type ProcessorFunc func(ctx context.Context, unit WorkUnit) UnitResult

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, unit WorkUnit) UnitResult {
	return f(ctx, unit)
}
