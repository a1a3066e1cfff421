package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotExist is returned when an object key has no stored object.
var ErrNotExist = errors.New("storage: object does not exist")

// Backend stores catalog export archives under slash-separated keys.
type Backend interface {
	// Open returns a reader for the object stored at key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Create returns a writer for key. The object becomes visible only
	// after Close succeeds; an aborted writer leaves any previous object
	// in place.
	Create(ctx context.Context, key string) (Writer, error)

	Has(ctx context.Context, key string) (bool, error)

	Delete(ctx context.Context, key string) error

	// List returns the sorted keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Writer is an object being written. Abort discards the partial object.
type Writer interface {
	io.WriteCloser
	Abort() error
}
