package vectorindex

import (
	"context"
	"errors"
	"fmt"
)

// ErrIndexNotFound matches every IndexNotFoundError via errors.Is.
var ErrIndexNotFound = errors.New("index not found")

// IndexNotFoundError is returned by Load when no complete, valid index
// exists at Path.
type IndexNotFoundError struct {
	Path string
	Err  error
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("index not found at %s: %v", e.Path, e.Err)
}

func (e *IndexNotFoundError) Unwrap() error { return e.Err }

func (e *IndexNotFoundError) Is(target error) bool { return target == ErrIndexNotFound }

// Store persists whole indexes. Save replaces any previous index atomically.
type Store interface {
	Save(ctx context.Context, idx *Index) error
	Load(ctx context.Context) (*Index, error)
}
