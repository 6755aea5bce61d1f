// Package statestore persists view state per document and view name.
package statestore

import (
	"context"
	"errors"

	"github.com/local/tileview/internal/view"
)

// ErrNotFound is returned by Load when no state was saved.
var ErrNotFound = errors.New("view state not found")

// Store loads and saves view state.
type Store interface {
	Load(ctx context.Context, doc, viewName string) (view.State, error)
	Save(ctx context.Context, doc, viewName string, st view.State) error
	Close() error
}
