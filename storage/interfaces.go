package storage

import (
	"context"
	"errors"

	"affiliate-poster/models"
)

var (
	// ErrPostExists is returned when a post file is already on disk.
	ErrPostExists = errors.New("storage: post already exists")
	// ErrInvalidFileName is returned for names that are empty or carry a
	// path component.
	ErrInvalidFileName = errors.New("storage: invalid post file name")
)

// Ledger is the append-only record of product ids that have been posted.
// Implementations never rewrite or compact previously recorded ids.
type Ledger interface {
	// Load returns every recorded id.
	Load(ctx context.Context) ([]string, error)
	// Record appends id. Recording an id that is already present is a no-op.
	Record(ctx context.Context, id models.ProductID) error
	Close() error
}

// PostWriter persists rendered posts.
type PostWriter interface {
	// Write creates the post and returns its path. It fails with
	// ErrPostExists instead of overwriting.
	Write(post *models.Post) (string, error)
}
