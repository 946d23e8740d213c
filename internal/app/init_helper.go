package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/agencydesk/agencydesk/internal/storage"
)

// Bootstrap creates and initializes the database at path, seeding the
// default administrator, and closes it again. Running it against an
// initialized database changes nothing.
func Bootstrap(ctx context.Context, path string, opts storage.Options) error {
	if path == "" {
		return fmt.Errorf("%w: database path is required", ErrValidation)
	}

	store, err := storage.Open(ctx, filepath.Clean(path), opts)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("bootstrap database: close store: %w", err)
	}
	return nil
}
