package store

import (
	"context"
	"strings"
)

// Store is the combined job and usage persistence used by the binaries.
type Store interface {
	JobStore
	UsageStore
	Close() error
}

// Open returns the PostgreSQL store for a non-empty DSN and an in-memory
// store otherwise.
func Open(ctx context.Context, dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return NewMemoryJobStore(), nil
	}
	pg, err := NewPostgresJobStore(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return pg, nil
}

func (s *MemoryJobStore) Close() error { return nil }
