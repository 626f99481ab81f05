// Package store defines the persistence boundary: a keyed read/update
// interface over named tables, addressed by primary key, with
// partial-field updates and equality-filtered reads. Updates are assumed
// idempotent, so retrying the same payload is harmless.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

type Store interface {
	// Update merges the given fields into the record, creating it if
	// necessary.
	Update(ctx context.Context, table, key string, fields map[string]any) error
	// Get returns a copy of the record's fields.
	Get(ctx context.Context, table, key string) (map[string]any, error)
	// Query returns copies of all records whose field equals value.
	Query(ctx context.Context, table, field string, value any) ([]map[string]any, error)
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
