// Package storage archives game summaries as one JSON document,
// path-addressed so the admin API can serve slices of it without a
// schema. The protocol core writes here on game events; nothing in the
// core ever reads its own state back out of the archive.
package storage

import "context"

// Update announces one recorded path to archive listeners.
type Update struct {
	Path  string
	Value []byte
}

type Store interface {
	Record(ctx context.Context, path string, value interface{}) error
	Query(ctx context.Context, path string) ([]byte, error)

	Restore(values []byte) error
	Backup() ([]byte, error)

	ListenToUpdates() <-chan *Update

	Close() error
}
