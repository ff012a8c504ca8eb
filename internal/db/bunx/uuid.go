package bunx

import "github.com/google/uuid"

// NewUUIDv7 returns a time-ordered UUIDv7 string for primary keys. Keys are
// generated in Go so SQLite and PostgreSQL behave the same.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
