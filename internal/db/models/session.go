package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Session is a server-side session. The browser only holds the token; the
// table stores its SHA-256 hash and the session values.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:sess"`

	ID        string        `bun:"id,pk,type:uuid"`
	TokenHash string        `bun:"token_hash,notnull,unique"`
	Values    SessionValues `bun:"data,type:text,notnull"`
	ExpiresAt time.Time     `bun:"expires_at,notnull"`
	CreatedAt time.Time     `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time     `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// IsExpired reports whether the session is past its expiry at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionValues is the key/value payload of a session, stored as JSON.
type SessionValues map[string]string

// Scan implements sql.Scanner for reading from database
func (v *SessionValues) Scan(value any) error {
	if value == nil {
		*v = make(SessionValues)
		return nil
	}
	var data []byte
	switch raw := value.(type) {
	case []byte:
		data = raw
	case string:
		data = []byte(raw)
	default:
		return fmt.Errorf("failed to scan SessionValues: expected []byte or string, got %T", value)
	}
	out := make(SessionValues)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("failed to scan SessionValues: %w", err)
		}
	}
	*v = out
	return nil
}

// Value implements driver.Valuer for writing to database
func (v SessionValues) Value() (driver.Value, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(map[string]string(v))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
