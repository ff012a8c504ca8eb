// Package session provides the per-request session handle the identity
// bridge reads and writes, and the stores that persist it.
package session

import (
	"context"
	"net/http"
)

// Session is a request-scoped view of a session's key/value pairs.
// Mutations are buffered until Save.
type Session interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string) bool

	// Renew discards the session's identifier on the next Save and issues
	// a fresh one, keeping the values. Call it before binding a user.
	Renew()

	Save(ctx context.Context) error
}

// Store loads the session belonging to a request. Sessions returned by
// Load write their cookie to w on Save, so Save must run before the
// response header is written.
type Store interface {
	Load(w http.ResponseWriter, r *http.Request) (Session, error)
}

// values is the in-memory state shared by every Session implementation.
type values struct {
	data  map[string]string
	dirty bool
	renew bool
}

func newValues(data map[string]string) values {
	copied := make(map[string]string, len(data))
	for k, v := range data {
		copied[k] = v
	}
	return values{data: copied}
}

func (v *values) Get(key string) (string, bool) {
	val, ok := v.data[key]
	return val, ok
}

func (v *values) Set(key, value string) {
	if cur, ok := v.data[key]; ok && cur == value {
		return
	}
	v.data[key] = value
	v.dirty = true
}

func (v *values) Delete(key string) bool {
	if _, ok := v.data[key]; !ok {
		return false
	}
	delete(v.data, key)
	v.dirty = true
	return true
}

func (v *values) Renew() {
	v.renew = true
	v.dirty = true
}

func (v *values) snapshot() map[string]string {
	out := make(map[string]string, len(v.data))
	for k, val := range v.data {
		out[k] = val
	}
	return out
}

// Memory is a Session with no backing store. Save and Renew only count
// calls.
type Memory struct {
	values
	Saves  int
	Renews int
}

// NewMemory returns a Memory session seeded with data.
func NewMemory(data map[string]string) *Memory {
	return &Memory{values: newValues(data)}
}

// Save implements Session.
func (m *Memory) Save(context.Context) error {
	m.Saves++
	m.dirty = false
	m.renew = false
	return nil
}

// Renew implements Session.
func (m *Memory) Renew() {
	m.Renews++
	m.values.Renew()
}

// Values returns a copy of the current key/value pairs.
func (m *Memory) Values() map[string]string {
	return m.snapshot()
}
