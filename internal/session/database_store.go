package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cendari/cendari-auth/internal/db/models"
	"github.com/cendari/cendari-auth/internal/repository"
)

// DatabaseStore keeps session values in the sessions table. The cookie
// carries a random token; only its hash is stored.
type DatabaseStore struct {
	repo   repository.SessionRepository
	cookie CookieOptions
	now    func() time.Time
}

// NewDatabaseStore creates a store backed by repo.
func NewDatabaseStore(repo repository.SessionRepository, cookie CookieOptions) *DatabaseStore {
	return &DatabaseStore{repo: repo, cookie: cookie.withDefaults(), now: time.Now}
}

// Load implements Store. A missing, unknown or expired cookie yields an
// empty session; nothing is written until Save.
func (s *DatabaseStore) Load(w http.ResponseWriter, r *http.Request) (Session, error) {
	sess := &dbSession{store: s, w: w, values: newValues(nil)}

	cookie, err := r.Cookie(s.cookie.Name)
	if err != nil || cookie.Value == "" {
		return sess, nil
	}

	record, err := s.repo.GetByTokenHash(r.Context(), HashToken(cookie.Value))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return sess, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	sess.record = record
	sess.values = newValues(record.Values)
	return sess, nil
}

// Prune deletes expired sessions.
func (s *DatabaseStore) Prune(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx)
}

type dbSession struct {
	values
	store  *DatabaseStore
	w      http.ResponseWriter
	record *models.Session
}

func (s *dbSession) Save(ctx context.Context) error {
	if !s.dirty {
		return nil
	}
	store := s.store
	expiresAt := store.now().Add(store.cookie.MaxAge)

	// A renewed session never reuses the token it was loaded with.
	if s.renew && s.record != nil {
		if err := store.repo.Delete(ctx, s.record.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("renew session: %w", err)
		}
		s.record = nil
	}

	switch {
	case len(s.data) == 0:
		// Nothing left to keep: drop the row and the cookie.
		if s.record != nil {
			if err := store.repo.Delete(ctx, s.record.ID); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			s.record = nil
		}
		deleteCookie(s.w, store.cookie)

	case s.record == nil:
		token, tokenHash, err := GenerateToken()
		if err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		record := &models.Session{
			TokenHash: tokenHash,
			Values:    s.snapshot(),
			ExpiresAt: expiresAt,
		}
		if err := store.repo.Create(ctx, record); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		s.record = record
		setSecureCookie(s.w, store.cookie, token)

	default:
		if err := store.repo.UpdateValues(ctx, s.record.ID, s.snapshot(), expiresAt); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}

	s.dirty = false
	s.renew = false
	return nil
}
