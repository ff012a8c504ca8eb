package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cendari/cendari-auth/internal/db/models"
)

// ErrNotFound is returned (wrapped) when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// UserRepository exposes persistence operations for local user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByName(ctx context.Context, name string) (*models.User, error)
	GetByEPPN(ctx context.Context, eppn string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	SetSysadmin(ctx context.Context, id string, sysadmin bool) error
	UpdateLastLogin(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.User, error)
}

// SessionRepository exposes persistence operations for server-side sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	UpdateValues(ctx context.Context, id string, values models.SessionValues, expiresAt time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}
