package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User states
const (
	UserStateActive  = "active"
	UserStateDeleted = "deleted"
)

// User is a local account. Name is the canonical username bound into the
// session; EPPN links the account to its federation identity and is the
// key used when the identity API is unreachable.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID          string     `bun:"id,pk,type:uuid"`
	Name        string     `bun:"name,notnull,unique"`
	EPPN        *string    `bun:"eppn,unique"`
	Email       string     `bun:"email,notnull,default:''"`
	FullName    string     `bun:"fullname,notnull,default:''"`
	Sysadmin    bool       `bun:"sysadmin,notnull,default:false"`
	State       string     `bun:"state,notnull,default:'active'"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	LastLoginAt *time.Time `bun:"last_login_at"`
}

// IsActive reports whether the account may be bound to a session.
func (u *User) IsActive() bool {
	return u != nil && u.State != UserStateDeleted
}

// EPPNValue returns the federation identifier or "" when unset.
func (u *User) EPPNValue() string {
	if u == nil || u.EPPN == nil {
		return ""
	}
	return *u.EPPN
}
