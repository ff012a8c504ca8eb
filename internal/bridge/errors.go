package bridge

import (
	"errors"

	"github.com/cendari/cendari-auth/internal/identityapi"
)

// ErrUserNotFound is returned by SyncSysadmin when no local account has
// the resolved username. The sync is skipped.
var ErrUserNotFound = errors.New("user not found")

// ResolutionError is the error type for failed remote username
// resolution.
type ResolutionError = identityapi.ResolutionError
