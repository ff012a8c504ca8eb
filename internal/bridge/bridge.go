package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/cendari/cendari-auth/internal/config"
	"github.com/cendari/cendari-auth/internal/db/models"
	"github.com/cendari/cendari-auth/internal/identityapi"
	"github.com/cendari/cendari-auth/internal/repository"
	"github.com/cendari/cendari-auth/internal/session"
	"github.com/cendari/cendari-auth/internal/telemetry"
)

// Authenticator is the contract the host application drives on each
// request.
type Authenticator interface {
	Login(ctx context.Context, env Environ, sess session.Session) (LoginResult, error)
	Identify(ctx context.Context, sess session.Session) (string, bool)
	Logout(ctx context.Context, sess session.Session) (string, error)
	Configure(cfg *config.Config) error
}

// Outcome is the result class of a login attempt.
type Outcome int

const (
	// OutcomeNoAssertion: no federation attributes, session untouched.
	OutcomeNoAssertion Outcome = iota
	// OutcomeBound: the session now carries a username.
	OutcomeBound
	// OutcomeRejected: the identity API answered with something other
	// than a usable 200. No fallback is attempted.
	OutcomeRejected
	// OutcomeFallbackMiss: the identity API was unreachable and no local
	// account matched the eppn.
	OutcomeFallbackMiss
	// OutcomeError: a local failure (database, session store).
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoAssertion:
		return telemetry.LoginNoAssertion
	case OutcomeBound:
		return telemetry.LoginBound
	case OutcomeRejected:
		return telemetry.LoginRejected
	case OutcomeFallbackMiss:
		return telemetry.LoginFallbackMiss
	default:
		return telemetry.LoginError
	}
}

// Source says where a bound username came from.
type Source string

const (
	SourceIdentityAPI Source = "identity_api"
	SourceLocal       Source = "local"
)

// LoginResult describes what Login did. Redirect is set only for
// OutcomeBound.
type LoginResult struct {
	Outcome  Outcome
	Username string
	Source   Source
	Redirect string
}

// Settings is the runtime configuration installed by Configure.
type Settings struct {
	SessionKey     string
	DashboardURL   string
	LogoutURL      string
	SysadminGroups []string

	// ResolverEnabled false sends every login down the local lookup path.
	ResolverEnabled bool
}

// SettingsFromConfig extracts the bridge settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		SessionKey:      cfg.Bridge.SessionKey,
		DashboardURL:    cfg.Bridge.DashboardURL,
		LogoutURL:       cfg.Bridge.LogoutURL,
		SysadminGroups:  cfg.SysadminGroupList(),
		ResolverEnabled: cfg.IdentityAPI.Enabled,
	}
}

func (s Settings) validate() error {
	if s.SessionKey == "" {
		return fmt.Errorf("session key is required")
	}
	if s.DashboardURL == "" {
		return fmt.Errorf("dashboard url is required")
	}
	if s.LogoutURL == "" {
		return fmt.Errorf("logout url is required")
	}
	return nil
}

// Dependencies are the collaborators a Bridge calls into.
type Dependencies struct {
	Users    repository.UserRepository
	Resolver identityapi.Resolver
	Metrics  telemetry.Recorder
}

// Bridge maps federation attributes onto a local session.
type Bridge struct {
	users    repository.UserRepository
	resolver identityapi.Resolver
	metrics  telemetry.Recorder

	mu       sync.RWMutex
	settings Settings
}

var _ Authenticator = (*Bridge)(nil)

// New creates a Bridge. It must be configured before use.
func New(deps Dependencies) (*Bridge, error) {
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NoopRecorder{}
	}
	return &Bridge{
		users:    deps.Users,
		resolver: deps.Resolver,
		metrics:  deps.Metrics,
	}, nil
}

// Configure installs the settings derived from cfg.
func (b *Bridge) Configure(cfg *config.Config) error {
	return b.ConfigureSettings(SettingsFromConfig(cfg))
}

// ConfigureSettings installs s directly.
func (b *Bridge) ConfigureSettings(s Settings) error {
	if err := s.validate(); err != nil {
		return fmt.Errorf("configure bridge: %w", err)
	}
	if s.ResolverEnabled && b.resolver == nil {
		return fmt.Errorf("configure bridge: identity api enabled but no resolver wired")
	}
	s.SysadminGroups = append([]string(nil), s.SysadminGroups...)

	b.mu.Lock()
	b.settings = s
	b.mu.Unlock()
	return nil
}

// Settings returns the installed settings.
func (b *Bridge) Settings() Settings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings
}

// Login authenticates the request from its federation attributes and
// binds the resolved username into sess.
//
// A non-nil error is returned with OutcomeRejected when the identity API
// refused or garbled the answer (a *ResolutionError), and with
// OutcomeError or OutcomeFallbackMiss for local failures. In every
// non-bound case the session is left untouched.
func (b *Bridge) Login(ctx context.Context, env Environ, sess session.Session) (LoginResult, error) {
	settings := b.Settings()
	log := logr.FromContextOrDiscard(ctx)

	attrs, ok := ExtractAttributes(env)
	if !ok {
		log.V(1).Info("no federation assertion on login request")
		return b.finish(LoginResult{Outcome: OutcomeNoAssertion}, nil)
	}
	log = log.WithValues("eppn", attrs.EPPN, "mail", attrs.Mail)

	var (
		username string
		source   Source
		userID   string
	)

	remote, err := b.resolveRemote(ctx, settings, attrs)
	switch {
	case err == nil:
		username, source = remote, SourceIdentityAPI
		log.Info("identity api resolved username", "username", username)

		result, err := b.syncSysadmin(ctx, settings, username, attrs.Groups)
		switch {
		case errors.Is(err, ErrUserNotFound):
			log.Info("skipping sysadmin sync, no local account", "username", username)
		case err != nil:
			log.Error(err, "sysadmin sync failed", "username", username)
		default:
			userID = result.UserID
		}

	case identityapi.IsNetwork(err) || errors.Is(err, errResolverDisabled):
		log.Info("identity api unavailable, trying local account", "reason", err.Error())
		user, lookupErr := activeUser(b.users.GetByEPPN(ctx, attrs.EPPN))
		if lookupErr != nil {
			if errors.Is(lookupErr, repository.ErrNotFound) {
				log.Info("no local account for eppn")
				return b.finish(LoginResult{Outcome: OutcomeFallbackMiss}, nil)
			}
			return b.finish(LoginResult{Outcome: OutcomeError}, fmt.Errorf("local user lookup: %w", lookupErr))
		}
		username, source, userID = user.Name, SourceLocal, user.ID

	default:
		// Non-200 and malformed replies end here without a fallback so
		// that a deliberate refusal by the API is not overridden locally.
		log.Error(err, "identity api did not resolve a username")
		return b.finish(LoginResult{Outcome: OutcomeRejected}, err)
	}

	// Binding a user always issues a fresh session identifier so that a
	// token planted before login cannot ride along.
	sess.Renew()
	sess.Set(settings.SessionKey, username)
	if err := sess.Save(ctx); err != nil {
		return b.finish(LoginResult{Outcome: OutcomeError}, fmt.Errorf("save session: %w", err))
	}

	if userID != "" {
		if err := b.users.UpdateLastLogin(ctx, userID); err != nil {
			log.Error(err, "failed to record last login", "username", username)
		}
	}

	log.Info("user logged in", "username", username, "source", source)
	return b.finish(LoginResult{
		Outcome:  OutcomeBound,
		Username: username,
		Source:   source,
		Redirect: settings.DashboardURL,
	}, nil)
}

var errResolverDisabled = errors.New("identity api disabled")

func (b *Bridge) resolveRemote(ctx context.Context, s Settings, attrs *Attributes) (string, error) {
	if !s.ResolverEnabled || b.resolver == nil {
		return "", errResolverDisabled
	}
	username, err := b.resolver.ResolveUsername(ctx, identityapi.Request{
		EPPN: attrs.EPPN,
		Mail: attrs.Mail,
		CN:   attrs.CN,
	})
	if err != nil {
		kind := identityapi.KindOf(err)
		if kind == 0 {
			b.metrics.RecordIdentityAPIRequest("error")
		} else {
			b.metrics.RecordIdentityAPIRequest(kind.String())
		}
		return "", err
	}
	b.metrics.RecordIdentityAPIRequest("ok")
	return username, nil
}

func (b *Bridge) finish(result LoginResult, err error) (LoginResult, error) {
	outcome := result.Outcome.String()
	if result.Outcome == OutcomeBound && result.Source == SourceLocal {
		outcome = telemetry.LoginFallback
	}
	b.metrics.RecordLogin(outcome)
	return result, err
}

// Identify returns the username bound to sess, if any.
func (b *Bridge) Identify(_ context.Context, sess session.Session) (string, bool) {
	username, ok := sess.Get(b.Settings().SessionKey)
	if !ok || username == "" {
		return "", false
	}
	return username, true
}

// Logout removes the binding from sess and returns the federation logout
// URL. The URL is returned even when saving the session fails.
func (b *Bridge) Logout(ctx context.Context, sess session.Session) (string, error) {
	settings := b.Settings()
	b.metrics.RecordLogout()

	if sess.Delete(settings.SessionKey) {
		logr.FromContextOrDiscard(ctx).V(1).Info("session binding removed")
	}
	if err := sess.Save(ctx); err != nil {
		return settings.LogoutURL, fmt.Errorf("save session: %w", err)
	}
	return settings.LogoutURL, nil
}

// SyncResult reports the outcome of a sysadmin sync.
type SyncResult struct {
	UserID   string
	Sysadmin bool
	Changed  bool
}

// SyncSysadmin sets the user's sysadmin flag to whether any of groups is
// one of the configured sysadmin groups. The record is written only when
// the flag changes.
func (b *Bridge) SyncSysadmin(ctx context.Context, username string, groups []string) (SyncResult, error) {
	return b.syncSysadmin(ctx, b.Settings(), username, groups)
}

func (b *Bridge) syncSysadmin(ctx context.Context, s Settings, username string, groups []string) (SyncResult, error) {
	want := intersects(s.SysadminGroups, groups)

	user, err := activeUser(b.users.GetByName(ctx, username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return SyncResult{}, fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		return SyncResult{}, fmt.Errorf("load user %s: %w", username, err)
	}

	if user.Sysadmin == want {
		return SyncResult{UserID: user.ID, Sysadmin: want}, nil
	}

	if err := b.users.SetSysadmin(ctx, user.ID, want); err != nil {
		return SyncResult{UserID: user.ID, Sysadmin: user.Sysadmin}, fmt.Errorf("update sysadmin flag for %s: %w", username, err)
	}
	b.metrics.RecordSysadminChange(want)
	logr.FromContextOrDiscard(ctx).Info("sysadmin flag changed", "username", username, "sysadmin", want)

	return SyncResult{UserID: user.ID, Sysadmin: want, Changed: true}, nil
}

// activeUser treats a deleted account like a missing one.
func activeUser(user *models.User, err error) (*models.User, error) {
	if err == nil && !user.IsActive() {
		return nil, repository.ErrNotFound
	}
	return user, err
}

func intersects(eligible, member []string) bool {
	if len(eligible) == 0 || len(member) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(eligible))
	for _, g := range eligible {
		set[g] = struct{}{}
	}
	for _, g := range member {
		if _, ok := set[g]; ok {
			return true
		}
	}
	return false
}

// IsSysadmin reports the stored flag for username.
func (b *Bridge) IsSysadmin(ctx context.Context, username string) (bool, error) {
	user, err := activeUser(b.users.GetByName(ctx, username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		return false, err
	}
	return user.Sysadmin, nil
}

