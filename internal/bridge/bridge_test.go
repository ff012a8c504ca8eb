package bridge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cendari/cendari-auth/internal/config"
	"github.com/cendari/cendari-auth/internal/db/models"
	"github.com/cendari/cendari-auth/internal/identityapi"
	"github.com/cendari/cendari-auth/internal/repository"
	"github.com/cendari/cendari-auth/internal/session"
)

// mockUserRepository is an in-memory UserRepository that counts writes
type mockUserRepository struct {
	mu            sync.Mutex
	users         map[string]*models.User
	sysadminSets  int
	eppnLookups   int
	lastLoginSets int
	err           error
}

func newMockUserRepository(users ...*models.User) *mockUserRepository {
	m := &mockUserRepository{users: make(map[string]*models.User)}
	for _, u := range users {
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		m.users[u.Name] = u
	}
	return m
}

func (m *mockUserRepository) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m.users[u.Name] = u
	return nil
}

func (m *mockUserRepository) GetByName(_ context.Context, name string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepository) GetByEPPN(_ context.Context, eppn string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eppnLookups++
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if eppn != "" && u.EPPNValue() == eppn {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepository) Update(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Name] = u
	return nil
}

func (m *mockUserRepository) SetSysadmin(_ context.Context, id string, sysadmin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			u.Sysadmin = sysadmin
			m.sysadminSets++
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *mockUserRepository) UpdateLastLogin(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLoginSets++
	return nil
}

func (m *mockUserRepository) List(context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

// stubResolver returns a fixed answer and records the request
type stubResolver struct {
	username string
	err      error
	calls    int
	last     identityapi.Request
}

func (s *stubResolver) ResolveUsername(_ context.Context, req identityapi.Request) (string, error) {
	s.calls++
	s.last = req
	return s.username, s.err
}

var errTimeout = &identityapi.ResolutionError{Kind: identityapi.KindNetwork, Err: errors.New("context deadline exceeded")}

func testSettings() Settings {
	return Settings{
		SessionKey:      "cendari-auth-user",
		DashboardURL:    "/user/dashboard",
		LogoutURL:       "/Shibboleth.sso/Logout",
		SysadminGroups:  []string{"cendari:admins", "cendari:ops"},
		ResolverEnabled: true,
	}
}

func newTestBridge(t *testing.T, users *mockUserRepository, resolver identityapi.Resolver) *Bridge {
	t.Helper()
	b, err := New(Dependencies{Users: users, Resolver: resolver})
	require.NoError(t, err)
	require.NoError(t, b.ConfigureSettings(testSettings()))
	return b
}

func aliceEnv() EnvMap {
	return EnvMap{
		"mail":       "alice@example.org",
		"eppn":       "u123",
		"givenName":  "Alice",
		"sn":         "Liddell",
		"isMemberOf": "cendari:users;cendari:admins",
	}
}

func TestLogin_NoAssertion(t *testing.T) {
	users := newMockUserRepository()
	resolver := &stubResolver{username: "alice"}
	b := newTestBridge(t, users, resolver)

	for _, env := range []EnvMap{{}, {"eppn": "u123", "cn": "Alice"}, {"mail": ""}} {
		sess := session.NewMemory(nil)
		result, err := b.Login(context.Background(), env, sess)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoAssertion, result.Outcome)
		assert.Empty(t, result.Redirect)
		assert.Empty(t, sess.Values())
		assert.Zero(t, sess.Saves)
		assert.Zero(t, sess.Renews)
	}
	assert.Zero(t, resolver.calls)
}

func TestLogin_RemoteSuccess(t *testing.T) {
	users := newMockUserRepository(&models.User{Name: "alice"})
	resolver := &stubResolver{username: "alice"}
	b := newTestBridge(t, users, resolver)

	sess := session.NewMemory(nil)
	result, err := b.Login(context.Background(), aliceEnv(), sess)
	require.NoError(t, err)

	assert.Equal(t, OutcomeBound, result.Outcome)
	assert.Equal(t, "alice", result.Username)
	assert.Equal(t, SourceIdentityAPI, result.Source)
	assert.Equal(t, "/user/dashboard", result.Redirect)
	assert.Equal(t, map[string]string{"cendari-auth-user": "alice"}, sess.Values())
	assert.Equal(t, 1, sess.Saves)
	assert.Equal(t, 1, sess.Renews)

	assert.Equal(t, identityapi.Request{EPPN: "u123", Mail: "alice@example.org", CN: "Alice Liddell"}, resolver.last)

	// Privilege sync ran: alice is in cendari:admins
	assert.Equal(t, 1, users.sysadminSets)
	assert.True(t, users.users["alice"].Sysadmin)
	assert.Equal(t, 1, users.lastLoginSets)
	assert.Zero(t, users.eppnLookups)
}

func TestLogin_RemoteSuccessWithoutLocalAccountStillBinds(t *testing.T) {
	users := newMockUserRepository()
	b := newTestBridge(t, users, &stubResolver{username: "newcomer"})

	sess := session.NewMemory(nil)
	result, err := b.Login(context.Background(), aliceEnv(), sess)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBound, result.Outcome)
	assert.Equal(t, "newcomer", sess.Values()["cendari-auth-user"])
	assert.Zero(t, users.sysadminSets)
	assert.Zero(t, users.lastLoginSets)
}

func TestLogin_TimeoutFallsBackToLocalAccount(t *testing.T) {
	eppn := "u123"
	users := newMockUserRepository(&models.User{Name: "alice_local", EPPN: &eppn})
	b := newTestBridge(t, users, &stubResolver{err: errTimeout})

	sess := session.NewMemory(nil)
	result, err := b.Login(context.Background(), aliceEnv(), sess)
	require.NoError(t, err)

	assert.Equal(t, OutcomeBound, result.Outcome)
	assert.Equal(t, "alice_local", result.Username)
	assert.Equal(t, SourceLocal, result.Source)
	assert.Equal(t, "/user/dashboard", result.Redirect)
	assert.Equal(t, map[string]string{"cendari-auth-user": "alice_local"}, sess.Values())

	// No privilege sync on the fallback path, even though the groups
	// would grant sysadmin.
	assert.Zero(t, users.sysadminSets)
	assert.False(t, users.users["alice_local"].Sysadmin)
}

func TestLogin_TimeoutWithoutLocalAccount(t *testing.T) {
	users := newMockUserRepository()
	b := newTestBridge(t, users, &stubResolver{err: errTimeout})

	sess := session.NewMemory(nil)
	result, err := b.Login(context.Background(), aliceEnv(), sess)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFallbackMiss, result.Outcome)
	assert.Empty(t, result.Redirect)
	assert.Empty(t, sess.Values())
	assert.Zero(t, sess.Saves)
	assert.Zero(t, sess.Renews)
	assert.Equal(t, 1, users.eppnLookups)
}

func TestLogin_RejectedResponsesDoNotFallBack(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind identityapi.Kind
	}{
		{
			name: "non-200",
			err:  &identityapi.ResolutionError{Kind: identityapi.KindStatus, StatusCode: http.StatusInternalServerError},
			kind: identityapi.KindStatus,
		},
		{
			name: "malformed 200",
			err:  &identityapi.ResolutionError{Kind: identityapi.KindMalformed, StatusCode: http.StatusOK, Err: errors.New("missing username")},
			kind: identityapi.KindMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eppn := "u123"
			users := newMockUserRepository(&models.User{Name: "alice_local", EPPN: &eppn})
			b := newTestBridge(t, users, &stubResolver{err: tt.err})

			sess := session.NewMemory(map[string]string{"other": "kept"})
			result, err := b.Login(context.Background(), aliceEnv(), sess)
			require.Error(t, err)

			var re *ResolutionError
			require.True(t, errors.As(err, &re))
			assert.Equal(t, tt.kind, re.Kind)

			assert.Equal(t, OutcomeRejected, result.Outcome)
			assert.Empty(t, result.Redirect)
			assert.Equal(t, map[string]string{"other": "kept"}, sess.Values())
			assert.Zero(t, sess.Saves)
			assert.Zero(t, users.eppnLookups)
		})
	}
}

func TestLogin_ResolverDisabledUsesLocalLookup(t *testing.T) {
	eppn := "u123"
	users := newMockUserRepository(&models.User{Name: "alice_local", EPPN: &eppn})
	b, err := New(Dependencies{Users: users})
	require.NoError(t, err)

	settings := testSettings()
	settings.ResolverEnabled = false
	require.NoError(t, b.ConfigureSettings(settings))

	sess := session.NewMemory(nil)
	result, err := b.Login(context.Background(), aliceEnv(), sess)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBound, result.Outcome)
	assert.Equal(t, SourceLocal, result.Source)
}

func TestLogin_LocalLookupFailure(t *testing.T) {
	users := newMockUserRepository()
	users.err = errors.New("database is locked")
	b := newTestBridge(t, users, &stubResolver{err: errTimeout})

	sess := session.NewMemory(nil)
	result, err := b.Login(context.Background(), aliceEnv(), sess)
	require.Error(t, err)
	assert.Equal(t, OutcomeError, result.Outcome)
	assert.Empty(t, sess.Values())
}

func TestLogin_WithIdentityAPIClient(t *testing.T) {
	eppn := "u123"
	users := newMockUserRepository(&models.User{Name: "alice_local", EPPN: &eppn})

	t.Run("hanging api falls back", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		client, err := identityapi.NewClient(srv.URL, identityapi.WithTimeout(50*time.Millisecond))
		require.NoError(t, err)
		b := newTestBridge(t, users, client)

		sess := session.NewMemory(nil)
		result, err := b.Login(context.Background(), aliceEnv(), sess)
		require.NoError(t, err)
		assert.Equal(t, "alice_local", result.Username)
		assert.Equal(t, SourceLocal, result.Source)
	})

	t.Run("api answers", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"username":"alice"}`))
		}))
		defer srv.Close()

		client, err := identityapi.NewClient(srv.URL)
		require.NoError(t, err)
		b := newTestBridge(t, users, client)

		sess := session.NewMemory(nil)
		result, err := b.Login(context.Background(), aliceEnv(), sess)
		require.NoError(t, err)
		assert.Equal(t, "alice", result.Username)
		assert.Equal(t, SourceIdentityAPI, result.Source)
	})
}

func TestIdentify(t *testing.T) {
	b := newTestBridge(t, newMockUserRepository(), &stubResolver{})

	username, ok := b.Identify(context.Background(), session.NewMemory(map[string]string{"cendari-auth-user": "alice"}))
	assert.True(t, ok)
	assert.Equal(t, "alice", username)

	_, ok = b.Identify(context.Background(), session.NewMemory(nil))
	assert.False(t, ok)

	_, ok = b.Identify(context.Background(), session.NewMemory(map[string]string{"cendari-auth-user": ""}))
	assert.False(t, ok)
}

func TestLogout(t *testing.T) {
	b := newTestBridge(t, newMockUserRepository(), &stubResolver{})

	tests := []struct {
		name string
		seed map[string]string
		want map[string]string
	}{
		{"bound session", map[string]string{"cendari-auth-user": "alice"}, map[string]string{}},
		{"unbound session", nil, map[string]string{}},
		{"other keys survive", map[string]string{"cendari-auth-user": "alice", "locale": "fr"}, map[string]string{"locale": "fr"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := session.NewMemory(tt.seed)
			redirect, err := b.Logout(context.Background(), sess)
			require.NoError(t, err)
			assert.Equal(t, "/Shibboleth.sso/Logout", redirect)
			assert.Equal(t, tt.want, sess.Values())
			assert.Equal(t, 1, sess.Saves)

			_, ok := b.Identify(context.Background(), sess)
			assert.False(t, ok)
		})
	}
}

func TestSyncSysadmin(t *testing.T) {
	tests := []struct {
		name        string
		eligible    []string
		groups      []string
		initial     bool
		want        bool
		wantChanged bool
	}{
		{"grant on intersection", []string{"admins"}, []string{"users", "admins"}, false, true, true},
		{"revoke without intersection", []string{"admins"}, []string{"users"}, true, false, true},
		{"keep granted", []string{"admins", "ops"}, []string{"ops"}, true, true, false},
		{"keep revoked", []string{"admins"}, nil, false, false, false},
		{"no eligible groups revokes", nil, []string{"admins"}, true, false, true},
		{"case sensitive", []string{"admins"}, []string{"Admins"}, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := newMockUserRepository(&models.User{Name: "alice", Sysadmin: tt.initial})
			b, err := New(Dependencies{Users: users})
			require.NoError(t, err)
			settings := testSettings()
			settings.SysadminGroups = tt.eligible
			settings.ResolverEnabled = false
			require.NoError(t, b.ConfigureSettings(settings))

			ctx := context.Background()
			first, err := b.SyncSysadmin(ctx, "alice", tt.groups)
			require.NoError(t, err)
			assert.Equal(t, tt.want, first.Sysadmin)
			assert.Equal(t, tt.wantChanged, first.Changed)

			// Repeating with the same inputs never writes again
			second, err := b.SyncSysadmin(ctx, "alice", tt.groups)
			require.NoError(t, err)
			assert.Equal(t, tt.want, second.Sysadmin)
			assert.False(t, second.Changed)

			expectedWrites := 0
			if tt.wantChanged {
				expectedWrites = 1
			}
			assert.Equal(t, expectedWrites, users.sysadminSets)
			assert.Equal(t, tt.want, users.users["alice"].Sysadmin)

			got, err := b.IsSysadmin(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSyncSysadmin_UserNotFound(t *testing.T) {
	users := newMockUserRepository()
	b := newTestBridge(t, users, &stubResolver{})

	_, err := b.SyncSysadmin(context.Background(), "ghost", []string{"cendari:admins"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Zero(t, users.sysadminSets)

	_, err = b.IsSysadmin(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDeletedAccountIsNotUsed(t *testing.T) {
	eppn := "u123"
	deleted := func() *mockUserRepository {
		return newMockUserRepository(&models.User{
			Name:     "alice",
			EPPN:     &eppn,
			Sysadmin: true,
			State:    models.UserStateDeleted,
		})
	}

	tests := []struct {
		name string
		run  func(t *testing.T, b *Bridge, users *mockUserRepository)
	}{
		{
			name: "fallback login misses",
			run: func(t *testing.T, b *Bridge, users *mockUserRepository) {
				sess := session.NewMemory(nil)
				result, err := b.Login(context.Background(), aliceEnv(), sess)
				require.NoError(t, err)
				assert.Equal(t, OutcomeFallbackMiss, result.Outcome)
				assert.Empty(t, sess.Values())
				assert.Zero(t, users.lastLoginSets)
			},
		},
		{
			name: "sysadmin sync reports not found",
			run: func(t *testing.T, b *Bridge, users *mockUserRepository) {
				_, err := b.SyncSysadmin(context.Background(), "alice", nil)
				assert.ErrorIs(t, err, ErrUserNotFound)
				assert.Zero(t, users.sysadminSets)
			},
		},
		{
			name: "stored flag is not reported",
			run: func(t *testing.T, b *Bridge, _ *mockUserRepository) {
				sysadmin, err := b.IsSysadmin(context.Background(), "alice")
				assert.ErrorIs(t, err, ErrUserNotFound)
				assert.False(t, sysadmin)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := deleted()
			b := newTestBridge(t, users, &stubResolver{err: errTimeout})
			tt.run(t, b, users)
		})
	}
}

func TestConfigure(t *testing.T) {
	b, err := New(Dependencies{Users: newMockUserRepository()})
	require.NoError(t, err)

	bad := testSettings()
	bad.SessionKey = ""
	assert.Error(t, b.ConfigureSettings(bad))

	// Enabled resolver without one wired is a wiring bug
	assert.Error(t, b.ConfigureSettings(testSettings()))

	ok := testSettings()
	ok.ResolverEnabled = false
	require.NoError(t, b.ConfigureSettings(ok))
	assert.Equal(t, "/Shibboleth.sso/Logout", b.Settings().LogoutURL)

	cfg := &config.Config{
		SysadminGroups: "cendari:admins  cendari:ops",
		Bridge: config.BridgeConfig{
			SessionKey:   "cendari-auth-user",
			DashboardURL: "/user/dashboard",
			LogoutURL:    "/Shibboleth.sso/Logout",
		},
	}
	require.NoError(t, b.Configure(cfg))
	assert.Equal(t, []string{"cendari:admins", "cendari:ops"}, b.Settings().SysadminGroups)
	assert.False(t, b.Settings().ResolverEnabled)

	_, err = New(Dependencies{})
	assert.Error(t, err)
}

func TestLogin_RenewsExistingSession(t *testing.T) {
	ctx := context.Background()
	users := newMockUserRepository(&models.User{Name: "alice"})
	b := newTestBridge(t, users, &stubResolver{username: "alice"})

	repo := newMemorySessionRepository()
	store := session.NewDatabaseStore(repo, session.CookieOptions{Name: "sid"})

	// A session row created before login, e.g. a token someone else holds.
	rec := httptest.NewRecorder()
	planted, err := store.Load(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	planted.Set("locale", "de")
	require.NoError(t, planted.Save(ctx))
	plantedCookie := rec.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/user/login", nil)
	req.AddCookie(plantedCookie)
	rec = httptest.NewRecorder()
	sess, err := store.Load(rec, req)
	require.NoError(t, err)

	result, err := b.Login(ctx, aliceEnv(), sess)
	require.NoError(t, err)
	require.Equal(t, OutcomeBound, result.Outcome)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.NotEqual(t, plantedCookie.Value, cookies[0].Value)

	// The pre-login token no longer resolves to anything.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(plantedCookie)
	old, err := store.Load(httptest.NewRecorder(), req)
	require.NoError(t, err)
	_, ok := b.Identify(ctx, old)
	assert.False(t, ok)

	// The new token carries the binding and the earlier values.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	fresh, err := store.Load(httptest.NewRecorder(), req)
	require.NoError(t, err)
	username, ok := b.Identify(ctx, fresh)
	assert.True(t, ok)
	assert.Equal(t, "alice", username)
	locale, _ := fresh.Get("locale")
	assert.Equal(t, "de", locale)
}

// memorySessionRepository is a map-backed SessionRepository keyed by token hash
type memorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func newMemorySessionRepository() *memorySessionRepository {
	return &memorySessionRepository{sessions: make(map[string]*models.Session)}
}

func (m *memorySessionRepository) Create(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	copied := *s
	m.sessions[s.TokenHash] = &copied
	return nil
}

func (m *memorySessionRepository) GetByTokenHash(_ context.Context, hash string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *memorySessionRepository) UpdateValues(_ context.Context, id string, values models.SessionValues, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == id {
			s.Values = values
			s.ExpiresAt = expiresAt
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memorySessionRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, s := range m.sessions {
		if s.ID == id {
			delete(m.sessions, hash)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memorySessionRepository) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}
