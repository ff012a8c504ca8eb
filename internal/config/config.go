package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load,
// e.g. CENDARI_IDENTITY_API_URL for identity_api.url.
const EnvPrefix = "CENDARI"

// Session store backends
const (
	SessionStoreDatabase = "database"
	SessionStoreCookie   = "cookie"
)

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN)
	DatabaseURL string `mapstructure:"database_url"`

	// Server bind address (host:port)
	ServerAddr string `mapstructure:"server_addr"`

	// Enable debug logging
	Debug bool `mapstructure:"debug"`

	// Log encoding: json or console
	LogFormat string `mapstructure:"log_format"`

	// Space-delimited group identifiers whose members receive the sysadmin flag
	SysadminGroups string `mapstructure:"shibboleth_sysadmin_groups"`

	IdentityAPI IdentityAPIConfig `mapstructure:"identity_api"`
	Bridge      BridgeConfig      `mapstructure:"bridge"`
	Session     SessionConfig     `mapstructure:"session"`
	CORS        CORSConfig        `mapstructure:"cors"`
}

// IdentityAPIConfig configures the remote username resolution endpoint.
type IdentityAPIConfig struct {
	// Base URL; the bridge posts to <URL>/v1/session
	URL string `mapstructure:"url"`

	// Single-attempt request timeout
	Timeout time.Duration `mapstructure:"timeout"`

	// When false every login takes the local eppn lookup path
	Enabled bool `mapstructure:"enabled"`
}

// BridgeConfig holds the host-facing URLs and the session binding key.
type BridgeConfig struct {
	SessionKey   string `mapstructure:"session_key"`
	DashboardURL string `mapstructure:"dashboard_url"`
	LogoutURL    string `mapstructure:"logout_url"`
	LoginURL     string `mapstructure:"login_url"`

	// Prefix for attribute headers when Shibboleth exports them as
	// request headers (ShibUseHeaders). Empty means the bare names.
	AttributeHeaderPrefix string `mapstructure:"attribute_header_prefix"`
}

// SessionConfig selects and tunes the session store.
type SessionConfig struct {
	Store        string        `mapstructure:"store"`
	CookieName   string        `mapstructure:"cookie_name"`
	MaxAge       time.Duration `mapstructure:"max_age"`
	SecureCookie bool          `mapstructure:"secure_cookie"`

	// Keys for the cookie store (gorilla/securecookie). HashKey is required
	// for that store; BlockKey enables encryption when set.
	HashKey  string `mapstructure:"hash_key"`
	BlockKey string `mapstructure:"block_key"`

	// How often expired database sessions are pruned
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// CORSConfig enables cross-origin access to the JSON endpoints.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SysadminGroupList returns the eligible groups split on whitespace.
func (c *Config) SysadminGroupList() []string {
	return strings.Fields(c.SysadminGroups)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "file:cendari.db?cache=shared")
	v.SetDefault("server_addr", "localhost:8080")
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "json")
	v.SetDefault("shibboleth_sysadmin_groups", "")

	v.SetDefault("identity_api.url", "http://localhost:42042")
	v.SetDefault("identity_api.timeout", time.Second)
	v.SetDefault("identity_api.enabled", true)

	v.SetDefault("bridge.session_key", "cendari-auth-user")
	v.SetDefault("bridge.dashboard_url", "/user/dashboard")
	v.SetDefault("bridge.logout_url", "/Shibboleth.sso/Logout")
	v.SetDefault("bridge.login_url", "/Shibboleth.sso/Login")
	v.SetDefault("bridge.attribute_header_prefix", "")

	v.SetDefault("session.store", SessionStoreDatabase)
	v.SetDefault("session.cookie_name", "cendari.session")
	v.SetDefault("session.max_age", 12*time.Hour)
	v.SetDefault("session.secure_cookie", false)
	v.SetDefault("session.hash_key", "")
	v.SetDefault("session.block_key", "")
	v.SetDefault("session.cleanup_interval", 15*time.Minute)

	v.SetDefault("cors.allowed_origins", []string{})
}

// Load reads configuration from the global viper instance: defaults, then
// any config file the caller already read, then CENDARI_* environment
// variables, then bound flags.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load against an explicit viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every nested key needs a default, otherwise AutomaticEnv is not
	// consulted for it during Unmarshal.
	setDefaults(v)

	cfg := &Config{}
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.ServerAddr == "" {
		return fmt.Errorf("server_addr is required")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", c.LogFormat)
	}

	if c.IdentityAPI.Enabled {
		u, err := url.Parse(c.IdentityAPI.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("identity_api.url must be an absolute URL, got %q", c.IdentityAPI.URL)
		}
		if c.IdentityAPI.Timeout <= 0 {
			return fmt.Errorf("identity_api.timeout must be positive, got %s", c.IdentityAPI.Timeout)
		}
	}

	if c.Bridge.SessionKey == "" {
		return fmt.Errorf("bridge.session_key is required")
	}
	if c.Bridge.DashboardURL == "" || c.Bridge.LogoutURL == "" {
		return fmt.Errorf("bridge.dashboard_url and bridge.logout_url are required")
	}

	switch c.Session.Store {
	case SessionStoreDatabase:
	case SessionStoreCookie:
		if len(c.Session.HashKey) < 32 {
			return fmt.Errorf("session.hash_key must be at least 32 bytes for the cookie store")
		}
		if n := len(c.Session.BlockKey); n != 0 && n != 16 && n != 24 && n != 32 {
			return fmt.Errorf("session.block_key must be 16, 24 or 32 bytes, got %d", n)
		}
	default:
		return fmt.Errorf("session.store must be %q or %q, got %q", SessionStoreDatabase, SessionStoreCookie, c.Session.Store)
	}
	if c.Session.MaxAge <= 0 {
		return fmt.Errorf("session.max_age must be positive")
	}

	return nil
}
