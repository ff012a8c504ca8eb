package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cendari/cendari-auth/internal/bridge"
	"github.com/cendari/cendari-auth/internal/config"
	"github.com/cendari/cendari-auth/internal/db/bunx"
	"github.com/cendari/cendari-auth/internal/identityapi"
	"github.com/cendari/cendari-auth/internal/repository"
	"github.com/cendari/cendari-auth/internal/server"
	"github.com/cendari/cendari-auth/internal/session"
	"github.com/cendari/cendari-auth/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the login bridge HTTP server",
	Long: `Starts the HTTP server hosting the federation login, logout and dashboard
routes. Send SIGHUP to reload the bridge settings from configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.WithName("serve")
		ctx := logr.NewContext(cmd.Context(), log)

		db, err := bunx.NewDBContext(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)
		log.Info("connected to database", "type", bunx.DetectDatabaseType(cfg.DatabaseURL))

		userRepo := repository.NewBunUserRepository(db)
		sessionRepo := repository.NewBunSessionRepository(db)

		store, dbStore, err := newSessionStore(cfg, sessionRepo)
		if err != nil {
			return err
		}

		var resolver identityapi.Resolver
		if cfg.IdentityAPI.Enabled {
			client, err := identityapi.NewClient(cfg.IdentityAPI.URL,
				identityapi.WithTimeout(cfg.IdentityAPI.Timeout),
				identityapi.WithUserAgent("cendari-auth/"+version),
			)
			if err != nil {
				return fmt.Errorf("failed to create identity api client: %w", err)
			}
			resolver = client
			log.Info("identity api enabled", "endpoint", client.Endpoint(), "timeout", cfg.IdentityAPI.Timeout)
		} else {
			log.Info("identity api disabled, logins use local accounts only")
		}

		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		authn, err := bridge.New(bridge.Dependencies{
			Users:    userRepo,
			Resolver: resolver,
			Metrics:  telemetry.NewPrometheusRecorder(registry),
		})
		if err != nil {
			return fmt.Errorf("failed to create bridge: %w", err)
		}
		if err := authn.Configure(cfg); err != nil {
			return err
		}

		router := server.NewRouter(server.RouterOptions{
			Authenticator: authn,
			SessionStore:  store,
			Cfg:           cfg,
			Logger:        logger.WithName("http"),
			Gatherer:      registry,
		})

		srv := &http.Server{
			Addr:              cfg.ServerAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}

		pruneCtx, cancelPrune := context.WithCancel(ctx)
		defer cancelPrune()
		if dbStore != nil {
			go pruneSessions(pruneCtx, dbStore, cfg.Session.CleanupInterval)
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Info("starting server", "addr", cfg.ServerAddr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		reload := make(chan os.Signal, 1)
		signal.Notify(reload, syscall.SIGHUP)
		defer signal.Stop(shutdown)
		defer signal.Stop(reload)

		for {
			select {
			case err := <-serverErrors:
				return fmt.Errorf("server error: %w", err)

			case sig := <-reload:
				log.Info("reloading bridge settings", "signal", sig.String())
				if err := reloadBridge(authn); err != nil {
					log.Error(err, "reload failed, keeping previous settings")
				}

			case sig := <-shutdown:
				log.Info("shutting down gracefully", "signal", sig.String())

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := srv.Shutdown(shutdownCtx); err != nil {
					_ = srv.Close()
					return fmt.Errorf("graceful shutdown failed: %w", err)
				}

				log.Info("server stopped")
				return nil
			}
		}
	},
}

// newSessionStore builds the configured store. The second return value is
// non-nil only for the database store, which needs periodic pruning.
func newSessionStore(cfg *config.Config, repo repository.SessionRepository) (session.Store, *session.DatabaseStore, error) {
	cookie := session.CookieOptions{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.SecureCookie,
		MaxAge: cfg.Session.MaxAge,
	}

	switch cfg.Session.Store {
	case config.SessionStoreCookie:
		var blockKey []byte
		if cfg.Session.BlockKey != "" {
			blockKey = []byte(cfg.Session.BlockKey)
		}
		return session.NewCookieStore([]byte(cfg.Session.HashKey), blockKey, cookie), nil, nil
	case config.SessionStoreDatabase:
		store := session.NewDatabaseStore(repo, cookie)
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
}

func pruneSessions(ctx context.Context, store *session.DatabaseStore, interval time.Duration) {
	log := logr.FromContextOrDiscard(ctx).WithName("session-pruner")
	if interval <= 0 {
		log.Info("session pruning disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := store.Prune(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Error(err, "failed to prune expired sessions")
				}
				continue
			}
			if n > 0 {
				log.V(1).Info("pruned expired sessions", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// reloadBridge re-reads configuration and installs the new bridge
// settings. Server, database and session store settings need a restart.
func reloadBridge(authn *bridge.Bridge) error {
	if cfgFile != "" {
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
	}
	next, err := config.Load()
	if err != nil {
		return err
	}
	return authn.Configure(next)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
