package cmd

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cendari/cendari-auth/cmd/cendari-auth/cmd/users"
	"github.com/cendari/cendari-auth/internal/config"
	"github.com/cendari/cendari-auth/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  logr.Logger

	flushLogger = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "cendari-auth",
	Short: "Shibboleth login bridge for the CENDARI data repository",
	Long: `cendari-auth binds federation (Shibboleth) logins to local CENDARI
accounts. It resolves usernames through the CENDARI identity API, falls back
to local accounts when the API is unreachable and keeps the sysadmin flag in
sync with group membership.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		logger, flushLogger, err = logging.New(cfg.Debug, cfg.LogFormat)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		flushLogger()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (yaml, json or toml)")
	flags.String("db-url", "", "Database connection URL (env: CENDARI_DATABASE_URL)")
	flags.String("server-addr", "", "Server bind address (env: CENDARI_SERVER_ADDR)")
	flags.String("identity-api-url", "", "Identity API base URL (env: CENDARI_IDENTITY_API_URL)")
	flags.Bool("debug", false, "Enable debug logging (env: CENDARI_DEBUG)")

	bindFlag("database_url", "db-url")
	bindFlag("server_addr", "server-addr")
	bindFlag("identity_api.url", "identity-api-url")
	bindFlag("debug", "debug")

	rootCmd.AddCommand(users.UsersCmd)
}

func bindFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
