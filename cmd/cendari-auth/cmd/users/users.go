package users

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cendari/cendari-auth/internal/config"
	"github.com/cendari/cendari-auth/internal/db/bunx"
	"github.com/cendari/cendari-auth/internal/repository"
)

// UsersCmd is the parent command for local account management
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage local accounts",
	Long: `Commands for managing the local accounts federation logins bind to.
An account's eppn is what the login bridge matches when the identity API
is unreachable.`,
}

// withUsers opens the configured database and runs fn with a user
// repository over it.
func withUsers(ctx context.Context, fn func(context.Context, repository.UserRepository) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := bunx.NewDBContext(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer bunx.Close(db)

	return fn(ctx, repository.NewBunUserRepository(db))
}

func init() {
	createCmd.Flags().StringVar(&nameFlag, "name", "", "Canonical username (required)")
	createCmd.Flags().StringVar(&eppnFlag, "eppn", "", "eduPersonPrincipalName linking the account to the federation")
	createCmd.Flags().StringVar(&emailFlag, "email", "", "Email address")
	createCmd.Flags().StringVar(&fullNameFlag, "fullname", "", "Display name")
	createCmd.Flags().BoolVar(&sysadminFlag, "sysadmin", false, "Grant the sysadmin flag")

	UsersCmd.AddCommand(createCmd, listCmd, setSysadminCmd, deleteCmd)
}
