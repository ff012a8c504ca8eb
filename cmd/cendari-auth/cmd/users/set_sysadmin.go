package users

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/cendari/cendari-auth/internal/db/models"
	"github.com/cendari/cendari-auth/internal/repository"
)

var setSysadminCmd = &cobra.Command{
	Use:   "set-sysadmin <name> <true|false>",
	Short: "Set the sysadmin flag on an account",
	Long: `Sets the sysadmin flag directly. The next federation login of the user
overwrites it again from group membership.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sysadmin, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("invalid sysadmin value %q: %w", args[1], err)
		}

		return withUsers(cmd.Context(), func(ctx context.Context, users repository.UserRepository) error {
			user, err := users.GetByName(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load user %q: %w", args[0], err)
			}
			if user.Sysadmin == sysadmin {
				pterm.Info.Printf("%s already has sysadmin=%t\n", user.Name, sysadmin)
				return nil
			}
			if err := users.SetSysadmin(ctx, user.ID, sysadmin); err != nil {
				return fmt.Errorf("failed to update user %q: %w", user.Name, err)
			}
			pterm.Success.Printf("%s now has sysadmin=%t\n", user.Name, sysadmin)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Mark an account deleted",
	Long:  `Deleted accounts are kept but no longer match logins or lookups.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUsers(cmd.Context(), func(ctx context.Context, users repository.UserRepository) error {
			user, err := users.GetByName(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load user %q: %w", args[0], err)
			}
			user.State = models.UserStateDeleted
			if err := users.Update(ctx, user); err != nil {
				return fmt.Errorf("failed to delete user %q: %w", user.Name, err)
			}
			pterm.Success.Printf("%s deleted\n", user.Name)
			return nil
		})
	},
}
