package users

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/cendari/cendari-auth/internal/repository"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List local accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUsers(cmd.Context(), func(ctx context.Context, users repository.UserRepository) error {
			all, err := users.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}
			if len(all) == 0 {
				pterm.Info.Println("No users.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tEPPN\tEMAIL\tSYSADMIN\tSTATE\tLAST_LOGIN")
			for _, u := range all {
				eppn := u.EPPNValue()
				if eppn == "" {
					eppn = "-"
				}
				lastLogin := "-"
				if u.LastLoginAt != nil {
					lastLogin = u.LastLoginAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n", u.Name, eppn, u.Email, u.Sysadmin, u.State, lastLogin)
			}
			return w.Flush()
		})
	},
}
