package users

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/cendari/cendari-auth/internal/db/models"
	"github.com/cendari/cendari-auth/internal/repository"
)

var (
	nameFlag     string
	eppnFlag     string
	emailFlag    string
	fullNameFlag string
	sysadminFlag bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a local account",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := newUserFromFlags()
		if err != nil {
			return err
		}

		return withUsers(cmd.Context(), func(ctx context.Context, users repository.UserRepository) error {
			if err := users.Create(ctx, user); err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}

			pterm.Success.Println("User created")
			pterm.Info.Printf("ID: %s\n", user.ID)
			pterm.Info.Printf("Name: %s\n", user.Name)
			if user.EPPN != nil {
				pterm.Info.Printf("EPPN: %s\n", *user.EPPN)
			} else {
				pterm.Warning.Println("No eppn set; this account cannot be matched when the identity API is down")
			}
			pterm.Info.Printf("Sysadmin: %t\n", user.Sysadmin)
			return nil
		})
	},
}

func newUserFromFlags() (*models.User, error) {
	name := strings.TrimSpace(nameFlag)
	if name == "" {
		return nil, fmt.Errorf("--name flag is required")
	}

	user := &models.User{
		Name:     name,
		Email:    strings.TrimSpace(emailFlag),
		FullName: strings.TrimSpace(fullNameFlag),
		Sysadmin: sysadminFlag,
	}
	if user.Email != "" {
		if _, err := mail.ParseAddress(user.Email); err != nil {
			return nil, fmt.Errorf("invalid email format: %w", err)
		}
	}
	if eppn := strings.TrimSpace(eppnFlag); eppn != "" {
		user.EPPN = &eppn
	}
	return user, nil
}
