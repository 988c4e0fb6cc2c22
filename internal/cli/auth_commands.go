package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CrispStrobe/filen-cli/internal/auth"
	"github.com/CrispStrobe/filen-cli/internal/config"
)

// newLoginCmd creates the 'login' command.
func newLoginCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session under ~/.filen-cli",
		Long: `Authenticate against Filen and save the session.

The password is used locally to derive the encryption keys; only a
derived hash is sent to the server. Accounts with two-factor auth
enabled are prompted for a one-time code.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := openAPI()
			if err != nil {
				return err
			}

			if email == "" {
				email, err = promptLine("Email: ")
				if err != nil {
					return err
				}
			}
			password, err := promptPassword("Password: ")
			if err != nil {
				return err
			}

			service := auth.NewService(client, GetLogger())
			creds, err := service.Login(GetContext(), email, password, "")
			// A required or wrong code comes back as the same error;
			// keep prompting until the server accepts or fails for a
			// different reason.
			for errors.Is(err, auth.ErrTwoFactorRequired) {
				code, promptErr := promptLine("Two-factor code: ")
				if promptErr != nil {
					return promptErr
				}
				creds, err = service.Login(GetContext(), email, password, code)
			}
			if err != nil {
				return err
			}

			fmt.Printf("Logged in as %s\n", creds.Email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email (prompted when omitted)")
	return cmd
}

// newLogoutCmd creates the 'logout' command.
func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.DeleteCredentials(); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}

// newWhoamiCmd creates the 'whoami' command.
func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := config.LoadCredentials()
			if err != nil {
				return err
			}
			fmt.Printf("%s (user id %d, logged in %s)\n", creds.Email, creds.UserID, creds.LastLoggedInAt)
			return nil
		},
	}
}
