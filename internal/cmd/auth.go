package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/99designs/keyring"
	"github.com/spf13/cobra"

	"github.com/lunar-chat/lunar-cli/internal/api"
	"github.com/lunar-chat/lunar-cli/internal/config"
	"github.com/lunar-chat/lunar-cli/internal/session"
	"github.com/lunar-chat/lunar-cli/internal/validation"
)

// newAuthCmd returns the auth command with subcommands
func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "auth",
		Aliases: []string{"au"},
		Short:   "Manage authentication credentials",
		Long:    "Log in to a Lunar server and manage credentials stored securely in your OS keychain.",
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthRegisterCmd())
	cmd.AddCommand(newAuthVerifyCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthLogoutCmd())

	return cmd
}

// resolvePassword returns the password from the flag, the LUNAR_PASSWORD
// env var, or an interactive prompt, in that order.
func resolvePassword(password string) (string, error) {
	if password != "" {
		return password, nil
	}
	if env := os.Getenv("LUNAR_PASSWORD"); env != "" {
		return env, nil
	}
	entered, err := keyring.TerminalPrompt("Password")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if strings.TrimSpace(entered) == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	return entered, nil
}

func newAuthLoginCmd() *cobra.Command {
	var (
		server   string
		username string
		password string
		profile  string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with a Lunar server",
		Long: strings.TrimSpace(`
Log in with your username (or email) and password. The refresh token is
saved to your OS keychain so later commands resume the session without
re-entering credentials.
`),
		Example: strings.TrimSpace(`
  # Interactive password prompt
  lunar auth login --server https://lunar.example.com --username astra

  # Non-interactive (password from env)
  LUNAR_PASSWORD=secret lunar auth login --server https://lunar.example.com --username astra

  # Save under a named profile
  lunar auth login --server https://staging.example.com --username astra --profile staging
`),
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if server == "" {
				server = strings.TrimSpace(os.Getenv("LUNAR_BASE_URL"))
			}
			if server == "" {
				return fmt.Errorf("--server is required (or set LUNAR_BASE_URL)")
			}
			if username == "" {
				return fmt.Errorf("--username is required")
			}

			server = strings.TrimSuffix(server, "/")
			if err := validation.ValidateServerURL(server); err != nil {
				return fmt.Errorf("invalid server URL: %w", err)
			}

			pass, err := resolvePassword(password)
			if err != nil {
				return err
			}

			client := api.New(server)
			client.UserAgent = fmt.Sprintf("lunar-cli/%s", version)
			tokens, err := client.Login(cmd.Context(), username, pass)
			if err != nil {
				if errors.Is(err, api.ErrUnverifiedEmail) {
					return fmt.Errorf("email not verified - run 'lunar auth verify' first: %w", err)
				}
				return err
			}

			refresh := tokens.RefreshToken
			if refresh == "" {
				refresh = client.RefreshCookie()
			}
			account := config.Account{
				BaseURL:      server,
				Username:     username,
				RefreshToken: refresh,
			}
			if err := config.SaveProfile(profile, account); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "Logged in successfully!")
			_, _ = fmt.Fprintf(out, "  Server: %s\n", server)
			if email := session.TokenEmail(tokens.AccessToken); email != "" {
				_, _ = fmt.Fprintf(out, "  Email: %s\n", email)
			}
			if profile != "" && profile != "default" {
				_, _ = fmt.Fprintf(out, "  Profile: %s\n", profile)
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&server, "server", "s", "", "Lunar server URL (e.g. https://lunar.example.com)")
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username or email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prefer LUNAR_PASSWORD or the prompt)")
	cmd.Flags().StringVar(&profile, "profile", "default", "Profile name to save credentials under")

	return cmd
}

func newAuthRegisterCmd() *cobra.Command {
	var (
		server   string
		username string
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if server == "" {
				server = strings.TrimSpace(os.Getenv("LUNAR_BASE_URL"))
			}
			if server == "" {
				return fmt.Errorf("--server is required (or set LUNAR_BASE_URL)")
			}
			if username == "" || email == "" {
				return fmt.Errorf("--username and --email are required")
			}

			server = strings.TrimSuffix(server, "/")
			if err := validation.ValidateServerURL(server); err != nil {
				return fmt.Errorf("invalid server URL: %w", err)
			}

			pass, err := resolvePassword(password)
			if err != nil {
				return err
			}

			client := api.New(server)
			client.UserAgent = fmt.Sprintf("lunar-cli/%s", version)
			if _, err := client.Register(cmd.Context(), api.RegisterRequest{
				Username:        username,
				Email:           email,
				Password:        pass,
				ConfirmPassword: pass,
			}); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "Account created.")
			_, _ = fmt.Fprintf(out, "Check %s for a verification code, then run:\n", email)
			_, _ = fmt.Fprintf(out, "  lunar auth verify --server %s --email %s --code CODE\n", server, email)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&server, "server", "s", "", "Lunar server URL")
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prefer LUNAR_PASSWORD or the prompt)")

	return cmd
}

func newAuthVerifyCmd() *cobra.Command {
	var (
		server string
		email  string
		code   string
		resend bool
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify an email address",
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if server == "" {
				server = strings.TrimSpace(os.Getenv("LUNAR_BASE_URL"))
			}
			if server == "" {
				return fmt.Errorf("--server is required (or set LUNAR_BASE_URL)")
			}
			if email == "" {
				return fmt.Errorf("--email is required")
			}

			server = strings.TrimSuffix(server, "/")
			if err := validation.ValidateServerURL(server); err != nil {
				return fmt.Errorf("invalid server URL: %w", err)
			}

			client := api.New(server)
			client.UserAgent = fmt.Sprintf("lunar-cli/%s", version)

			if resend {
				if err := client.ResendVerification(cmd.Context(), email); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Verification code resent to %s\n", email)
				return nil
			}

			if code == "" {
				return fmt.Errorf("--code is required (or use --resend to request a new one)")
			}
			if _, err := client.Verify(cmd.Context(), email, code); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Email verified. You can now log in with 'lunar auth login'.")
			return nil
		}),
	}

	cmd.Flags().StringVarP(&server, "server", "s", "", "Lunar server URL")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address")
	cmd.Flags().StringVarP(&code, "code", "c", "", "Verification code from the email")
	cmd.Flags().BoolVar(&resend, "resend", false, "Resend the verification code instead of verifying")

	return cmd
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			sess, err := newAppSession()
			if err != nil {
				return err
			}
			if err := sess.authenticate(cmd.Context()); err != nil {
				return err
			}

			user, err := sess.client.Me(cmd.Context())
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, user)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Logged in to %s\n", sess.cfg.BaseURL)
			_, _ = fmt.Fprintf(out, "  Username: %s\n", user.Username)
			if user.Email != "" {
				_, _ = fmt.Fprintf(out, "  Email: %s\n", user.Email)
			}
			return nil
		}),
	}
}

func newAuthLogoutCmd() *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Log out and remove stored credentials",
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			// Best-effort server-side revocation; local credentials are
			// removed regardless.
			if sess, err := newAppSession(); err == nil {
				if err := sess.authenticate(cmd.Context()); err == nil {
					_ = sess.client.Logout(cmd.Context())
				}
				sess.store.Clear()
			}

			if profile == "" {
				if current, err := config.CurrentProfile(); err == nil {
					profile = current
				}
			}
			if err := config.DeleteProfile(profile); err != nil {
				return fmt.Errorf("failed to remove credentials: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		}),
	}

	cmd.Flags().StringVar(&profile, "profile", "", "Profile to remove (default: current)")

	return cmd
}
