package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lunar-chat/lunar-cli/internal/api"
	"github.com/lunar-chat/lunar-cli/internal/debug"
	"github.com/lunar-chat/lunar-cli/internal/outfmt"
	"github.com/lunar-chat/lunar-cli/internal/validation"
)

// rootFlags holds global CLI flags
type rootFlags struct {
	Output       string
	JSON         bool
	Debug        bool
	BaseURL      string
	Profile      string
	Query        string
	AllowPrivate bool
	Timeout      time.Duration
}

// flags holds the global command flags. This is package-level mutable state
// that MUST be reset at the start of every Execute() call. Tests depend on
// this reset to get clean state.
var flags = rootFlags{
	Output:  defaultOutput(),
	Timeout: api.DefaultTimeout,
}

func defaultOutput() string {
	value := strings.TrimSpace(os.Getenv("LUNAR_OUTPUT"))
	if value != "" {
		return value
	}
	return "text"
}

func parseBoolEnv(key string) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// Execute runs the root command
func Execute(ctx context.Context, args []string) error {
	// Reset flags to defaults for each execution. Critical for test
	// isolation - see the invariant comment on the flags declaration above.
	flags = rootFlags{
		Output:       defaultOutput(),
		AllowPrivate: parseBoolEnv("LUNAR_ALLOW_PRIVATE"),
		Timeout:      api.DefaultTimeout,
	}

	root := &cobra.Command{
		Use:           "lunar",
		Short:         "CLI for the Lunar chat and video platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if flags.JSON {
				if cmd.Flags().Changed("output") && flags.Output != "json" {
					return fmt.Errorf("--json conflicts with --output %s", flags.Output)
				}
				flags.Output = "json"
			}
			if flags.Query != "" && flags.Output != "json" {
				if cmd.Flags().Changed("output") {
					return fmt.Errorf("--query requires --output json (or --json)")
				}
				flags.Output = "json"
			}

			mode, err := outfmt.Parse(flags.Output)
			if err != nil {
				return err
			}
			ctx = outfmt.WithMode(ctx, mode)
			if flags.Query != "" {
				ctx = outfmt.WithQuery(ctx, flags.Query)
			}

			allowPrivate := flags.AllowPrivate || parseBoolEnv("LUNAR_ALLOW_PRIVATE")
			validation.SetAllowPrivate(allowPrivate)
			if allowPrivate {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Warning: allowing private/localhost URLs (use only with trusted targets).")
			}

			debug.SetupLogger(flags.Debug)
			ctx = debug.WithDebug(ctx, flags.Debug)

			if flags.Profile != "" {
				// Profile selection flows through the env var so config
				// lookups deeper in the stack agree with the flag.
				_ = os.Setenv("LUNAR_PROFILE", flags.Profile)
			}

			cmd.SetContext(ctx)
			return nil
		},
	}

	root.SetContext(ctx)
	root.SetArgs(args)
	root.PersistentFlags().StringVarP(&flags.Output, "output", "o", flags.Output, "Output format: text|json (env LUNAR_OUTPUT)")
	root.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "Shorthand for --output json")
	root.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flags.BaseURL, "base-url", "", "Lunar server URL (overrides stored account; env LUNAR_BASE_URL)")
	root.PersistentFlags().StringVar(&flags.Profile, "profile", "", "Named credential profile (env LUNAR_PROFILE)")
	root.PersistentFlags().StringVarP(&flags.Query, "query", "q", "", "JQ expression to filter JSON output")
	root.PersistentFlags().BoolVar(&flags.AllowPrivate, "allow-private", flags.AllowPrivate, "Allow private/localhost URLs (unsafe)")
	root.PersistentFlags().DurationVar(&flags.Timeout, "timeout", flags.Timeout, "HTTP request timeout (e.g., 30s, 2m)")

	root.AddCommand(newAuthCmd())
	root.AddCommand(newRoomsCmd())
	root.AddCommand(newFollowCmd())
	root.AddCommand(newSendCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newCallTokenCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		var handled *handledError
		if !errors.As(err, &handled) {
			_, _ = fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		}
		return err
	}
	return nil
}
