package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lunar-chat/lunar-cli/internal/outfmt"
)

// errAlreadyHandled signals that the error was already printed to stderr.
// Commands using RunE return a handledError so Cobra reports failure (for
// the exit code) without printing the message a second time.
var errAlreadyHandled = errors.New("error already handled")

type handledError struct {
	err      error
	exitCode int
}

func (e *handledError) Error() string {
	return e.err.Error()
}

func (e *handledError) Unwrap() error {
	return errAlreadyHandled
}

// RunE wraps a command function with error handling
func RunE(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if err != nil {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
			return &handledError{err: err, exitCode: ExitCode(err)}
		}
		return nil
	}
}

func isJSON(cmd *cobra.Command) bool {
	return outfmt.IsJSON(cmd.Context())
}

// printJSON writes a value to the command's stdout, applying any jq query
// carried in the context.
func printJSON(cmd *cobra.Command, v any) error {
	return outfmt.WriteJSONFiltered(cmd.OutOrStdout(), v, outfmt.GetQuery(cmd.Context()))
}
