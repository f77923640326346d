package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCallTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call-token <room>",
		Short: "Mint a media token for a room's call",
		Long:  "Fetch a short-lived token for the realtime media service. External tools use it to join the room's call.",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			sess, err := newAppSession()
			if err != nil {
				return err
			}
			if err := sess.authenticate(cmd.Context()); err != nil {
				return err
			}

			slug, err := resolveRoomSlug(cmd.Context(), sess, args[0])
			if err != nil {
				return err
			}

			token, err := sess.client.MediaToken(cmd.Context(), slug)
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, map[string]string{"room": slug, "token": token})
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		}),
	}

	return cmd
}
