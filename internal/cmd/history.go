package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lunar-chat/lunar-cli/internal/api"
	"github.com/lunar-chat/lunar-cli/internal/timeline"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit int
		all   bool
	)

	cmd := &cobra.Command{
		Use:     "history <room>",
		Aliases: []string{"hist"},
		Short:   "Print a room's message history",
		Long:    "Fetch a room's history in chronological order, paging backwards through the archive.",
		Args:    cobra.ExactArgs(1),
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

			history := timeline.NewStore(sess.client, slug)
			if err := history.LoadInitial(cmd.Context()); err != nil {
				return err
			}
			if history.NotFound() {
				return fmt.Errorf("room %q: %w", slug, api.ErrNotFound)
			}

			for len(history.Messages()) < limit || all {
				loaded, err := history.LoadOlder(cmd.Context(), nil)
				if err != nil {
					return err
				}
				if !loaded {
					break
				}
			}

			messages := history.Messages()
			if !all && len(messages) > limit {
				messages = messages[len(messages)-limit:]
			}

			if isJSON(cmd) {
				return printJSON(cmd, messages)
			}
			for _, msg := range messages {
				writeMessage(cmd, cmd.OutOrStdout(), msg)
			}
			return nil
		}),
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of messages to print")
	cmd.Flags().BoolVar(&all, "all", false, "Fetch the entire archive")

	return cmd
}
