package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lunar-chat/lunar-cli/internal/conversation"
	"github.com/lunar-chat/lunar-cli/internal/realtime"
)

const sendConnectTimeout = 10 * time.Second

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <room> <message>...",
		Short: "Send a message to a room",
		Example: strings.TrimSpace(`
  # Send a message to a room by slug or name
  lunar send general hello there
`),
		Args: cobra.MinimumNArgs(2),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			content := strings.Join(args[1:], " ")

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

			router := realtime.NewRouter()
			channel := sess.openChannel(router)
			defer channel.Close()

			convo := conversation.NewSession(channel, router, sess.client)
			if _, err := convo.Open(cmd.Context(), slug); err != nil {
				return err
			}
			defer convo.Close(cmd.Context())

			if err := channel.Connect(cmd.Context()); err != nil {
				return err
			}
			if err := waitForOpen(cmd.Context(), channel, sendConnectTimeout); err != nil {
				return err
			}

			if err := convo.SendMessage(cmd.Context(), content); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Sent to %s\n", slug)
			return nil
		}),
	}

	return cmd
}

// waitForOpen blocks until the channel reaches the open state or the
// timeout elapses.
func waitForOpen(ctx context.Context, channel *realtime.Channel, timeout time.Duration) error {
	if channel.State() == realtime.StateOpen {
		return nil
	}

	opened := make(chan struct{}, 1)
	remove := channel.OnStateChange(func(s realtime.State) {
		if s == realtime.StateOpen {
			select {
			case opened <- struct{}{}:
			default:
			}
		}
	})
	defer remove()

	// Re-check after subscribing; the transition may have already happened.
	if channel.State() == realtime.StateOpen {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-opened:
		return nil
	case <-timer.C:
		return fmt.Errorf("timed out connecting to the realtime channel")
	case <-ctx.Done():
		return ctx.Err()
	}
}
