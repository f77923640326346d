package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lunar-chat/lunar-cli/internal/api"
	"github.com/lunar-chat/lunar-cli/internal/conversation"
	"github.com/lunar-chat/lunar-cli/internal/filter"
	"github.com/lunar-chat/lunar-cli/internal/realtime"
	"github.com/lunar-chat/lunar-cli/internal/timeline"
)

func newFollowCmd() *cobra.Command {
	var (
		tail       int
		filterExpr string
		withCalls  bool
	)

	cmd := &cobra.Command{
		Use:     "follow <room>",
		Aliases: []string{"fw"},
		Short:   "Follow a room in real-time",
		Long: strings.TrimSpace(`
Join a room and print new messages as they arrive.

Connects to the server's realtime WebSocket. The room argument is a slug or
a (fuzzy-matched) room name. Recent history is printed first, then the
stream continues until interrupted with Ctrl+C.
`),
		Example: strings.TrimSpace(`
  # Follow a room by slug
  lunar follow general

  # Follow with a jq filter on the message JSON
  lunar follow general --filter '.sender.username != "bot"'

  # Skip history
  lunar follow general --tail 0
`),
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if filterExpr != "" {
				// Fail fast on a bad expression before touching the network.
				if _, err := filter.Apply(map[string]any{}, filterExpr); err != nil {
					return err
				}
			}

			sess, err := newAppSession()
			if err != nil {
				return err
			}
			if err := sess.authenticate(ctx); err != nil {
				return err
			}

			slug, err := resolveRoomSlug(ctx, sess, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()

			// Backfill recent history before the live stream starts.
			if tail > 0 {
				history := timeline.NewStore(sess.client, slug)
				if err := history.LoadInitial(ctx); err != nil {
					return err
				}
				if history.NotFound() {
					return fmt.Errorf("room %q: %w", slug, api.ErrNotFound)
				}
				messages := history.Messages()
				if len(messages) > tail {
					messages = messages[len(messages)-tail:]
				}
				for _, msg := range messages {
					printMessage(cmd, out, msg, filterExpr)
				}
			}

			router := realtime.NewRouter()
			channel := sess.openChannel(router)
			defer channel.Close()

			convo := conversation.NewSession(channel, router, sess.client)
			convo.OnMessage(func(msg api.Message) {
				printMessage(cmd, out, msg, filterExpr)
			})

			var callSub *realtime.Subscription
			if withCalls {
				callSub = router.Subscribe(realtime.TypeIncomingCall, func(payload json.RawMessage) {
					var call realtime.IncomingCallPayload
					if err := json.Unmarshal(payload, &call); err != nil {
						return
					}
					_, _ = fmt.Fprintf(errOut, "* incoming call from %s in %s\n", call.CallerName, call.RoomName)
				})
				defer router.Unsubscribe(callSub)
			}

			if _, err := convo.Open(ctx, slug); err != nil {
				return err
			}
			defer convo.Close(ctx)

			if err := channel.Connect(ctx); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(errOut, "Following %s (Ctrl+C to stop)\n", slug)
			<-ctx.Done()
			_, _ = fmt.Fprintln(errOut, "Stopped.")
			return nil
		}),
	}

	cmd.Flags().IntVar(&tail, "tail", timeline.InitialPageSize, "Number of recent messages to print before streaming (0 disables)")
	cmd.Flags().StringVar(&filterExpr, "filter", "", "JQ expression applied to each message; falsy results are skipped")
	cmd.Flags().BoolVar(&withCalls, "calls", true, "Announce incoming call events on stderr")

	return cmd
}

// printMessage renders one message, honoring the output mode and filter.
// With a filter, messages whose result is null or false are dropped.
func printMessage(cmd *cobra.Command, out io.Writer, msg api.Message, filterExpr string) {
	if filterExpr == "" {
		writeMessage(cmd, out, msg)
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	result, err := filter.ApplyFromJSON(data, filterExpr)
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "filter: %v\n", err)
		return
	}
	switch v := result.(type) {
	case nil:
		return
	case bool:
		if !v {
			return
		}
	}
	writeMessage(cmd, out, msg)
}

func writeMessage(cmd *cobra.Command, out io.Writer, msg api.Message) {
	if isJSON(cmd) {
		data, err := json.Marshal(msg)
		if err != nil {
			return
		}
		_, _ = fmt.Fprintln(out, string(data))
		return
	}
	_, _ = fmt.Fprintf(out, "[%s] %s: %s\n",
		msg.CreatedAt.Local().Format("15:04"), msg.Sender.Username, msg.Content)
}
