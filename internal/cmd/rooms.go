package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lunar-chat/lunar-cli/internal/api"
	"github.com/lunar-chat/lunar-cli/internal/cache"
	"github.com/lunar-chat/lunar-cli/internal/resolve"
)

func newRoomsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rooms",
		Aliases: []string{"rm"},
		Short:   "List and manage rooms",
	}

	cmd.AddCommand(newRoomsListCmd())
	cmd.AddCommand(newRoomsCreateCmd())

	return cmd
}

// listRoomsCached lists rooms through the file cache. Live data wins; the
// cache only serves when the server is unreachable within the TTL.
func listRoomsCached(ctx context.Context, sess *appSession) ([]api.Room, error) {
	var store *cache.Store
	if dir, err := cache.DefaultDir(); err == nil {
		store = cache.NewStore(dir, "rooms", sess.cfg.BaseURL)
	}

	rooms, err := sess.client.ListRooms(ctx)
	if err != nil {
		var cached []api.Room
		if store != nil && store.Get(&cached) {
			return cached, nil
		}
		return nil, err
	}
	if store != nil {
		store.Put(rooms)
	}
	return rooms, nil
}

// resolveRoomSlug turns a user-supplied name or slug into a canonical slug,
// fuzzy-matching against the room list when it is not an exact slug.
func resolveRoomSlug(ctx context.Context, sess *appSession, query string) (string, error) {
	if _, err := sess.client.ResolveRoom(ctx, query); err == nil {
		return query, nil
	} else if !errors.Is(err, api.ErrNotFound) {
		return "", err
	}

	rooms, err := listRoomsCached(ctx, sess)
	if err != nil {
		return "", err
	}
	items := make([]resolve.Named, len(rooms))
	for i, r := range rooms {
		items[i] = resolve.Named{Slug: r.Slug, Name: r.Name}
	}
	return resolve.FuzzyMatch(query, items)
}

func newRoomsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List rooms you are a member of",
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			sess, err := newAppSession()
			if err != nil {
				return err
			}
			if err := sess.authenticate(cmd.Context()); err != nil {
				return err
			}

			rooms, err := listRoomsCached(cmd.Context(), sess)
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, rooms)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "SLUG\tNAME")
			for _, r := range rooms {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", r.Slug, r.Name)
			}
			return w.Flush()
		}),
	}
}

func newRoomsCreateCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a room",
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			sess, err := newAppSession()
			if err != nil {
				return err
			}
			if err := sess.authenticate(cmd.Context()); err != nil {
				return err
			}

			room, err := sess.client.CreateRoom(cmd.Context(), api.CreateRoomRequest{Name: name})
			if err != nil {
				return err
			}

			// Invalidate the room cache so the next list sees it.
			if dir, cacheErr := cache.DefaultDir(); cacheErr == nil {
				cache.NewStore(dir, "rooms", sess.cfg.BaseURL).Clear()
			}

			if isJSON(cmd) {
				return printJSON(cmd, room)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created room %s (%s)\n", room.Name, room.Slug)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Room name")

	return cmd
}
