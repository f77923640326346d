package api

import (
	"context"
	"fmt"
	"net/url"
)

// ListRooms returns the rooms visible to the authenticated user.
func (c *Client) ListRooms(ctx context.Context) ([]Room, error) {
	var rooms []Room
	if err := c.Get(ctx, "/rooms", &rooms); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// ResolveRoom resolves a human-readable slug to the Room entity, joining the
// current user as a member. An unknown slug returns ErrNotFound.
func (c *Client) ResolveRoom(ctx context.Context, slug string) (*Room, error) {
	var room Room
	if err := c.Post(ctx, "/rooms/"+url.PathEscape(slug), nil, &room); err != nil {
		return nil, fmt.Errorf("resolve room %q: %w", slug, err)
	}
	return &room, nil
}

// CreateRoomRequest carries the fields for POST /rooms.
type CreateRoomRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// CreateRoom creates a new room owned by the authenticated user.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*Room, error) {
	var room Room
	if err := c.Post(ctx, "/rooms", req, &room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return &room, nil
}
