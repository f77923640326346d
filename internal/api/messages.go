package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// DefaultPageSize bounds how many messages one history page carries.
const DefaultPageSize = 10

// ListMessages fetches one page of a room's history, newest first. cursor is
// the opaque pointer returned by a previous page; empty fetches the newest
// page. The cursor is URL-encoded here, callers pass it through verbatim.
func (c *Client) ListMessages(ctx context.Context, slug string, limit int, cursor string) (*MessagePage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	path := "/rooms/" + url.PathEscape(slug) + "/messages?limit=" + strconv.Itoa(limit)
	if cursor != "" {
		path += "&cursor=" + url.QueryEscape(cursor)
	}

	var page MessagePage
	if err := c.Get(ctx, path, &page); err != nil {
		return nil, fmt.Errorf("list messages for %q: %w", slug, err)
	}
	return &page, nil
}
