package api

import (
	"context"
	"fmt"
	"net/url"
)

// MediaToken fetches a short-lived access token for the external
// realtime-media SDK. Media negotiation itself is out of this client's
// hands; the token is all the core contributes to a call.
func (c *Client) MediaToken(ctx context.Context, slug string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.Get(ctx, "/livekit/token/"+url.PathEscape(slug), &resp); err != nil {
		return "", fmt.Errorf("media token for %q: %w", slug, err)
	}
	return resp.Token, nil
}
