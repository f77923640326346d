package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// ExpirySkew is how close to expiry a token may get before EnsureValid
// refreshes it proactively instead of handing it out.
const ExpirySkew = 30 * time.Second

// RefreshFunc performs the network refresh call and returns a new access
// token. Typically (*api.Client).RefreshToken.
type RefreshFunc func(ctx context.Context) (string, error)

// Broker keeps the store's token valid. All refresh triggers — the proactive
// expiry check and the HTTP layer's reactive 401 retry — funnel through one
// single-flight operation, so at most one refresh call is in flight at any
// instant and concurrent callers share its result.
type Broker struct {
	store   *TokenStore
	refresh RefreshFunc
	group   singleflight.Group
	now     func() time.Time
}

// NewBroker creates a Broker around store using refresh for the network call.
func NewBroker(store *TokenStore, refresh RefreshFunc) *Broker {
	return &Broker{
		store:   store,
		refresh: refresh,
		now:     time.Now,
	}
}

// EnsureValid returns a usable access token, refreshing first when the
// current one is missing, malformed, or within ExpirySkew of its expiry.
// A malformed token never surfaces as a decode error; it is treated as
// expired.
func (b *Broker) EnsureValid(ctx context.Context) (string, error) {
	token := b.store.Token()
	if token != "" {
		if expiry, ok := tokenExpiry(token); ok && b.now().Add(ExpirySkew).Before(expiry) {
			return token, nil
		}
	}
	return b.Refresh(ctx)
}

// Refresh obtains a new access token. If a refresh is already pending, the
// caller awaits that operation instead of issuing a second network call. On
// success the new token is stored and returned; on failure the store is
// cleared, forcing logout.
func (b *Broker) Refresh(ctx context.Context) (string, error) {
	v, err, shared := b.group.Do("refresh", func() (any, error) {
		token, err := b.refresh(ctx)
		if err != nil {
			b.store.Clear()
			return "", fmt.Errorf("credential refresh: %w", err)
		}
		b.store.SetToken(token)
		return token, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		slog.Debug("refresh result shared with concurrent caller")
	}
	return v.(string), nil
}
