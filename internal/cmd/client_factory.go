package cmd

import (
	"context"
	"fmt"

	"github.com/lunar-chat/lunar-cli/internal/api"
	"github.com/lunar-chat/lunar-cli/internal/config"
	"github.com/lunar-chat/lunar-cli/internal/realtime"
	"github.com/lunar-chat/lunar-cli/internal/session"
)

// appSession bundles the API client with the token store and broker that
// keep its credential fresh. Every authenticated command starts here.
type appSession struct {
	client *api.Client
	store  *session.TokenStore
	broker *session.Broker
	cfg    config.ClientConfig
}

// newAppSession resolves the stored account and wires the credential loop:
// the client reads its bearer token from the store, 401s trigger the broker,
// and the broker refreshes through the client's cookie jar. Rotated refresh
// tokens are written back to the keyring so the next process can resume.
func newAppSession() (*appSession, error) {
	cfg, err := config.ResolveClientConfig(flags.BaseURL)
	if err != nil {
		return nil, err
	}

	client := api.New(cfg.BaseURL)
	client.UserAgent = fmt.Sprintf("lunar-cli/%s", version)
	if flags.Timeout > 0 {
		client.HTTP.Timeout = flags.Timeout
	}
	client.SetRefreshCookie(cfg.RefreshToken)

	store := session.NewStore()
	broker := session.NewBroker(store, func(ctx context.Context) (string, error) {
		token, err := client.RefreshToken(ctx)
		if err != nil {
			return "", err
		}
		if rotated := client.RefreshCookie(); rotated != "" && rotated != cfg.RefreshToken {
			if saveErr := config.UpdateRefreshToken(rotated); saveErr == nil {
				cfg.RefreshToken = rotated
			}
		}
		return token, nil
	})
	client.TokenFunc = store.Token
	client.Reauth = broker.Refresh

	return &appSession{
		client: client,
		store:  store,
		broker: broker,
		cfg:    cfg,
	}, nil
}

// authenticate obtains an initial access token, either from the store or by
// redeeming the persisted refresh token.
func (s *appSession) authenticate(ctx context.Context) error {
	if _, err := s.broker.EnsureValid(ctx); err != nil {
		return fmt.Errorf("not logged in (run 'lunar auth login'): %w", err)
	}
	s.store.MarkInitialized()
	return nil
}

// openChannel builds a realtime channel bound to this session's credential.
// A fresh token connects the socket (no-op when already open); a cleared
// token parks it until the next login.
func (s *appSession) openChannel(router *realtime.Router) *realtime.Channel {
	channel := realtime.NewChannel(s.broker, s.client.WebSocketURL, router)
	s.store.Watch(func(token string) {
		if token == "" {
			channel.Disconnect()
			return
		}
		_ = channel.Connect(context.Background())
	})
	return channel
}
