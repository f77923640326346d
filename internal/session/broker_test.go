package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, expiresAt time.Time, email string) string {
	t.Helper()
	claims := userClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestEnsureValidReturnsFreshTokenUnchanged(t *testing.T) {
	store := NewStore()
	token := signedToken(t, time.Now().Add(time.Hour), "a@b.c")
	store.SetToken(token)

	broker := NewBroker(store, func(ctx context.Context) (string, error) {
		t.Fatal("refresh must not run for a fresh token")
		return "", nil
	})

	got, err := broker.EnsureValid(context.Background())
	require.NoError(t, err)
	require.Equal(t, token, got)
}

func TestEnsureValidRefreshesExpiredToken(t *testing.T) {
	store := NewStore()
	store.SetToken(signedToken(t, time.Now().Add(-time.Minute), ""))

	fresh := signedToken(t, time.Now().Add(time.Hour), "")
	broker := NewBroker(store, func(ctx context.Context) (string, error) {
		return fresh, nil
	})

	got, err := broker.EnsureValid(context.Background())
	require.NoError(t, err)
	require.Equal(t, fresh, got)
	require.Equal(t, fresh, store.Token())
}

func TestEnsureValidTreatsMalformedTokenAsExpired(t *testing.T) {
	store := NewStore()
	store.SetToken("not-a-jwt")

	var calls int32
	broker := NewBroker(store, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "new-token", nil
	})

	got, err := broker.EnsureValid(context.Background())
	require.NoError(t, err)
	require.Equal(t, "new-token", got)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestEnsureValidRefreshesNearExpiryToken(t *testing.T) {
	store := NewStore()
	// Valid, but inside the skew window.
	store.SetToken(signedToken(t, time.Now().Add(ExpirySkew/2), ""))

	broker := NewBroker(store, func(ctx context.Context) (string, error) {
		return "refreshed", nil
	})

	got, err := broker.EnsureValid(context.Background())
	require.NoError(t, err)
	require.Equal(t, "refreshed", got)
}

func TestRefreshIsSingleFlight(t *testing.T) {
	store := NewStore()
	store.SetToken(signedToken(t, time.Now().Add(-time.Minute), ""))

	var calls int32
	release := make(chan struct{})
	broker := NewBroker(store, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "shared-token", nil
	})

	const n = 16
	results := make([]string, n)
	errs := make([]error, n)
	started := make(chan struct{}, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			// Half simulate the proactive check, half the reactive 401 path.
			if i%2 == 0 {
				results[i], errs[i] = broker.EnsureValid(context.Background())
			} else {
				results[i], errs[i] = broker.Refresh(context.Background())
			}
		}(i)
	}

	for i := 0; i < n; i++ {
		<-started
	}
	// Give every goroutine a moment to reach the broker before releasing.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&calls), "exactly one network refresh call")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "shared-token", results[i], "all callers observe the same credential")
	}
}

func TestRefreshFailureClearsStore(t *testing.T) {
	store := NewStore()
	store.SetToken(signedToken(t, time.Now().Add(-time.Minute), ""))

	rejected := errors.New("invalid refresh token")
	broker := NewBroker(store, func(ctx context.Context) (string, error) {
		return "", rejected
	})

	_, err := broker.EnsureValid(context.Background())
	require.ErrorIs(t, err, rejected)
	require.Empty(t, store.Token(), "failed refresh forces logout")
}

func TestTokenEmail(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour), "user@example.com")
	if got := TokenEmail(token); got != "user@example.com" {
		t.Errorf("TokenEmail: got %q", got)
	}
	if got := TokenEmail("garbage"); got != "" {
		t.Errorf("TokenEmail on malformed token: got %q, want empty", got)
	}
}
