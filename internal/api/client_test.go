package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestReactiveRefreshRetriesOnce(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if r.Header.Get("Authorization") == "Bearer fresh" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success":true,"data":[]}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"unauthorized","message":"token expired"}}`))
	}))
	defer server.Close()

	var reauthCalls int32
	client := New(server.URL)
	client.TokenFunc = func() string { return "stale" }
	client.Reauth = func(ctx context.Context) (string, error) {
		atomic.AddInt32(&reauthCalls, 1)
		return "fresh", nil
	}

	if _, err := client.ListRooms(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&reauthCalls); got != 1 {
		t.Errorf("expected 1 reauth call, got %d", got)
	}
	if got := atomic.LoadInt32(&requests); got != 2 {
		t.Errorf("expected original + retried request, got %d requests", got)
	}
}

func TestReactiveRefreshFailurePropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"error":{"message":"token expired"}}`))
	}))
	defer server.Close()

	refreshErr := errors.New("refresh rejected")
	client := New(server.URL)
	client.TokenFunc = func() string { return "stale" }
	client.Reauth = func(ctx context.Context) (string, error) { return "", refreshErr }

	_, err := client.ListRooms(context.Background())
	if !errors.Is(err, refreshErr) {
		t.Fatalf("expected refresh error to propagate, got %v", err)
	}
}

func TestAuthEndpointsNeverReauth(t *testing.T) {
	paths := []string{"/auth/refresh", "/auth/login", "/auth/register", "/auth/verify"}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"success":false,"error":{"message":"invalid refresh token"}}`))
			}))
			defer server.Close()

			client := New(server.URL)
			client.Reauth = func(ctx context.Context) (string, error) {
				t.Error("reauth must not run for auth endpoints")
				return "", nil
			}

			err := client.Post(context.Background(), path, nil, nil)
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401 APIError, got %v", err)
			}
		})
	}
}

func TestUnverifiedEmailSkipsRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"unauthorized","message":"email is not verified"}}`))
	}))
	defer server.Close()

	client := New(server.URL)
	client.TokenFunc = func() string { return "valid-but-unverified" }
	client.Reauth = func(ctx context.Context) (string, error) {
		t.Error("reauth must not run for the unverified-email 401 variant")
		return "", nil
	}

	_, err := client.ListRooms(context.Background())
	if !errors.Is(err, ErrUnverifiedEmail) {
		t.Fatalf("expected ErrUnverifiedEmail, got %v", err)
	}
}

func TestNotFoundSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"not_found","message":"Chat not found"}}`))
	}))
	defer server.Close()

	client := New(server.URL)
	_, err := client.ResolveRoom(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServerErrorRetriedOnceForIdempotent(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":[]}`))
	}))
	defer server.Close()

	client := New(server.URL)
	client.RetryConfig.ServerErrorRetryDelay = time.Millisecond

	if _, err := client.ListRooms(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&requests); got != 2 {
		t.Errorf("expected 2 requests (retry once), got %d", got)
	}
}

func TestServerErrorNotRetriedForPost(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL)
	client.RetryConfig.ServerErrorRetryDelay = time.Millisecond

	_, err := client.CreateRoom(context.Background(), CreateRoomRequest{Name: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&requests); got != 1 {
		t.Errorf("expected no retry for non-idempotent request, got %d requests", got)
	}
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		base  string
		token string
		want  string
	}{
		{"https://chat.example.com", "abc", "wss://chat.example.com/api/ws?token=abc"},
		{"http://localhost:8080", "a b", "ws://localhost:8080/api/ws?token=a+b"},
	}
	for _, tt := range tests {
		c := New(tt.base)
		if got := c.WebSocketURL(tt.token); got != tt.want {
			t.Errorf("WebSocketURL(%q): got %q, want %q", tt.base, got, tt.want)
		}
	}
}
