package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestListMessagesQuery(t *testing.T) {
	var gotLimit, gotCursor string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/rooms/general/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotLimit = r.URL.Query().Get("limit")
		gotCursor = r.URL.Query().Get("cursor")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"messages":[],"nextCursor":"eyJpZCI6IjEifQ=="}}`))
	}))
	defer server.Close()

	client := New(server.URL)
	page, err := client.ListMessages(context.Background(), "general", 5, `{"id":"1","createdAt":"2026-01-01T00:00:00Z"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotLimit != "5" {
		t.Errorf("limit: got %q, want 5", gotLimit)
	}
	// net/url decodes the query value back; the raw wire form was escaped.
	if gotCursor != `{"id":"1","createdAt":"2026-01-01T00:00:00Z"}` {
		t.Errorf("cursor round-trip mismatch: %q", gotCursor)
	}
	if page.NextCursor != "eyJpZCI6IjEifQ==" {
		t.Errorf("nextCursor: got %q", page.NextCursor)
	}
}

func TestListMessagesDefaultLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "10" {
			t.Errorf("limit: got %q, want 10", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"messages":[],"nextCursor":""}}`))
	}))
	defer server.Close()

	client := New(server.URL)
	if _, err := client.ListMessages(context.Background(), "general", 0, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeDataUnwrapsEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"wrapped", `{"success":true,"data":{"accessToken":"tok"}}`},
		{"unwrapped", `{"accessToken":"tok","refreshToken":"ignored"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out TokenResponse
			if err := decodeData([]byte(tt.body), &out); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.AccessToken != "tok" {
				t.Errorf("accessToken: got %q", out.AccessToken)
			}
		})
	}
}
