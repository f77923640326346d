// Package timeline merges cursor-paginated history with live-pushed
// messages into one chronological, backfillable sequence per room.
package timeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/lunar-chat/lunar-cli/internal/api"
)

// Page sizes mirror the web client: a fuller first screen, smaller
// backfill pages while scrolling.
const (
	InitialPageSize = 10
	OlderPageSize   = 5
)

// HistorySource fetches history pages. Implemented by *api.Client.
type HistorySource interface {
	ListMessages(ctx context.Context, slug string, limit int, cursor string) (*api.MessagePage, error)
}

// Store holds one room's timeline. History pages are always older than
// anything already present, so merging is a prepend, never an interleave;
// live messages only ever append. The sequence therefore stays
// non-decreasing in CreatedAt without any sorting.
type Store struct {
	source HistorySource
	slug   string

	mu         sync.Mutex
	messages   []api.Message
	nextCursor string
	loading    bool
	notFound   bool
}

// NewStore creates a timeline for the room identified by slug.
func NewStore(source HistorySource, slug string) *Store {
	return &Store{source: source, slug: slug}
}

// Messages returns a copy of the current sequence, oldest first.
func (s *Store) Messages() []api.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// NextCursor returns the opaque cursor for the next older page, "" when no
// older page remains.
func (s *Store) NextCursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextCursor
}

// Loading reports whether a history fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// NotFound reports the terminal not-found state: the room's slug did not
// resolve. Never retried.
func (s *Store) NotFound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notFound
}

// Last returns the newest message, if any.
func (s *Store) Last() (api.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return api.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// LoadInitial fetches the newest page and seeds the timeline with it in
// chronological order. A not-found response sets the terminal not-found
// state and the timeline stays empty.
func (s *Store) LoadInitial(ctx context.Context) error {
	page, err := s.source.ListMessages(ctx, s.slug, InitialPageSize, "")
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			s.mu.Lock()
			s.notFound = true
			s.mu.Unlock()
		}
		return err
	}

	s.mu.Lock()
	s.messages = reversed(page.Messages)
	s.nextCursor = page.NextCursor
	s.notFound = false
	s.mu.Unlock()
	return nil
}

// LoadOlder fetches the next older page and splices it before the existing
// timeline. It is a guarded no-op — returning (false, nil) — when no cursor
// remains or a load is already in flight; a second trigger while one is
// pending is ignored, not queued. onScrollAdjust, if non-nil, runs after the
// splice so the caller can restore the viewport position (new scroll offset
// = newScrollHeight - previousScrollHeight). A fetch failure clears the
// loading flag and leaves the timeline untouched.
func (s *Store) LoadOlder(ctx context.Context, onScrollAdjust func()) (bool, error) {
	s.mu.Lock()
	if s.loading || s.nextCursor == "" {
		s.mu.Unlock()
		return false, nil
	}
	s.loading = true
	cursor := s.nextCursor
	s.mu.Unlock()

	page, err := s.source.ListMessages(ctx, s.slug, OlderPageSize, cursor)
	if err != nil {
		slog.Warn("failed to load older messages", "room", s.slug, "error", err)
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
		return false, err
	}

	s.mu.Lock()
	older := reversed(page.Messages)
	s.messages = append(older, s.messages...)
	s.nextCursor = page.NextCursor
	s.loading = false
	s.mu.Unlock()

	if onScrollAdjust != nil {
		onScrollAdjust()
	}
	return true, nil
}

// AppendLive appends a live-pushed message to the tail. The backfill
// cursor is unaffected. Duplicate delivery across a reconnect is accepted;
// the store does not deduplicate by id.
func (s *Store) AppendLive(msg api.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// reversed returns a page (newest first on the wire) in chronological order.
func reversed(in []api.Message) []api.Message {
	out := make([]api.Message, len(in))
	for i, m := range in {
		out[len(in)-1-i] = m
	}
	return out
}
