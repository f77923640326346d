package timeline

import "sync"

// Edge thresholds, in pixels: how close to the top edge triggers a
// backfill, and how close to the bottom still counts as "at bottom".
const (
	TopThreshold    = 100
	BottomThreshold = 100
)

// Viewport tracks a scroll container over the timeline: whether the user
// sits at the bottom (auto-scroll on new messages) or has scrolled up
// (count unread instead), and when to trigger loading older history.
type Viewport struct {
	mu           sync.Mutex
	scrollTop    int
	scrollHeight int
	clientHeight int
	unread       int
}

// NewViewport creates a viewport with no recorded metrics; an empty
// viewport counts as at-bottom.
func NewViewport() *Viewport {
	return &Viewport{}
}

// HandleScroll records the container's current metrics. Reaching the
// bottom clears the unread counter.
func (v *Viewport) HandleScroll(scrollTop, scrollHeight, clientHeight int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scrollTop = scrollTop
	v.scrollHeight = scrollHeight
	v.clientHeight = clientHeight
	if v.atBottomLocked() {
		v.unread = 0
	}
}

// AtBottom reports whether the visible region sits within BottomThreshold
// of the newest message.
func (v *Viewport) AtBottom() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.atBottomLocked()
}

func (v *Viewport) atBottomLocked() bool {
	return v.scrollHeight-v.scrollTop-v.clientHeight < BottomThreshold
}

// ShouldLoadOlder reports whether the scroll position is near enough to
// the top to backfill, given that an older page remains.
func (v *Viewport) ShouldLoadOlder(nextCursor string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scrollTop < TopThreshold && nextCursor != ""
}

// PreservePosition pins the visible content after a prepend: with the
// content height grown from prevHeight to newHeight, the scroll offset
// becomes newHeight - prevHeight so nothing visibly jumps.
func (v *Viewport) PreservePosition(prevHeight, newHeight int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scrollHeight = newHeight
	v.scrollTop = newHeight - prevHeight
}

// ScrollToBottom jumps to the newest message and clears unread.
func (v *Viewport) ScrollToBottom() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scrollTop = v.scrollHeight - v.clientHeight
	if v.scrollTop < 0 {
		v.scrollTop = 0
	}
	v.unread = 0
}

// IncrementUnread bumps the unread counter; callers use it when a live
// message arrives while the viewport is away from the bottom.
func (v *Viewport) IncrementUnread() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.unread++
}

// Unread returns the current unread count.
func (v *Viewport) Unread() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unread
}

// ScrollTop returns the recorded scroll offset.
func (v *Viewport) ScrollTop() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scrollTop
}
