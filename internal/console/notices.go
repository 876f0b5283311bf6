package console

import (
	"sync"

	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
)

// Notices is a bounded queue of one-time messages. Each notice is rendered
// once and dropped; the oldest are discarded when full.
type Notices struct {
	mu    sync.Mutex
	items []shared.Notification
	limit int
}

// NewNotices returns a queue holding at most limit entries.
func NewNotices(limit int) *Notices {
	if limit <= 0 {
		limit = 20
	}
	return &Notices{limit: limit}
}

// Notify implements shared.Notifier.
func (n *Notices) Notify(note shared.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, note)
	if over := len(n.items) - n.limit; over > 0 {
		n.items = append(n.items[:0:0], n.items[over:]...)
	}
}

// Drain returns and clears the queued notices.
func (n *Notices) Drain() []shared.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.items
	n.items = nil
	return out
}

// Navigator records that the session asked for the login screen. The next
// page request consumes the flag.
type Navigator struct {
	mu      sync.Mutex
	pending bool
}

// RedirectToLogin implements session.Navigator.
func (n *Navigator) RedirectToLogin() {
	n.mu.Lock()
	n.pending = true
	n.mu.Unlock()
}

// Take reports and clears a pending redirect.
func (n *Navigator) Take() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	p := n.pending
	n.pending = false
	return p
}

// Pending reports a pending redirect without clearing it.
func (n *Navigator) Pending() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pending
}
