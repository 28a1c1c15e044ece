// Package presence tracks which identities currently have a live connection.
package presence

import (
	"context"
	"sort"
	"sync"
)

// Handle is a live connection that messages can be pushed to.
type Handle interface {
	// ID is unique per connection for the lifetime of the process.
	ID() string
	// Push writes payload to the connection. It fails once the connection
	// is closing.
	Push(ctx context.Context, payload []byte) error
}

// Directory maps identities to their current connection. A later
// registration for the same identity supersedes the earlier one.
// It is safe for concurrent use.
type Directory struct {
	mu      sync.RWMutex
	current map[string]Handle
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{current: make(map[string]Handle)}
}

// Register records h as current for identity and returns the handle it
// superseded, if any.
func (d *Directory) Register(identity string, h Handle) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.current[identity]
	d.current[identity] = h
	return prev
}

// Unregister removes identity only if h is still the handle on file, so a
// stale disconnect cannot evict a newer connection. It reports whether the
// mapping was removed.
func (d *Directory) Unregister(identity string, h Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur, ok := d.current[identity]
	if !ok || cur.ID() != h.ID() {
		return false
	}
	delete(d.current, identity)
	return true
}

// Lookup returns the current handle for identity.
func (d *Directory) Lookup(identity string) (Handle, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	h, ok := d.current[identity]
	return h, ok
}

// IsPresent reports whether identity has a registered connection.
func (d *Directory) IsPresent(identity string) bool {
	_, ok := d.Lookup(identity)
	return ok
}

// Count returns the number of present identities.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.current)
}

// Identities returns the present identities in sorted order.
func (d *Directory) Identities() []string {
	d.mu.RLock()
	ids := make([]string, 0, len(d.current))
	for id := range d.current {
		ids = append(ids, id)
	}
	d.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
