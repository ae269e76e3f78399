package feed

import (
	"sync"
	"time"

	"github.com/davitran/hr-notify/internal/model"
)

// Event names a cached view that changed, either because fresh data was
// written or because a mutation invalidated it. Consumers re-read the
// affected view on their next render; the event itself carries no data.
type Event string

const (
	EventList     Event = "list"
	EventCount    Event = "count"
	EventPresence Event = "presence"
)

// pageKey identifies which feed page a cached value belongs to.
type pageKey struct {
	page  int
	limit int
}

// Cache holds the last successful merged page, the last unread count,
// and the presence-notification namespace. It is the single source of
// truth UI consumers read. Invalidation only marks a view stale; the
// next read performs the refetch, which avoids duplicate network calls
// when several mutations land back-to-back.
//
// All access is mutex-guarded: the cache is written by fetch completion
// and mutation completion, and read by consumers and the scheduler's
// freshness check, on separate goroutines.
type Cache struct {
	mu sync.Mutex

	page        *model.FeedPage
	key         pageKey
	pageValid   bool
	pageFetched time.Time

	count        int
	countValid   bool
	countFetched time.Time

	presence      []model.Notification
	presenceValid bool

	subs []chan Event
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Subscribe returns a channel that receives an Event whenever a cached
// view changes. Events are delivered best-effort: a subscriber that is
// not draining its channel misses signals rather than blocking writers.
func (c *Cache) Subscribe() <-chan Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Event, 8)
	c.subs = append(c.subs, ch)
	return ch
}

// Unsubscribe removes a previously subscribed channel.
func (c *Cache) Unsubscribe(ch <-chan Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, sub := range c.subs {
		if sub == ch {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// broadcast sends ev to every subscriber without blocking.
// Callers must hold c.mu.
func (c *Cache) broadcast(ev Event) {
	for _, sub := range c.subs {
		select {
		case sub <- ev:
		default:
			// Subscriber is behind; drop the signal.
		}
	}
}

// SetPage stores a freshly merged page as the current list view.
func (c *Cache) SetPage(page int, limit int, p model.FeedPage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.page = &p
	c.key = pageKey{page: page, limit: limit}
	c.pageValid = true
	c.pageFetched = time.Now()
	c.broadcast(EventList)
}

// Page returns the cached page if it is still valid and was fetched for
// the same (page, limit) request.
func (c *Cache) Page(page int, limit int) (model.FeedPage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.pageValid || c.page == nil {
		return model.FeedPage{}, false
	}
	if c.key != (pageKey{page: page, limit: limit}) {
		return model.FeedPage{}, false
	}
	return *c.page, true
}

// LastPage returns the last successfully fetched page regardless of
// validity. Failed fetches fall back to it so consumers never see a
// flash of empty state.
func (c *Cache) LastPage() (model.FeedPage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page == nil {
		return model.FeedPage{}, false
	}
	return *c.page, true
}

// ListFetchedAt returns when the list view was last successfully
// fetched. The zero time means never.
func (c *Cache) ListFetchedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pageFetched
}

// SetCount stores a fresh unread count.
func (c *Cache) SetCount(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.count = n
	c.countValid = true
	c.countFetched = time.Now()
	c.broadcast(EventCount)
}

// Count returns the cached unread count if it is still valid.
func (c *Cache) Count() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count, c.countValid
}

// LastCount returns the last known unread count regardless of validity.
func (c *Cache) LastCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// SetPresence stores the presence-notification namespace snapshot.
func (c *Cache) SetPresence(items []model.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.presence = items
	c.presenceValid = true
	c.broadcast(EventPresence)
}

// Presence returns the cached presence snapshot if still valid.
func (c *Cache) Presence() ([]model.Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.presenceValid {
		return nil, false
	}
	return c.presence, true
}

// InvalidateList marks the list view stale. The cached page is kept for
// stale fallback; the next read refetches.
func (c *Cache) InvalidateList() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pageValid = false
	c.broadcast(EventList)
}

// InvalidateCount marks the unread count stale.
func (c *Cache) InvalidateCount() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.countValid = false
	c.broadcast(EventCount)
}

// InvalidatePresence marks the presence namespace stale. Kept separate
// so a presence-specific view observes presence mutations without
// waiting a full list cadence.
func (c *Cache) InvalidatePresence() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.presenceValid = false
	c.broadcast(EventPresence)
}
