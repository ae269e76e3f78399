package feed

import (
	"testing"
	"time"

	"github.com/davitran/hr-notify/internal/model"
)

func drainEvent(t *testing.T, ch <-chan Event, want Event) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("expected %q event, got %q", want, got)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected %q event, got none", want)
	}
}

func TestCachePageKeyedByRequest(t *testing.T) {
	c := NewCache()
	page := model.FeedPage{
		Items: []model.Notification{{ID: "a", Origin: model.OriginGeneric}},
		Meta:  model.PageMeta{Page: 1, Limit: 10, Total: 1},
	}

	if _, ok := c.Page(1, 10); ok {
		t.Fatal("empty cache should miss")
	}

	c.SetPage(1, 10, page)

	got, ok := c.Page(1, 10)
	if !ok {
		t.Fatal("expected cache hit for same (page, limit)")
	}
	if len(got.Items) != 1 || got.Items[0].ID != "a" {
		t.Fatalf("unexpected cached page: %+v", got)
	}

	if _, ok := c.Page(2, 10); ok {
		t.Fatal("different page must miss")
	}
	if _, ok := c.Page(1, 20); ok {
		t.Fatal("different limit must miss")
	}
}

func TestCacheInvalidationKeepsLastPage(t *testing.T) {
	c := NewCache()
	page := model.FeedPage{
		Items: []model.Notification{{ID: "a", Origin: model.OriginGeneric}},
	}
	c.SetPage(1, 10, page)

	c.InvalidateList()

	if _, ok := c.Page(1, 10); ok {
		t.Fatal("invalidated page must not be served as valid")
	}
	if last, ok := c.LastPage(); !ok || len(last.Items) != 1 {
		t.Fatal("last good page must survive invalidation for stale fallback")
	}
}

func TestCacheCountLifecycle(t *testing.T) {
	c := NewCache()

	if _, ok := c.Count(); ok {
		t.Fatal("empty cache should have no valid count")
	}

	c.SetCount(7)
	if n, ok := c.Count(); !ok || n != 7 {
		t.Fatalf("expected valid count 7, got %d (valid=%v)", n, ok)
	}

	c.InvalidateCount()
	if _, ok := c.Count(); ok {
		t.Fatal("invalidated count must not be valid")
	}
	if c.LastCount() != 7 {
		t.Fatalf("last known count must survive invalidation, got %d", c.LastCount())
	}
}

func TestCacheSubscriptionSignalsWritesAndInvalidations(t *testing.T) {
	c := NewCache()
	ch := c.Subscribe()

	c.SetPage(1, 10, model.FeedPage{})
	drainEvent(t, ch, EventList)

	c.SetCount(3)
	drainEvent(t, ch, EventCount)

	c.InvalidateList()
	drainEvent(t, ch, EventList)

	c.SetPresence([]model.Notification{{ID: "p", Origin: model.OriginPresence}})
	drainEvent(t, ch, EventPresence)

	c.InvalidatePresence()
	drainEvent(t, ch, EventPresence)
}

func TestCacheUnsubscribeClosesChannel(t *testing.T) {
	c := NewCache()
	ch := c.Subscribe()

	c.Unsubscribe(ch)

	if _, open := <-ch; open {
		t.Fatal("unsubscribed channel should be closed")
	}

	// Writes after unsubscribe must not panic.
	c.SetCount(1)
}
