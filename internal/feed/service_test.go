package feed

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/davitran/hr-notify/internal/model"
	"github.com/davitran/hr-notify/internal/source"
)

// fakeSource behaves like an upstream notification endpoint: mutations
// apply to its in-memory items when the id exists and report not-found
// otherwise, unless a forced error overrides everything.
type fakeSource struct {
	mu     sync.Mutex
	origin model.Origin
	items  []model.Notification
	total  int

	fetchErr    error
	mutationErr error

	fetchCalls    int
	markReadCalls []string
	markAllCalls  int
	deleteCalls   []string
}

func (f *fakeSource) Origin() model.Origin { return f.origin }

func (f *fakeSource) FetchPage(
	ctx context.Context,
	opts source.FetchOptions,
) (*source.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}

	items := make([]model.Notification, len(f.items))
	copy(items, f.items)

	total := f.total
	if total == 0 {
		total = len(items)
	}
	return &source.FetchResult{Items: items, Total: total}, nil
}

func (f *fakeSource) MarkRead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.markReadCalls = append(f.markReadCalls, id)
	if f.mutationErr != nil {
		return f.mutationErr
	}
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Read = true
			return nil
		}
	}
	return &source.NotFoundError{Origin: f.origin, ID: id}
}

func (f *fakeSource) MarkAllRead(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.markAllCalls++
	if f.mutationErr != nil {
		return f.mutationErr
	}
	for i := range f.items {
		f.items[i].Read = true
	}
	return nil
}

func (f *fakeSource) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleteCalls = append(f.deleteCalls, id)
	if f.mutationErr != nil {
		return f.mutationErr
	}
	for i := range f.items {
		if f.items[i].ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return &source.NotFoundError{Origin: f.origin, ID: id}
}

type fakeCounter struct {
	mu    sync.Mutex
	count int
	err   error
	calls int
}

func (f *fakeCounter) UnreadCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.count, f.err
}

// fakeMirror is an in-memory Mirror.
type fakeMirror struct {
	mu    sync.Mutex
	items map[string]model.Notification
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{items: make(map[string]model.Notification)}
}

func (m *fakeMirror) UpsertNotifications(
	ctx context.Context,
	items []model.Notification,
) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fresh := 0
	for _, n := range items {
		if _, ok := m.items[n.Key()]; !ok {
			fresh++
		}
		m.items[n.Key()] = n
	}
	return fresh, nil
}

func (m *fakeMirror) GetNotifications(
	ctx context.Context,
	limit int,
) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var items []model.Notification
	for _, n := range m.items {
		items = append(items, n)
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *fakeMirror) MarkNotificationRead(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, n := range m.items {
		if n.ID == id {
			n.Read = true
			m.items[key] = n
		}
	}
	return nil
}

func (m *fakeMirror) MarkAllNotificationsRead(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, n := range m.items {
		n.Read = true
		m.items[key] = n
	}
	return nil
}

func (m *fakeMirror) DeleteNotification(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, n := range m.items {
		if n.ID == id {
			delete(m.items, key)
		}
	}
	return nil
}

func newTestService(
	generic *fakeSource,
	presence *fakeSource,
	counter *fakeCounter,
	mirror Mirror,
) (*Service, *Cache) {
	cache := NewCache()
	svc := NewService(generic, presence, counter, cache, mirror, zap.NewNop())
	return svc, cache
}

func testGeneric(items ...model.Notification) *fakeSource {
	return &fakeSource{origin: model.OriginGeneric, items: items}
}

func testPresence(items ...model.Notification) *fakeSource {
	return &fakeSource{origin: model.OriginPresence, items: items}
}

func TestGetFeedMergesAndCaches(t *testing.T) {
	generic := testGeneric(
		genericItem("g1", 1*time.Hour, false),
		genericItem("g2", 3*time.Hour, false),
	)
	presence := testPresence(presenceItem("p1", 2*time.Hour))
	svc, _ := newTestService(generic, presence, &fakeCounter{}, nil)

	page, err := svc.GetFeed(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("GetFeed failed: %v", err)
	}
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 merged items, got %d", len(page.Items))
	}
	if page.Items[1].ID != "p1" || page.Items[1].Origin != model.OriginPresence {
		t.Fatalf("expected presence item interleaved by time, got %+v", page.Items)
	}

	// A second read for the same request must come from cache.
	if _, err := svc.GetFeed(context.Background(), 1, 10); err != nil {
		t.Fatalf("cached GetFeed failed: %v", err)
	}
	if generic.fetchCalls != 1 || presence.fetchCalls != 1 {
		t.Fatalf("expected a single upstream fetch per source, got %d/%d",
			generic.fetchCalls, presence.fetchCalls)
	}
}

func TestGetFeedToleratesForbiddenPresence(t *testing.T) {
	generic := testGeneric(
		genericItem("g1", 1*time.Hour, false),
		genericItem("g2", 2*time.Hour, false),
	)
	presence := testPresence()
	presence.fetchErr = &source.AuthError{
		Origin:  model.OriginPresence,
		Message: "403 forbidden",
	}
	svc, _ := newTestService(generic, presence, &fakeCounter{}, nil)

	page, err := svc.GetFeed(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("presence 403 must not fail the fetch: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected the generic records untouched, got %d", len(page.Items))
	}
	for i, want := range []string{"g1", "g2"} {
		if page.Items[i].ID != want {
			t.Fatalf("order changed during degradation: %+v", page.Items)
		}
	}
}

func TestGetFeedServesStaleCacheWhenAllSourcesFail(t *testing.T) {
	generic := testGeneric(genericItem("g1", time.Hour, false))
	presence := testPresence(presenceItem("p1", 2*time.Hour))
	svc, cache := newTestService(generic, presence, &fakeCounter{}, nil)

	if _, err := svc.GetFeed(context.Background(), 1, 10); err != nil {
		t.Fatalf("priming fetch failed: %v", err)
	}

	generic.fetchErr = context.DeadlineExceeded
	presence.fetchErr = context.DeadlineExceeded
	cache.InvalidateList()

	page, err := svc.GetFeed(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected last good page, got %+v", page)
	}
}

func TestGetFeedFallsBackToMirrorWhenCacheCold(t *testing.T) {
	mirror := newFakeMirror()
	_, _ = mirror.UpsertNotifications(context.Background(), []model.Notification{
		genericItem("g1", time.Hour, false),
	})

	generic := testGeneric()
	generic.fetchErr = context.DeadlineExceeded
	presence := testPresence()
	presence.fetchErr = context.DeadlineExceeded
	svc, _ := newTestService(generic, presence, &fakeCounter{}, mirror)

	page, err := svc.GetFeed(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("expected mirror fallback, got error: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "g1" {
		t.Fatalf("expected mirrored record, got %+v", page)
	}
}

func TestGetFeedErrorsWhenNothingToServe(t *testing.T) {
	generic := testGeneric()
	generic.fetchErr = context.DeadlineExceeded
	presence := testPresence()
	presence.fetchErr = context.DeadlineExceeded
	svc, _ := newTestService(generic, presence, &fakeCounter{}, nil)

	if _, err := svc.GetFeed(context.Background(), 1, 10); err == nil {
		t.Fatal("expected an error with no sources, no cache, no mirror")
	}
}

func TestMarkReadFallsBackToGeneric(t *testing.T) {
	generic := testGeneric(genericItem("abc", time.Hour, false))
	presence := testPresence(presenceItem("p1", time.Hour))
	svc, cache := newTestService(generic, presence, &fakeCounter{}, nil)

	if _, err := svc.GetFeed(context.Background(), 1, 10); err != nil {
		t.Fatalf("priming fetch failed: %v", err)
	}

	if err := svc.MarkRead(context.Background(), "abc"); err != nil {
		t.Fatalf("MarkRead should fall back and succeed: %v", err)
	}

	// Exactly one probe of the failing source and one of the owner.
	if len(presence.markReadCalls) != 1 || len(generic.markReadCalls) != 1 {
		t.Fatalf("expected one round trip per source, got %d/%d",
			len(presence.markReadCalls), len(generic.markReadCalls))
	}

	if _, ok := cache.Page(1, 10); ok {
		t.Fatal("list cache must be invalidated after a mutation")
	}
	if _, ok := cache.Count(); ok {
		t.Fatal("count cache must be invalidated after a mutation")
	}
	// The mutation landed on the generic source; the presence namespace
	// stays untouched.
	if _, ok := cache.Presence(); !ok {
		t.Fatal("presence namespace must survive a generic-only mutation")
	}
}

func TestMarkReadPresenceOwnedSkipsGeneric(t *testing.T) {
	generic := testGeneric(genericItem("g1", time.Hour, false))
	presence := testPresence(presenceItem("p1", time.Hour))
	svc, cache := newTestService(generic, presence, &fakeCounter{}, nil)

	if _, err := svc.GetFeed(context.Background(), 1, 10); err != nil {
		t.Fatalf("priming fetch failed: %v", err)
	}

	if err := svc.MarkRead(context.Background(), "p1"); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}

	if len(generic.markReadCalls) != 0 {
		t.Fatal("generic source must not be probed when presence succeeds")
	}
	if _, ok := cache.Presence(); ok {
		t.Fatal("presence namespace must be invalidated by a presence mutation")
	}
}

func TestMarkReadBothSourcesFail(t *testing.T) {
	generic := testGeneric()
	presence := testPresence()
	svc, _ := newTestService(generic, presence, &fakeCounter{}, nil)

	err := svc.MarkRead(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected an error when no source owns the id")
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("error should name the id: %v", err)
	}
	if !source.IsNotFound(err) {
		t.Fatalf("error chain should keep the typed causes: %v", err)
	}
}

func TestMarkReadIsSafeToRepeat(t *testing.T) {
	generic := testGeneric(genericItem("abc", time.Hour, false))
	presence := testPresence()
	svc, _ := newTestService(generic, presence, &fakeCounter{}, nil)

	if err := svc.MarkRead(context.Background(), "abc"); err != nil {
		t.Fatalf("first MarkRead failed: %v", err)
	}
	if err := svc.MarkRead(context.Background(), "abc"); err != nil {
		t.Fatalf("repeated MarkRead must not error: %v", err)
	}
}

func TestMarkAllReadToleratesPartialFailure(t *testing.T) {
	generic := testGeneric(
		genericItem("g1", time.Hour, false),
		genericItem("g2", 2*time.Hour, false),
	)
	presence := testPresence()
	presence.mutationErr = &source.AuthError{
		Origin:  model.OriginPresence,
		Message: "403 forbidden",
	}
	svc, cache := newTestService(generic, presence, &fakeCounter{}, nil)

	if err := svc.MarkAllRead(context.Background()); err != nil {
		t.Fatalf("partial success must be reported as success: %v", err)
	}
	if generic.markAllCalls != 1 || presence.markAllCalls != 1 {
		t.Fatal("both sources must be swept")
	}
	if _, ok := cache.Count(); ok {
		t.Fatal("count cache must be invalidated after the sweep")
	}

	// The generic sweep applied, so the next fetch sees everything read.
	page, err := svc.GetFeed(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("GetFeed failed: %v", err)
	}
	for _, item := range page.Items {
		if !item.Read {
			t.Fatalf("expected %s read after sweep", item.ID)
		}
	}
}

func TestMarkAllReadFailsOnlyWhenBothSweepsFail(t *testing.T) {
	generic := testGeneric()
	generic.mutationErr = context.DeadlineExceeded
	presence := testPresence()
	presence.mutationErr = context.DeadlineExceeded
	svc, _ := newTestService(generic, presence, &fakeCounter{}, nil)

	if err := svc.MarkAllRead(context.Background()); err == nil {
		t.Fatal("expected an error when both sweeps fail")
	}
}

func TestDeleteNeverResurfacesInNextFeed(t *testing.T) {
	for _, owner := range []model.Origin{model.OriginGeneric, model.OriginPresence} {
		generic := testGeneric(genericItem("g1", time.Hour, false))
		presence := testPresence(presenceItem("p1", 2*time.Hour))
		mirror := newFakeMirror()
		svc, _ := newTestService(generic, presence, &fakeCounter{}, mirror)

		if _, err := svc.GetFeed(context.Background(), 1, 10); err != nil {
			t.Fatalf("priming fetch failed: %v", err)
		}

		id := "g1"
		if owner == model.OriginPresence {
			id = "p1"
		}

		if err := svc.Delete(context.Background(), id); err != nil {
			t.Fatalf("Delete(%s) failed: %v", id, err)
		}

		page, err := svc.GetFeed(context.Background(), 1, 10)
		if err != nil {
			t.Fatalf("GetFeed after delete failed: %v", err)
		}
		for _, item := range page.Items {
			if item.ID == id {
				t.Fatalf("deleted %s origin record %q resurfaced", owner, id)
			}
		}
	}
}

func TestUnreadCountIsIndependentOfPage(t *testing.T) {
	generic := testGeneric(genericItem("g1", time.Hour, false))
	presence := testPresence()
	counter := &fakeCounter{count: 13}
	svc, _ := newTestService(generic, presence, counter, nil)

	n, err := svc.GetUnreadCount(context.Background())
	if err != nil {
		t.Fatalf("GetUnreadCount failed: %v", err)
	}
	if n != 13 {
		t.Fatalf("expected the server-side total 13, got %d", n)
	}

	// Cached until invalidated.
	if _, err := svc.GetUnreadCount(context.Background()); err != nil {
		t.Fatalf("cached GetUnreadCount failed: %v", err)
	}
	if counter.calls != 1 {
		t.Fatalf("expected a single upstream count call, got %d", counter.calls)
	}
}

func TestUnreadCountFailureKeepsLastKnown(t *testing.T) {
	counter := &fakeCounter{count: 5}
	svc, cache := newTestService(testGeneric(), testPresence(), counter, nil)

	if _, err := svc.GetUnreadCount(context.Background()); err != nil {
		t.Fatalf("priming count failed: %v", err)
	}

	counter.err = context.DeadlineExceeded
	cache.InvalidateCount()

	n, err := svc.GetUnreadCount(context.Background())
	if err == nil {
		t.Fatal("expected the fetch error to surface")
	}
	if n != 5 {
		t.Fatalf("expected last known count 5 alongside the error, got %d", n)
	}
}
