package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/davitran/hr-notify/internal/model"
	"github.com/davitran/hr-notify/internal/source"
)

// Mirror is the local persistence the service keeps in step with the
// merged feed. It serves reads when every upstream source is down and
// the memory cache is cold, and reports how many records of a page were
// never seen before.
type Mirror interface {
	UpsertNotifications(ctx context.Context, items []model.Notification) (int, error)
	GetNotifications(ctx context.Context, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id string) error
}

// Service is the aggregation facade the UI layer consumes. It owns the
// merge cycle (both adapters fetched concurrently, combined only after
// both settle), the mutation routing with presence-first fallback, and
// the cache fill/invalidation that follows each of them.
type Service struct {
	generic  source.Source
	presence source.Source
	counter  source.UnreadCounter
	cache    *Cache
	mirror   Mirror
	log      *zap.Logger
}

// NewService creates a Service. counter is the unread-count reporter
// (the generic adapter). mirror may be nil to run without local
// persistence.
func NewService(
	generic source.Source,
	presence source.Source,
	counter source.UnreadCounter,
	cache *Cache,
	mirror Mirror,
	logger *zap.Logger,
) *Service {
	return &Service{
		generic:  generic,
		presence: presence,
		counter:  counter,
		cache:    cache,
		mirror:   mirror,
		log:      logger,
	}
}

// Cache exposes the cache for subscription and freshness checks.
func (s *Service) Cache() *Cache {
	return s.cache
}

// GetFeed returns one merged page of the feed, served from cache when
// the cached page is valid for the same (page, limit) request.
func (s *Service) GetFeed(
	ctx context.Context,
	page int,
	limit int,
) (model.FeedPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	if cached, ok := s.cache.Page(page, limit); ok {
		return cached, nil
	}
	return s.RefreshFeed(ctx, page, limit)
}

// RefreshFeed fetches both sources, merges, and rewrites the cache,
// bypassing any cached page. Both adapter fetches run concurrently with
// the same limit and are combined only once both have settled. A single
// failing adapter degrades the result to the surviving source; when
// both fail the last good cache is served, then the local mirror, and
// only then an error.
func (s *Service) RefreshFeed(
	ctx context.Context,
	page int,
	limit int,
) (model.FeedPage, error) {
	opts := source.FetchOptions{Page: page, Limit: limit}

	var (
		wg          sync.WaitGroup
		genericRes  *source.FetchResult
		genericErr  error
		presenceRes *source.FetchResult
		presenceErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		genericRes, genericErr = s.generic.FetchPage(ctx, opts)
	}()
	go func() {
		defer wg.Done()
		presenceRes, presenceErr = s.presence.FetchPage(ctx, opts)
	}()
	wg.Wait()

	if presenceErr != nil {
		// Expected for non-privileged callers; zero presence records.
		if source.IsAuthError(presenceErr) {
			s.log.Debug("presence source unavailable",
				zap.Error(presenceErr))
		} else {
			s.log.Warn("presence fetch failed", zap.Error(presenceErr))
		}
	}
	if genericErr != nil {
		s.log.Warn("generic fetch failed", zap.Error(genericErr))
	}

	if genericErr != nil && presenceErr != nil {
		return s.fallbackFeed(ctx, page, limit, genericErr, presenceErr)
	}

	// The consumer may have gone away while the fetch was in flight;
	// never apply late results to a state nobody observes.
	if err := ctx.Err(); err != nil {
		return model.FeedPage{}, err
	}

	merged := Merge(genericRes, presenceRes, page, limit)
	s.cache.SetPage(page, limit, merged)
	if presenceRes != nil && len(presenceRes.Items) > 0 {
		s.cache.SetPresence(presenceRes.Items)
	}

	s.mirrorPage(ctx, merged.Items)

	return merged, nil
}

// fallbackFeed serves the last good cache, then the local mirror, when
// every upstream source failed.
func (s *Service) fallbackFeed(
	ctx context.Context,
	page int,
	limit int,
	genericErr error,
	presenceErr error,
) (model.FeedPage, error) {
	if last, ok := s.cache.LastPage(); ok {
		s.log.Warn("serving stale feed, all sources failed")
		return last, nil
	}

	if s.mirror != nil {
		items, err := s.mirror.GetNotifications(ctx, limit)
		if err == nil && len(items) > 0 {
			s.log.Warn("serving mirrored feed, all sources failed")
			return model.FeedPage{
				Items: items,
				Meta: model.PageMeta{
					Page:       page,
					Limit:      limit,
					Total:      len(items),
					TotalPages: pageCount(len(items), limit),
				},
			}, nil
		}
	}

	return model.FeedPage{}, fmt.Errorf(
		"fetching feed: %w", errors.Join(genericErr, presenceErr),
	)
}

// mirrorPage upserts a merged page into the local mirror and logs how
// many of its records were new.
func (s *Service) mirrorPage(ctx context.Context, items []model.Notification) {
	if s.mirror == nil || len(items) == 0 {
		return
	}

	fresh, err := s.mirror.UpsertNotifications(ctx, items)
	if err != nil {
		s.log.Warn("mirroring feed page failed", zap.Error(err))
		return
	}
	if fresh > 0 {
		s.log.Info("feed refreshed", zap.Int("new_notifications", fresh))
	}
}

// GetUnreadCount returns the server-side unread total, cached between
// count-feed cadences. The count is independent of the list feed and is
// not derived from the fetched page.
func (s *Service) GetUnreadCount(ctx context.Context) (int, error) {
	if n, ok := s.cache.Count(); ok {
		return n, nil
	}
	return s.RefreshUnreadCount(ctx)
}

// RefreshUnreadCount fetches the unread total, bypassing the cache.
// On failure the last known count is served so the badge never flashes
// to zero.
func (s *Service) RefreshUnreadCount(ctx context.Context) (int, error) {
	n, err := s.counter.UnreadCount(ctx)
	if err != nil {
		s.log.Warn("unread count fetch failed", zap.Error(err))
		return s.cache.LastCount(), err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return s.cache.LastCount(), ctxErr
	}

	s.cache.SetCount(n)
	return n, nil
}

// MarkRead marks one notification as read on whichever source owns it.
// The identifier alone does not reveal the owning source, so the
// operation probes the presence endpoint first and falls back to the
// generic endpoint on any error; the first success wins. Safe to repeat:
// re-marking an already read record is not an error upstream.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	presenceErr := s.presence.MarkRead(ctx, id)
	if presenceErr == nil {
		s.afterMutation(true, func() error {
			return s.mirror.MarkNotificationRead(ctx, id)
		})
		return nil
	}
	s.log.Debug("presence mark-read failed, trying generic",
		zap.String("id", id), zap.Error(presenceErr))

	if genericErr := s.generic.MarkRead(ctx, id); genericErr != nil {
		return fmt.Errorf("marking %q read: %w",
			id, errors.Join(presenceErr, genericErr))
	}

	s.afterMutation(false, func() error {
		return s.mirror.MarkNotificationRead(ctx, id)
	})
	return nil
}

// MarkAllRead sweeps both sources, presence first. Each sweep is
// best-effort: one source succeeding is enough to report success, since
// it still advances state without an ambiguous identifier search. Only
// both sweeps failing is an error.
func (s *Service) MarkAllRead(ctx context.Context) error {
	presenceErr := s.presence.MarkAllRead(ctx)
	if presenceErr != nil {
		s.log.Debug("presence mark-all-read failed", zap.Error(presenceErr))
	}

	genericErr := s.generic.MarkAllRead(ctx)
	if genericErr != nil {
		s.log.Debug("generic mark-all-read failed", zap.Error(genericErr))
	}

	if presenceErr != nil && genericErr != nil {
		return fmt.Errorf("marking all read: %w",
			errors.Join(presenceErr, genericErr))
	}

	s.afterMutation(presenceErr == nil, func() error {
		return s.mirror.MarkAllNotificationsRead(ctx)
	})
	return nil
}

// Delete removes one notification from whichever source owns it, using
// the same presence-first probe as MarkRead.
func (s *Service) Delete(ctx context.Context, id string) error {
	presenceErr := s.presence.Delete(ctx, id)
	if presenceErr == nil {
		s.afterMutation(true, func() error {
			return s.mirror.DeleteNotification(ctx, id)
		})
		return nil
	}
	s.log.Debug("presence delete failed, trying generic",
		zap.String("id", id), zap.Error(presenceErr))

	if genericErr := s.generic.Delete(ctx, id); genericErr != nil {
		return fmt.Errorf("deleting %q: %w",
			id, errors.Join(presenceErr, genericErr))
	}

	s.afterMutation(false, func() error {
		return s.mirror.DeleteNotification(ctx, id)
	})
	return nil
}

// afterMutation invalidates exactly the views a successful mutation
// affected and applies the matching change to the local mirror. The
// presence namespace is only invalidated when the presence leg
// succeeded. Invalidation is a signal, not a refetch; the next read or
// scheduler tick fetches accurate state.
func (s *Service) afterMutation(presenceChanged bool, mirrorOp func() error) {
	s.cache.InvalidateList()
	s.cache.InvalidateCount()
	if presenceChanged {
		s.cache.InvalidatePresence()
	}

	if s.mirror != nil {
		if err := mirrorOp(); err != nil {
			s.log.Warn("mirror update failed", zap.Error(err))
		}
	}
}
