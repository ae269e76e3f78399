// Package hrnotify aggregates the HR backend's two notification sources
// into a single time-ordered feed with an approximate unread count,
// routes read-state mutations across whichever source owns a record,
// and keeps the result fresh under periodic polling. It sits between
// the REST backend and whatever UI renders the feed.
package hrnotify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/davitran/hr-notify/internal/credential"
	"github.com/davitran/hr-notify/internal/feed"
	"github.com/davitran/hr-notify/internal/logging"
	"github.com/davitran/hr-notify/internal/model"
	"github.com/davitran/hr-notify/internal/rest"
	"github.com/davitran/hr-notify/internal/source/generic"
	"github.com/davitran/hr-notify/internal/source/presence"
	"github.com/davitran/hr-notify/internal/store"
	"github.com/davitran/hr-notify/internal/sync"
)

// Center is the notification center: the long-lived object a UI layer
// holds for the lifetime of its notification panel. Construct with New,
// call Start to begin polling, and Stop when the consuming view is
// torn down.
type Center struct {
	svc    *feed.Service
	poller *sync.Poller
	db     *store.SQLiteStore
	log    *zap.Logger
}

// New wires a Center from the given configuration: logger, keyring
// token, REST clients, both source adapters, cache, local mirror,
// service, and poller.
func New(cfg *model.AppConfig) (*Center, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	tokenKey := cfg.Server.TokenKey
	token := func(ctx context.Context) (string, error) {
		return credential.Get(tokenKey)
	}

	client := rest.NewClient(rest.Options{
		BaseURL:        cfg.Server.BaseURL,
		Token:          token,
		Timeout:        time.Duration(cfg.Server.TimeoutSec) * time.Second,
		RequestsPerSec: cfg.Server.RequestsPerSec,
	})

	db, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening notification mirror: %w", err)
	}

	genericSrc := generic.NewAdapter(client)
	presenceSrc := presence.NewAdapter(client, logger)

	svc := feed.NewService(
		genericSrc, presenceSrc, genericSrc,
		feed.NewCache(), db, logger,
	)

	poller := sync.New(svc, sync.Config{
		PageSize:      cfg.Feed.PageSize,
		ListInterval:  time.Duration(cfg.Feed.ListIntervalSec) * time.Second,
		CountInterval: time.Duration(cfg.Feed.CountIntervalSec) * time.Second,
		Freshness:     time.Duration(cfg.Feed.FreshnessSec) * time.Second,
	}, logger)

	return &Center{
		svc:    svc,
		poller: poller,
		db:     db,
		log:    logger,
	}, nil
}

// Start begins polling both feeds on their cadences.
func (c *Center) Start() {
	c.poller.Start()
}

// Stop halts polling. In-flight fetches complete but their results are
// discarded.
func (c *Center) Stop() {
	c.poller.Stop()
}

// Close stops polling and releases the local mirror.
func (c *Center) Close() error {
	c.poller.Stop()
	return c.db.Close()
}

// Feed returns one merged page of the notification feed.
func (c *Center) Feed(ctx context.Context, page, limit int) (model.FeedPage, error) {
	return c.svc.GetFeed(ctx, page, limit)
}

// UnreadCount returns the server-side unread total.
func (c *Center) UnreadCount(ctx context.Context) (int, error) {
	return c.svc.GetUnreadCount(ctx)
}

// MarkRead marks one notification as read on whichever source owns it.
func (c *Center) MarkRead(ctx context.Context, id string) error {
	return c.svc.MarkRead(ctx, id)
}

// MarkAllRead marks every notification on both sources as read.
func (c *Center) MarkAllRead(ctx context.Context) error {
	return c.svc.MarkAllRead(ctx)
}

// Delete removes one notification from whichever source owns it.
func (c *Center) Delete(ctx context.Context, id string) error {
	return c.svc.Delete(ctx, id)
}

// Subscribe returns a channel signaling whenever cached feed data
// changes, so the UI knows to re-render.
func (c *Center) Subscribe() <-chan feed.Event {
	return c.svc.Cache().Subscribe()
}

// RefreshList asks the scheduler for an immediate list refetch, used
// when the user opens the notification panel. The request is skipped
// when the cached list is still fresh or a fetch is already running.
func (c *Center) RefreshList() {
	c.poller.RefreshList()
}
