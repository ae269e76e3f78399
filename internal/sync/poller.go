package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davitran/hr-notify/internal/model"
)

// Refresher is the slice of the feed service the poller drives.
type Refresher interface {
	RefreshFeed(ctx context.Context, page, limit int) (model.FeedPage, error)
	RefreshUnreadCount(ctx context.Context) (int, error)
}

// State represents the fetch state of one feed.
type State int

const (
	Idle State = iota
	Fetching
)

// feedKind identifies the two independently scheduled feeds.
type feedKind int

const (
	feedList feedKind = iota
	feedCount
)

func (k feedKind) String() string {
	if k == feedCount {
		return "count"
	}
	return "list"
}

// FeedStatus holds the scheduling state of a single feed.
type FeedStatus struct {
	Feed        string
	State       State
	LastSuccess time.Time
	Err         error
}

// fetchTimeout is the maximum time allowed for a single poll fetch.
const fetchTimeout = 30 * time.Second

// Config holds the poller's cadences. Zero values fall back to the
// defaults: list every 120s, count every 15s, freshness window 30s.
type Config struct {
	PageSize      int
	ListInterval  time.Duration
	CountInterval time.Duration

	// Freshness is how recent the last list fetch must be for a
	// demand-triggered refresh to be skipped.
	Freshness time.Duration
}

// Poller schedules the two feed refreshes on independent cadences: the
// list feed and the unread-count feed each run their own
// Idle -> Fetching -> Idle machine. A cadence tick or demand trigger is
// skipped entirely while a fetch for the same feed is in flight.
//
// The poller owns its lifecycle explicitly: Start spins up the loops,
// Stop cancels the shared context. In-flight fetches then complete but
// the service discards their results, so nothing is applied to a state
// no longer observed.
type Poller struct {
	svc Refresher
	cfg Config
	log *zap.Logger

	mu       gosync.Mutex
	running  bool
	inFlight map[feedKind]bool
	last     map[feedKind]time.Time
	lastErr  map[feedKind]error

	listTrigger  chan struct{}
	countTrigger chan struct{}
	stopCh       chan struct{}
	cancel       context.CancelFunc
}

// New creates a Poller driving the given service.
func New(svc Refresher, cfg Config, logger *zap.Logger) *Poller {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.ListInterval <= 0 {
		cfg.ListInterval = 120 * time.Second
	}
	if cfg.CountInterval <= 0 {
		cfg.CountInterval = 15 * time.Second
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = 30 * time.Second
	}

	return &Poller{
		svc:          svc,
		cfg:          cfg,
		log:          logger,
		inFlight:     make(map[feedKind]bool),
		last:         make(map[feedKind]time.Time),
		lastErr:      make(map[feedKind]error),
		listTrigger:  make(chan struct{}, 1),
		countTrigger: make(chan struct{}, 1),
	}
}

// Start launches both feed loops. Calling Start on a running poller is
// a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(ctx, feedList, p.cfg.ListInterval, p.listTrigger)
	go p.run(ctx, feedCount, p.cfg.CountInterval, p.countTrigger)
}

// Stop halts both feed loops and discards the results of any fetch
// still in flight.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.running = false
	close(p.stopCh)
	p.cancel()
}

// RefreshList triggers an immediate list fetch if the last successful
// one is older than the freshness window. Triggers landing while a
// fetch is in flight are ignored by the fetch guard.
func (p *Poller) RefreshList() {
	p.mu.Lock()
	fresh := time.Since(p.last[feedList]) < p.cfg.Freshness
	p.mu.Unlock()

	if fresh {
		return
	}

	select {
	case p.listTrigger <- struct{}{}:
	default:
	}
}

// RefreshCount triggers an immediate unread-count fetch.
func (p *Poller) RefreshCount() {
	select {
	case p.countTrigger <- struct{}{}:
	default:
	}
}

// Statuses returns the current scheduling state of both feeds.
func (p *Poller) Statuses() []FeedStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]FeedStatus, 0, 2)
	for _, kind := range []feedKind{feedList, feedCount} {
		st := Idle
		if p.inFlight[kind] {
			st = Fetching
		}
		statuses = append(statuses, FeedStatus{
			Feed:        kind.String(),
			State:       st,
			LastSuccess: p.last[kind],
			Err:         p.lastErr[kind],
		})
	}
	return statuses
}

// run is the loop for a single feed: an initial fetch, then a fetch per
// cadence tick or demand trigger, until the poller stops.
func (p *Poller) run(
	ctx context.Context,
	kind feedKind,
	interval time.Duration,
	trigger <-chan struct{},
) {
	p.mu.Lock()
	stopCh := p.stopCh
	p.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	go p.fetch(ctx, kind)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			go p.fetch(ctx, kind)
		case <-trigger:
			go p.fetch(ctx, kind)
		}
	}
}

// fetch performs a single guarded fetch for one feed. A feed already in
// Fetching state ignores the request entirely.
func (p *Poller) fetch(ctx context.Context, kind feedKind) {
	p.mu.Lock()
	if p.inFlight[kind] {
		p.mu.Unlock()
		p.log.Debug("poll skipped, fetch in flight",
			zap.String("feed", kind.String()))
		return
	}
	p.inFlight[kind] = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight[kind] = false
		p.mu.Unlock()
	}()

	runID := uuid.NewString()
	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	var err error
	switch kind {
	case feedList:
		_, err = p.svc.RefreshFeed(fctx, 1, p.cfg.PageSize)
	case feedCount:
		_, err = p.svc.RefreshUnreadCount(fctx)
	}

	p.mu.Lock()
	p.lastErr[kind] = err
	if err == nil {
		p.last[kind] = time.Now()
	}
	p.mu.Unlock()

	if err != nil {
		// Context cancellation here means the poller was stopped
		// mid-fetch; the result was already discarded.
		if ctx.Err() != nil {
			return
		}
		p.log.Warn("poll fetch failed",
			zap.String("feed", kind.String()),
			zap.String("run", runID),
			zap.Error(err))
		return
	}

	p.log.Debug("poll fetch complete",
		zap.String("feed", kind.String()),
		zap.String("run", runID))
}
