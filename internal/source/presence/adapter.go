package presence

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/davitran/hr-notify/internal/model"
	"github.com/davitran/hr-notify/internal/rest"
	"github.com/davitran/hr-notify/internal/source"
)

// defaultPageSize is used when the caller passes no page size.
const defaultPageSize = 10

// Adapter implements source.Source for the attendance subsystem's
// presence notifications. The endpoint is role-restricted, so an
// AuthError from any operation is an expected outcome for
// non-privileged callers; a circuit breaker keeps a caller that is
// never authorized from hammering the endpoint on every poll.
type Adapter struct {
	client *rest.Client
	cb     *gobreaker.CircuitBreaker
	log    *zap.Logger
}

// NewAdapter creates a new presence notification source adapter.
func NewAdapter(client *rest.Client, logger *zap.Logger) *Adapter {
	st := gobreaker.Settings{
		Name:        "presence-notifications",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     120 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Adapter{
		client: client,
		cb:     gobreaker.NewCircuitBreaker(st),
		log:    logger,
	}
}

// Origin returns the origin tag for presence notifications.
func (a *Adapter) Origin() model.Origin {
	return model.OriginPresence
}

// FetchPage retrieves a page of unread presence events.
func (a *Adapter) FetchPage(
	ctx context.Context,
	opts source.FetchOptions,
) (*source.FetchResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.Limit
	if pageSize < 1 {
		pageSize = defaultPageSize
	}

	path := fmt.Sprintf(
		"/attendance/notifications/unread?page=%d&pageSize=%d",
		page, pageSize,
	)

	result, err := a.cb.Execute(func() (interface{}, error) {
		var resp listResponse
		if err := a.client.Get(ctx, path, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return nil, mapError(err, "")
	}

	resp := result.(*listResponse)
	items := make([]model.Notification, 0, len(resp.Data))
	for _, dto := range resp.Data {
		items = append(items, toNotification(dto))
	}

	// The attendance source reports no total compatible with the
	// generic source's pagination metadata.
	return &source.FetchResult{
		Items: items,
		Total: len(items),
	}, nil
}

// MarkRead marks a single presence notification as read.
func (a *Adapter) MarkRead(ctx context.Context, id string) error {
	path := fmt.Sprintf("/attendance/notifications/%s/read", id)
	return a.execute(ctx, id, func() error {
		return a.client.Patch(ctx, path, nil, nil)
	})
}

// MarkAllRead marks every presence notification as read.
func (a *Adapter) MarkAllRead(ctx context.Context) error {
	return a.execute(ctx, "", func() error {
		return a.client.Patch(ctx, "/attendance/notifications/read-all", nil, nil)
	})
}

// Delete removes a single presence notification.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	path := fmt.Sprintf("/attendance/notifications/%s", id)
	return a.execute(ctx, id, func() error {
		return a.client.Delete(ctx, path)
	})
}

// execute runs a mutation through the circuit breaker and maps errors.
func (a *Adapter) execute(ctx context.Context, id string, op func() error) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		return nil, op()
	})
	if err != nil {
		return mapError(err, id)
	}
	return nil
}

// toNotification converts a wire event to a normalized Notification,
// synthesizing title and body from the actor name and event time.
func toNotification(dto eventDTO) model.Notification {
	ts := parseTime(dto.OccurredAt)
	if ts.IsZero() {
		ts = parseTime(dto.CreatedAt)
	}

	kind := model.KindCheckIn
	verb := "checked in"
	if dto.EventType == "check_out" || dto.EventType == "checkout" {
		kind = model.KindCheckOut
		verb = "checked out"
	}

	title := fmt.Sprintf("%s %s", dto.EmployeeName, verb)
	body := title
	if !ts.IsZero() {
		body = fmt.Sprintf("%s at %s", title, ts.Format("15:04, Jan 2"))
	}

	var context map[string]string
	if dto.Department != "" {
		context = map[string]string{"department": dto.Department}
	}

	return model.Notification{
		ID:        dto.ID,
		Origin:    model.OriginPresence,
		Kind:      kind,
		Title:     title,
		Body:      body,
		Timestamp: ts,
		Read:      dto.IsRead,
		Actor:     dto.EmployeeName,
		Context:   context,
		FetchedAt: time.Now(),
	}
}

// parseTime parses an attendance timestamp string.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	layouts := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}

	return time.Time{}
}

// mapError translates REST status errors into the source package's
// typed errors. id is empty for non-identifier operations.
func mapError(err error, id string) error {
	var statusErr *rest.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}

	switch statusErr.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &source.AuthError{
			Origin:  model.OriginPresence,
			Message: statusErr.Error(),
		}
	case http.StatusNotFound:
		return &source.NotFoundError{
			Origin: model.OriginPresence,
			ID:     id,
		}
	}
	return err
}
