package generic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/davitran/hr-notify/internal/model"
	"github.com/davitran/hr-notify/internal/rest"
	"github.com/davitran/hr-notify/internal/source"
)

// defaultLimit is used when the caller passes no page size.
const defaultLimit = 10

// Adapter implements source.Source for the primary business-event
// notification endpoint. It also implements source.UnreadCounter, since
// the generic source is the one that reports a server-side unread total.
type Adapter struct {
	client *rest.Client
}

// NewAdapter creates a new generic notification source adapter.
func NewAdapter(client *rest.Client) *Adapter {
	return &Adapter{client: client}
}

// Origin returns the origin tag for business-event notifications.
func (a *Adapter) Origin() model.Origin {
	return model.OriginGeneric
}

// FetchPage retrieves a page of business-event notifications.
func (a *Adapter) FetchPage(
	ctx context.Context,
	opts source.FetchOptions,
) (*source.FetchResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.Limit
	if limit < 1 {
		limit = defaultLimit
	}

	path := fmt.Sprintf("/notifications?page=%d&limit=%d", page, limit)

	var resp listResponse
	if err := a.client.Get(ctx, path, &resp); err != nil {
		return nil, mapError(err, "")
	}

	items := make([]model.Notification, 0, len(resp.Data))
	for _, dto := range resp.Data {
		items = append(items, toNotification(dto))
	}

	return &source.FetchResult{
		Items:      items,
		Total:      resp.Meta.Total,
		TotalPages: resp.Meta.TotalPages,
	}, nil
}

// MarkRead marks a single notification as read.
func (a *Adapter) MarkRead(ctx context.Context, id string) error {
	path := fmt.Sprintf("/notifications/%s/read", id)
	if err := a.client.Patch(ctx, path, nil, nil); err != nil {
		return mapError(err, id)
	}
	return nil
}

// MarkAllRead marks every business-event notification as read.
func (a *Adapter) MarkAllRead(ctx context.Context) error {
	if err := a.client.Patch(ctx, "/notifications/read-all", nil, nil); err != nil {
		return mapError(err, "")
	}
	return nil
}

// Delete removes a single notification.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	path := fmt.Sprintf("/notifications/%s", id)
	if err := a.client.Delete(ctx, path); err != nil {
		return mapError(err, id)
	}
	return nil
}

// UnreadCount returns the server-side unread total. It reflects all
// unread notifications, not just the last fetched page.
func (a *Adapter) UnreadCount(ctx context.Context) (int, error) {
	var resp unreadCountResponse
	if err := a.client.Get(ctx, "/notifications/unread-count", &resp); err != nil {
		return 0, mapError(err, "")
	}
	return resp.Count, nil
}

// toNotification converts a wire DTO to a normalized Notification.
func toNotification(dto notificationDTO) model.Notification {
	ts := parseTime(dto.EventAt)
	if ts.IsZero() {
		ts = parseTime(dto.CreatedAt)
	}

	var context map[string]string
	if dto.Category != "" || dto.Department != "" {
		context = make(map[string]string, 2)
		if dto.Category != "" {
			context["category"] = dto.Category
		}
		if dto.Department != "" {
			context["department"] = dto.Department
		}
	}

	return model.Notification{
		ID:        dto.ID,
		Origin:    model.OriginGeneric,
		Kind:      normalizeKind(dto.Type),
		Title:     dto.Title,
		Body:      dto.Message,
		Timestamp: ts,
		Read:      dto.IsRead,
		Actor:     dto.Recipient,
		Context:   context,
		FetchedAt: time.Now(),
	}
}

// normalizeKind maps a backend notification type to a Kind constant.
// Leave decisions arrive as "leave_approved"/"leave_rejected" variants.
func normalizeKind(t string) string {
	switch t {
	case "announcement":
		return model.KindAnnouncement
	case "leave", "leave_approved", "leave_rejected":
		return model.KindLeave
	default:
		return model.KindAnnouncement
	}
}

// parseTime parses a backend timestamp string, trying the formats the
// HR backend has been observed to emit.
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
			Origin:  model.OriginGeneric,
			Message: statusErr.Error(),
		}
	case http.StatusNotFound:
		return &source.NotFoundError{
			Origin: model.OriginGeneric,
			ID:     id,
		}
	}
	return err
}
