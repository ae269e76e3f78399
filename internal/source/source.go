package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/davitran/hr-notify/internal/model"
)

// AuthError indicates that the caller is not authorized for a source.
// The presence endpoint returns 401/403 for non-privileged callers as a
// matter of course, so this error is an expected, non-fatal outcome at
// fetch time.
type AuthError struct {
	Origin  model.Origin
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Origin, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// NotFoundError indicates the identifier does not exist on the attempted
// source. During mutation routing it drives fallback to the other source.
type NotFoundError struct {
	Origin model.Origin
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("notification %q not found on %s source", e.ID, e.Origin)
}

// IsNotFound reports whether err (or any error in its chain) is a NotFoundError.
func IsNotFound(err error) bool {
	var nfErr *NotFoundError
	return errors.As(err, &nfErr)
}

// FetchOptions controls pagination for list operations.
type FetchOptions struct {
	Page  int
	Limit int
}

// FetchResult holds one page of notifications returned from a source.
type FetchResult struct {
	Items []model.Notification

	// Total is the source's own total record count. The presence source
	// reports no total; its adapter leaves this at len(Items).
	Total int

	// TotalPages is the source's own page count, zero when unreported.
	TotalPages int
}

// Source defines the contract both notification adapters implement.
// Every operation is independently fallible; the caller decides which
// failures are fatal.
type Source interface {
	// Origin returns the origin tag this adapter stamps on its records.
	Origin() model.Origin

	// FetchPage retrieves one page of notifications.
	FetchPage(ctx context.Context, opts FetchOptions) (*FetchResult, error)

	// MarkRead marks a single notification as read.
	MarkRead(ctx context.Context, id string) error

	// MarkAllRead marks every notification on this source as read.
	MarkAllRead(ctx context.Context) error

	// Delete removes a single notification.
	Delete(ctx context.Context, id string) error
}

// UnreadCounter is implemented by sources that report a server-side
// unread total. Only the generic source exposes such an endpoint.
type UnreadCounter interface {
	UnreadCount(ctx context.Context) (int, error)
}
