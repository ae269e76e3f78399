package model

import "time"

// Origin identifies the upstream source a notification record came from.
// It is assigned by the producing adapter, never changed afterwards, and
// drives mutation routing.
type Origin string

const (
	OriginGeneric  Origin = "generic"
	OriginPresence Origin = "presence"
)

// Normalized notification kind constants. Kind is display-only.
const (
	KindAnnouncement = "announcement"
	KindLeave        = "leave"
	KindCheckIn      = "check_in"
	KindCheckOut     = "check_out"
)

// Notification is the unified representation of a notification from any
// source. IDs are only unique within an origin, so (Origin, ID) is the
// real identity of a record.
type Notification struct {
	// ID is the record's identifier within its origin source.
	ID string `json:"id"`

	// Origin identifies which source adapter produced this record.
	Origin Origin `json:"origin"`

	// Kind is the normalized semantic category (use Kind* constants).
	Kind string `json:"kind"`

	// Title is the human-readable summary line.
	Title string `json:"title"`

	// Body is the full notification text.
	Body string `json:"body"`

	// Timestamp is the event time used for feed ordering. Adapters fall
	// back to the record's creation time when no event time exists.
	Timestamp time.Time `json:"timestamp"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read"`

	// Actor is the display name of the user the notification concerns
	// (for presence events, the person who checked in or out).
	Actor string `json:"actor,omitempty"`

	// Context holds free-form display metadata (category, department).
	Context map[string]string `json:"context,omitempty"`

	// FetchedAt is when this record was last retrieved from its source.
	FetchedAt time.Time `json:"fetched_at"`
}

// Key returns the origin-qualified identity of the notification, safe to
// use as a map key across sources.
func (n Notification) Key() string {
	return string(n.Origin) + ":" + n.ID
}

// PageMeta is the pagination metadata attached to a feed page.
type PageMeta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`

	// Total is the upstream total for generic-only pages. When presence
	// records contribute to the page it is reconciled as
	// max(generic total, merged count) and should be treated as
	// approximate: the presence source reports no compatible total.
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// FeedPage is one merged, ordered, truncated page of the feed.
type FeedPage struct {
	Items []Notification `json:"items"`
	Meta  PageMeta       `json:"meta"`
}
