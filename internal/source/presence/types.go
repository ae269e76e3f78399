package presence

// listResponse is the response from GET /attendance/notifications/unread.
// The attendance subsystem reports no total or page count.
type listResponse struct {
	Data []eventDTO `json:"data"`
}

// eventDTO is a single check-in/check-out event on the wire. Presence
// notifications carry no stored title or body; both are synthesized
// from the actor and timestamp.
type eventDTO struct {
	ID           string `json:"id"`
	EventType    string `json:"eventType"`
	EmployeeName string `json:"employeeName"`
	Department   string `json:"department,omitempty"`

	// OccurredAt is the check-in/check-out time itself.
	OccurredAt string `json:"occurredAt"`
	CreatedAt  string `json:"createdAt"`
	IsRead     bool   `json:"isRead"`
}
