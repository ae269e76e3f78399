package generic

// listResponse is the response from GET /notifications.
type listResponse struct {
	Data []notificationDTO `json:"data"`
	Meta pageMetaDTO       `json:"meta"`
}

// pageMetaDTO is the pagination metadata block of a list response.
type pageMetaDTO struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// notificationDTO is a single business-event notification on the wire.
type notificationDTO struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
	IsRead  bool   `json:"isRead"`

	// EventAt is the explicit event time; empty when the backend only
	// recorded creation time.
	EventAt   string `json:"eventAt,omitempty"`
	CreatedAt string `json:"createdAt"`

	Recipient  string `json:"recipient,omitempty"`
	Category   string `json:"category,omitempty"`
	Department string `json:"department,omitempty"`
}

// unreadCountResponse is the response from GET /notifications/unread-count.
type unreadCountResponse struct {
	Count int `json:"count"`
}
