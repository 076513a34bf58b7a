package models

// Subscription statuses. Subscriptions are never hard-deleted by the
// failure sweep; they are flipped to disabled so operators can inspect
// and re-enable them.
const (
	SubscriptionActive   = "active"
	SubscriptionDisabled = "disabled"
)

type Subscription struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organization_id"`
	URL            string   `json:"url"`
	Events         []string `json:"events"` // JSON array in DB
	Secret         string   `json:"-"`      // returned exactly once at registration
	Status         string   `json:"status"`
	CreatedAt      int64    `json:"created_at"`
	UpdatedAt      int64    `json:"updated_at"`
}

// Delivery outcomes recorded in webhook_deliveries. Exactly one terminal
// row exists per (subscription, triggered event).
const (
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

type DeliveryLog struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscription_id"`
	Event          string `json:"event"`
	Payload        string `json:"payload"`
	Status         string `json:"status"`
	HTTPStatus     int    `json:"http_status"` // 0 means network-level failure
	AttemptCount   int    `json:"attempt_count"`
	ErrorMessage   string `json:"error_message,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}
