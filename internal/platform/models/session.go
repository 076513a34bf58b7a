package models

// Session statuses. A session is a single WhatsApp identity belonging to
// one organization; its ID doubles as the admission-gate client id.
const (
	SessionInitializing = "initializing"
	SessionPairing      = "pairing"
	SessionConnected    = "connected"
	SessionDisconnected = "disconnected"
	SessionExpired      = "expired"
)

type Session struct {
	ID              string `json:"id"`
	OrganizationID  string `json:"organization_id"`
	Name            string `json:"name"`
	Phone           string `json:"phone,omitempty"`
	Status          string `json:"status"`
	LastConnectedAt *int64 `json:"last_connected_at,omitempty"`
	CreatedAt       int64  `json:"created_at"`
	UpdatedAt       int64  `json:"updated_at"`
}
