package webhooks

import "time"

// Event type names a subscription can listen to.
const (
	EventMessageSent         = "message.sent"
	EventMessageReceived     = "message.received"
	EventMessageFailed       = "message.failed"
	EventMessageDelivered    = "message.delivered"
	EventMessageRead         = "message.read"
	EventClientConnected     = "client.connected"
	EventClientDisconnected  = "client.disconnected"
	EventCampaignStarted     = "campaign.started"
	EventCampaignCompleted   = "campaign.completed"
	EventAutomationTriggered = "automation.triggered"
	EventContactAdded        = "contact.added"
	EventContactUpdated      = "contact.updated"
	EventContactRemoved      = "contact.removed"

	// EventTest is only produced by TestWebhook, never by Trigger.
	EventTest = "test"
)

var knownEvents = map[string]bool{
	EventMessageSent:         true,
	EventMessageReceived:     true,
	EventMessageFailed:       true,
	EventMessageDelivered:    true,
	EventMessageRead:         true,
	EventClientConnected:     true,
	EventClientDisconnected:  true,
	EventCampaignStarted:     true,
	EventCampaignCompleted:   true,
	EventAutomationTriggered: true,
	EventContactAdded:        true,
	EventContactUpdated:      true,
	EventContactRemoved:      true,
}

// KnownEvent reports whether the name is a recognized event type.
func KnownEvent(name string) bool {
	return knownEvents[name]
}

// Envelope is the wire body POSTed to subscriber URLs.
type Envelope struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}
