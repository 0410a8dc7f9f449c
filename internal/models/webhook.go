package models

// WebhookEventRecord is the diagnostic trace of one gateway delivery, kept in
// the redis event log and returned by the admin check_webhook view. It is not
// part of the durable reconciliation state.
type WebhookEventRecord struct {
	EventID    string `json:"event_id"`
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	ReceivedAt string `json:"received_at"`
}
