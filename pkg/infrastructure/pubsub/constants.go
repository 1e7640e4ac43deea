package pubsub

// CloudEvent type URNs emitted by this service.
const (
	EventTypeWebhookReceived = "dev.trackstack.webhook.received.v1"
	EventTypeActivitySynced  = "dev.trackstack.activity.synced.v1"
	EventTypeSyncFailed      = "dev.trackstack.activity.sync_failed.v1"
)

// CloudEvent source URNs.
const (
	SourceWebhookReceiver = "urn:trackstack:webhook-receiver"
	SourceProcessor       = "urn:trackstack:processor"
	SourceWahooSync       = "urn:trackstack:wahoo-sync"
)
