package shared

const (
	ProjectID = "trackstack-project" // Can be overridden by env var in main if needed

	TopicWebhookEvents = "topic-webhook-events"
	TopicActivitySynced = "topic-activity-synced"

	CollectionUsers         = "users"
	CollectionWebhookEvents = "webhook_events"
	CollectionIntegrations  = "integrations"

	SubcollectionActivities = "activities"
	SubcollectionGear       = "gear"
	SubcollectionGearLinks  = "gear_links"
)
