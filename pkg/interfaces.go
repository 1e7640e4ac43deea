package shared

import (
	"context"
	"errors"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/trackstack/server/pkg/types"
)

// Sentinel errors returned by Database implementations so callers can branch
// on uniqueness and absence without knowing the backing store.
var (
	ErrAlreadyExists = errors.New("record already exists")
	ErrNotFound      = errors.New("record not found")
)

// --- Persistence Interfaces ---

type Database interface {
	// Webhook events. CreateWebhookEvent returns ErrAlreadyExists when the
	// dedup tuple has been seen before.
	CreateWebhookEvent(ctx context.Context, ev *types.WebhookEvent) error
	GetWebhookEvent(ctx context.Context, dedupKey string) (*types.WebhookEvent, error)
	UpdateWebhookEvent(ctx context.Context, dedupKey string, data map[string]interface{}) error
	ListFailedWebhookEvents(ctx context.Context, limit int) ([]*types.WebhookEvent, error)

	// Integrations.
	GetIntegration(ctx context.Context, provider types.Provider, userID string) (*types.Integration, error)
	FindIntegrationByExternalUser(ctx context.Context, provider types.Provider, externalUserID string) (*types.Integration, error)
	// UpdateIntegrationTokens applies tok only when tok.Expiry is strictly
	// later than the stored expiry; returns whether the write was applied.
	UpdateIntegrationTokens(ctx context.Context, provider types.Provider, userID string, tok types.TokenUpdate) (bool, error)
	UpdateIntegrationSync(ctx context.Context, provider types.Provider, userID string, data map[string]interface{}) error
	// ListSyncEnabledIntegrations feeds the pull-sync loop for providers
	// without push webhooks.
	ListSyncEnabledIntegrations(ctx context.Context, provider types.Provider) ([]*types.Integration, error)
	DeleteIntegration(ctx context.Context, provider types.Provider, userID string) error

	// Activities. InsertActivity returns ErrAlreadyExists on an exact
	// (provider, external id) collision for the user.
	InsertActivity(ctx context.Context, act *types.Activity) error
	GetActivityByExternalKey(ctx context.Context, userID, externalKey string) (*types.Activity, error)
	ListActivitiesByStartWindow(ctx context.Context, userID string, from, to time.Time) ([]*types.Activity, error)
	MostRecentStartCoordinate(ctx context.Context, userID string) (lat, lng float64, ok bool, err error)

	// Gear.
	GetGearByExternalID(ctx context.Context, userID, externalID string) (*types.GearItem, error)
	GetDefaultGear(ctx context.Context, userID string, category types.GearCategory) (*types.GearItem, error)
	GetGearLink(ctx context.Context, userID, activityID string) (*types.ActivityGearLink, error)
	SetGearLink(ctx context.Context, userID string, link *types.ActivityGearLink) error
	// AddGearDistance must be a single atomic increment at the store level.
	AddGearDistance(ctx context.Context, userID, gearID string, meters float64) error
	ListGearLinksByGear(ctx context.Context, userID, gearID string) ([]*types.ActivityGearLink, error)
	SetGearTotalDistance(ctx context.Context, userID, gearID string, meters float64) error
}

// --- Messaging Interfaces ---

type Publisher interface {
	PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error)
}

// --- Storage Interfaces ---

type BlobStore interface {
	Write(ctx context.Context, bucket, object string, data []byte) error
	Read(ctx context.Context, bucket, object string) ([]byte, error)
}

// --- Rate Limiting ---

// Limiter is an injectable request limiter with an explicit lifecycle, so a
// process-local window store can be swapped for a shared one without
// touching call sites.
type Limiter interface {
	// Allow reports whether key may proceed, and when not, how long the
	// caller should wait before retrying.
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}
