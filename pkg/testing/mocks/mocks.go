package mocks

import (
	"context"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"

	shared "github.com/trackstack/server/pkg"
	"github.com/trackstack/server/pkg/types"
)

// --- Mock Database ---
type MockDatabase struct {
	CreateWebhookEventFunc      func(ctx context.Context, ev *types.WebhookEvent) error
	GetWebhookEventFunc         func(ctx context.Context, dedupKey string) (*types.WebhookEvent, error)
	UpdateWebhookEventFunc      func(ctx context.Context, dedupKey string, data map[string]interface{}) error
	ListFailedWebhookEventsFunc func(ctx context.Context, limit int) ([]*types.WebhookEvent, error)

	GetIntegrationFunc                func(ctx context.Context, provider types.Provider, userID string) (*types.Integration, error)
	FindIntegrationByExternalUserFunc func(ctx context.Context, provider types.Provider, externalUserID string) (*types.Integration, error)
	UpdateIntegrationTokensFunc       func(ctx context.Context, provider types.Provider, userID string, tok types.TokenUpdate) (bool, error)
	UpdateIntegrationSyncFunc         func(ctx context.Context, provider types.Provider, userID string, data map[string]interface{}) error
	ListSyncEnabledIntegrationsFunc   func(ctx context.Context, provider types.Provider) ([]*types.Integration, error)
	DeleteIntegrationFunc             func(ctx context.Context, provider types.Provider, userID string) error

	InsertActivityFunc              func(ctx context.Context, act *types.Activity) error
	GetActivityByExternalKeyFunc    func(ctx context.Context, userID, externalKey string) (*types.Activity, error)
	ListActivitiesByStartWindowFunc func(ctx context.Context, userID string, from, to time.Time) ([]*types.Activity, error)
	MostRecentStartCoordinateFunc   func(ctx context.Context, userID string) (float64, float64, bool, error)

	GetGearByExternalIDFunc  func(ctx context.Context, userID, externalID string) (*types.GearItem, error)
	GetDefaultGearFunc       func(ctx context.Context, userID string, category types.GearCategory) (*types.GearItem, error)
	GetGearLinkFunc          func(ctx context.Context, userID, activityID string) (*types.ActivityGearLink, error)
	SetGearLinkFunc          func(ctx context.Context, userID string, link *types.ActivityGearLink) error
	AddGearDistanceFunc      func(ctx context.Context, userID, gearID string, meters float64) error
	ListGearLinksByGearFunc  func(ctx context.Context, userID, gearID string) ([]*types.ActivityGearLink, error)
	SetGearTotalDistanceFunc func(ctx context.Context, userID, gearID string, meters float64) error
}

var _ shared.Database = (*MockDatabase)(nil)

func (m *MockDatabase) CreateWebhookEvent(ctx context.Context, ev *types.WebhookEvent) error {
	if m.CreateWebhookEventFunc != nil {
		return m.CreateWebhookEventFunc(ctx, ev)
	}
	return nil
}
func (m *MockDatabase) GetWebhookEvent(ctx context.Context, dedupKey string) (*types.WebhookEvent, error) {
	if m.GetWebhookEventFunc != nil {
		return m.GetWebhookEventFunc(ctx, dedupKey)
	}
	return nil, shared.ErrNotFound
}
func (m *MockDatabase) UpdateWebhookEvent(ctx context.Context, dedupKey string, data map[string]interface{}) error {
	if m.UpdateWebhookEventFunc != nil {
		return m.UpdateWebhookEventFunc(ctx, dedupKey, data)
	}
	return nil
}
func (m *MockDatabase) ListFailedWebhookEvents(ctx context.Context, limit int) ([]*types.WebhookEvent, error) {
	if m.ListFailedWebhookEventsFunc != nil {
		return m.ListFailedWebhookEventsFunc(ctx, limit)
	}
	return nil, nil
}
func (m *MockDatabase) GetIntegration(ctx context.Context, provider types.Provider, userID string) (*types.Integration, error) {
	if m.GetIntegrationFunc != nil {
		return m.GetIntegrationFunc(ctx, provider, userID)
	}
	return nil, shared.ErrNotFound
}
func (m *MockDatabase) FindIntegrationByExternalUser(ctx context.Context, provider types.Provider, externalUserID string) (*types.Integration, error) {
	if m.FindIntegrationByExternalUserFunc != nil {
		return m.FindIntegrationByExternalUserFunc(ctx, provider, externalUserID)
	}
	return nil, shared.ErrNotFound
}
func (m *MockDatabase) UpdateIntegrationTokens(ctx context.Context, provider types.Provider, userID string, tok types.TokenUpdate) (bool, error) {
	if m.UpdateIntegrationTokensFunc != nil {
		return m.UpdateIntegrationTokensFunc(ctx, provider, userID, tok)
	}
	return true, nil
}
func (m *MockDatabase) UpdateIntegrationSync(ctx context.Context, provider types.Provider, userID string, data map[string]interface{}) error {
	if m.UpdateIntegrationSyncFunc != nil {
		return m.UpdateIntegrationSyncFunc(ctx, provider, userID, data)
	}
	return nil
}
func (m *MockDatabase) ListSyncEnabledIntegrations(ctx context.Context, provider types.Provider) ([]*types.Integration, error) {
	if m.ListSyncEnabledIntegrationsFunc != nil {
		return m.ListSyncEnabledIntegrationsFunc(ctx, provider)
	}
	return nil, nil
}
func (m *MockDatabase) DeleteIntegration(ctx context.Context, provider types.Provider, userID string) error {
	if m.DeleteIntegrationFunc != nil {
		return m.DeleteIntegrationFunc(ctx, provider, userID)
	}
	return nil
}
func (m *MockDatabase) InsertActivity(ctx context.Context, act *types.Activity) error {
	if m.InsertActivityFunc != nil {
		return m.InsertActivityFunc(ctx, act)
	}
	return nil
}
func (m *MockDatabase) GetActivityByExternalKey(ctx context.Context, userID, externalKey string) (*types.Activity, error) {
	if m.GetActivityByExternalKeyFunc != nil {
		return m.GetActivityByExternalKeyFunc(ctx, userID, externalKey)
	}
	return nil, shared.ErrNotFound
}
func (m *MockDatabase) ListActivitiesByStartWindow(ctx context.Context, userID string, from, to time.Time) ([]*types.Activity, error) {
	if m.ListActivitiesByStartWindowFunc != nil {
		return m.ListActivitiesByStartWindowFunc(ctx, userID, from, to)
	}
	return nil, nil
}
func (m *MockDatabase) MostRecentStartCoordinate(ctx context.Context, userID string) (float64, float64, bool, error) {
	if m.MostRecentStartCoordinateFunc != nil {
		return m.MostRecentStartCoordinateFunc(ctx, userID)
	}
	return 0, 0, false, nil
}
func (m *MockDatabase) GetGearByExternalID(ctx context.Context, userID, externalID string) (*types.GearItem, error) {
	if m.GetGearByExternalIDFunc != nil {
		return m.GetGearByExternalIDFunc(ctx, userID, externalID)
	}
	return nil, shared.ErrNotFound
}
func (m *MockDatabase) GetDefaultGear(ctx context.Context, userID string, category types.GearCategory) (*types.GearItem, error) {
	if m.GetDefaultGearFunc != nil {
		return m.GetDefaultGearFunc(ctx, userID, category)
	}
	return nil, shared.ErrNotFound
}
func (m *MockDatabase) GetGearLink(ctx context.Context, userID, activityID string) (*types.ActivityGearLink, error) {
	if m.GetGearLinkFunc != nil {
		return m.GetGearLinkFunc(ctx, userID, activityID)
	}
	return nil, shared.ErrNotFound
}
func (m *MockDatabase) SetGearLink(ctx context.Context, userID string, link *types.ActivityGearLink) error {
	if m.SetGearLinkFunc != nil {
		return m.SetGearLinkFunc(ctx, userID, link)
	}
	return nil
}
func (m *MockDatabase) AddGearDistance(ctx context.Context, userID, gearID string, meters float64) error {
	if m.AddGearDistanceFunc != nil {
		return m.AddGearDistanceFunc(ctx, userID, gearID, meters)
	}
	return nil
}
func (m *MockDatabase) ListGearLinksByGear(ctx context.Context, userID, gearID string) ([]*types.ActivityGearLink, error) {
	if m.ListGearLinksByGearFunc != nil {
		return m.ListGearLinksByGearFunc(ctx, userID, gearID)
	}
	return nil, nil
}
func (m *MockDatabase) SetGearTotalDistance(ctx context.Context, userID, gearID string, meters float64) error {
	if m.SetGearTotalDistanceFunc != nil {
		return m.SetGearTotalDistanceFunc(ctx, userID, gearID, meters)
	}
	return nil
}

// --- Mock Publisher ---
type MockPublisher struct {
	PublishCloudEventFunc func(ctx context.Context, topic string, e event.Event) (string, error)
}

func (m *MockPublisher) PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error) {
	if m.PublishCloudEventFunc != nil {
		return m.PublishCloudEventFunc(ctx, topic, e)
	}
	return "msg-id", nil
}

// --- Mock Storage ---
type MockBlobStore struct {
	WriteFunc func(ctx context.Context, bucket, object string, data []byte) error
	ReadFunc  func(ctx context.Context, bucket, object string) ([]byte, error)
}

func (m *MockBlobStore) Write(ctx context.Context, bucket, object string, data []byte) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, bucket, object, data)
	}
	return nil
}
func (m *MockBlobStore) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, bucket, object)
	}
	return []byte("mock-data"), nil
}

// --- Mock Limiter ---
type MockLimiter struct {
	AllowFunc func(ctx context.Context, key string) (bool, time.Duration, error)
}

func (m *MockLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key)
	}
	return true, 0, nil
}
