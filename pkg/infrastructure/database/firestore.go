// Package database adapts the typed Firestore storage client to the
// shared.Database interface the pipeline consumes.
package database

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	shared "github.com/trackstack/server/pkg"
	storage "github.com/trackstack/server/pkg/storage/firestore"
	"github.com/trackstack/server/pkg/types"
)

// FirestoreAdapter provides database operations using Firestore.
// It wraps our typed storage client.
type FirestoreAdapter struct {
	Client  *firestore.Client
	storage *storage.Client
}

func NewFirestoreAdapter(client *firestore.Client) *FirestoreAdapter {
	return &FirestoreAdapter{
		Client:  client,
		storage: storage.NewClient(client),
	}
}

// mapErr converts grpc status codes into the shared sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %v", shared.ErrAlreadyExists, err)
	case codes.NotFound:
		return fmt.Errorf("%w: %v", shared.ErrNotFound, err)
	}
	return err
}

// --- Webhook events ---

func (a *FirestoreAdapter) CreateWebhookEvent(ctx context.Context, ev *types.WebhookEvent) error {
	return mapErr(a.storage.WebhookEvents().Doc(ev.ID).Create(ctx, ev))
}

func (a *FirestoreAdapter) GetWebhookEvent(ctx context.Context, dedupKey string) (*types.WebhookEvent, error) {
	ev, err := a.storage.WebhookEvents().Doc(dedupKey).Get(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	ev.ID = dedupKey
	return ev, nil
}

func (a *FirestoreAdapter) UpdateWebhookEvent(ctx context.Context, dedupKey string, data map[string]interface{}) error {
	return mapErr(a.storage.WebhookEvents().Doc(dedupKey).Update(ctx, data))
}

func (a *FirestoreAdapter) ListFailedWebhookEvents(ctx context.Context, limit int) ([]*types.WebhookEvent, error) {
	col := a.storage.WebhookEvents()
	q := col.Ref.
		Where("processed", "==", true).
		Where("process_error", "!=", "").
		Limit(limit)

	var out []*types.WebhookEvent
	it := q.Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		ev := col.Decode(snap.Data())
		ev.ID = snap.Ref.ID
		out = append(out, ev)
	}
	return out, nil
}

// --- Integrations ---

func integrationKey(provider types.Provider, userID string) string {
	return fmt.Sprintf("%s:%s", provider, userID)
}

func (a *FirestoreAdapter) GetIntegration(ctx context.Context, provider types.Provider, userID string) (*types.Integration, error) {
	integ, err := a.storage.Integrations().Doc(integrationKey(provider, userID)).Get(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	return integ, nil
}

func (a *FirestoreAdapter) FindIntegrationByExternalUser(ctx context.Context, provider types.Provider, externalUserID string) (*types.Integration, error) {
	col := a.storage.Integrations()
	it := col.Ref.
		Where("provider", "==", string(provider)).
		Where("external_user_id", "==", externalUserID).
		Limit(1).
		Documents(ctx)
	defer it.Stop()

	snap, err := it.Next()
	if err == iterator.Done {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return col.Decode(snap.Data()), nil
}

func (a *FirestoreAdapter) ListSyncEnabledIntegrations(ctx context.Context, provider types.Provider) ([]*types.Integration, error) {
	col := a.storage.Integrations()
	it := col.Ref.
		Where("provider", "==", string(provider)).
		Where("sync_enabled", "==", true).
		Documents(ctx)
	defer it.Stop()

	var integs []*types.Integration
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			return integs, nil
		}
		if err != nil {
			return nil, err
		}
		integs = append(integs, col.Decode(snap.Data()))
	}
}

// UpdateIntegrationTokens applies tok inside a transaction, and only when
// tok.Expiry is strictly later than the stored expiry. Two racing refreshes
// therefore converge on the freshest credentials instead of the last writer.
func (a *FirestoreAdapter) UpdateIntegrationTokens(ctx context.Context, provider types.Provider, userID string, tok types.TokenUpdate) (bool, error) {
	ref := a.storage.Integrations().Doc(integrationKey(provider, userID)).Ref

	applied := false
	err := a.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		stored, _ := snap.DataAt("expires_at")
		if storedExpiry, ok := stored.(time.Time); ok && !tok.Expiry.After(storedExpiry) {
			return nil // stored credentials are at least as fresh
		}
		applied = true
		return tx.Set(ref, map[string]interface{}{
			"access_token":  tok.AccessToken,
			"refresh_token": tok.RefreshToken,
			"expires_at":    tok.Expiry,
		}, firestore.MergeAll)
	})
	if err != nil {
		return false, mapErr(err)
	}
	return applied, nil
}

func (a *FirestoreAdapter) UpdateIntegrationSync(ctx context.Context, provider types.Provider, userID string, data map[string]interface{}) error {
	return mapErr(a.storage.Integrations().Doc(integrationKey(provider, userID)).Update(ctx, data))
}

func (a *FirestoreAdapter) DeleteIntegration(ctx context.Context, provider types.Provider, userID string) error {
	return mapErr(a.storage.Integrations().Doc(integrationKey(provider, userID)).Delete(ctx))
}

// --- Activities ---

func (a *FirestoreAdapter) InsertActivity(ctx context.Context, act *types.Activity) error {
	return mapErr(a.storage.UserActivities(act.UserID).Doc(act.ExternalKey()).Create(ctx, act))
}

func (a *FirestoreAdapter) GetActivityByExternalKey(ctx context.Context, userID, externalKey string) (*types.Activity, error) {
	act, err := a.storage.UserActivities(userID).Doc(externalKey).Get(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	act.ID = externalKey
	return act, nil
}

func (a *FirestoreAdapter) ListActivitiesByStartWindow(ctx context.Context, userID string, from, to time.Time) ([]*types.Activity, error) {
	col := a.storage.UserActivities(userID)
	it := col.Ref.
		Where("start_time", ">=", from).
		Where("start_time", "<=", to).
		Documents(ctx)
	defer it.Stop()

	var out []*types.Activity
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		act := col.Decode(snap.Data())
		act.ID = snap.Ref.ID
		out = append(out, act)
	}
	return out, nil
}

// MostRecentStartCoordinate scans recent activities for the newest one that
// recorded a start position. Indoor activities have none, so a small page is
// scanned client-side rather than asking Firestore for a field-exists query.
func (a *FirestoreAdapter) MostRecentStartCoordinate(ctx context.Context, userID string) (float64, float64, bool, error) {
	col := a.storage.UserActivities(userID)
	it := col.Ref.
		OrderBy("start_time", firestore.Desc).
		Limit(25).
		Documents(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err == iterator.Done {
			return 0, 0, false, nil
		}
		if err != nil {
			return 0, 0, false, err
		}
		act := col.Decode(snap.Data())
		if act.StartLat != nil && act.StartLng != nil {
			return *act.StartLat, *act.StartLng, true, nil
		}
	}
}

// --- Gear ---

func (a *FirestoreAdapter) GetGearByExternalID(ctx context.Context, userID, externalID string) (*types.GearItem, error) {
	col := a.storage.UserGear(userID)
	it := col.Ref.
		Where("external_id", "==", externalID).
		Limit(1).
		Documents(ctx)
	defer it.Stop()

	snap, err := it.Next()
	if err == iterator.Done {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	g := col.Decode(snap.Data())
	g.ID = snap.Ref.ID
	return g, nil
}

func (a *FirestoreAdapter) GetDefaultGear(ctx context.Context, userID string, category types.GearCategory) (*types.GearItem, error) {
	col := a.storage.UserGear(userID)
	it := col.Ref.
		Where("category", "==", string(category)).
		Where("is_default", "==", true).
		Where("active", "==", true).
		Limit(1).
		Documents(ctx)
	defer it.Stop()

	snap, err := it.Next()
	if err == iterator.Done {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	g := col.Decode(snap.Data())
	g.ID = snap.Ref.ID
	return g, nil
}

func (a *FirestoreAdapter) GetGearLink(ctx context.Context, userID, activityID string) (*types.ActivityGearLink, error) {
	link, err := a.storage.UserGearLinks(userID).Doc(activityID).Get(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	return link, nil
}

func (a *FirestoreAdapter) SetGearLink(ctx context.Context, userID string, link *types.ActivityGearLink) error {
	// Keyed by activity id so reassignment overwrites rather than duplicates.
	return mapErr(a.storage.UserGearLinks(userID).Doc(link.ActivityID).Set(ctx, link))
}

func (a *FirestoreAdapter) AddGearDistance(ctx context.Context, userID, gearID string, meters float64) error {
	ref := a.storage.UserGear(userID).Doc(gearID).Ref
	_, err := ref.Update(ctx, []firestore.Update{
		{Path: "total_distance", Value: firestore.Increment(meters)},
	})
	return mapErr(err)
}

func (a *FirestoreAdapter) ListGearLinksByGear(ctx context.Context, userID, gearID string) ([]*types.ActivityGearLink, error) {
	col := a.storage.UserGearLinks(userID)
	it := col.Ref.
		Where("gear_id", "==", gearID).
		Documents(ctx)
	defer it.Stop()

	var out []*types.ActivityGearLink
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, col.Decode(snap.Data()))
	}
	return out, nil
}

func (a *FirestoreAdapter) SetGearTotalDistance(ctx context.Context, userID, gearID string, meters float64) error {
	return mapErr(a.storage.UserGear(userID).Doc(gearID).Update(ctx, map[string]interface{}{
		"total_distance": meters,
	}))
}
