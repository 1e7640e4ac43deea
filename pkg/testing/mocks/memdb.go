package mocks

import (
	"context"
	"sync"
	"time"

	shared "github.com/trackstack/server/pkg"
	"github.com/trackstack/server/pkg/types"
)

// MemDB is an in-memory shared.Database for tests that need real store
// semantics (uniqueness, conditional token writes, atomic increments)
// rather than canned responses.
type MemDB struct {
	mu           sync.Mutex
	Events       map[string]*types.WebhookEvent
	Integrations map[string]*types.Integration          // key: "{provider}:{user_id}"
	Activities   map[string]map[string]*types.Activity  // userID -> externalKey -> activity
	Gear         map[string]map[string]*types.GearItem  // userID -> gearID -> item
	GearLinks    map[string]map[string]*types.ActivityGearLink // userID -> activityID -> link
}

var _ shared.Database = (*MemDB)(nil)

func NewMemDB() *MemDB {
	return &MemDB{
		Events:       make(map[string]*types.WebhookEvent),
		Integrations: make(map[string]*types.Integration),
		Activities:   make(map[string]map[string]*types.Activity),
		Gear:         make(map[string]map[string]*types.GearItem),
		GearLinks:    make(map[string]map[string]*types.ActivityGearLink),
	}
}

// SeedIntegration stores a copy of integ keyed by provider and user.
func (db *MemDB) SeedIntegration(integ *types.Integration) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := *integ
	db.Integrations[integ.Key()] = &cp
}

// SeedGear stores a copy of g under its user.
func (db *MemDB) SeedGear(g *types.GearItem) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.Gear[g.UserID] == nil {
		db.Gear[g.UserID] = make(map[string]*types.GearItem)
	}
	cp := *g
	db.Gear[g.UserID][g.ID] = &cp
}

func (db *MemDB) CreateWebhookEvent(ctx context.Context, ev *types.WebhookEvent) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.Events[ev.ID]; exists {
		return shared.ErrAlreadyExists
	}
	cp := *ev
	db.Events[ev.ID] = &cp
	return nil
}

func (db *MemDB) GetWebhookEvent(ctx context.Context, dedupKey string) (*types.WebhookEvent, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	ev, ok := db.Events[dedupKey]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (db *MemDB) UpdateWebhookEvent(ctx context.Context, dedupKey string, data map[string]interface{}) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	ev, ok := db.Events[dedupKey]
	if !ok {
		return shared.ErrNotFound
	}
	for k, v := range data {
		switch k {
		case "processed":
			ev.Processed = v.(bool)
		case "processed_at":
			t := v.(time.Time)
			ev.ProcessedAt = &t
		case "process_error":
			ev.ProcessError = v.(string)
		case "user_id":
			ev.UserID = v.(string)
		case "activity_imported_id":
			ev.ActivityImportedID = v.(string)
		}
	}
	return nil
}

func (db *MemDB) ListFailedWebhookEvents(ctx context.Context, limit int) ([]*types.WebhookEvent, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []*types.WebhookEvent
	for _, ev := range db.Events {
		if ev.Processed && ev.ProcessError != "" {
			cp := *ev
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (db *MemDB) GetIntegration(ctx context.Context, provider types.Provider, userID string) (*types.Integration, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	integ, ok := db.Integrations[string(provider)+":"+userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *integ
	return &cp, nil
}

func (db *MemDB) FindIntegrationByExternalUser(ctx context.Context, provider types.Provider, externalUserID string) (*types.Integration, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, integ := range db.Integrations {
		if integ.Provider == provider && integ.ExternalUserID == externalUserID {
			cp := *integ
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (db *MemDB) UpdateIntegrationTokens(ctx context.Context, provider types.Provider, userID string, tok types.TokenUpdate) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	integ, ok := db.Integrations[string(provider)+":"+userID]
	if !ok {
		return false, shared.ErrNotFound
	}
	if !tok.Expiry.After(integ.Expiry) {
		return false, nil
	}
	integ.AccessToken = tok.AccessToken
	integ.RefreshToken = tok.RefreshToken
	integ.Expiry = tok.Expiry
	return true, nil
}

func (db *MemDB) UpdateIntegrationSync(ctx context.Context, provider types.Provider, userID string, data map[string]interface{}) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	integ, ok := db.Integrations[string(provider)+":"+userID]
	if !ok {
		return shared.ErrNotFound
	}
	for k, v := range data {
		switch k {
		case "last_sync_at":
			integ.LastSyncAt = v.(time.Time)
		case "sync_status":
			integ.SyncStatus = v.(string)
		case "sync_error":
			integ.SyncError = v.(string)
		case "sync_enabled":
			integ.SyncEnabled = v.(bool)
		}
	}
	return nil
}

func (db *MemDB) ListSyncEnabledIntegrations(ctx context.Context, provider types.Provider) ([]*types.Integration, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var integs []*types.Integration
	for _, integ := range db.Integrations {
		if integ.Provider == provider && integ.SyncEnabled {
			cp := *integ
			integs = append(integs, &cp)
		}
	}
	return integs, nil
}

func (db *MemDB) DeleteIntegration(ctx context.Context, provider types.Provider, userID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.Integrations, string(provider)+":"+userID)
	return nil
}

func (db *MemDB) InsertActivity(ctx context.Context, act *types.Activity) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.Activities[act.UserID] == nil {
		db.Activities[act.UserID] = make(map[string]*types.Activity)
	}
	key := act.ExternalKey()
	if _, exists := db.Activities[act.UserID][key]; exists {
		return shared.ErrAlreadyExists
	}
	cp := *act
	cp.ID = key
	db.Activities[act.UserID][key] = &cp
	return nil
}

func (db *MemDB) GetActivityByExternalKey(ctx context.Context, userID, externalKey string) (*types.Activity, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	act, ok := db.Activities[userID][externalKey]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *act
	return &cp, nil
}

func (db *MemDB) ListActivitiesByStartWindow(ctx context.Context, userID string, from, to time.Time) ([]*types.Activity, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []*types.Activity
	for _, act := range db.Activities[userID] {
		if !act.StartTime.Before(from) && !act.StartTime.After(to) {
			cp := *act
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (db *MemDB) MostRecentStartCoordinate(ctx context.Context, userID string) (float64, float64, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var best *types.Activity
	for _, act := range db.Activities[userID] {
		if act.StartLat == nil || act.StartLng == nil {
			continue
		}
		if best == nil || act.StartTime.After(best.StartTime) {
			best = act
		}
	}
	if best == nil {
		return 0, 0, false, nil
	}
	return *best.StartLat, *best.StartLng, true, nil
}

func (db *MemDB) GetGearByExternalID(ctx context.Context, userID, externalID string) (*types.GearItem, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, g := range db.Gear[userID] {
		if g.ExternalID == externalID {
			cp := *g
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (db *MemDB) GetDefaultGear(ctx context.Context, userID string, category types.GearCategory) (*types.GearItem, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, g := range db.Gear[userID] {
		if g.Category == category && g.IsDefault && g.Active {
			cp := *g
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (db *MemDB) GetGearLink(ctx context.Context, userID, activityID string) (*types.ActivityGearLink, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	l, ok := db.GearLinks[userID][activityID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (db *MemDB) SetGearLink(ctx context.Context, userID string, link *types.ActivityGearLink) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.GearLinks[userID] == nil {
		db.GearLinks[userID] = make(map[string]*types.ActivityGearLink)
	}
	cp := *link
	db.GearLinks[userID][link.ActivityID] = &cp
	return nil
}

func (db *MemDB) AddGearDistance(ctx context.Context, userID, gearID string, meters float64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	g, ok := db.Gear[userID][gearID]
	if !ok {
		return shared.ErrNotFound
	}
	g.TotalDistance += meters
	return nil
}

func (db *MemDB) ListGearLinksByGear(ctx context.Context, userID, gearID string) ([]*types.ActivityGearLink, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []*types.ActivityGearLink
	for _, l := range db.GearLinks[userID] {
		if l.GearID == gearID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (db *MemDB) SetGearTotalDistance(ctx context.Context, userID, gearID string, meters float64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	g, ok := db.Gear[userID][gearID]
	if !ok {
		return shared.ErrNotFound
	}
	g.TotalDistance = meters
	return nil
}
