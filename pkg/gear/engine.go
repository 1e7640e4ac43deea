// Package gear assigns imported activities to gear items and keeps each
// item's accumulated mileage consistent with its linked activities.
package gear

import (
	"context"
	"errors"
	"fmt"
	"time"

	shared "github.com/trackstack/server/pkg"
	activitydomain "github.com/trackstack/server/pkg/domain/activity"
	"github.com/trackstack/server/pkg/types"
)

// Assignment sources, in the order the resolver prefers them.
const (
	AssignedByProvider = "strava" // provider supplied an explicit gear id
	AssignedByAuto     = "auto"   // category default
	AssignedByManual   = "manual" // user action through the API
)

// Engine links activities to gear and accrues distance.
type Engine struct {
	DB shared.Database
}

func NewEngine(db shared.Database) *Engine {
	return &Engine{DB: db}
}

// Resolve picks the gear item an activity should accrue against; a nil item
// with nil error means the activity wears no gear. Provider-supplied gear
// ids win over the category default.
func (e *Engine) Resolve(ctx context.Context, act *types.Activity) (*types.GearItem, string, error) {
	if act.GearExternalID != "" {
		item, err := e.DB.GetGearByExternalID(ctx, act.UserID, act.GearExternalID)
		if err == nil {
			return item, AssignedByProvider, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, "", fmt.Errorf("lookup gear by external id: %w", err)
		}
		// Unknown provider gear id falls through to the category default.
	}

	category, ok := activitydomain.GearCategoryFor(act.Type)
	if !ok {
		return nil, "", nil
	}
	item, err := e.DB.GetDefaultGear(ctx, act.UserID, category)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("lookup default gear: %w", err)
	}
	return item, AssignedByAuto, nil
}

// Assign resolves and links gear for act, accruing its distance. Calling it
// again for the same activity is a no-op unless the resolved gear changed,
// in which case the old item's mileage is moved to the new one.
func (e *Engine) Assign(ctx context.Context, act *types.Activity) (*types.ActivityGearLink, error) {
	item, assignedBy, err := e.Resolve(ctx, act)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	return e.Link(ctx, act, item.ID, assignedBy)
}

// Link attaches act to the given gear item, adjusting mileage on both sides
// of any reassignment. The link is keyed by activity, so at most one gear
// ever accrues a given activity's distance.
func (e *Engine) Link(ctx context.Context, act *types.Activity, gearID, assignedBy string) (*types.ActivityGearLink, error) {
	existing, err := e.DB.GetGearLink(ctx, act.UserID, act.ID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("lookup gear link: %w", err)
	}

	if existing != nil {
		if existing.GearID == gearID {
			return existing, nil
		}
		// Reassignment: move the previously accrued distance off the old item.
		if err := e.DB.AddGearDistance(ctx, act.UserID, existing.GearID, -existing.DistanceMeters); err != nil {
			return nil, fmt.Errorf("remove distance from previous gear: %w", err)
		}
	}

	link := &types.ActivityGearLink{
		ActivityID:     act.ID,
		GearID:         gearID,
		AssignedBy:     assignedBy,
		DistanceMeters: act.DistanceMeters,
		AssignedAt:     time.Now().UTC(),
	}
	if err := e.DB.SetGearLink(ctx, act.UserID, link); err != nil {
		return nil, fmt.Errorf("store gear link: %w", err)
	}
	if err := e.DB.AddGearDistance(ctx, act.UserID, gearID, act.DistanceMeters); err != nil {
		return nil, fmt.Errorf("accrue distance: %w", err)
	}
	return link, nil
}

// Recompute rebuilds a gear item's total from its links. The result must
// equal what incremental accrual produced; it exists as a repair tool for
// totals that drifted through partial failures.
func (e *Engine) Recompute(ctx context.Context, userID, gearID string) (float64, error) {
	links, err := e.DB.ListGearLinksByGear(ctx, userID, gearID)
	if err != nil {
		return 0, fmt.Errorf("list gear links: %w", err)
	}
	var total float64
	for _, l := range links {
		total += l.DistanceMeters
	}
	if err := e.DB.SetGearTotalDistance(ctx, userID, gearID, total); err != nil {
		return 0, fmt.Errorf("store recomputed total: %w", err)
	}
	return total, nil
}
