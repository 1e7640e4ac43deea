// Package location resolves a usable coordinate for an activity. Indoor and
// trainer sessions carry no GPS, so downstream consumers (weather lookup,
// route features) fall back to the user's most recent outdoor start point.
package location

import (
	"context"

	shared "github.com/trackstack/server/pkg"
	"github.com/trackstack/server/pkg/geo"
	"github.com/trackstack/server/pkg/types"
)

type Resolver struct {
	db shared.Database
}

func NewResolver(db shared.Database) *Resolver {
	return &Resolver{db: db}
}

// StartCoordinate returns the activity's own start point when it has one,
// else the most recent stored start coordinate for the user. ok is false
// when neither exists.
func (r *Resolver) StartCoordinate(ctx context.Context, act *types.Activity) (lat, lng float64, ok bool, err error) {
	if act.StartLat != nil && act.StartLng != nil {
		return *act.StartLat, *act.StartLng, true, nil
	}
	return r.db.MostRecentStartCoordinate(ctx, act.UserID)
}

// PassesNear reports whether the activity's route comes within radiusKm of
// the target. With a polyline the full route is checked; without one, only
// the start point.
func (r *Resolver) PassesNear(act *types.Activity, targetLat, targetLng, radiusKm float64) bool {
	if act.Polyline != "" {
		return geo.RoutePassesNear(act.Polyline, targetLat, targetLng, radiusKm)
	}
	if act.StartLat != nil && act.StartLng != nil {
		return geo.HaversineKm(*act.StartLat, *act.StartLng, targetLat, targetLng) <= radiusKm
	}
	return false
}
