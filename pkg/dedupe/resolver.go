// Package dedupe decides whether a freshly built activity duplicates one
// already stored for the user.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	shared "github.com/trackstack/server/pkg"
	"github.com/trackstack/server/pkg/types"
)

const (
	// NearDuplicateWindow is how far apart two start times may be while
	// still counting as the same real-world workout seen twice.
	NearDuplicateWindow = 5 * time.Minute
	// NearDuplicateDistanceMeters is the distance tolerance for the same.
	NearDuplicateDistanceMeters = 100.0
)

// Skip reasons reported to callers.
const (
	ReasonExactMatch    = "exact-match"
	ReasonNearDuplicate = "near-duplicate"
)

// Resolver checks a candidate activity against the store.
type Resolver struct {
	DB shared.Database
}

func NewResolver(db shared.Database) *Resolver {
	return &Resolver{DB: db}
}

// Check reports whether act should be skipped, and why. An exact match is a
// stored activity with the same (provider, external id); a near-duplicate is
// any stored activity for the user whose start time and distance both fall
// within the tolerances, regardless of source provider (the same workout
// often arrives from two connected providers).
func (r *Resolver) Check(ctx context.Context, act *types.Activity) (skip bool, reason string, err error) {
	_, err = r.DB.GetActivityByExternalKey(ctx, act.UserID, act.ExternalKey())
	if err == nil {
		return true, ReasonExactMatch, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return false, "", fmt.Errorf("exact-match lookup: %w", err)
	}

	from := act.StartTime.Add(-NearDuplicateWindow)
	to := act.StartTime.Add(NearDuplicateWindow)
	candidates, err := r.DB.ListActivitiesByStartWindow(ctx, act.UserID, from, to)
	if err != nil {
		return false, "", fmt.Errorf("near-duplicate window query: %w", err)
	}

	for _, existing := range candidates {
		if math.Abs(existing.DistanceMeters-act.DistanceMeters) <= NearDuplicateDistanceMeters {
			return true, ReasonNearDuplicate, nil
		}
	}
	return false, "", nil
}
