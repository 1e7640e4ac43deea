package location

import (
	"context"
	"testing"
	"time"

	"github.com/trackstack/server/pkg/testing/mocks"
	"github.com/trackstack/server/pkg/types"
)

func ptr(f float64) *float64 { return &f }

func TestStartCoordinatePrefersOwnPoint(t *testing.T) {
	r := NewResolver(mocks.NewMemDB())

	act := &types.Activity{UserID: "user-1", StartLat: ptr(52.37), StartLng: ptr(4.89)}
	lat, lng, ok, err := r.StartCoordinate(context.Background(), act)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if lat != 52.37 || lng != 4.89 {
		t.Errorf("got (%v, %v)", lat, lng)
	}
}

func TestStartCoordinateFallsBackToRecentActivity(t *testing.T) {
	db := mocks.NewMemDB()
	outdoor := &types.Activity{
		UserID: "user-1", Provider: types.ProviderStrava, ExternalID: "1",
		StartTime: time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC),
		StartLat:  ptr(51.5), StartLng: ptr(-0.12),
	}
	if err := db.InsertActivity(context.Background(), outdoor); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(db)
	indoor := &types.Activity{UserID: "user-1", Trainer: true}
	lat, lng, ok, err := r.StartCoordinate(context.Background(), indoor)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if lat != 51.5 || lng != -0.12 {
		t.Errorf("got (%v, %v)", lat, lng)
	}
}

func TestStartCoordinateNoHistory(t *testing.T) {
	r := NewResolver(mocks.NewMemDB())

	_, _, ok, err := r.StartCoordinate(context.Background(), &types.Activity{UserID: "user-1"})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("no stored coordinate should resolve")
	}
}

func TestPassesNear(t *testing.T) {
	r := NewResolver(mocks.NewMemDB())

	// Google's reference polyline runs through (38.5, -120.2).
	withRoute := &types.Activity{Polyline: "_p~iF~ps|U_ulLnnqC_mqNvxq`@"}
	if !r.PassesNear(withRoute, 38.5, -120.2, 0.5) {
		t.Error("point on route should pass")
	}
	if r.PassesNear(withRoute, 38.5, -119.5, 0.5) {
		t.Error("point 60km off route should not pass")
	}

	startOnly := &types.Activity{StartLat: ptr(38.5), StartLng: ptr(-120.2)}
	if !r.PassesNear(startOnly, 38.501, -120.201, 0.5) {
		t.Error("nearby start point should pass")
	}
	if r.PassesNear(&types.Activity{}, 38.5, -120.2, 0.5) {
		t.Error("no geometry should never pass")
	}
}
