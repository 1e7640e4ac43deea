package fitfile

import (
	"math"
	"testing"

	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
)

func TestParse_EmptyData(t *testing.T) {
	if _, err := Parse(nil); err == nil {
		t.Error("expected error for empty data")
	}
}

func TestParse_GarbageData(t *testing.T) {
	if _, err := Parse([]byte("this is not a FIT file")); err == nil {
		t.Error("expected error for malformed data")
	}
}

func TestIsIndoorSubSport(t *testing.T) {
	indoor := []typedef.SubSport{
		typedef.SubSportIndoorCycling,
		typedef.SubSportVirtualActivity,
		typedef.SubSportTreadmill,
	}
	for _, sub := range indoor {
		if !isIndoorSubSport(sub) {
			t.Errorf("%v should be indoor", sub)
		}
	}
	if isIndoorSubSport(typedef.SubSportTrail) {
		t.Error("trail should not be indoor")
	}
}

func TestStartCoordinate(t *testing.T) {
	s := &mesgdef.Session{
		StartPositionLat:  0x7FFFFFFF,
		StartPositionLong: 0x7FFFFFFF,
	}
	if _, _, ok := startCoordinate(s); ok {
		t.Error("invalid sentinel coordinates should not decode")
	}

	// 45 degrees north in semicircles.
	s = &mesgdef.Session{
		StartPositionLat:  1 << 29,
		StartPositionLong: -(1 << 29),
	}
	lat, lng, ok := startCoordinate(s)
	if !ok {
		t.Fatal("expected valid coordinate")
	}
	if math.Abs(lat-45) > 1e-9 || math.Abs(lng+45) > 1e-9 {
		t.Errorf("got (%v, %v), want (45, -45)", lat, lng)
	}
}
