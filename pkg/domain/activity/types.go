// Package activity normalizes provider-native workout payloads into the
// canonical Activity record.
package activity

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/trackstack/server/pkg/types"
)

// canonicalTypes maps normalized provider-native type strings to the
// canonical enum. Keys are lower-cased with spaces collapsed to underscores.
var canonicalTypes = map[string]types.ActivityType{
	"ride":                  types.TypeRide,
	"cycling":               types.TypeRide,
	"biking":                types.TypeRide,
	"road_biking":           types.TypeRide,
	"run":                   types.TypeRun,
	"running":               types.TypeRun,
	"virtualride":           types.TypeVirtualRide,
	"virtual_ride":          types.TypeVirtualRide,
	"virtualrun":            types.TypeVirtualRun,
	"virtual_run":           types.TypeVirtualRun,
	"trailrun":              types.TypeTrailRun,
	"trail_run":             types.TypeTrailRun,
	"trail_running":         types.TypeTrailRun,
	"mountainbikeride":      types.TypeMountainBikeRide,
	"mountain_biking":       types.TypeMountainBikeRide,
	"mtb":                   types.TypeMountainBikeRide,
	"gravelride":            types.TypeGravelRide,
	"gravel_cycling":        types.TypeGravelRide,
	"ebikeride":             types.TypeEBikeRide,
	"e_bike_ride":           types.TypeEBikeRide,
	"indoorride":            types.TypeIndoorRide,
	"indoor_cycling":        types.TypeIndoorRide,
	"treadmillrun":          types.TypeTreadmillRun,
	"treadmill_running":     types.TypeTreadmillRun,
	"indoor_running":        types.TypeTreadmillRun,
	"walk":                  types.TypeWalk,
	"walking":               types.TypeWalk,
	"hike":                  types.TypeHike,
	"hiking":                types.TypeHike,
	"swim":                  types.TypeSwim,
	"swimming":              types.TypeSwim,
	"lap_swimming":          types.TypeSwim,
	"open_water_swimming":   types.TypeSwim,
	"rowing":                types.TypeRowing,
	"indoor_rowing":         types.TypeRowing,
	"elliptical":            types.TypeElliptical,
	"weighttraining":        types.TypeWeightTraining,
	"weight_training":       types.TypeWeightTraining,
	"strength_training":     types.TypeWeightTraining,
	"yoga":                  types.TypeYoga,
	"workout":               types.TypeWorkout,
	"fitness_equipment":     types.TypeWorkout,
	"cardio":                types.TypeWorkout,
	"biking_indoor_cycling": types.TypeIndoorRide,
}

// CanonicalType maps any provider-native type string to a canonical enum
// value. Total: unrecognized inputs classify as the generic Workout rather
// than being dropped.
func CanonicalType(raw string) types.ActivityType {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "_")
	if t, ok := canonicalTypes[key]; ok {
		return t
	}
	return types.TypeWorkout
}

// displayLabels are the human-readable forms used in synthesized names.
var displayLabels = map[types.ActivityType]string{
	types.TypeRide:             "Ride",
	types.TypeRun:              "Run",
	types.TypeVirtualRide:      "Virtual Ride",
	types.TypeVirtualRun:       "Virtual Run",
	types.TypeTrailRun:         "Trail Run",
	types.TypeMountainBikeRide: "Mountain Bike Ride",
	types.TypeGravelRide:       "Gravel Ride",
	types.TypeEBikeRide:        "E-Bike Ride",
	types.TypeIndoorRide:       "Indoor Ride",
	types.TypeTreadmillRun:     "Treadmill Run",
	types.TypeWalk:             "Walk",
	types.TypeHike:             "Hike",
	types.TypeSwim:             "Swim",
	types.TypeRowing:           "Rowing",
	types.TypeElliptical:       "Elliptical",
	types.TypeWeightTraining:   "Weight Training",
	types.TypeYoga:             "Yoga",
	types.TypeWorkout:          "Workout",
}

var titleCaser = cases.Title(language.English)

// DisplayLabel returns the label for a canonical type, title-casing the raw
// enum string when no curated label exists.
func DisplayLabel(t types.ActivityType) string {
	if label, ok := displayLabels[t]; ok {
		return label
	}
	return titleCaser.String(strings.ReplaceAll(string(t), "_", " "))
}

// indoorTypes are canonical types that imply the trainer flag on their own.
var indoorTypes = map[types.ActivityType]bool{
	types.TypeVirtualRide:    true,
	types.TypeVirtualRun:     true,
	types.TypeIndoorRide:     true,
	types.TypeTreadmillRun:   true,
	types.TypeElliptical:     true,
	types.TypeWeightTraining: true,
	types.TypeYoga:           true,
}

// IsIndoorType reports whether the canonical type is an indoor-class type.
func IsIndoorType(t types.ActivityType) bool {
	return indoorTypes[t]
}

// trainerKeywords mark a device as an indoor trainer by case-insensitive
// substring match.
var trainerKeywords = []string{"trainer", "indoor", "zwift", "kickr", "wattbike", "rouvy"}

// DeviceSuggestsIndoor reports whether a device name looks like an indoor
// trainer setup.
func DeviceSuggestsIndoor(deviceName string) bool {
	if deviceName == "" {
		return false
	}
	lower := strings.ToLower(deviceName)
	for _, kw := range trainerKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// GearCategoryFor returns the gear category a canonical type accrues
// mileage against. ok is false for types that never wear gear.
func GearCategoryFor(t types.ActivityType) (types.GearCategory, bool) {
	switch t {
	case types.TypeRide, types.TypeVirtualRide, types.TypeMountainBikeRide,
		types.TypeGravelRide, types.TypeEBikeRide, types.TypeIndoorRide:
		return types.GearCycling, true
	case types.TypeRun, types.TypeVirtualRun, types.TypeTrailRun,
		types.TypeTreadmillRun, types.TypeWalk, types.TypeHike:
		return types.GearRunning, true
	}
	return "", false
}
