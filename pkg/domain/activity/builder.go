package activity

import (
	"fmt"
	"strconv"
	"time"

	"github.com/trackstack/server/pkg/types"
)

// KilojoulesPerKilocalorie converts provider calorie counts to kJ.
const KilojoulesPerKilocalorie = 4.184

// fieldCandidates lists, per canonical attribute, the provider field names
// checked in order. The same provider ships different shapes for push
// payloads, REST pulls, and file-derived summaries; adding a new variant is
// a data change here, not a code change.
var fieldCandidates = map[string][]string{
	"name":            {"name", "activityName", "title"},
	"type":            {"sport_type", "type", "activityType", "sport"},
	"distance":        {"distanceInMeters", "distance", "distance_meters"},
	"start_epoch":     {"startTimeInSeconds", "start_time_epoch"},
	"start_date":      {"start_date", "startTimeGMT", "start_time"},
	"utc_offset":      {"startTimeOffsetInSeconds", "utc_offset", "utcOffsetSeconds"},
	"moving_seconds":  {"moving_time", "movingDurationInSeconds", "durationInSeconds", "duration"},
	"elapsed_seconds": {"elapsed_time", "durationInSeconds", "duration"},
	"elevation":       {"total_elevation_gain", "totalElevationGainInMeters", "elevationGainInMeters", "elevation_gain"},
	"average_speed":   {"average_speed", "averageSpeedInMetersPerSecond"},
	"max_speed":       {"max_speed", "maxSpeedInMetersPerSecond"},
	"average_power":   {"average_watts", "averagePowerInWatts", "average_power"},
	"average_hr":      {"average_heartrate", "averageHeartRateInBeatsPerMinute", "average_heart_rate"},
	"max_hr":          {"max_heartrate", "maxHeartRateInBeatsPerMinute", "max_heart_rate"},
	"cadence":         {"average_cadence", "averageBikeCadenceInRoundsPerMinute", "averageRunCadenceInStepsPerMinute"},
	"kilojoules":      {"kilojoules"},
	"calories":        {"activeKilocalories", "calories", "kcal"},
	"device":          {"device_name", "deviceName", "device"},
	"gear":            {"gear_id", "gearId"},
	"trainer":         {"trainer", "is_indoor", "indoor"},
	"start_lat":       {"startingLatitudeInDegree", "start_lat", "start_latitude"},
	"start_lng":       {"startingLongitudeInDegree", "start_lng", "start_longitude"},
	"polyline":        {"polyline", "summary_polyline"},
}

// pickValue returns the first candidate key present in fields.
func pickValue(fields map[string]interface{}, attr string) (interface{}, bool) {
	for _, key := range fieldCandidates[attr] {
		if v, ok := fields[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func pickString(fields map[string]interface{}, attr string) string {
	v, ok := pickValue(fields, attr)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func pickFloat(fields map[string]interface{}, attr string) (float64, bool) {
	v, ok := pickValue(fields, attr)
	if !ok {
		return 0, false
	}
	return asFloat(v)
}

func pickBool(fields map[string]interface{}, attr string) bool {
	v, ok := pickValue(fields, attr)
	if !ok {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Strava sends trainer as 0/1 in some payloads.
	if f, ok := asFloat(v); ok {
		return f != 0
	}
	return false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// pickStartTime resolves the UTC start from either an epoch-seconds field or
// an ISO-8601 string field.
func pickStartTime(fields map[string]interface{}) time.Time {
	if epoch, ok := pickFloat(fields, "start_epoch"); ok && epoch > 0 {
		return time.Unix(int64(epoch), 0).UTC()
	}
	if s := pickString(fields, "start_date"); s != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

// pickStartCoordinate handles both split lat/lng fields and Strava's
// two-element start_latlng array.
func pickStartCoordinate(fields map[string]interface{}) (*float64, *float64) {
	if pair, ok := fields["start_latlng"].([]interface{}); ok && len(pair) == 2 {
		lat, okLat := asFloat(pair[0])
		lng, okLng := asFloat(pair[1])
		if okLat && okLng {
			return &lat, &lng
		}
	}
	lat, okLat := pickFloat(fields, "start_lat")
	lng, okLng := pickFloat(fields, "start_lng")
	if okLat && okLng {
		return &lat, &lng
	}
	return nil, nil
}

// pickPolyline tolerates both a flat polyline field and Strava's nested map
// object.
func pickPolyline(fields map[string]interface{}) string {
	if s := pickString(fields, "polyline"); s != "" {
		return s
	}
	if m, ok := fields["map"].(map[string]interface{}); ok {
		for _, key := range []string{"summary_polyline", "polyline"} {
			if s, ok := m[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// SynthesizeName composes a fallback activity name from the local start
// time's bucket and the canonical type's display label.
func SynthesizeName(t types.ActivityType, localStart time.Time) string {
	hour := localStart.Hour()
	var timeOfDay string
	switch {
	case hour < 12:
		timeOfDay = "Morning"
	case hour < 17:
		timeOfDay = "Afternoon"
	default:
		timeOfDay = "Evening"
	}
	return fmt.Sprintf("%s %s", timeOfDay, DisplayLabel(t))
}

// Build normalizes one provider payload into a canonical Activity. Pure
// aside from reading the clock for CreatedAt; it tolerates any of the
// provider's field-naming conventions via the candidate lists above.
func Build(userID, externalID string, fields map[string]interface{}, source types.Provider) *types.Activity {
	canonical := CanonicalType(pickString(fields, "type"))

	startUTC := pickStartTime(fields)
	offset := 0
	if f, ok := pickFloat(fields, "utc_offset"); ok {
		offset = int(f)
	}
	startLocal := startUTC.Add(time.Duration(offset) * time.Second)

	distance, _ := pickFloat(fields, "distance")
	moving, _ := pickFloat(fields, "moving_seconds")
	elapsed, _ := pickFloat(fields, "elapsed_seconds")
	if elapsed == 0 {
		elapsed = moving
	}
	elevation, _ := pickFloat(fields, "elevation")
	avgSpeed, _ := pickFloat(fields, "average_speed")
	maxSpeed, _ := pickFloat(fields, "max_speed")
	avgPower, _ := pickFloat(fields, "average_power")
	avgHR, _ := pickFloat(fields, "average_hr")
	maxHR, _ := pickFloat(fields, "max_hr")
	cadence, _ := pickFloat(fields, "cadence")

	// Prefer a native kilojoule figure; otherwise convert calories.
	energy, ok := pickFloat(fields, "kilojoules")
	if !ok {
		if cal, okCal := pickFloat(fields, "calories"); okCal {
			energy = cal * KilojoulesPerKilocalorie
		}
	}

	device := pickString(fields, "device")
	trainer := pickBool(fields, "trainer") || IsIndoorType(canonical) || DeviceSuggestsIndoor(device)

	name := pickString(fields, "name")
	if name == "" {
		name = SynthesizeName(canonical, startLocal)
	}

	lat, lng := pickStartCoordinate(fields)

	return &types.Activity{
		UserID:           userID,
		Provider:         source,
		ExternalID:       externalID,
		Type:             canonical,
		SportType:        pickString(fields, "type"),
		Name:             name,
		StartTime:        startUTC,
		StartTimeLocal:   startLocal,
		UTCOffsetSeconds: offset,
		DistanceMeters:   distance,
		MovingSeconds:    int(moving),
		ElapsedSeconds:   int(elapsed),
		ElevationMeters:  elevation,
		AverageSpeed:     avgSpeed,
		MaxSpeed:         maxSpeed,
		AveragePower:     avgPower,
		AverageHeartRate: avgHR,
		MaxHeartRate:     maxHR,
		AverageCadence:   cadence,
		EnergyKilojoules: energy,
		Trainer:          trainer,
		DeviceName:       device,
		GearExternalID:   pickString(fields, "gear"),
		StartLat:         lat,
		StartLng:         lng,
		Polyline:         pickPolyline(fields),
		ImportSource:     string(source) + ":webhook",
		CreatedAt:        time.Now().UTC(),
	}
}
