// Package fitfile extracts activity summary fields from FIT files delivered
// through provider file-ping callbacks.
package fitfile

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
)

// semicircleDegrees converts FIT semicircle coordinates to degrees.
const semicircleDegrees = 180.0 / 2147483648.0

// Parse decodes a FIT file and returns its summary as a provider-fields map
// in the file-derived naming convention the activity builder understands.
// Multiple sessions are merged by summing distance and duration; the first
// session decides sport and start.
func Parse(data []byte) (map[string]interface{}, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty FIT data")
	}

	fitDec := decoder.New(bytes.NewReader(data))

	fields := make(map[string]interface{})
	var totalDistance, totalDuration float64
	var sessions int

	for fitDec.Next() {
		fitData, err := fitDec.Decode()
		if err != nil {
			return nil, fmt.Errorf("failed to decode FIT file: %w", err)
		}

		for _, msg := range fitData.Messages {
			switch msg.Num {
			case typedef.MesgNumSession:
				s := mesgdef.NewSession(&msg)
				sessions++
				totalDistance += float64(s.TotalDistance) / 100
				totalDuration += float64(s.TotalElapsedTime) / 1000

				if sessions > 1 {
					continue // first session decides the rest
				}

				fields["sport"] = strings.ToLower(s.Sport.String())
				if isIndoorSubSport(s.SubSport) {
					fields["indoor"] = true
				}
				if !s.StartTime.IsZero() {
					fields["start_time_epoch"] = float64(s.StartTime.UTC().Unix())
				}
				if s.TotalAscent != 0xFFFF {
					fields["elevation_gain"] = float64(s.TotalAscent)
				}
				if s.TotalCalories != 0xFFFF {
					fields["kcal"] = float64(s.TotalCalories)
				}
				if s.AvgHeartRate != 0xFF {
					fields["average_heart_rate"] = float64(s.AvgHeartRate)
				}
				if s.MaxHeartRate != 0xFF {
					fields["max_heart_rate"] = float64(s.MaxHeartRate)
				}
				if s.AvgPower != 0xFFFF {
					fields["average_power"] = float64(s.AvgPower)
				}
				if s.AvgSpeed != 0xFFFF {
					fields["average_speed"] = float64(s.AvgSpeed) / 1000
				}
				if s.MaxSpeed != 0xFFFF {
					fields["max_speed"] = float64(s.MaxSpeed) / 1000
				}
				if s.AvgCadence != 0xFF {
					fields["average_cadence"] = float64(s.AvgCadence)
				}
				if lat, lng, ok := startCoordinate(s); ok {
					fields["start_lat"] = lat
					fields["start_lng"] = lng
				}

			case typedef.MesgNumDeviceInfo:
				d := mesgdef.NewDeviceInfo(&msg)
				if _, seen := fields["device"]; !seen && d.ProductName != "" {
					fields["device"] = d.ProductName
				}
			}
		}
	}

	if sessions == 0 {
		return nil, fmt.Errorf("no sessions found in FIT file")
	}

	fields["distance_meters"] = totalDistance
	fields["duration"] = totalDuration
	return fields, nil
}

func isIndoorSubSport(sub typedef.SubSport) bool {
	switch sub {
	case typedef.SubSportIndoorCycling, typedef.SubSportVirtualActivity,
		typedef.SubSportTreadmill, typedef.SubSportIndoorRowing:
		return true
	}
	return false
}

func startCoordinate(s *mesgdef.Session) (float64, float64, bool) {
	if s.StartPositionLat == 0x7FFFFFFF || s.StartPositionLong == 0x7FFFFFFF {
		return 0, 0, false
	}
	if s.StartPositionLat == 0 && s.StartPositionLong == 0 {
		return 0, 0, false
	}
	return float64(s.StartPositionLat) * semicircleDegrees,
		float64(s.StartPositionLong) * semicircleDegrees, true
}
