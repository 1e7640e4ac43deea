// Package geo provides the geospatial primitives used by activity ingestion:
// encoded-polyline decoding, haversine distance, and route proximity checks.
package geo

// LatLng is a WGS84 coordinate pair in degrees.
type LatLng struct {
	Lat float64
	Lng float64
}

// DecodePolyline decodes a provider-encoded polyline (signed varint delta
// encoding, 5-bit groups, zig-zag sign, 1e5 scale) into an ordered point
// sequence. Malformed or empty input yields a nil slice, never a panic.
func DecodePolyline(encoded string) []LatLng {
	if encoded == "" {
		return nil
	}

	var points []LatLng
	var lat, lng int64
	idx := 0

	for idx < len(encoded) {
		dLat, next, ok := decodeVarint(encoded, idx)
		if !ok {
			return nil
		}
		idx = next

		dLng, next, ok := decodeVarint(encoded, idx)
		if !ok {
			return nil
		}
		idx = next

		lat += dLat
		lng += dLng
		points = append(points, LatLng{
			Lat: float64(lat) / 1e5,
			Lng: float64(lng) / 1e5,
		})
	}

	return points
}

// decodeVarint reads one zig-zag-encoded signed value starting at idx.
// The third return is false when the chunk sequence is truncated or a byte
// falls outside the printable encoding range.
func decodeVarint(s string, idx int) (int64, int, bool) {
	var result int64
	var shift uint

	for {
		if idx >= len(s) {
			return 0, idx, false
		}
		c := int64(s[idx]) - 63
		if c < 0 {
			return 0, idx, false
		}
		idx++
		result |= (c & 0x1f) << shift
		shift += 5
		if c < 0x20 {
			break
		}
	}

	// Zig-zag: low bit is the sign.
	if result&1 != 0 {
		return ^(result >> 1), idx, true
	}
	return result >> 1, idx, true
}
