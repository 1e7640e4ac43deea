package firestore

import (
	"time"

	"github.com/trackstack/server/pkg/types"
)

// Helper to safely get string from map
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Helper to safely get bool from map
func getBool(m map[string]interface{}, key string) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// Helper to safely get time from map (handles time.Time from Firestore)
func getTime(m map[string]interface{}, key string) time.Time {
	if v, ok := m[key]; ok {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

func getTimePtr(m map[string]interface{}, key string) *time.Time {
	if v, ok := m[key]; ok {
		if t, ok := v.(time.Time); ok {
			return &t
		}
	}
	return nil
}

// Helper to safely get float from map (Firestore numbers come back as
// float64 or int64 depending on how they were written)
func getFloat(m map[string]interface{}, key string) float64 {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		}
	}
	return 0
}

func getFloatPtr(m map[string]interface{}, key string) *float64 {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case float64:
			return &n
		case int64:
			f := float64(n)
			return &f
		}
	}
	return nil
}

func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

func getBytes(m map[string]interface{}, key string) []byte {
	if v, ok := m[key]; ok {
		if b, ok := v.([]byte); ok {
			return b
		}
	}
	return nil
}

// --- WebhookEvent Converters ---

func WebhookEventToFirestore(e *types.WebhookEvent) map[string]interface{} {
	m := map[string]interface{}{
		"provider":         string(e.Provider),
		"event_type":       e.EventType,
		"external_id":      e.ExternalID,
		"external_user_id": e.ExternalUserID,
		"event_time":       e.EventTime,
		"processed":        e.Processed,
		"process_error":    e.ProcessError,
		"received_at":      e.ReceivedAt,
	}
	if len(e.RawPayload) > 0 {
		m["raw_payload"] = e.RawPayload
	}
	if e.PayloadURI != "" {
		m["payload_uri"] = e.PayloadURI
	}
	if e.FileURL != "" {
		m["file_url"] = e.FileURL
	}
	if e.ProcessedAt != nil {
		m["processed_at"] = *e.ProcessedAt
	}
	if e.UserID != "" {
		m["user_id"] = e.UserID
	}
	if e.ActivityImportedID != "" {
		m["activity_imported_id"] = e.ActivityImportedID
	}
	return m
}

func FirestoreToWebhookEvent(m map[string]interface{}) *types.WebhookEvent {
	return &types.WebhookEvent{
		Provider:           types.Provider(getString(m, "provider")),
		EventType:          getString(m, "event_type"),
		ExternalID:         getString(m, "external_id"),
		ExternalUserID:     getString(m, "external_user_id"),
		RawPayload:         getBytes(m, "raw_payload"),
		PayloadURI:         getString(m, "payload_uri"),
		FileURL:            getString(m, "file_url"),
		EventTime:          getTime(m, "event_time"),
		Processed:          getBool(m, "processed"),
		ProcessedAt:        getTimePtr(m, "processed_at"),
		ProcessError:       getString(m, "process_error"),
		UserID:             getString(m, "user_id"),
		ActivityImportedID: getString(m, "activity_imported_id"),
		ReceivedAt:         getTime(m, "received_at"),
	}
}

// --- Integration Converters ---

func IntegrationToFirestore(i *types.Integration) map[string]interface{} {
	return map[string]interface{}{
		"user_id":          i.UserID,
		"provider":         string(i.Provider),
		"external_user_id": i.ExternalUserID,
		"access_token":     i.AccessToken,
		"refresh_token":    i.RefreshToken,
		"expires_at":       i.Expiry,
		"sync_enabled":     i.SyncEnabled,
		"last_sync_at":     i.LastSyncAt,
		"sync_status":      i.SyncStatus,
		"sync_error":       i.SyncError,
	}
}

func FirestoreToIntegration(m map[string]interface{}) *types.Integration {
	return &types.Integration{
		UserID:         getString(m, "user_id"),
		Provider:       types.Provider(getString(m, "provider")),
		ExternalUserID: getString(m, "external_user_id"),
		AccessToken:    getString(m, "access_token"),
		RefreshToken:   getString(m, "refresh_token"),
		Expiry:         getTime(m, "expires_at"),
		SyncEnabled:    getBool(m, "sync_enabled"),
		LastSyncAt:     getTime(m, "last_sync_at"),
		SyncStatus:     getString(m, "sync_status"),
		SyncError:      getString(m, "sync_error"),
	}
}

// --- Activity Converters ---

func ActivityToFirestore(a *types.Activity) map[string]interface{} {
	m := map[string]interface{}{
		"user_id":            a.UserID,
		"provider":           string(a.Provider),
		"external_id":        a.ExternalID,
		"type":               string(a.Type),
		"sport_type":         a.SportType,
		"name":               a.Name,
		"start_time":         a.StartTime,
		"start_time_local":   a.StartTimeLocal,
		"utc_offset_seconds": a.UTCOffsetSeconds,
		"distance_meters":    a.DistanceMeters,
		"moving_seconds":     a.MovingSeconds,
		"elapsed_seconds":    a.ElapsedSeconds,
		"elevation_meters":   a.ElevationMeters,
		"average_speed":      a.AverageSpeed,
		"max_speed":          a.MaxSpeed,
		"average_power":      a.AveragePower,
		"average_heart_rate": a.AverageHeartRate,
		"max_heart_rate":     a.MaxHeartRate,
		"average_cadence":    a.AverageCadence,
		"energy_kilojoules":  a.EnergyKilojoules,
		"trainer":            a.Trainer,
		"device_name":        a.DeviceName,
		"import_source":      a.ImportSource,
		"created_at":         a.CreatedAt,
	}
	if a.GearExternalID != "" {
		m["gear_external_id"] = a.GearExternalID
	}
	if a.StartLat != nil {
		m["start_lat"] = *a.StartLat
	}
	if a.StartLng != nil {
		m["start_lng"] = *a.StartLng
	}
	if a.Polyline != "" {
		m["polyline"] = a.Polyline
	}
	if len(a.RawPayload) > 0 {
		m["raw_payload"] = a.RawPayload
	}
	return m
}

func FirestoreToActivity(m map[string]interface{}) *types.Activity {
	return &types.Activity{
		UserID:           getString(m, "user_id"),
		Provider:         types.Provider(getString(m, "provider")),
		ExternalID:       getString(m, "external_id"),
		Type:             types.ActivityType(getString(m, "type")),
		SportType:        getString(m, "sport_type"),
		Name:             getString(m, "name"),
		StartTime:        getTime(m, "start_time"),
		StartTimeLocal:   getTime(m, "start_time_local"),
		UTCOffsetSeconds: getInt(m, "utc_offset_seconds"),
		DistanceMeters:   getFloat(m, "distance_meters"),
		MovingSeconds:    getInt(m, "moving_seconds"),
		ElapsedSeconds:   getInt(m, "elapsed_seconds"),
		ElevationMeters:  getFloat(m, "elevation_meters"),
		AverageSpeed:     getFloat(m, "average_speed"),
		MaxSpeed:         getFloat(m, "max_speed"),
		AveragePower:     getFloat(m, "average_power"),
		AverageHeartRate: getFloat(m, "average_heart_rate"),
		MaxHeartRate:     getFloat(m, "max_heart_rate"),
		AverageCadence:   getFloat(m, "average_cadence"),
		EnergyKilojoules: getFloat(m, "energy_kilojoules"),
		Trainer:          getBool(m, "trainer"),
		DeviceName:       getString(m, "device_name"),
		GearExternalID:   getString(m, "gear_external_id"),
		StartLat:         getFloatPtr(m, "start_lat"),
		StartLng:         getFloatPtr(m, "start_lng"),
		Polyline:         getString(m, "polyline"),
		RawPayload:       getBytes(m, "raw_payload"),
		ImportSource:     getString(m, "import_source"),
		CreatedAt:        getTime(m, "created_at"),
	}
}

// --- GearItem Converters ---

func GearItemToFirestore(g *types.GearItem) map[string]interface{} {
	return map[string]interface{}{
		"user_id":        g.UserID,
		"name":           g.Name,
		"category":       string(g.Category),
		"external_id":    g.ExternalID,
		"active":         g.Active,
		"is_default":     g.IsDefault,
		"total_distance": g.TotalDistance,
	}
}

func FirestoreToGearItem(m map[string]interface{}) *types.GearItem {
	return &types.GearItem{
		UserID:        getString(m, "user_id"),
		Name:          getString(m, "name"),
		Category:      types.GearCategory(getString(m, "category")),
		ExternalID:    getString(m, "external_id"),
		Active:        getBool(m, "active"),
		IsDefault:     getBool(m, "is_default"),
		TotalDistance: getFloat(m, "total_distance"),
	}
}

// --- ActivityGearLink Converters ---

func GearLinkToFirestore(l *types.ActivityGearLink) map[string]interface{} {
	return map[string]interface{}{
		"activity_id":     l.ActivityID,
		"gear_id":         l.GearID,
		"assigned_by":     l.AssignedBy,
		"distance_meters": l.DistanceMeters,
		"assigned_at":     l.AssignedAt,
	}
}

func FirestoreToGearLink(m map[string]interface{}) *types.ActivityGearLink {
	return &types.ActivityGearLink{
		ActivityID:     getString(m, "activity_id"),
		GearID:         getString(m, "gear_id"),
		AssignedBy:     getString(m, "assigned_by"),
		DistanceMeters: getFloat(m, "distance_meters"),
		AssignedAt:     getTime(m, "assigned_at"),
	}
}
