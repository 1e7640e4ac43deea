// Package types holds the persisted record shapes shared across the ingest
// pipeline. These are plain structs; Firestore field names live in the
// storage converters, not in struct tags, so the records stay usable by
// in-memory test stores.
package types

import (
	"fmt"
	"time"
)

// Provider identifies an upstream activity source.
type Provider string

const (
	ProviderStrava Provider = "strava"
	ProviderGarmin Provider = "garmin"
	ProviderWahoo  Provider = "wahoo"
)

// WebhookEvent is one inbound notification batch item. The document ID is the
// dedup key, so a redelivery of the same tuple collides on Create.
type WebhookEvent struct {
	ID                 string
	Provider           Provider
	EventType          string // create/update/delete, CONNECT_ACTIVITY, ACTIVITY_DETAIL, ...
	ExternalID         string // provider-assigned object id
	ExternalUserID     string
	RawPayload         []byte
	PayloadURI         string // blob offload for oversized payloads
	FileURL            string // activity-file callback URL, when the provider sent one
	EventTime          time.Time
	Processed          bool
	ProcessedAt        *time.Time
	ProcessError       string
	UserID             string // resolved internal user
	ActivityImportedID string
	ReceivedAt         time.Time
}

// DedupKey builds the idempotency key for an event tuple.
// Format mirrors the composite-id convention used throughout the store:
// "{provider}:{event_type}:{external_id}".
func DedupKey(provider Provider, eventType, externalID string) string {
	return fmt.Sprintf("%s:%s:%s", provider, eventType, externalID)
}

// Integration is one connected provider account for a user.
type Integration struct {
	UserID         string
	Provider       Provider
	ExternalUserID string // provider-side user/athlete id
	AccessToken    string
	RefreshToken   string
	Expiry         time.Time
	SyncEnabled    bool
	LastSyncAt     time.Time
	SyncStatus     string
	SyncError      string
}

// Key returns the integration document id: "{provider}:{user_id}".
func (i *Integration) Key() string {
	return fmt.Sprintf("%s:%s", i.Provider, i.UserID)
}

// TokenUpdate carries the result of a token refresh. The store only applies
// it when Expiry is strictly later than the stored expiry, which keeps the
// stored integration monotonic under concurrent refreshes.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// ActivityType is the canonical, provider-agnostic activity classification.
type ActivityType string

const (
	TypeRide             ActivityType = "Ride"
	TypeRun              ActivityType = "Run"
	TypeVirtualRide      ActivityType = "VirtualRide"
	TypeVirtualRun       ActivityType = "VirtualRun"
	TypeTrailRun         ActivityType = "TrailRun"
	TypeMountainBikeRide ActivityType = "MountainBikeRide"
	TypeGravelRide       ActivityType = "GravelRide"
	TypeEBikeRide        ActivityType = "EBikeRide"
	TypeIndoorRide       ActivityType = "IndoorRide"
	TypeTreadmillRun     ActivityType = "TreadmillRun"
	TypeWalk             ActivityType = "Walk"
	TypeHike             ActivityType = "Hike"
	TypeSwim             ActivityType = "Swim"
	TypeRowing           ActivityType = "Rowing"
	TypeElliptical       ActivityType = "Elliptical"
	TypeWeightTraining   ActivityType = "WeightTraining"
	TypeYoga             ActivityType = "Yoga"
	TypeWorkout          ActivityType = "Workout" // generic fallback, never dropped
)

// GearCategory groups gear by the sport it serves.
type GearCategory string

const (
	GearCycling GearCategory = "cycling"
	GearRunning GearCategory = "running"
)

// Activity is the canonical record one real-world workout normalizes into.
type Activity struct {
	ID               string
	UserID           string
	Provider         Provider
	ExternalID       string // provider-native activity id
	Type             ActivityType
	SportType        string // provider's native string, retained for display
	Name             string
	StartTime        time.Time // UTC
	StartTimeLocal   time.Time
	UTCOffsetSeconds int
	DistanceMeters   float64
	MovingSeconds    int
	ElapsedSeconds   int
	ElevationMeters  float64
	AverageSpeed     float64 // m/s
	MaxSpeed         float64
	AveragePower     float64
	AverageHeartRate float64
	MaxHeartRate     float64
	AverageCadence   float64
	EnergyKilojoules float64
	Trainer          bool
	DeviceName       string
	GearExternalID   string // provider-supplied gear id (Strava only)
	StartLat         *float64
	StartLng         *float64
	Polyline         string
	RawPayload       []byte // retained for audit/reprocessing
	ImportSource     string
	CreatedAt        time.Time
}

// ExternalKey returns the exact-dedup document id: "{provider}:{external_id}".
func (a *Activity) ExternalKey() string {
	return fmt.Sprintf("%s:%s", a.Provider, a.ExternalID)
}

// GearItem is a bike or pair of shoes accumulating logged distance.
type GearItem struct {
	ID            string
	UserID        string
	Name          string
	Category      GearCategory
	ExternalID    string // provider-side gear id, if linked
	Active        bool
	IsDefault     bool
	TotalDistance float64 // meters, must equal the sum of linked activities
}

// ActivityGearLink maps an Activity to at most one GearItem.
type ActivityGearLink struct {
	ActivityID     string
	GearID         string
	AssignedBy     string // "strava" | "auto" | "manual"
	DistanceMeters float64
	AssignedAt     time.Time
}
