package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/trackstack/server/pkg/config"
	"github.com/trackstack/server/pkg/testing/mocks"
	"github.com/trackstack/server/pkg/types"
	"github.com/trackstack/server/pkg/webhook"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func testConfig(providerURL string) *config.Config {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"strava": {APIBaseURL: providerURL},
			"garmin": {APIBaseURL: providerURL},
			"wahoo":  {APIBaseURL: providerURL},
		},
	}
	cfg.Firestore.ArtifactBucket = "test-artifacts"
	return cfg
}

func seedStravaIntegration(db *mocks.MemDB) *types.Integration {
	integ := &types.Integration{
		UserID:         "user-1",
		Provider:       types.ProviderStrava,
		ExternalUserID: "999",
		AccessToken:    "fresh-token",
		RefreshToken:   "refresh-token",
		Expiry:         time.Now().Add(time.Hour),
		SyncEnabled:    true,
	}
	db.SeedIntegration(integ)
	return integ
}

// storeEvent mirrors what the receiver does before handing an event to the
// queue: the row exists, unprocessed, keyed by its dedup tuple.
func storeEvent(t *testing.T, db *mocks.MemDB, ev *types.WebhookEvent) {
	t.Helper()
	ev.ID = types.DedupKey(ev.Provider, ev.EventType, ev.ExternalID)
	if err := db.CreateWebhookEvent(context.Background(), ev); err != nil {
		t.Fatalf("storing event: %v", err)
	}
}

func stravaActivityJSON(id int64) map[string]interface{} {
	return map[string]interface{}{
		"id":                   id,
		"name":                 "Morning Ride",
		"type":                 "Ride",
		"sport_type":           "Ride",
		"distance":             25000.0,
		"moving_time":          3600,
		"elapsed_time":         3700,
		"total_elevation_gain": 310.5,
		"start_date":           "2024-05-01T06:00:00Z",
		"utc_offset":           7200.0,
		"average_watts":        185.0,
	}
}

func TestProcessStravaCreateImportsActivity(t *testing.T) {
	db := mocks.NewMemDB()
	seedStravaIntegration(db)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/activities/42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer fresh-token" {
			t.Errorf("Authorization = %q", auth)
		}
		json.NewEncoder(w).Encode(stravaActivityJSON(42))
	}))
	defer srv.Close()

	p := New(db, &mocks.MockBlobStore{}, &mocks.MockPublisher{}, testConfig(srv.URL), testLogger())
	ev := &types.WebhookEvent{
		Provider: types.ProviderStrava, EventType: "create",
		ExternalID: "42", ExternalUserID: "999",
	}
	storeEvent(t, db, ev)

	p.Process(context.Background(), ev)

	stored, err := db.GetWebhookEvent(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("event lookup: %v", err)
	}
	if !stored.Processed || stored.ProcessError != "" {
		t.Fatalf("event = processed:%v error:%q, want clean processing", stored.Processed, stored.ProcessError)
	}
	if stored.ActivityImportedID != "strava:42" {
		t.Errorf("ActivityImportedID = %q, want strava:42", stored.ActivityImportedID)
	}
	if stored.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", stored.UserID)
	}

	act, err := db.GetActivityByExternalKey(context.Background(), "user-1", "strava:42")
	if err != nil {
		t.Fatalf("activity lookup: %v", err)
	}
	if act.Name != "Morning Ride" || act.Type != types.TypeRide {
		t.Errorf("activity = %q/%s", act.Name, act.Type)
	}
	if act.DistanceMeters != 25000 || act.MovingSeconds != 3600 {
		t.Errorf("distance=%v moving=%d", act.DistanceMeters, act.MovingSeconds)
	}
}

func TestProcessIdempotentRedelivery(t *testing.T) {
	db := mocks.NewMemDB()
	seedStravaIntegration(db)

	var fetches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		json.NewEncoder(w).Encode(stravaActivityJSON(42))
	}))
	defer srv.Close()

	p := New(db, &mocks.MockBlobStore{}, &mocks.MockPublisher{}, testConfig(srv.URL), testLogger())
	ev := &types.WebhookEvent{
		Provider: types.ProviderStrava, EventType: "create",
		ExternalID: "42", ExternalUserID: "999",
	}
	storeEvent(t, db, ev)

	p.Process(context.Background(), ev)
	p.Process(context.Background(), ev)

	if n := len(db.Activities["user-1"]); n != 1 {
		t.Fatalf("activities = %d, want exactly 1 after redelivery", n)
	}
	stored, _ := db.GetWebhookEvent(context.Background(), ev.ID)
	if stored.ProcessError != "" {
		t.Errorf("redelivery recorded error %q, want clean skip", stored.ProcessError)
	}
	if fetches != 2 {
		t.Errorf("fetches = %d, want 2 (dedup happens after fetch)", fetches)
	}
}

func TestProcessNoIntegrationRecordsError(t *testing.T) {
	db := mocks.NewMemDB()
	p := New(db, &mocks.MockBlobStore{}, &mocks.MockPublisher{}, testConfig("http://unused.invalid"), testLogger())

	ev := &types.WebhookEvent{
		Provider: types.ProviderStrava, EventType: "create",
		ExternalID: "42", ExternalUserID: "nobody",
	}
	storeEvent(t, db, ev)

	p.Process(context.Background(), ev)

	stored, _ := db.GetWebhookEvent(context.Background(), ev.ID)
	if !stored.Processed {
		t.Fatal("event must be marked processed even on failure")
	}
	if !strings.Contains(stored.ProcessError, "no integration") {
		t.Errorf("ProcessError = %q, want integration-missing error", stored.ProcessError)
	}
	if len(db.Activities) != 0 {
		t.Error("no activity should exist")
	}
}

func TestProcessFetchFailureRecordsError(t *testing.T) {
	db := mocks.NewMemDB()
	seedStravaIntegration(db)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"upstream broken"}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	p := New(db, &mocks.MockBlobStore{}, &mocks.MockPublisher{}, testConfig(srv.URL), testLogger())
	ev := &types.WebhookEvent{
		Provider: types.ProviderStrava, EventType: "create",
		ExternalID: "42", ExternalUserID: "999",
	}
	storeEvent(t, db, ev)

	p.Process(context.Background(), ev)

	stored, _ := db.GetWebhookEvent(context.Background(), ev.ID)
	if !stored.Processed || stored.ProcessError == "" {
		t.Fatalf("event = processed:%v error:%q, want recorded failure", stored.Processed, stored.ProcessError)
	}
}

func TestProcessGarminDetailBuildsFromStoredPayload(t *testing.T) {
	db := mocks.NewMemDB()
	db.SeedIntegration(&types.Integration{
		UserID: "user-1", Provider: types.ProviderGarmin,
		ExternalUserID: "g-user", AccessToken: "tok",
		Expiry: time.Now().Add(time.Hour),
	})

	payload, _ := json.Marshal(map[string]interface{}{
		"userId":     "g-user",
		"activityId": 77,
		"summary": map[string]interface{}{
			"activityType":             "RUNNING",
			"distanceInMeters":         10000.0,
			"durationInSeconds":        3000,
			"startTimeInSeconds":       1714550400,
			"startTimeOffsetInSeconds": 3600,
			"activeKilocalories":       500,
		},
	})

	p := New(db, &mocks.MockBlobStore{}, &mocks.MockPublisher{}, testConfig("http://unused.invalid"), testLogger())
	ev := &types.WebhookEvent{
		Provider: types.ProviderGarmin, EventType: webhook.GarminEventActivityDetail,
		ExternalID: "77", ExternalUserID: "g-user", RawPayload: payload,
	}
	storeEvent(t, db, ev)

	p.Process(context.Background(), ev)

	stored, _ := db.GetWebhookEvent(context.Background(), ev.ID)
	if stored.ProcessError != "" {
		t.Fatalf("ProcessError = %q", stored.ProcessError)
	}
	act, err := db.GetActivityByExternalKey(context.Background(), "user-1", "garmin:77")
	if err != nil {
		t.Fatalf("activity lookup: %v", err)
	}
	if act.Type != types.TypeRun || act.DistanceMeters != 10000 {
		t.Errorf("type=%s distance=%v", act.Type, act.DistanceMeters)
	}
}

func TestProcessGarminDetailReadsOffloadedPayload(t *testing.T) {
	db := mocks.NewMemDB()
	db.SeedIntegration(&types.Integration{
		UserID: "user-1", Provider: types.ProviderGarmin,
		ExternalUserID: "g-user", AccessToken: "tok",
		Expiry: time.Now().Add(time.Hour),
	})

	payload, _ := json.Marshal(map[string]interface{}{
		"userId": "g-user", "activityId": 78,
		"activityType": "CYCLING", "distanceInMeters": 40000.0,
		"durationInSeconds": 5400, "startTimeInSeconds": 1714550400,
	})
	store := &mocks.MockBlobStore{
		ReadFunc: func(ctx context.Context, bucket, object string) ([]byte, error) {
			if bucket != "test-artifacts" || object != "webhook-payloads/key.json" {
				t.Errorf("read %s/%s", bucket, object)
			}
			return payload, nil
		},
	}

	p := New(db, store, &mocks.MockPublisher{}, testConfig("http://unused.invalid"), testLogger())
	ev := &types.WebhookEvent{
		Provider: types.ProviderGarmin, EventType: webhook.GarminEventActivityDetail,
		ExternalID: "78", ExternalUserID: "g-user",
		PayloadURI: "webhook-payloads/key.json",
	}
	storeEvent(t, db, ev)

	p.Process(context.Background(), ev)

	if _, err := db.GetActivityByExternalKey(context.Background(), "user-1", "garmin:78"); err != nil {
		t.Fatalf("activity from offloaded payload: %v", err)
	}
}

func TestProcessGarminCreateTriggersBackfill(t *testing.T) {
	db := mocks.NewMemDB()
	db.SeedIntegration(&types.Integration{
		UserID: "user-1", Provider: types.ProviderGarmin,
		ExternalUserID: "g-user", AccessToken: "tok",
		Expiry: time.Now().Add(time.Hour),
	})

	var backfills int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "backfill") || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		backfills++
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := New(db, &mocks.MockBlobStore{}, &mocks.MockPublisher{}, testConfig(srv.URL), testLogger())
	ev := &types.WebhookEvent{
		Provider: types.ProviderGarmin, EventType: webhook.GarminEventActivityCreate,
		ExternalID: "80", ExternalUserID: "g-user", EventTime: time.Now().UTC(),
	}
	storeEvent(t, db, ev)

	p.Process(context.Background(), ev)

	stored, _ := db.GetWebhookEvent(context.Background(), ev.ID)
	if stored.ProcessError != "" {
		t.Fatalf("ProcessError = %q", stored.ProcessError)
	}
	if backfills != 1 {
		t.Errorf("backfills = %d, want 1", backfills)
	}
	if len(db.Activities) != 0 {
		t.Error("create notification must not itself produce an activity")
	}
}

func TestProcessHealthEventIsAcked(t *testing.T) {
	db := mocks.NewMemDB()
	db.SeedIntegration(&types.Integration{
		UserID: "user-1", Provider: types.ProviderGarmin,
		ExternalUserID: "g-user", AccessToken: "tok",
		Expiry: time.Now().Add(time.Hour),
	})

	p := New(db, &mocks.MockBlobStore{}, &mocks.MockPublisher{}, testConfig("http://unused.invalid"), testLogger())
	ev := &types.WebhookEvent{
		Provider: types.ProviderGarmin, EventType: "HEALTH_DAILIES",
		ExternalID: "d-1", ExternalUserID: "g-user",
	}
	storeEvent(t, db, ev)

	p.Process(context.Background(), ev)

	stored, _ := db.GetWebhookEvent(context.Background(), ev.ID)
	if !stored.Processed || stored.ProcessError != "" {
		t.Fatalf("health event: processed:%v error:%q", stored.Processed, stored.ProcessError)
	}
}

func TestReprocessFailedClearsErrorOnSuccess(t *testing.T) {
	db := mocks.NewMemDB()
	seedStravaIntegration(db)

	var broken = true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if broken {
			http.Error(w, `{"message":"flaky"}`, http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(stravaActivityJSON(42))
	}))
	defer srv.Close()

	p := New(db, &mocks.MockBlobStore{}, &mocks.MockPublisher{}, testConfig(srv.URL), testLogger())
	ev := &types.WebhookEvent{
		Provider: types.ProviderStrava, EventType: "create",
		ExternalID: "42", ExternalUserID: "999",
	}
	storeEvent(t, db, ev)

	p.Process(context.Background(), ev)
	if stored, _ := db.GetWebhookEvent(context.Background(), ev.ID); stored.ProcessError == "" {
		t.Fatal("expected recorded failure before reprocess")
	}

	broken = false
	n, err := p.ReprocessFailed(context.Background(), 10)
	if err != nil {
		t.Fatalf("ReprocessFailed: %v", err)
	}
	if n != 1 {
		t.Fatalf("reprocessed = %d, want 1", n)
	}

	stored, _ := db.GetWebhookEvent(context.Background(), ev.ID)
	if stored.ProcessError != "" {
		t.Errorf("ProcessError = %q, want cleared", stored.ProcessError)
	}
	if _, err := db.GetActivityByExternalKey(context.Background(), "user-1", "strava:42"); err != nil {
		t.Errorf("activity after reprocess: %v", err)
	}
}

func TestSyncWahooImportsNewWorkouts(t *testing.T) {
	db := mocks.NewMemDB()
	integ := &types.Integration{
		UserID: "user-1", Provider: types.ProviderWahoo,
		ExternalUserID: "w-user", AccessToken: "tok",
		Expiry:      time.Now().Add(time.Hour),
		SyncEnabled: true,
		LastSyncAt:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	db.SeedIntegration(integ)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/workouts") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"workouts":[
			{"id":9001,"starts":"2024-05-02T07:00:00Z","name":"Tempo Spin","sport_type":"cycling",
			 "workout_summary":{"distance":30000.0,"duration":5400}},
			{"id":9000,"starts":"2024-04-20T07:00:00Z","name":"Old Ride","sport_type":"cycling",
			 "workout_summary":{"distance":10000.0,"duration":1800}}
		]}`)
	}))
	defer srv.Close()

	p := New(db, &mocks.MockBlobStore{}, &mocks.MockPublisher{}, testConfig(srv.URL), testLogger())
	p.Wahoo.SetBaseClient(srv.Client())

	if err := p.SyncWahoo(context.Background(), integ); err != nil {
		t.Fatalf("SyncWahoo: %v", err)
	}

	act, err := db.GetActivityByExternalKey(context.Background(), "user-1", "wahoo:9001")
	if err != nil {
		t.Fatalf("synced activity: %v", err)
	}
	if act.ImportSource != "wahoo:pull" {
		t.Errorf("ImportSource = %q", act.ImportSource)
	}
	if act.DistanceMeters != 30000 {
		t.Errorf("distance = %v", act.DistanceMeters)
	}
	if _, err := db.GetActivityByExternalKey(context.Background(), "user-1", "wahoo:9000"); err == nil {
		t.Error("workout before last sync must not be imported")
	}

	updated, _ := db.GetIntegration(context.Background(), types.ProviderWahoo, "user-1")
	if updated.SyncStatus != "ok" {
		t.Errorf("SyncStatus = %q, want ok", updated.SyncStatus)
	}
	if !updated.LastSyncAt.After(integ.LastSyncAt) {
		t.Error("LastSyncAt not advanced")
	}
}

func TestSyncWahooRecordsFailure(t *testing.T) {
	db := mocks.NewMemDB()
	integ := &types.Integration{
		UserID: "user-1", Provider: types.ProviderWahoo,
		ExternalUserID: "w-user", AccessToken: "tok",
		Expiry: time.Now().Add(time.Hour),
	}
	db.SeedIntegration(integ)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"maintenance"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := New(db, &mocks.MockBlobStore{}, &mocks.MockPublisher{}, testConfig(srv.URL), testLogger())
	p.Wahoo.SetBaseClient(srv.Client())

	if err := p.SyncWahoo(context.Background(), integ); err == nil {
		t.Fatal("expected sync error")
	}

	updated, _ := db.GetIntegration(context.Background(), types.ProviderWahoo, "user-1")
	if updated.SyncStatus != "error" || updated.SyncError == "" {
		t.Errorf("sync result = %q/%q, want recorded error", updated.SyncStatus, updated.SyncError)
	}
}
