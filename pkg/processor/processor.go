// Package processor turns acknowledged webhook events into canonical
// activities: it resolves the integration, fetches or decodes the activity
// payload, deduplicates, inserts, and accrues gear mileage.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	shared "github.com/trackstack/server/pkg"
	"github.com/trackstack/server/pkg/config"
	"github.com/trackstack/server/pkg/dedupe"
	activitydomain "github.com/trackstack/server/pkg/domain/activity"
	"github.com/trackstack/server/pkg/domain/fitfile"
	"github.com/trackstack/server/pkg/gear"
	"github.com/trackstack/server/pkg/infrastructure/middleware"
	infrapubsub "github.com/trackstack/server/pkg/infrastructure/pubsub"
	"github.com/trackstack/server/pkg/location"
	"github.com/trackstack/server/pkg/providers/garmin"
	"github.com/trackstack/server/pkg/providers/strava"
	"github.com/trackstack/server/pkg/providers/wahoo"
	"github.com/trackstack/server/pkg/tokens"
	"github.com/trackstack/server/pkg/types"
	"github.com/trackstack/server/pkg/webhook"
)

// Processor owns the async half of the ingest pipeline.
type Processor struct {
	DB     shared.Database
	Store  shared.BlobStore
	Pub    shared.Publisher
	Tokens   *tokens.Manager
	Dedupe   *dedupe.Resolver
	Gear     *gear.Engine
	Location *location.Resolver

	Strava *strava.Client
	Garmin *garmin.Client
	Wahoo  *wahoo.Client

	Cfg    *config.Config
	Logger *slog.Logger
}

func New(db shared.Database, store shared.BlobStore, pub shared.Publisher, cfg *config.Config, logger *slog.Logger) *Processor {
	providers := make(map[string]config.ProviderConfig, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		providers[name] = pc
	}
	return &Processor{
		DB:     db,
		Store:  store,
		Pub:    pub,
		Tokens:   tokens.NewManager(db, providers),
		Dedupe:   dedupe.NewResolver(db),
		Gear:     gear.NewEngine(db),
		Location: location.NewResolver(db),
		Strava: strava.NewClient(cfg.Provider(types.ProviderStrava).APIBaseURL),
		Garmin: garmin.NewClient(cfg.Provider(types.ProviderGarmin).APIBaseURL),
		Wahoo:  wahoo.NewClient(cfg.Provider(types.ProviderWahoo).APIBaseURL),
		Cfg:    cfg,
		Logger: logger,
	}
}

// Process runs one event through the pipeline and records the outcome on
// the WebhookEvent row. It never returns an error to its caller: failures
// land in process_error, where the reprocessing path can find them, because
// surfacing them to the provider would only trigger a redelivery the dedup
// gate discards.
func (p *Processor) Process(ctx context.Context, ev *types.WebhookEvent) {
	activityID, err := p.processEvent(ctx, ev)

	now := time.Now().UTC()
	update := map[string]interface{}{
		"processed":    true,
		"processed_at": now,
	}
	if err != nil {
		update["process_error"] = err.Error()
		middleware.ObserveProcessingError(string(ev.Provider))
		p.Logger.Error("event processing failed",
			"dedup_key", ev.ID, "provider", ev.Provider, "error", err)
	} else {
		// Clear any error left by a previous failed attempt.
		update["process_error"] = ""
		if activityID != "" {
			update["activity_imported_id"] = activityID
		}
	}
	if ev.UserID != "" {
		update["user_id"] = ev.UserID
	}

	if uerr := p.DB.UpdateWebhookEvent(ctx, ev.ID, update); uerr != nil {
		p.Logger.Error("failed to record processing outcome", "dedup_key", ev.ID, "error", uerr)
	}
}

func (p *Processor) processEvent(ctx context.Context, ev *types.WebhookEvent) (string, error) {
	integ, err := p.DB.FindIntegrationByExternalUser(ctx, ev.Provider, ev.ExternalUserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", fmt.Errorf("no integration for %s user %s", ev.Provider, ev.ExternalUserID)
		}
		return "", fmt.Errorf("resolve integration: %w", err)
	}
	ev.UserID = integ.UserID

	accessToken, err := p.Tokens.EnsureValidAccessToken(ctx, integ)
	if err != nil {
		return "", fmt.Errorf("token: %w", err)
	}

	fields, err := p.resolveFields(ctx, ev, accessToken)
	if err != nil {
		return "", err
	}
	if fields == nil {
		// Acknowledged without producing an activity (backfill trigger,
		// health data, deletes).
		return "", nil
	}

	act := activitydomain.Build(integ.UserID, ev.ExternalID, fields, ev.Provider)
	return p.importActivity(ctx, act)
}

// resolveFields produces the provider-fields map for an event, or nil when
// the event kind yields no activity.
func (p *Processor) resolveFields(ctx context.Context, ev *types.WebhookEvent, accessToken string) (map[string]interface{}, error) {
	switch ev.Provider {
	case types.ProviderStrava:
		if ev.EventType != "create" && ev.EventType != "update" {
			return nil, nil
		}
		fields, err := p.Strava.GetActivity(ctx, accessToken, ev.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("fetch activity: %w", err)
		}
		return fields, nil

	case types.ProviderGarmin:
		switch ev.EventType {
		case webhook.GarminEventActivityDetail:
			payload, err := p.rawPayload(ctx, ev)
			if err != nil {
				return nil, err
			}
			var fields map[string]interface{}
			if err := json.Unmarshal(payload, &fields); err != nil {
				return nil, fmt.Errorf("decode detail payload: %w", err)
			}
			// Detail items nest the summary one level down.
			if summary, ok := fields["summary"].(map[string]interface{}); ok {
				for k, v := range summary {
					if _, exists := fields[k]; !exists {
						fields[k] = v
					}
				}
			}
			return fields, nil

		case webhook.GarminEventActivityFile:
			if ev.FileURL == "" {
				return nil, fmt.Errorf("file ping without callback URL")
			}
			data, err := p.Garmin.DownloadFile(ctx, accessToken, ev.FileURL)
			if err != nil {
				return nil, err
			}
			return fitfile.Parse(data)

		case webhook.GarminEventActivityCreate:
			// A bare create notification carries no metrics. Ask Garmin to
			// re-deliver the window around it as detail summaries.
			if err := p.Garmin.RequestBackfill(ctx, accessToken, ev.EventTime); err != nil {
				return nil, fmt.Errorf("backfill: %w", err)
			}
			return nil, nil

		default:
			// Health pushes are acknowledged but out of the activity path.
			return nil, nil
		}
	}
	return nil, fmt.Errorf("no processing path for provider %s", ev.Provider)
}

// rawPayload returns the stored item payload, reading it back from blob
// storage when it was offloaded at receipt.
func (p *Processor) rawPayload(ctx context.Context, ev *types.WebhookEvent) ([]byte, error) {
	if len(ev.RawPayload) > 0 {
		return ev.RawPayload, nil
	}
	if ev.PayloadURI == "" {
		return nil, fmt.Errorf("event has no payload")
	}
	data, err := p.Store.Read(ctx, p.Cfg.Firestore.ArtifactBucket, ev.PayloadURI)
	if err != nil {
		return nil, fmt.Errorf("read offloaded payload: %w", err)
	}
	return data, nil
}

// importActivity runs dedup, insert, gear accrual, and the synced event.
// Gear and publish failures are logged, not fatal: the activity row is the
// durable outcome.
func (p *Processor) importActivity(ctx context.Context, act *types.Activity) (string, error) {
	skip, reason, err := p.Dedupe.Check(ctx, act)
	if err != nil {
		return "", fmt.Errorf("dedup: %w", err)
	}
	if skip {
		middleware.ObserveActivitySkipped(reason)
		p.Logger.Info("activity skipped", "reason", reason,
			"provider", act.Provider, "external_id", act.ExternalID)
		return "", nil
	}

	if err := p.DB.InsertActivity(ctx, act); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// Raced another import of the same activity.
			middleware.ObserveActivitySkipped(dedupe.ReasonExactMatch)
			return "", nil
		}
		return "", fmt.Errorf("insert activity: %w", err)
	}
	act.ID = act.ExternalKey()
	middleware.ObserveActivityImported(string(act.Provider))

	if _, err := p.Gear.Assign(ctx, act); err != nil {
		p.Logger.Error("gear assignment failed", "activity", act.ID, "error", err)
	}

	p.publishSynced(ctx, act)
	return act.ID, nil
}

func (p *Processor) publishSynced(ctx context.Context, act *types.Activity) {
	data := map[string]interface{}{
		"user_id":     act.UserID,
		"activity_id": act.ID,
		"provider":    string(act.Provider),
		"type":        string(act.Type),
	}
	// Downstream consumers (weather lookup, route features) want a
	// coordinate even for indoor sessions, so fall back to the user's most
	// recent outdoor start point.
	if lat, lng, ok, err := p.Location.StartCoordinate(ctx, act); err != nil {
		p.Logger.Warn("location fallback failed", "activity", act.ID, "error", err)
	} else if ok {
		data["start_lat"] = lat
		data["start_lng"] = lng
	}

	e, err := infrapubsub.NewCloudEvent(infrapubsub.SourceProcessor, infrapubsub.EventTypeActivitySynced, data)
	if err != nil {
		p.Logger.Error("build synced event", "error", err)
		return
	}
	if _, err := p.Pub.PublishCloudEvent(ctx, shared.TopicActivitySynced, e); err != nil {
		p.Logger.Error("publish synced event", "activity", act.ID, "error", err)
	}
}

// ReprocessFailed re-runs events whose previous attempt recorded an error.
// Used by the redelivery path and the maintenance endpoint.
func (p *Processor) ReprocessFailed(ctx context.Context, limit int) (int, error) {
	events, err := p.DB.ListFailedWebhookEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list failed events: %w", err)
	}
	for _, ev := range events {
		p.Process(ctx, ev)
	}
	return len(events), nil
}

// SyncWahoo pulls workouts for one integration since its last sync and
// imports them through the same dedup/insert/gear path as webhook events.
func (p *Processor) SyncWahoo(ctx context.Context, integ *types.Integration) error {
	accessToken, err := p.Tokens.EnsureValidAccessToken(ctx, integ)
	if err != nil {
		p.recordSyncResult(ctx, integ, err)
		return err
	}

	workouts, fields, err := p.Wahoo.ListWorkoutsSince(ctx, accessToken, integ.LastSyncAt)
	if err != nil {
		p.recordSyncResult(ctx, integ, err)
		return err
	}

	for i, w := range workouts {
		act := activitydomain.Build(integ.UserID, fmt.Sprintf("%d", w.ID), fields[i], types.ProviderWahoo)
		act.ImportSource = "wahoo:pull"
		if act.SportType == "" {
			act.SportType = w.SportType
			act.Type = activitydomain.CanonicalType(w.SportType)
		}
		if _, err := p.importActivity(ctx, act); err != nil {
			p.recordSyncResult(ctx, integ, err)
			return err
		}
	}

	p.recordSyncResult(ctx, integ, nil)
	return nil
}

func (p *Processor) recordSyncResult(ctx context.Context, integ *types.Integration, syncErr error) {
	update := map[string]interface{}{
		"last_sync_at": time.Now().UTC(),
	}
	if syncErr != nil {
		update["sync_status"] = "error"
		update["sync_error"] = syncErr.Error()
	} else {
		update["sync_status"] = "ok"
		update["sync_error"] = ""
	}
	if err := p.DB.UpdateIntegrationSync(ctx, integ.Provider, integ.UserID, update); err != nil {
		p.Logger.Error("record sync result", "integration", integ.Key(), "error", err)
	}
}
