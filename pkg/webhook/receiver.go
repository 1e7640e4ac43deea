package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	shared "github.com/trackstack/server/pkg"
	"github.com/trackstack/server/pkg/config"
	"github.com/trackstack/server/pkg/infrastructure/middleware"
	"github.com/trackstack/server/pkg/infrastructure/storage"
	"github.com/trackstack/server/pkg/types"
)

// MaxInlinePayload is the largest raw item stored on the event document
// itself. Bigger payloads (Garmin activity details can carry full sample
// arrays) are offloaded to the artifact bucket and referenced by URI.
const MaxInlinePayload = 256 * 1024

// MaxBodyBytes caps an inbound request body.
const MaxBodyBytes = 10 << 20

// Receiver terminates provider webhook traffic. The contract with providers
// is strict: acknowledge fast, never bounce an event we have already stored,
// and leave all real work to the async processor.
type Receiver struct {
	db      shared.Database
	store   shared.BlobStore
	limiter shared.Limiter
	cfg     *config.Config
	logger  *slog.Logger

	// enqueue hands a stored event to the async processor. It must not
	// block; a false return means the queue is saturated and the event
	// stays behind for the reprocess sweep.
	enqueue func(ev *types.WebhookEvent) bool
}

func NewReceiver(db shared.Database, store shared.BlobStore, limiter shared.Limiter, cfg *config.Config, logger *slog.Logger, enqueue func(ev *types.WebhookEvent) bool) *Receiver {
	return &Receiver{db: db, store: store, limiter: limiter, cfg: cfg, logger: logger, enqueue: enqueue}
}

// Mount attaches the receiver's routes. Chi answers unsupported methods on
// a registered pattern with 405 on its own.
func (rc *Receiver) Mount(r chi.Router) {
	r.Get("/webhooks/{provider}", rc.HandleVerify)
	r.Post("/webhooks/{provider}", rc.HandleDeliver)
}

// HandleVerify serves the subscription handshake: echo the challenge when
// the shared verify token matches, reject otherwise.
func (rc *Receiver) HandleVerify(w http.ResponseWriter, r *http.Request) {
	provider, pc, ok := rc.providerFor(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown provider"})
		return
	}

	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || pc.VerifyToken == "" || token != pc.VerifyToken {
		rc.logger.Warn("webhook handshake rejected", "provider", provider, "mode", mode)
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "verification failed"})
		return
	}

	rc.logger.Info("webhook handshake verified", "provider", provider)
	writeJSON(w, http.StatusOK, map[string]string{"hub.challenge": challenge})
}

// HandleDeliver ingests one event batch. Order matters: rate limit, then
// signature, then parse, then per-item dedup and store. The 200 goes out
// before any item is processed.
func (rc *Receiver) HandleDeliver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	provider, pc, ok := rc.providerFor(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown provider"})
		return
	}

	allowed, retryAfter, err := rc.limiter.Allow(ctx, clientKey(r))
	if err != nil {
		// A broken limiter backend must not drop provider traffic.
		rc.logger.Error("rate limiter unavailable, allowing request", "error", err)
	} else if !allowed {
		middleware.ObserveRateLimited()
		seconds := int(retryAfter.Round(time.Second).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":      "rate limit exceeded",
			"retryAfter": seconds,
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	if !VerifySignature(pc.WebhookSecret, signatureHeader(r), body) {
		rc.logger.Warn("webhook signature rejected", "provider", provider)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	if !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	middleware.ObserveWebhookEvent(string(provider))

	payload := Parse(provider, body)
	if payload.Kind == KindUnknown || len(payload.Items) == 0 {
		// Unrecognized shapes are acked so the provider stops retrying.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	now := time.Now().UTC()
	pending := make([]*types.WebhookEvent, 0, len(payload.Items))
	for _, item := range payload.Items {
		id := payload.ExtractIdentity(item)
		if id.ExternalActivityID == "" && id.ExternalUserID == "" {
			continue
		}

		ev := &types.WebhookEvent{
			Provider:       provider,
			EventType:      payload.EventType,
			ExternalID:     id.ExternalActivityID,
			ExternalUserID: id.ExternalUserID,
			FileURL:        id.FileURL,
			ReceivedAt:     now,
			EventTime:      now,
		}
		ev.ID = types.DedupKey(provider, ev.EventType, ev.ExternalID)

		raw, _ := json.Marshal(item)
		if len(raw) > MaxInlinePayload {
			object := storage.RawPayloadObject(ev.ID)
			if err := rc.store.Write(ctx, rc.cfg.Firestore.ArtifactBucket, object, raw); err != nil {
				rc.logger.Error("payload offload failed, storing inline", "dedup_key", ev.ID, "error", err)
				ev.RawPayload = raw
			} else {
				ev.PayloadURI = object
			}
		} else {
			ev.RawPayload = raw
		}

		switch err := rc.db.CreateWebhookEvent(ctx, ev); {
		case err == nil:
			pending = append(pending, ev)
		case errors.Is(err, shared.ErrAlreadyExists):
			middleware.ObserveWebhookDuplicate(string(provider))
			if prior := rc.failedPrior(ctx, ev.ID); prior != nil {
				// A redelivery of an event whose last attempt errored is
				// the provider giving us another shot. Take it.
				pending = append(pending, prior)
			} else {
				rc.logger.Info("duplicate webhook event ignored", "dedup_key", ev.ID)
			}
		default:
			rc.logger.Error("webhook event store failed", "dedup_key", ev.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage unavailable"})
			return
		}
	}

	// Ack before any processing so the provider's response SLA is met even
	// when the queue is busy.
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"received": len(pending),
	})

	for _, ev := range pending {
		if !rc.enqueue(ev) {
			rc.logger.Warn("processor queue full, event deferred", "dedup_key", ev.ID)
		}
	}
}

// failedPrior loads the stored event behind a dedup collision and returns it
// only when its previous processing attempt recorded an error.
func (rc *Receiver) failedPrior(ctx context.Context, dedupKey string) *types.WebhookEvent {
	prior, err := rc.db.GetWebhookEvent(ctx, dedupKey)
	if err != nil {
		rc.logger.Error("dedup collision lookup failed", "dedup_key", dedupKey, "error", err)
		return nil
	}
	if prior.Processed && prior.ProcessError != "" {
		return prior
	}
	return nil
}

func (rc *Receiver) providerFor(r *http.Request) (types.Provider, config.ProviderConfig, bool) {
	name := chi.URLParam(r, "provider")
	provider := types.Provider(name)
	switch provider {
	case types.ProviderStrava, types.ProviderGarmin, types.ProviderWahoo:
		return provider, rc.cfg.Provider(provider), true
	default:
		return "", config.ProviderConfig{}, false
	}
}

// clientKey derives the rate-limit key: first hop of x-forwarded-for when a
// proxy set one, else the connection's remote host.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("x-forwarded-for"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// signatureHeader returns whichever signature header the provider sent.
func signatureHeader(r *http.Request) string {
	if sig := r.Header.Get("x-garmin-signature"); sig != "" {
		return sig
	}
	return r.Header.Get("x-webhook-signature")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
