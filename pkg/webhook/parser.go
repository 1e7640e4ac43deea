package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/trackstack/server/pkg/types"
)

// EventKind is the closed set of payload shapes the parser recognizes. All
// downstream dispatch happens on this tag, never on raw provider strings.
type EventKind string

const (
	KindActivityCreatePush EventKind = "activity-create-push"
	KindActivityDetailPush EventKind = "activity-detail-push"
	KindActivityFilePing   EventKind = "activity-file-ping"
	KindHealthData         EventKind = "health-data"
	KindUnknown            EventKind = "unknown"
)

// Garmin batch event types, recorded on stored events and dispatched on by
// the processor.
const (
	GarminEventActivityDetail = "ACTIVITY_DETAIL"
	GarminEventActivityFile   = "ACTIVITY_FILE_DATA"
	GarminEventActivityCreate = "CONNECT_ACTIVITY"
)

// garminHealthKeys are the batch keys Garmin uses for non-activity pushes.
// The subtype is recorded as the item's event type.
var garminHealthKeys = []string{
	"dailies", "epochs", "sleeps", "bodyComps", "stressDetails",
	"userMetrics", "pulseOx", "respiration",
}

// Item is one event of a batch, kept as the raw decoded object so the
// extractor and the activity builder can apply their own key fallbacks.
type Item map[string]interface{}

// Payload is the normalized result of parsing one inbound request body.
type Payload struct {
	Kind  EventKind
	Items []Item // the FULL batch; a payload of N events yields N items
	// IsPush distinguishes push deliveries from pull/export bodies fed
	// through the same parser.
	IsPush bool
	// top holds batch-level fields for extractor fallback.
	top Item
	// EventType is the provider-assigned aspect/subtype shared by the batch,
	// when the shape carries one at the top level.
	EventType string
}

// Identity is what the receiver needs from an item to store and route it.
type Identity struct {
	ExternalUserID     string
	ExternalActivityID string
	FileURL            string
}

// Parse normalizes a raw provider body. It never returns an error: payload
// shapes it does not recognize come back as KindUnknown with no items, and
// the caller acks those with 200 so the provider stops retrying.
func Parse(provider types.Provider, body []byte) Payload {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil || len(raw) == 0 {
		return Payload{Kind: KindUnknown, top: Item{}}
	}

	switch provider {
	case types.ProviderStrava:
		return parseStrava(raw)
	case types.ProviderGarmin:
		return parseGarmin(raw)
	default:
		return Payload{Kind: KindUnknown, top: raw}
	}
}

// parseStrava handles the single-event push shape:
// {object_type, aspect_type, object_id, owner_id, ...}.
func parseStrava(raw map[string]interface{}) Payload {
	objectType, _ := raw["object_type"].(string)
	aspectType, _ := raw["aspect_type"].(string)

	if objectType != "activity" || aspectType == "" {
		// Athlete deauthorization and unrecognized objects are acked, not
		// processed.
		return Payload{Kind: KindUnknown, top: raw}
	}

	return Payload{
		Kind:      KindActivityCreatePush,
		Items:     []Item{raw},
		IsPush:    true,
		top:       raw,
		EventType: aspectType,
	}
}

// parseGarmin handles the batched shapes: one top-level array key determines
// the kind, and every array element is an item.
func parseGarmin(raw map[string]interface{}) Payload {
	if items, ok := itemsAt(raw, "activityDetails"); ok {
		return Payload{Kind: KindActivityDetailPush, Items: items, IsPush: true, top: raw, EventType: GarminEventActivityDetail}
	}
	if items, ok := itemsAt(raw, "activityFiles"); ok {
		return Payload{Kind: KindActivityFilePing, Items: items, IsPush: true, top: raw, EventType: GarminEventActivityFile}
	}
	if items, ok := itemsAt(raw, "activities"); ok {
		return Payload{Kind: KindActivityCreatePush, Items: items, IsPush: true, top: raw, EventType: GarminEventActivityCreate}
	}
	for _, key := range garminHealthKeys {
		if items, ok := itemsAt(raw, key); ok {
			return Payload{Kind: KindHealthData, Items: items, IsPush: true, top: raw, EventType: "HEALTH_" + strings.ToUpper(key)}
		}
	}
	return Payload{Kind: KindUnknown, top: raw}
}

func itemsAt(raw map[string]interface{}, key string) ([]Item, bool) {
	arr, ok := raw[key].([]interface{})
	if !ok {
		return nil, false
	}
	items := make([]Item, 0, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]interface{}); ok {
			items = append(items, Item(m))
		}
	}
	return items, true
}

// ExtractIdentity resolves the external user id, activity id, and file URL
// for one item. Item-level fields win; batch-level fields are the fallback.
func (p Payload) ExtractIdentity(item Item) Identity {
	return Identity{
		ExternalUserID: firstString(item, p.top,
			"userId", "owner_id", "userAccessToken", "ownerId"),
		ExternalActivityID: firstString(item, p.top,
			"activityId", "object_id", "summaryId", "activity_id"),
		FileURL: firstString(item, p.top,
			"callbackURL", "fileUrl", "callback_url"),
	}
}

// firstString walks the candidate keys over the item first, then the
// batch-level object, stringifying numeric ids.
func firstString(item, top Item, keys ...string) string {
	for _, scope := range []Item{item, top} {
		if scope == nil {
			continue
		}
		for _, key := range keys {
			if v, ok := scope[key]; ok {
				if s := stringify(v); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; provider ids are integral.
		return fmt.Sprintf("%.0f", t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
