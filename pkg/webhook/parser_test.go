package webhook

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackstack/server/pkg/types"
)

func TestParse_StravaActivityCreate(t *testing.T) {
	body := []byte(`{
		"object_type": "activity",
		"aspect_type": "create",
		"object_id": 13049554297,
		"owner_id": 9234567,
		"subscription_id": 288001,
		"event_time": 1735689600
	}`)

	p := Parse(types.ProviderStrava, body)

	assert.Equal(t, KindActivityCreatePush, p.Kind)
	assert.True(t, p.IsPush)
	require.Len(t, p.Items, 1)
	assert.Equal(t, "create", p.EventType)

	id := p.ExtractIdentity(p.Items[0])
	assert.Equal(t, "13049554297", id.ExternalActivityID)
	assert.Equal(t, "9234567", id.ExternalUserID)
}

func TestParse_StravaAthleteEventIsUnknown(t *testing.T) {
	body := []byte(`{"object_type":"athlete","aspect_type":"update","object_id":1,"owner_id":1}`)

	p := Parse(types.ProviderStrava, body)

	assert.Equal(t, KindUnknown, p.Kind)
	assert.Empty(t, p.Items)
}

func TestParse_GarminFullBatch(t *testing.T) {
	// Returning only the first item of a batch is a correctness bug; all N
	// must come back.
	const n = 4
	body := `{"activities":[`
	for i := 0; i < n; i++ {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"activityId":%d,"userId":"garmin-user-%d"}`, 1000+i, i)
	}
	body += `]}`

	p := Parse(types.ProviderGarmin, []byte(body))

	assert.Equal(t, KindActivityCreatePush, p.Kind)
	assert.Len(t, p.Items, n)
	assert.Equal(t, "CONNECT_ACTIVITY", p.EventType)
}

func TestParse_GarminKinds(t *testing.T) {
	cases := []struct {
		key       string
		kind      EventKind
		eventType string
	}{
		{"activityDetails", KindActivityDetailPush, "ACTIVITY_DETAIL"},
		{"activityFiles", KindActivityFilePing, "ACTIVITY_FILE_DATA"},
		{"activities", KindActivityCreatePush, "CONNECT_ACTIVITY"},
		{"dailies", KindHealthData, "HEALTH_DAILIES"},
		{"sleeps", KindHealthData, "HEALTH_SLEEPS"},
	}

	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			body := []byte(fmt.Sprintf(`{"%s":[{"summaryId":"x-1","userId":"u1"}]}`, tc.key))
			p := Parse(types.ProviderGarmin, body)
			assert.Equal(t, tc.kind, p.Kind)
			assert.Equal(t, tc.eventType, p.EventType)
			assert.Len(t, p.Items, 1)
		})
	}
}

func TestParse_UnknownShapesDoNotError(t *testing.T) {
	for _, body := range []string{"", "null", "[]", "not json", `{"surprise":true}`, `{}`} {
		p := Parse(types.ProviderGarmin, []byte(body))
		assert.Equal(t, KindUnknown, p.Kind, "body %q", body)
		assert.Empty(t, p.Items)
	}
}

func TestExtractIdentity_ItemLevelWins(t *testing.T) {
	body := []byte(`{
		"userId": "top-user",
		"activityFiles": [
			{"activityId": 42, "userId": "item-user", "callbackURL": "https://apis.garmin.com/file/42"},
			{"activityId": 43}
		]
	}`)

	p := Parse(types.ProviderGarmin, body)
	require.Len(t, p.Items, 2)

	first := p.ExtractIdentity(p.Items[0])
	assert.Equal(t, "item-user", first.ExternalUserID)
	assert.Equal(t, "42", first.ExternalActivityID)
	assert.Equal(t, "https://apis.garmin.com/file/42", first.FileURL)

	// Second item has no user; the batch-level field fills in.
	second := p.ExtractIdentity(p.Items[1])
	assert.Equal(t, "top-user", second.ExternalUserID)
	assert.Equal(t, "43", second.ExternalActivityID)
	assert.Empty(t, second.FileURL)
}
