// Package wahoo pulls workouts from the Wahoo cloud API. Wahoo has no push
// webhook for workout summaries, so the sync loop polls on an interval.
package wahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/trackstack/server/pkg/config"
	httputil "github.com/trackstack/server/pkg/infrastructure/http"
)

const DefaultBaseURL = "https://api.wahooligan.com/v1"

type Client struct {
	BaseURL string
	// base is used for the oauth2 transport's underlying client in tests.
	base *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{BaseURL: baseURL}
}

// OAuthConfig builds the x/oauth2 endpoint description for Wahoo from the
// provider's configured credentials.
func OAuthConfig(pc config.ProviderConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     pc.ClientID,
		ClientSecret: pc.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://api.wahooligan.com/oauth/authorize",
			TokenURL: pc.TokenURL,
		},
		Scopes: []string{"workouts_read", "user_read"},
	}
}

// SetBaseClient installs the HTTP client wrapped by the oauth2 transport.
func (c *Client) SetBaseClient(hc *http.Client) {
	c.base = hc
}

func (c *Client) httpClient(ctx context.Context, accessToken string) *http.Client {
	if c.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
}

// Workout is the subset of Wahoo's workout shape the pipeline consumes.
// Summary fields stay as a raw map so the activity builder's candidate-key
// matching can work over them unchanged.
type Workout struct {
	ID        int64                  `json:"id"`
	Starts    time.Time              `json:"starts"`
	Name      string                 `json:"name"`
	SportType string                 `json:"sport_type"`
	Summary   map[string]interface{} `json:"workout_summary"`
}

type workoutsPage struct {
	Workouts []json.RawMessage `json:"workouts"`
}

// ListWorkoutsSince returns workouts starting after since, newest page
// first, as (typed header, raw fields) pairs.
func (c *Client) ListWorkoutsSince(ctx context.Context, accessToken string, since time.Time) ([]Workout, []map[string]interface{}, error) {
	url := fmt.Sprintf("%s/workouts?page=1&per_page=50", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.httpClient(ctx, accessToken).Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("wahoo workouts fetch: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.ParseErrorResponse(resp); err != nil {
		return nil, nil, fmt.Errorf("wahoo workouts fetch: %w", err)
	}

	var page workoutsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, nil, fmt.Errorf("decode wahoo workouts: %w", err)
	}

	var workouts []Workout
	var fields []map[string]interface{}
	for _, raw := range page.Workouts {
		var w Workout
		if err := json.Unmarshal(raw, &w); err != nil {
			continue // skip malformed entries, keep the rest of the page
		}
		if !w.Starts.After(since) {
			continue
		}
		var flat map[string]interface{}
		if err := json.Unmarshal(raw, &flat); err != nil {
			continue
		}
		// Surface summary metrics at the top level for the builder.
		for k, v := range w.Summary {
			if _, exists := flat[k]; !exists {
				flat[k] = v
			}
		}
		workouts = append(workouts, w)
		fields = append(fields, flat)
	}
	return workouts, fields, nil
}
