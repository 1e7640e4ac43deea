// Package strava fetches activity details from the Strava REST API.
package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	httputil "github.com/trackstack/server/pkg/infrastructure/http"
)

const DefaultBaseURL = "https://www.strava.com/api/v3"

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{BaseURL: baseURL, HTTP: http.DefaultClient}
}

// GetActivity fetches the detailed activity representation. A 401/403 body
// comes back wrapped as an HTTPError so callers can invalidate the cached
// token for this attempt.
func (c *Client) GetActivity(ctx context.Context, accessToken, activityID string) (map[string]interface{}, error) {
	url := fmt.Sprintf("%s/activities/%s", c.BaseURL, activityID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("strava activity fetch: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.ParseErrorResponse(resp); err != nil {
		return nil, fmt.Errorf("strava activity fetch: %w", err)
	}

	var fields map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode strava activity: %w", err)
	}
	return fields, nil
}
