// Package garmin talks to the Garmin wellness API: backfill requests and
// activity-file downloads. Garmin pushes detail payloads directly, so there
// is no per-activity GET.
package garmin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	httputil "github.com/trackstack/server/pkg/infrastructure/http"
)

const DefaultBaseURL = "https://apis.garmin.com"

// Backfill window around the event time. Garmin resends whatever summaries
// fall inside it.
const (
	BackfillLookback  = time.Hour
	BackfillLookahead = 2 * time.Hour
)

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

// RequestBackfill asks Garmin to re-deliver activity summaries around
// eventTime. A 202 means queued; a 409 means an overlapping request is
// already queued. Both count as success.
func (c *Client) RequestBackfill(ctx context.Context, accessToken string, eventTime time.Time) error {
	start := eventTime.Add(-BackfillLookback).Unix()
	end := eventTime.Add(BackfillLookahead).Unix()
	url := fmt.Sprintf(
		"%s/wellness-api/rest/backfill/activities?summaryStartTimeInSeconds=%d&summaryEndTimeInSeconds=%d",
		c.BaseURL, start, end,
	)

	req, err := http.NewRequestWithContext(ctx, "POST", url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("garmin backfill request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusConflict {
		return nil
	}
	if err := httputil.ParseErrorResponse(resp); err != nil {
		return fmt.Errorf("garmin backfill: %w", err)
	}
	return nil
}

// DownloadFile fetches the FIT payload behind a file-ping callback URL.
func (c *Client) DownloadFile(ctx context.Context, accessToken, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fileURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("garmin file download: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.ParseErrorResponse(resp); err != nil {
		return nil, fmt.Errorf("garmin file download: %w", err)
	}
	return io.ReadAll(resp.Body)
}
