package callback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client reports terminal job states to the API service when the scheduler
// side cannot. It hits the same markfailed endpoint the sentinel jobs use,
// authenticated with the per-job auth code.
type Client struct {
	serverURL string
	http      *retryablehttp.Client
	logger    *slog.Logger
}

// NewClient creates a callback client against the given API base URL.
func NewClient(serverURL string, logger *slog.Logger) *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.Logger = nil

	return &Client{
		serverURL: serverURL,
		http:      c,
		logger:    logger,
	}
}

// MarkFailed posts the markfailed callback for the given job. Used when
// dispatch itself fails and no sentinel will ever run.
func (c *Client) MarkFailed(ctx context.Context, jobID, authCode string) error {
	url := fmt.Sprintf("%s/api/jobs/%s/markfailed", c.serverURL, jobID)

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", url, nil)
	if err != nil {
		return fmt.Errorf("failed to build markfailed request: %w", err)
	}
	req.Header.Set("Authorization", authCode)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("markfailed request for job %s failed: %w", jobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("markfailed for job %s returned status %d", jobID, resp.StatusCode)
	}

	c.logger.Info("Job marked failed via callback",
		slog.String("job_id", jobID),
	)

	return nil
}
