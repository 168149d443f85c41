// Package sheets posts final scores to a spreadsheet webhook.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

type Row struct {
	TeamName    string `json:"team_name"`
	Round1Score int    `json:"round1_score"`
	Round2Score int    `json:"round2_score"`
	TotalScore  int    `json:"total_score"`
}

type Client struct {
	URL  string
	HTTP *http.Client
}

// New returns nil when no webhook is configured; a nil client ignores
// submissions.
func New(url string) *Client {
	if url == "" {
		return nil
	}
	return &Client{URL: url, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

func (c *Client) Submit(ctx context.Context, row Row) error {
	if c == nil {
		return nil
	}
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encoding row: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("posting row: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// SubmitAsync is fire-and-forget; failures are only logged.
func (c *Client) SubmitAsync(row Row) {
	if c == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := c.Submit(ctx, row); err != nil {
			log.Printf("[Sheets] Submitting %s: %v\n", row.TeamName, err)
			return
		}
		log.Printf("[Sheets] Submitted %s\n", row.TeamName)
	}()
}
