// Package ack reports operator triage decisions back to the detection
// backend over REST. Calls retry transient failures; a decision that
// still cannot be delivered is logged and dropped, never blocking the
// notification flow.
package ack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"alert-console/internal/logging"
	"alert-console/internal/utils"
)

const (
	maxAttempts    = 3
	attemptDelay   = time.Second
	requestTimeout = 10 * time.Second
)

// Client talks to the alert endpoints of the detection backend.
type Client struct {
	base   string
	http   *http.Client
	logger *logging.Logger
}

func NewClient(baseURL string, logger *logging.Logger) *Client {
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: requestTimeout},
		logger: logger,
	}
}

// Resolve marks an alert as a confirmed, handled threat.
func (c *Client) Resolve(ctx context.Context, alertID string) error {
	return c.send(ctx, http.MethodPatch, fmt.Sprintf("/alerts/%s/resolve", alertID), nil)
}

// MarkFalsePositive flags an alert as a false alarm.
func (c *Client) MarkFalsePositive(ctx context.Context, alertID string) error {
	return c.send(ctx, http.MethodPatch, fmt.Sprintf("/alerts/%s/false-positive", alertID), nil)
}

// Review records a full review of an alert: final status, free-form
// notes and the reviewing operator.
func (c *Client) Review(ctx context.Context, alertID, status, notes, reviewedBy string) error {
	body := map[string]string{
		"status":      status,
		"notes":       notes,
		"reviewed_by": reviewedBy,
	}
	return c.send(ctx, http.MethodPut, fmt.Sprintf("/alerts/%s/review", alertID), body)
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	return utils.Retry(c.logger, maxAttempts, attemptDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, msg)
		}
		return nil
	})
}
