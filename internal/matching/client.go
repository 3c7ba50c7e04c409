// Package matching is the client of the external matching service that scores
// a submitted profile against the catalogue of funding programs.
package matching

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/intake/internal/profile"
)

const (
	defaultTimeout  = 30 * time.Second
	maxRetries      = 3
	initialBackoff  = 500 * time.Millisecond
	maxResponseSize = 10 << 20 // 10MB
	submitPath      = "/matching"
)

// Client talks to the matching service.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	backoff    time.Duration
	logger     *slog.Logger
}

// NewClient creates a client for the service rooted at baseURL. A zero timeout
// uses the 30 second default. apiKey may be empty.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		backoff:    initialBackoff,
		logger:     slog.Default(),
	}
}

// Submit posts the profile and decodes the matching result. HTTP 429 is
// retried with exponential backoff; every other failure is returned at once
// as a *SubmissionError.
func (c *Client) Submit(ctx context.Context, p *profile.Profile) (*Result, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, &SubmissionError{ProfileID: p.ID, Reason: "encoding profile", Err: err}
	}

	var lastErr error
	for attempt := range maxRetries {
		res, err := c.doSubmit(ctx, body)
		if err == nil {
			res.ProfileID = p.ID
			c.logger.Info("matching completed",
				"profile_id", p.ID,
				"total", res.Total,
				"eligible", res.Eligible,
			)
			return res, nil
		}

		if !isRateLimit(err) {
			return nil, withProfile(err, p.ID)
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(c.backoff) * math.Pow(2, float64(attempt)))
			c.logger.Debug("matching rate limited, retrying", "profile_id", p.ID, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, &SubmissionError{ProfileID: p.ID, Reason: ReasonRequest, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}
	}

	return nil, &SubmissionError{
		ProfileID:  p.ID,
		StatusCode: http.StatusTooManyRequests,
		Reason:     ReasonRateLimit,
		Err:        fmt.Errorf("giving up after %d attempts: %w", maxRetries, lastErr),
	}
}

func withProfile(err error, profileID string) error {
	var se *SubmissionError
	if errors.As(err, &se) {
		se.ProfileID = profileID
		return se
	}
	return &SubmissionError{ProfileID: profileID, Reason: ReasonRequest, Err: err}
}

func (c *Client) doSubmit(ctx context.Context, body []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+submitPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &SubmissionError{Reason: ReasonRequest, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &rateLimitError{status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &SubmissionError{StatusCode: resp.StatusCode, Reason: ReasonRequest, Err: fmt.Errorf("reading body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &SubmissionError{
			StatusCode: resp.StatusCode,
			Reason:     ReasonStatus,
			Err:        errors.New(truncate(strings.TrimSpace(string(data)), 200)),
		}
	}

	res, err := decodeResult(data)
	if err != nil {
		return nil, &SubmissionError{StatusCode: resp.StatusCode, Reason: ReasonMalformed, Err: err}
	}
	return res, nil
}

// decodeResult requires a "resultats" array; counts default to zero.
func decodeResult(data []byte) (*Result, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	raw, ok := keys["resultats"]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, errors.New(`missing "resultats"`)
	}

	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	for i, e := range res.Entries {
		if e.ProgramID == "" {
			return nil, fmt.Errorf("result %d has no aide_id", i)
		}
		if e.Score < 0 || e.Score > 100 {
			return nil, fmt.Errorf("result %d (%s): score %v out of range", i, e.ProgramID, e.Score)
		}
	}
	return &res, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
