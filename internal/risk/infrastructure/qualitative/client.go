// Package qualitative calls the external LLM scoring endpoint with a hard
// timeout. Timeouts and failures map to ErrQualitativeUnavailable so the
// scorer can degrade instead of blocking event processing.
package qualitative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stdin/venezuelawatch-sub000/internal/risk/domain"
)

// Client implements domain.QualitativeScorer over HTTP JSON.
type Client struct {
	httpClient *http.Client
	endpoint   string
	timeout    time.Duration
}

// NewClient creates a Client for endpoint with the given hard timeout.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		timeout:    timeout,
	}
}

type scoreRequest struct {
	Text string `json:"text"`
}

type scoreResponse struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// GetQualitativeScore posts the event text and returns the bounded score
// with its free-text explanation.
func (c *Client) GetQualitativeScore(ctx context.Context, eventText string) (float64, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(scoreRequest{Text: eventText})
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", domain.ErrQualitativeUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", domain.ErrQualitativeUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", domain.ErrQualitativeUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("%w: status %d", domain.ErrQualitativeUnavailable, resp.StatusCode)
	}

	var decoded scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, "", fmt.Errorf("%w: %v", domain.ErrQualitativeUnavailable, err)
	}
	return decoded.Score, decoded.Explanation, nil
}
