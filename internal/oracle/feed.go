package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/custodia-pay/custodia_pay/internal/numeric"
)

// FeedOracle reads the rate from an external HTTP price feed returning a JSON
// body of the form {"rate": "3934.02"}.
type FeedOracle struct {
	url    string
	client *http.Client
}

// NewFeedOracle constructs an HTTP-backed oracle for the given feed URL.
func NewFeedOracle(url string) (*FeedOracle, error) {
	if url == "" {
		return nil, fmt.Errorf("oracle feed url is required")
	}
	return &FeedOracle{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}, nil
}

type feedPayload struct {
	Rate string `json:"rate"`
}

// Rate fetches and parses the current rate from the feed.
func (o *FeedOracle) Rate(ctx context.Context) (*big.Int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build oracle request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query oracle feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle feed returned status %d", resp.StatusCode)
	}

	var payload feedPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode oracle payload: %w", err)
	}

	rate, err := numeric.ParseRate(payload.Rate)
	if err != nil {
		return nil, fmt.Errorf("oracle feed: %w", err)
	}
	return rate, nil
}
