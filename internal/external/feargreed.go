package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kjannette/microtrend-backend/internal/httputil"
)

const fearGreedURL = "https://api.alternative.me/fng/?limit=1"

// FearGreedReading is one sample of the crypto Fear & Greed index (0..100).
type FearGreedReading struct {
	Value          int       `json:"value"`
	Classification string    `json:"classification"`
	Timestamp      time.Time `json:"timestamp"`
}

type FearGreedClient struct {
	url        string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewFearGreedClient(url string) *FearGreedClient {
	if url == "" {
		url = fearGreedURL
	}
	return &FearGreedClient{
		url:        url,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 2,
			BaseDelay:   1 * time.Second,
			MaxDelay:    2 * time.Second,
		},
	}
}

// Index returns the latest reading. Failures are returned as errors; there
// is no neutral fallback value.
func (c *FearGreedClient) Index(ctx context.Context) (FearGreedReading, error) {
	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	})
	if err != nil {
		return FearGreedReading{}, fmt.Errorf("fear & greed fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FearGreedReading{}, fmt.Errorf("fear & greed returned status %d", resp.StatusCode)
	}

	var data struct {
		Data []struct {
			Value               string `json:"value"`
			ValueClassification string `json:"value_classification"`
			Timestamp           string `json:"timestamp"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return FearGreedReading{}, fmt.Errorf("decode: %w", err)
	}
	if len(data.Data) == 0 {
		return FearGreedReading{}, fmt.Errorf("fear & greed response has no data")
	}

	d := data.Data[0]
	v, err := strconv.Atoi(strings.TrimSpace(d.Value))
	if err != nil || v < 0 || v > 100 {
		return FearGreedReading{}, fmt.Errorf("invalid index value %q", d.Value)
	}
	r := FearGreedReading{Value: v, Classification: d.ValueClassification}
	if sec, err := strconv.ParseInt(d.Timestamp, 10, 64); err == nil {
		r.Timestamp = time.Unix(sec, 0).UTC()
	}
	return r, nil
}
