// Package push delivers notification batches to an Expo-style push endpoint.
// Delivery is best effort: failures are logged, never retried here.
package push

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// MaxBatchSize is the sink's documented per-call message limit.
const MaxBatchSize = 100

// Message is one push delivery: a device token plus notification copy.
type Message struct {
	To    string                 `json:"to"`
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

type Client struct {
	url    string
	client *resty.Client
	log    *zap.SugaredLogger
}

func NewClient(url string, log *zap.SugaredLogger) *Client {
	client := resty.New()
	client.SetTimeout(30 * time.Second)

	return &Client{
		url:    url,
		client: client,
		log:    log.With("service", "push"),
	}
}

// SendBatch posts messages in chunks of at most MaxBatchSize. A failed chunk
// is logged and the remaining chunks are still attempted; only transport
// errors are reported back.
func (c *Client) SendBatch(ctx context.Context, messages []Message) error {
	var firstErr error
	for start := 0; start < len(messages); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(messages) {
			end = len(messages)
		}
		chunk := messages[start:end]

		resp, err := c.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(chunk).
			Post(c.url)
		if err != nil {
			c.log.Warnw("push delivery failed", "count", len(chunk), "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("push delivery failed: %w", err)
			}
			continue
		}
		if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
			c.log.Warnw("push sink rejected batch", "count", len(chunk), "status", resp.StatusCode())
			continue
		}
	}
	return firstErr
}
