package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/banshee-data/watercolumn/internal/httputil"
	"github.com/banshee-data/watercolumn/internal/watercolumn"
)

// WebhookSink POSTs each snapshot as JSON to a URL.
type WebhookSink struct {
	url    string
	client httputil.HTTPClient
}

// NewWebhookSink returns a sink posting to url. A nil client uses
// http.DefaultClient.
func NewWebhookSink(url string, client httputil.HTTPClient) *WebhookSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSink{url: url, client: client}
}

func (s *WebhookSink) Emit(ctx context.Context, snap *watercolumn.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %d: %w", snap.Seq, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("invalid webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
