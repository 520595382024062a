package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebhookNotifier posts alerts as JSON to a single URL.
type WebhookNotifier struct {
	URL     string
	Service string
	HTTP    *http.Client
}

type webhookPayload struct {
	Service string `json:"service"`
	Alert
}

func (w WebhookNotifier) Notify(ctx context.Context, alert Alert) error {
	url := strings.TrimSpace(w.URL)
	if url == "" {
		return errors.New("webhook url missing")
	}
	b, err := json.Marshal(webhookPayload{Service: w.Service, Alert: alert})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bb, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("webhook http %d: %s", resp.StatusCode, strings.TrimSpace(string(bb)))
	}
	return nil
}

func (w WebhookNotifier) httpClient() *http.Client {
	if w.HTTP != nil {
		return w.HTTP
	}
	return &http.Client{Timeout: 5 * time.Second}
}
