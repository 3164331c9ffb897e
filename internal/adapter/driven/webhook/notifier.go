// Package webhook implements the Notifier port by posting the notification as
// JSON to a configured endpoint.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/ericfisherdev/barsync/internal/domain/model"
	"github.com/ericfisherdev/barsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.Notifier = (*Notifier)(nil)
	_ driven.Notifier = LogNotifier{}
)

// Notifier posts notifications to a single webhook URL.
type Notifier struct {
	url        string
	httpClient *http.Client
}

// New creates a Notifier for url with the given request timeout.
func New(url string, timeout time.Duration) *Notifier {
	return NewWithHTTPClient(url, &http.Client{Timeout: timeout})
}

// NewWithHTTPClient creates a Notifier with a custom http.Client. Intended for tests.
func NewWithHTTPClient(url string, httpClient *http.Client) *Notifier {
	return &Notifier{url: url, httpClient: httpClient}
}

// Send posts n as JSON. Any non-2xx response is an error.
func (n *Notifier) Send(ctx context.Context, msg model.Notification) error {
	if msg.Fields == nil {
		msg.Fields = []model.NotificationField{}
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier writes notifications to the structured log. It is used when no
// webhook URL is configured.
type LogNotifier struct{}

// Send logs the notification at info level and never fails.
func (LogNotifier) Send(_ context.Context, msg model.Notification) error {
	attrs := []any{"title", msg.Title, "bar_id", msg.BarID, "webhook_type", msg.WebhookType}
	for _, f := range msg.Fields {
		attrs = append(attrs, f.Name, f.Value)
	}
	slog.Info(msg.Description, attrs...)
	return nil
}
