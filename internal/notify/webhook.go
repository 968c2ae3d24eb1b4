// Package notify delivers job completion notices to an external webhook.
// Delivery is best effort: a failed POST is logged and forgotten so a dead
// webhook can never stall or fail a scheduled job.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/l0p7/loanfeed/internal/config"
)

// Sink receives short human-readable notices about finished jobs.
type Sink interface {
	Notify(ctx context.Context, text string)
}

type webhook struct {
	url     string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

// NewWebhook builds a Sink posting to the configured URL. A nil return means
// notifications are disabled; callers must tolerate a nil Sink.
func NewWebhook(cfg config.NotifyConfig, logger *slog.Logger) Sink {
	if cfg.WebhookURL == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &webhook{
		url:     cfg.WebhookURL,
		timeout: cfg.Timeout(),
		client:  &http.Client{},
		logger:  logger.With(slog.String("agent", "notify")),
	}
}

type payload struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func (w *webhook) Notify(ctx context.Context, text string) {
	body, err := json.Marshal(payload{Text: text, Timestamp: time.Now().UTC()})
	if err != nil {
		w.logger.Error("notification payload marshal failed", slog.Any("error", err))
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Error("notification request build failed", slog.Any("error", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("notification delivery failed", slog.Any("error", err))
		return
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		w.logger.Warn("notification rejected by webhook",
			slog.String("status", fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))))
	}
}
