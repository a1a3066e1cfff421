package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookAttempts = 3
)

type WebhookOptions struct {
	URL         string
	Secret      string
	Client      *http.Client
	Timeout     time.Duration // used when Client is nil
	MaxAttempts int
	// Backoff returns the wait before the next attempt. Defaults to 1s, 2s, 4s...
	Backoff func(attempt int) time.Duration
	Logger  *slog.Logger
}

// WebhookSink POSTs each event as JSON, signing the body with HMAC-SHA256
// when a secret is configured.
type WebhookSink struct {
	url         string
	secret      string
	client      *http.Client
	maxAttempts int
	backoff     func(int) time.Duration
	logger      *slog.Logger
}

func NewWebhookSink(opts WebhookOptions) *WebhookSink {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultWebhookTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = defaultWebhookAttempts
	}
	backoff := opts.Backoff
	if backoff == nil {
		backoff = func(attempt int) time.Duration { return time.Duration(1<<uint(attempt-1)) * time.Second }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookSink{
		url:         opts.URL,
		secret:      opts.Secret,
		client:      client,
		maxAttempts: attempts,
		backoff:     backoff,
		logger:      logger,
	}
}

func (s *WebhookSink) Emit(ctx context.Context, e Event) {
	if err := s.Deliver(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "webhook delivery failed", "event_id", e.ID, "event", e.Name(), "error", err)
	}
}

// Deliver sends e, retrying failed attempts with backoff.
func (s *WebhookSink) Deliver(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	deliveryID := uuid.NewString()

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		lastErr = s.post(ctx, e, deliveryID, body)
		if lastErr == nil {
			return nil
		}
		if attempt < s.maxAttempts {
			timer := time.NewTimer(s.backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("delivery failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *WebhookSink) post(ctx context.Context, e Event, deliveryID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "vcscatalog-webhook/1.0")
	req.Header.Set("X-Catalog-Event", e.Name())
	req.Header.Set("X-Catalog-Delivery", deliveryID)
	if s.secret != "" {
		req.Header.Set("X-Hub-Signature-256", SignBody(s.secret, body))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 32*1024))
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	return nil
}

// SignBody returns the X-Hub-Signature-256 value for body.
func SignBody(secret string, body []byte) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(body)
	return "sha256=" + hex.EncodeToString(m.Sum(nil))
}
