package notify

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
	"sync"
	"time"

	"github.com/roach88/loyalty/internal/ledger"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Loyalty-Signature"

// EventIDHeader carries the change event id so receivers can de-duplicate
// redeliveries.
const EventIDHeader = "X-Loyalty-Event-Id"

// Delivery records one webhook delivery attempt.
type Delivery struct {
	EventID    string    `json:"eventId"`
	URL        string    `json:"url"`
	StatusCode int       `json:"statusCode"`
	Error      string    `json:"error,omitempty"`
	Attempt    int       `json:"attempt"`
	Timestamp  time.Time `json:"timestamp"`
}

// DefaultMaxHistory is how many delivery attempts a Webhook keeps.
const DefaultMaxHistory = 100

// WebhookConfig configures a Webhook.
type WebhookConfig struct {
	URL        string
	Secret     string
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
	Logger     *slog.Logger
	Client     *http.Client

	// MaxHistory bounds the delivery attempts kept for Deliveries. Zero
	// means DefaultMaxHistory; negative keeps none.
	MaxHistory int
}

// Webhook POSTs each event as JSON to a URL, retrying non-2xx responses.
type Webhook struct {
	url        string
	secret     string
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
	logger     *slog.Logger

	// history is a ring of the most recent attempts; next is the slot the
	// following attempt overwrites once the ring is full.
	mu         sync.Mutex
	history    []Delivery
	next       int
	maxHistory int
}

// NewWebhook creates a webhook sink. Zero config values take defaults:
// 3 attempts, 1s between attempts, 10s request timeout, the last
// DefaultMaxHistory attempts kept.
func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.MaxHistory == 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	return &Webhook{
		url:        cfg.URL,
		secret:     cfg.Secret,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client:     cfg.Client,
		logger:     cfg.Logger,
		maxHistory: max(cfg.MaxHistory, 0),
	}
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Notify delivers ev, retrying up to the configured number of attempts.
// Returns the last failure if no attempt succeeded.
func (w *Webhook) Notify(ctx context.Context, ev ledger.ChangeEvent) error {
	if w.url == "" {
		w.logger.Debug("no webhook URL configured, skipping delivery", "event_id", ev.ID)
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		delivery, err := w.post(ctx, ev.ID, payload, attempt)
		w.record(delivery)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < w.maxRetries {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook %s: %w", ev.ID, ctx.Err())
			case <-time.After(w.retryDelay):
			}
		}
	}
	return fmt.Errorf("webhook %s: %w", ev.ID, lastErr)
}

func (w *Webhook) post(ctx context.Context, eventID string, payload []byte, attempt int) (Delivery, error) {
	delivery := Delivery{
		EventID:   eventID,
		URL:       w.url,
		Attempt:   attempt,
		Timestamp: time.Now().UTC(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		delivery.Error = err.Error()
		return delivery, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventIDHeader, eventID)
	if w.secret != "" {
		req.Header.Set(SignatureHeader, Sign(payload, w.secret))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		delivery.Error = err.Error()
		return delivery, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	delivery.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("delivery failed: status %d", resp.StatusCode)
		delivery.Error = err.Error()
		return delivery, err
	}
	return delivery, nil
}

func (w *Webhook) record(d Delivery) {
	if w.maxHistory == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.history) < w.maxHistory {
		w.history = append(w.history, d)
		return
	}
	w.history[w.next] = d
	w.next = (w.next + 1) % w.maxHistory
}

// Deliveries returns the most recent attempts, oldest first.
func (w *Webhook) Deliveries() []Delivery {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Delivery, 0, len(w.history))
	out = append(out, w.history[w.next:]...)
	return append(out, w.history[:w.next]...)
}
