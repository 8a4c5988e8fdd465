// Package webhook delivers signed change notifications to external
// endpoints, such as a messaging gateway that confirms reservations.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdash/clinic/internal/domain/clinic"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event"
	TimestampHeader = "X-Webhook-Timestamp"

	statusSuccess = "success"
	statusFailed  = "failed"

	maxLoggedAttempts = 100
)

// Endpoint is a configured delivery target. Events holds subscription
// patterns: "*", an exact type ("reservations.created"), "reservations.*"
// or "*.deleted".
type Endpoint struct {
	URL    string   `json:"url"`
	Secret string   `json:"-"`
	Events []string `json:"events"`
}

// Event is the JSON body posted to endpoints.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resource_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventFromChange maps a committed clinic change to a webhook event.
func EventFromChange(ch clinic.Change) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       ch.Topic + "." + ch.Action,
		Resource:   ch.Topic,
		ResourceID: ch.ID.String(),
		Timestamp:  ch.At,
	}
}

// Attempt records one POST to one endpoint.
type Attempt struct {
	ID         string        `json:"id"`
	URL        string        `json:"url"`
	EventID    string        `json:"event_id"`
	EventType  string        `json:"event_type"`
	Attempt    int           `json:"attempt"`
	StatusCode int           `json:"status_code"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	CreatedAt  time.Time     `json:"created_at"`
}

// SignPayload returns the hex-encoded HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature, with or without the "sha256="
// prefix, matches payload.
func VerifySignature(payload []byte, secret, signature string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(signature))
}

// ValidateURL checks that rawURL is an absolute http or https URL.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", rawURL)
	}
	return nil
}

func eventMatches(pattern, eventType string) bool {
	switch {
	case pattern == "*" || pattern == eventType:
		return true
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(eventType, pattern[1:])
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	}
	return false
}

func (ep Endpoint) matches(eventType string) bool {
	for _, pat := range ep.Events {
		if eventMatches(pat, eventType) {
			return true
		}
	}
	return false
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithRetryDelays sets the waits between attempts; the number of delays is
// the number of retries.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(d *Dispatcher) { d.delays = delays }
}

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) { d.queue = make(chan Event, n) }
}

// Dispatcher queues change events and posts them to matching endpoints from
// a single background worker.
type Dispatcher struct {
	endpoints []Endpoint
	client    *http.Client
	delays    []time.Duration
	queue     chan Event
	logger    zerolog.Logger

	mu       sync.Mutex
	attempts []Attempt
}

func NewDispatcher(endpoints []Endpoint, logger zerolog.Logger, opts ...Option) (*Dispatcher, error) {
	for _, ep := range endpoints {
		if err := ValidateURL(ep.URL); err != nil {
			return nil, err
		}
	}
	d := &Dispatcher{
		endpoints: endpoints,
		client:    &http.Client{Timeout: 10 * time.Second},
		delays:    []time.Duration{time.Second, 5 * time.Second, 30 * time.Second},
		queue:     make(chan Event, 256),
		logger:    logger,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Endpoints returns the configured endpoints.
func (d *Dispatcher) Endpoints() []Endpoint {
	return append([]Endpoint(nil), d.endpoints...)
}

// Notify implements clinic.Notifier. Events are dropped when the queue is full.
func (d *Dispatcher) Notify(_ context.Context, ch clinic.Change) {
	if len(d.endpoints) == 0 {
		return
	}
	ev := EventFromChange(ch)
	select {
	case d.queue <- ev:
	default:
		d.logger.Warn().Str("event_type", ev.Type).Msg("webhook queue full, event dropped")
	}
}

// Run delivers queued events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			d.Deliver(ctx, ev)
		}
	}
}

// Deliver posts ev to every matching endpoint, retrying failures, and
// returns the final attempt per endpoint.
func (d *Dispatcher) Deliver(ctx context.Context, ev Event) []Attempt {
	payload, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error().Err(err).Msg("marshal webhook event")
		return nil
	}
	var results []Attempt
	for _, ep := range d.endpoints {
		if !ep.matches(ev.Type) {
			continue
		}
		results = append(results, d.deliverWithRetry(ctx, ep, ev, payload))
	}
	return results
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, ep Endpoint, ev Event, payload []byte) Attempt {
	var a Attempt
	for n := 1; ; n++ {
		a = d.send(ctx, ep, ev, payload)
		a.Attempt = n
		d.record(a)
		if a.Status == statusSuccess || !retryable(a.StatusCode) || n > len(d.delays) {
			break
		}
		select {
		case <-ctx.Done():
			return a
		case <-time.After(d.delays[n-1]):
		}
	}
	if a.Status != statusSuccess {
		d.logger.Warn().
			Str("url", ep.URL).
			Str("event_type", ev.Type).
			Int("attempts", a.Attempt).
			Str("error", a.Error).
			Msg("webhook delivery failed")
	}
	return a
}

// retryable reports whether a response status is worth another attempt.
// Zero means the request never got a response.
func retryable(code int) bool {
	return code == 0 || code == http.StatusTooManyRequests || code >= 500
}

func (d *Dispatcher) send(ctx context.Context, ep Endpoint, ev Event, payload []byte) Attempt {
	now := time.Now()
	a := Attempt{
		ID:        uuid.NewString(),
		URL:       ep.URL,
		EventID:   ev.ID,
		EventType: ev.Type,
		CreatedAt: now,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		a.Status, a.Error = statusFailed, err.Error()
		return a
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, "sha256="+SignPayload(payload, ep.Secret))
	req.Header.Set(EventHeader, ev.Type)
	req.Header.Set(TimestampHeader, now.UTC().Format(time.RFC3339))

	resp, err := d.client.Do(req)
	a.Duration = time.Since(now)
	if err != nil {
		a.Status, a.Error = statusFailed, err.Error()
		return a
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	a.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		a.Status = statusSuccess
	} else {
		a.Status = statusFailed
		a.Error = fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
	}
	return a
}

func (d *Dispatcher) record(a Attempt) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts = append(d.attempts, a)
	if len(d.attempts) > maxLoggedAttempts {
		d.attempts = d.attempts[len(d.attempts)-maxLoggedAttempts:]
	}
}

// Attempts returns the most recent delivery attempts, newest first.
func (d *Dispatcher) Attempts() []Attempt {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Attempt, len(d.attempts))
	for i, a := range d.attempts {
		out[len(out)-1-i] = a
	}
	return out
}
