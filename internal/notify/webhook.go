package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BookingCreated is the payload posted to the automation webhook after a booking.
type BookingCreated struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Date    string `json:"date"`
	Time    string `json:"time"`
	Service string `json:"service"`
}

// Observer receives delivery outcomes; metrics.Metrics satisfies it.
type Observer interface {
	ObserveNotification(status string)
}

// Webhook posts booking events to a fixed URL. Delivery is best effort: Dispatch never
// blocks the caller and failures are only logged.
type Webhook struct {
	url      string
	client   *http.Client
	logger   *zap.Logger
	observer Observer

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func NewWebhook(url string, timeout time.Duration, logger *zap.Logger, observer Observer) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Webhook{
		url:      url,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
		observer: observer,
	}
}

// Send delivers one event synchronously.
func (w *Webhook) Send(ctx context.Context, ev BookingCreated) error {
	if ev.Phone == "" {
		ev.Phone = "N/A"
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook responded %d", resp.StatusCode)
	}
	return nil
}

// Dispatch sends ev in the background, detached from the request context. Events arriving
// after Close are dropped.
func (w *Webhook) Dispatch(ev BookingCreated) {
	if w == nil || w.url == "" {
		return
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("webhook closed, dropping booking event", zap.String("date", ev.Date), zap.String("time", ev.Time))
		return
	}
	w.inflight.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.inflight.Done()
		err := w.Send(context.Background(), ev)
		status := "sent"
		if err != nil {
			status = "failed"
			w.logger.Warn("booking webhook failed", zap.String("date", ev.Date), zap.String("time", ev.Time), zap.Error(err))
		}
		if w.observer != nil {
			w.observer.ObserveNotification(status)
		}
	}()
}

// Close stops accepting events and waits for deliveries in flight, or for ctx.
func (w *Webhook) Close(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notify: close: %w", ctx.Err())
	}
}
