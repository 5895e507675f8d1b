package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const alertQueueSize = 256

// AlertWebhook posts anomaly alerts to an external HTTP endpoint. Alerts are
// queued without blocking the caller and delivered by a background goroutine;
// when the queue is full the alert is dropped.
type AlertWebhook struct {
	url        string
	authHeader string // "Header: Value", e.g. "Authorization: Bearer xxx"
	client     *http.Client
	logger     *slog.Logger
	events     chan AlertEvent
	retryDelay time.Duration
	wg         sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewAlertWebhook starts a dispatcher for url. A nil logger uses slog.Default.
func NewAlertWebhook(url, authHeader string, logger *slog.Logger) *AlertWebhook {
	if logger == nil {
		logger = slog.Default()
	}
	w := &AlertWebhook{
		url:        url,
		authHeader: authHeader,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		events:     make(chan AlertEvent, alertQueueSize),
		retryDelay: time.Second,
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Notify queues e for delivery. It never blocks and matches AlertFunc.
// Alerts raised after Close are dropped.
func (w *AlertWebhook) Notify(e AlertEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.logger.Warn("alert webhook: closed, dropping alert", "type", e.Type)
		return
	}
	select {
	case w.events <- e:
	default:
		w.logger.Warn("alert webhook: queue full, dropping alert", "type", e.Type)
	}
}

// Close stops accepting alerts and waits for queued ones to be sent. It is
// safe to call more than once.
func (w *AlertWebhook) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.events)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *AlertWebhook) loop() {
	defer w.wg.Done()
	for e := range w.events {
		w.send(e)
	}
}

// send POSTs e with one retry on a transport error or 5xx.
func (w *AlertWebhook) send(e AlertEvent) {
	body, err := json.Marshal(e)
	if err != nil {
		w.logger.Warn("alert webhook: marshal failed", "error", err)
		return
	}

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			time.Sleep(w.retryDelay)
		}

		req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			w.logger.Warn("alert webhook: request creation failed", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Heist-Alert-Webhook/1.0")
		if name, value, ok := strings.Cut(w.authHeader, ":"); ok {
			req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
		}

		resp, err := w.client.Do(req)
		if err != nil {
			w.logger.Warn("alert webhook: request failed", "error", err, "attempt", attempt+1)
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return
		case resp.StatusCode >= 500:
			w.logger.Warn("alert webhook: server error", "status", resp.StatusCode, "attempt", attempt+1)
			continue
		}
		w.logger.Warn("alert webhook: client error", "status", resp.StatusCode)
		return
	}
}
