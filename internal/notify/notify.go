package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Notifier receives update count and download progress events.
type Notifier interface {
	OnUpdatesAvailable(count int)
	OnDownloadProgress(id int64, percent int)
}

// Log reports events through slog.
type Log struct{}

// OnUpdatesAvailable logs the number of available updates.
func (Log) OnUpdatesAvailable(count int) {
	slog.Info("Updates available", "count", count)
}

// OnDownloadProgress logs download progress.
func (Log) OnDownloadProgress(id int64, percent int) {
	slog.Debug("Download progress", "id", id, "percent", percent)
}

// Multi forwards events to every notifier it holds.
type Multi []Notifier

// OnUpdatesAvailable forwards the event.
func (m Multi) OnUpdatesAvailable(count int) {
	for _, n := range m {
		n.OnUpdatesAvailable(count)
	}
}

// OnDownloadProgress forwards the event.
func (m Multi) OnDownloadProgress(id int64, percent int) {
	for _, n := range m {
		n.OnDownloadProgress(id, percent)
	}
}

// Event is the JSON payload posted to webhooks.
type Event struct {
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Count     int       `json:"count,omitempty"`
	ID        int64     `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Webhook posts events to a list of URLs from a background worker.
//
// Only update availability (when non-zero) and completed downloads are sent.
type Webhook struct {
	urls   []string
	client *resty.Client
	queue  chan Event
	wg     sync.WaitGroup

	// mu guards closed and sends on queue.
	mu     sync.Mutex
	closed bool
}

// NewWebhook starts a webhook notifier. It returns nil if no URL is provided.
func NewWebhook(urls []string, timeout time.Duration) *Webhook {
	if len(urls) == 0 {
		return nil
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	w := &Webhook{
		urls:   urls,
		client: resty.New().SetTimeout(timeout),
		queue:  make(chan Event, 100),
	}

	w.wg.Add(1)

	go w.worker()

	return w
}

func (w *Webhook) worker() {
	defer w.wg.Done()

	for event := range w.queue {
		w.send(event)
	}
}

func (w *Webhook) send(event Event) {
	for _, url := range w.urls {
		resp, err := w.client.R().SetContext(context.Background()).SetBody(event).Post(url)
		if err != nil {
			slog.Error("Webhook notification failed", "url", url, "err", err)

			continue
		}

		if resp.IsError() {
			slog.Warn("Webhook notification rejected", "url", url, "status", resp.Status())
		}
	}
}

func (w *Webhook) enqueue(event Event) {
	if w == nil {
		return
	}

	event.Timestamp = time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		slog.Debug("Webhook notifier closed, dropping event", "type", event.Type)

		return
	}

	select {
	case w.queue <- event:
	default:
		slog.Warn("Webhook notification queue full, dropping event", "type", event.Type)
	}
}

// OnUpdatesAvailable queues an "updates" event when there is something to update.
func (w *Webhook) OnUpdatesAvailable(count int) {
	if count == 0 {
		return
	}

	w.enqueue(Event{Type: "updates", Title: "Updates available", Body: "New versions are available for installed apps", Count: count})
}

// OnDownloadProgress queues a "download" event once a download completes.
func (w *Webhook) OnDownloadProgress(id int64, percent int) {
	if percent < 100 {
		return
	}

	w.enqueue(Event{Type: "download", Title: "Download completed", Body: "Update downloaded, installing", ID: id})
}

// Close stops the worker once the queued events are sent. Later events are dropped.
func (w *Webhook) Close() {
	if w == nil {
		return
	}

	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	w.wg.Wait()
}
