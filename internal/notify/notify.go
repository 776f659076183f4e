// Package notify posts task-completion events to an optional webhook
// (spec.md §4.2's `notify` key / §9): a buffered channel drained by one
// worker goroutine so a slow or unreachable endpoint never blocks task
// execution. Delivery failures are swallowed entirely — a notification
// must never fail the pipeline.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
)

// Event is one notification payload: a task finished, failed, or a run
// was submitted to a cluster.
type Event struct {
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Endpoint is a parsed `notify:` URL, of the form http://host:port/token
// (spec.md's notify format).
type Endpoint struct {
	URL string
}

var endpointRe = regexp.MustCompile(`^https?://[^/]+/.+$`)

// ParseEndpoint validates a configured notify URL.
func ParseEndpoint(raw string) (*Endpoint, bool) {
	if raw == "" || !endpointRe.MatchString(raw) {
		return nil, false
	}
	if _, err := url.Parse(raw); err != nil {
		return nil, false
	}
	return &Endpoint{URL: raw}, true
}

// Notifier queues events and posts them to an Endpoint in the
// background, on a single worker goroutine.
type Notifier struct {
	endpoint *Endpoint
	client   *retryablehttp.Client
	events   chan Event
	done     chan struct{}
}

// New starts a notifier for endpoint. If endpoint is nil, Notify is a
// no-op — the common case of a pipeline run with no `notify:` key.
func New(endpoint *Endpoint, logger hclog.Logger) *Notifier {
	n := &Notifier{
		endpoint: endpoint,
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
	}
	if endpoint == nil {
		close(n.done)
		return n
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil // delivery failures are swallowed, never surfaced
	n.client = client
	go n.drain(logger)
	return n
}

// Notify enqueues an event for best-effort delivery. It never blocks
// task execution: a full queue drops the event.
func (n *Notifier) Notify(e Event) {
	if n.endpoint == nil {
		return
	}
	select {
	case n.events <- e:
	default:
	}
}

// Close stops accepting events and waits for the queue to drain.
func (n *Notifier) Close() {
	if n.endpoint == nil {
		return
	}
	close(n.events)
	<-n.done
}

func (n *Notifier) drain(logger hclog.Logger) {
	defer close(n.done)
	for e := range n.events {
		n.post(e, logger)
	}
}

func (n *Notifier) post(e Event, logger hclog.Logger) {
	body, err := json.Marshal(e)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", n.endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		if logger != nil {
			logger.Debug("notify: delivery failed", "url", n.endpoint.URL, "err", err)
		}
		return
	}
	resp.Body.Close()
}
