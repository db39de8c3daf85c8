// Package notify pushes task-transition events to connected websocket
// subscribers. Delivery is best-effort: a slow or dead subscriber loses
// events, it never blocks the publishing pipeline.
package notify

import (
	"context"
	"log/slog"

	"github.com/crosscast-io/crosscast/internal/publish"
	"github.com/crosscast-io/crosscast/pkg/models"
)

// eventBuffer bounds how many undelivered events the hub itself holds before
// dropping. Per-client buffering is separate (see sendBuffer).
const eventBuffer = 256

// Hub fans task events out to registered clients. Each event reaches only
// clients subscribed as the job's owner.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	events     chan models.TaskEvent
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan models.TaskEvent, eventBuffer),
	}
}

// Run owns the client set; all membership changes and deliveries go through
// this single goroutine so no locking is needed. Blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*Client]bool)

	for {
		select {
		case <-ctx.Done():
			for c := range clients {
				c.close()
			}
			return
		case c := <-h.register:
			clients[c] = true
			slog.Debug("websocket client registered", "user_id", c.userID, "clients", len(clients))
		case c := <-h.unregister:
			if clients[c] {
				delete(clients, c)
				c.close()
			}
			slog.Debug("websocket client unregistered", "user_id", c.userID, "clients", len(clients))
		case evt := <-h.events:
			for c := range clients {
				if c.userID != evt.UserID {
					continue
				}
				select {
				case c.send <- evt:
				default:
					// Slow subscriber: drop the event rather than queue
					// unboundedly. Pollers always see the truth in the store.
					slog.Debug("dropping event for slow subscriber",
						"user_id", c.userID, "job_id", evt.JobID)
				}
			}
		}
	}
}

// TaskTransition queues an event for delivery. Never blocks; when the hub is
// saturated the event is dropped.
func (h *Hub) TaskTransition(evt models.TaskEvent) {
	select {
	case h.events <- evt:
	default:
		slog.Warn("notification hub saturated, dropping event",
			"job_id", evt.JobID, "platform", evt.Platform)
	}
}

// Register adds a client and starts its read and write pumps.
func (h *Hub) Register(c *Client) {
	h.register <- c
	go c.writePump()
	go c.readPump()
}

var _ publish.Notifier = (*Hub)(nil)
