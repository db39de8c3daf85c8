package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	mw "github.com/crosscast-io/crosscast/internal/api/middleware"
	"github.com/crosscast-io/crosscast/internal/api/response"
	"github.com/crosscast-io/crosscast/internal/notify"
)

// AggregateStatusReader supplies the subscribe-time snapshot for a job.
type AggregateStatusReader interface {
	AggregateStatus(ctx context.Context, jobID uuid.UUID) (string, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers cannot set the Authorization header on websocket requests from
	// arbitrary origins; auth middleware already gates this endpoint.
	CheckOrigin: func(*http.Request) bool { return true },
}

// statusSnapshot is the first frame sent when the subscriber names a job, so
// a client reconnecting mid-job does not wait for the next transition.
type statusSnapshot struct {
	Type   string `json:"type"`
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// NewWSHandler returns an http.HandlerFunc for GET /api/v1/ws. The connection
// receives task events for every job owned by the authenticated user.
func NewWSHandler(hub *notify.Hub, statuses AggregateStatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var snapshot *statusSnapshot
		if raw := r.URL.Query().Get("job_id"); raw != "" {
			jobID, err := uuid.Parse(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "job_id must be a valid UUID", nil)
				return
			}
			status, err := statuses.AggregateStatus(r.Context(), jobID)
			if err == nil {
				snapshot = &statusSnapshot{Type: "status_snapshot", JobID: jobID.String(), Status: status}
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error response.
			slog.Warn("websocket upgrade failed", "user_id", userID, "error", err)
			return
		}

		// Safe to write directly: the client's write pump has not started yet.
		if snapshot != nil {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(snapshot); err != nil {
				conn.Close()
				return
			}
		}

		hub.Register(notify.NewClient(hub, conn, userID))
	}
}
