package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/smn/consular/scheduler"
)

// IndexHandler serves the liveness endpoint: GET / -> 200 [].
func (b *Bridge) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	}
}

// EventsHandler serves POST /events: it ingests a scheduler status-update
// event, dispatches it, and writes a JSON response. Content-Type of the
// response is always application/json.
func (b *Bridge) EventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		status, response := b.HandleEvent(r.Context(), body)
		writeJSON(w, status, response)
	}
}

// HandleEvent decodes and dispatches a single event body, returning the
// HTTP status and JSON-serializable response the caller should write. It
// is split out from EventsHandler so the dispatch logic can be tested
// without an HTTP round-trip.
func (b *Bridge) HandleEvent(ctx context.Context, raw []byte) (int, interface{}) {
	var envelope struct {
		EventType string `json:"eventType"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return http.StatusBadRequest, map[string]string{"error": "could not parse event body"}
	}

	if envelope.EventType != "status_update_event" {
		b.Logger.Info("not handling event type", "event-type", envelope.EventType)
		return http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Event type %s not supported.", envelope.EventType)}
	}

	var event scheduler.StatusUpdateEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return http.StatusInternalServerError, map[string]string{"error": err.Error()}
	}

	if err := b.handleStatusUpdate(ctx, event); err != nil {
		b.Logger.Error("error handling status update event", "task-id", event.TaskID, "task-status", event.TaskStatus, "err", err)
		return http.StatusInternalServerError, map[string]string{"error": err.Error()}
	}

	return http.StatusOK, map[string]string{"status": "ok"}
}

// handleStatusUpdate dispatches on taskStatus. TASK_RUNNING deliberately
// re-syncs the whole app rather than registering just the one task so that
// late-discovered labels and concurrently-started sibling tasks converge
// too; the four terminal states only deregister the one task-id.
func (b *Bridge) handleStatusUpdate(ctx context.Context, event scheduler.StatusUpdateEvent) error {
	switch event.TaskStatus {
	case scheduler.TaskStaging, scheduler.TaskStarting:
		return nil

	case scheduler.TaskRunning:
		app, err := b.Scheduler.GetApp(ctx, event.AppID)
		if err != nil {
			return err
		}
		return b.syncApp(ctx, app)

	case scheduler.TaskFinished, scheduler.TaskFailed, scheduler.TaskKilled, scheduler.TaskLost:
		return b.Catalog.DeregisterService(ctx, b.agentEndpoint(event.Host), event.TaskID)

	default:
		b.Logger.Warn("unrecognized task status, ignoring", "task-status", event.TaskStatus, "task-id", event.TaskID)
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
