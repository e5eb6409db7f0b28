package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/parcheck/internal/engine"
	"github.com/seantiz/parcheck/internal/model"
	"github.com/seantiz/parcheck/internal/store"
)

// handleStreamEvents streams task events of a run as SSE. A finished run
// replays its stored task records and ends.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !model.ValidID(id) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run for events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if model.IsTerminalRunState(run.State) {
		s.replayEvents(w, r, run)
		return
	}

	// A run that finished since the lookup above has a closed topic, so the
	// loop below ends at once.
	ch, unsub := s.checker.Broker().Subscribe(id)
	defer unsub()
	eventStreams.Inc()
	defer eventStreams.Dec()

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", "stream complete")
				if canFlush {
					flusher.Flush()
				}
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return // Write failed (e.g. client gone).
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

func (s *Server) replayEvents(w http.ResponseWriter, r *http.Request, run *model.Run) {
	records, err := s.store.GetTaskRecords(r.Context(), run.ID)
	if err != nil {
		s.logger.Error("get task records for events", "run_id", run.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get task records")
		return
	}

	w.WriteHeader(http.StatusOK)
	at := run.CreatedAt
	if run.FinishedAt != nil {
		at = *run.FinishedAt
	}
	for _, rec := range records {
		ev := engine.Event{
			RunID:  rec.RunID,
			Index:  rec.Index,
			TaskID: rec.TaskID,
			Kind:   rec.Kind,
			State:  rec.State,
			Status: rec.Status,
			Info:   rec.Info,
			Time:   at,
		}
		if err := writeEvent(w, ev); err != nil {
			return
		}
	}
	_ = writeSSEEvent(w, "done", "stream complete")
}

// writeEvent writes one task event as SSE data.
func writeEvent(w http.ResponseWriter, ev engine.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return writeSSEData(w, string(b))
}

// writeSSEData writes a payload as an SSE data event. Multi-line strings are
// split so that each segment gets its own "data:" prefix.
func writeSSEData(w http.ResponseWriter, line string) error {
	for seg := range strings.SplitSeq(line, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", seg); err != nil {
			return err
		}
	}
	// Blank line terminates the event.
	_, err := fmt.Fprint(w, "\n")
	return err
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
