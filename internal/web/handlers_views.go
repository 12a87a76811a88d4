package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/staffgrid/internal/logging"
	"github.com/JonMunkholm/staffgrid/internal/view"
)

// streamHeartbeat keeps idle widget streams open through proxies.
const streamHeartbeat = 15 * time.Second

// viewInfo is one entry of GET /api/views.
type viewInfo struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	State       string `json:"state"`
	Subscribers int    `json:"subscribers"`
}

func (s *Server) handleListViews(w http.ResponseWriter, _ *http.Request) {
	defs := s.views.Definitions().All()
	out := make([]viewInfo, 0, len(defs))
	for _, d := range defs {
		out = append(out, viewInfo{
			ID:          d.ID,
			Label:       d.Label,
			State:       s.views.State(d.ID).String(),
			Subscribers: s.hub.Subscribers(d.ID),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleActivateView (re)creates a named view. With ?deferred=true the
// activation runs after the configured delay and the request returns 202 at
// once; otherwise the response carries the descriptor the view was built
// from.
func (s *Server) handleActivateView(w http.ResponseWriter, r *http.Request) {
	viewID := chi.URLParam(r, "viewID")
	if _, ok := s.views.Definitions().Get(viewID); !ok {
		respondError(w, r, fmt.Errorf("%w: %s", view.ErrUnknownView, viewID), http.StatusNotFound)
		return
	}

	if deferred, _ := strconv.ParseBool(r.URL.Query().Get("deferred")); deferred {
		// The request context ends with this response.
		s.views.ActivateDeferred(context.WithoutCancel(r.Context()), viewID)
		writeJSON(w, http.StatusAccepted, map[string]string{"viewId": viewID, "state": "pending"})
		return
	}

	if err := s.views.ActivateNamed(r.Context(), viewID); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	desc, _ := s.views.Descriptor(viewID)
	writeJSON(w, http.StatusOK, desc)
}

func (s *Server) handleDeactivateView(w http.ResponseWriter, r *http.Request) {
	viewID := chi.URLParam(r, "viewID")
	if err := s.views.Deactivate(r.Context(), viewID); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearFilters(w http.ResponseWriter, r *http.Request) {
	viewID := chi.URLParam(r, "viewID")
	if err := s.views.ClearFilters(r.Context(), viewID); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// eventRequest is a widget event posted by the browser.
type eventRequest struct {
	Type string         `json:"type"`
	ID   int            `json:"id"`
	Row  map[string]any `json:"row"`
}

// Event types accepted by POST /api/views/{viewID}/events.
const (
	EventCellEdited      = "cellEdited"
	EventDeleteRequested = "deleteRequested"
	EventEditRequested   = "editRequested"
)

// handleViewEvent queues a widget event for the ingress loop and returns 202.
func (s *Server) handleViewEvent(w http.ResponseWriter, r *http.Request) {
	viewID := chi.URLParam(r, "viewID")

	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	var ev view.Event
	switch req.Type {
	case EventCellEdited:
		ev = view.CellEdited{ViewID: viewID, Row: req.Row}
	case EventDeleteRequested:
		ev = view.DeleteRequested{ID: req.ID}
	case EventEditRequested:
		ev = view.EditRequested{ID: req.ID}
	default:
		respondError(w, r, fmt.Errorf("decode request: unknown event type %q", req.Type), http.StatusBadRequest)
		return
	}

	if err := s.hub.Publish(r.Context(), ev); err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleViewStream is the widget's command channel. Each hub message is sent
// as an SSE event named after its type. The stream ends when the client goes
// away or the hub drops the subscriber.
func (s *Server) handleViewStream(w http.ResponseWriter, r *http.Request) {
	viewID := chi.URLParam(r, "viewID")
	if _, ok := s.views.Definitions().Get(viewID); !ok {
		respondError(w, r, fmt.Errorf("%w: %s", view.ErrUnknownView, viewID), http.StatusNotFound)
		return
	}

	rc := http.NewResponseController(w)
	clientID, msgs, cancel := s.hub.Subscribe(viewID)
	defer cancel()

	logger := logging.FromContext(r.Context()).With("view_id", viewID, "client_id", clientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: hello\ndata: {\"clientId\":%q}\n\n", clientID)
	if err := rc.Flush(); err != nil {
		logger.Error("streaming not supported", "error", err)
		return
	}

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	var seq int
	for {
		select {
		case <-r.Context().Done():
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			if err := rc.Flush(); err != nil {
				return
			}

		case msg, ok := <-msgs:
			if !ok {
				logger.Debug("widget stream closed by hub")
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Error("encode widget message", "error", err)
				continue
			}
			seq++
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", seq, msg.Type, data)
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
