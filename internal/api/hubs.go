package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/graymere/hublink/internal/hub"
)

// hubResponse combines a hub's stored configuration with its live status.
// The API key is never echoed back.
type hubResponse struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	UseHTTPS     bool          `json:"use_https"`
	PollInterval time.Duration `json:"poll_interval"`
	Status       hub.HubStatus `json:"status"`
}

// pollResponse is the wire form of a completed poll.
type pollResponse struct {
	Success     bool   `json:"success"`
	DeviceCount int    `json:"device_count"`
	Changes     int    `json:"changes"`
	DurationMS  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}

func newPollResponse(res hub.PollResult) pollResponse {
	out := pollResponse{
		Success:     res.Success,
		DeviceCount: len(res.Devices),
		Changes:     len(res.Changes),
		DurationMS:  res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func (s *Server) hubResponseFor(cfg hub.HubConfig) hubResponse {
	status, err := s.engine.GetStatus(cfg.ID)
	if err != nil {
		// Hub removed between list and status lookup; report what we have.
		status = hub.HubStatus{HubID: cfg.ID, Name: cfg.Name, State: hub.StateDisconnected}
	}
	return hubResponse{
		ID:           cfg.ID,
		Name:         cfg.Name,
		Host:         cfg.Host,
		Port:         cfg.Port,
		UseHTTPS:     cfg.UseHTTPS,
		PollInterval: cfg.PollInterval,
		Status:       status,
	}
}

// handleListHubs returns all configured hubs with their live status.
func (s *Server) handleListHubs(w http.ResponseWriter, _ *http.Request) {
	configs := s.engine.Hubs()
	hubs := make([]hubResponse, 0, len(configs))
	for _, cfg := range configs {
		hubs = append(hubs, s.hubResponseFor(cfg))
	}
	writeJSON(w, http.StatusOK, map[string]any{"hubs": hubs, "count": len(hubs)})
}

// handleAddHub registers a new hub and attempts an initial connection.
//
// Registration succeeds even if the first connection attempt fails; the
// hub retries in the background and its status reflects progress.
func (s *Server) handleAddHub(w http.ResponseWriter, r *http.Request) {
	var cfg hub.HubConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	if err := s.engine.AddHub(r.Context(), cfg); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, s.hubResponseFor(cfg))
}

// handleGetHub returns a single hub by ID.
func (s *Server) handleGetHub(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	for _, cfg := range s.engine.Hubs() {
		if cfg.ID == id {
			writeJSON(w, http.StatusOK, s.hubResponseFor(cfg))
			return
		}
	}
	writeNotFound(w, "hub not found")
}

// handleUpdateHub partially updates a hub's configuration.
// Connection-affecting changes (host, port, scheme, API key) trigger a
// reconnect; an interval change takes effect without one.
func (s *Server) handleUpdateHub(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch hub.HubPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.engine.UpdateHub(r.Context(), id, patch); err != nil {
		writeEngineError(w, err)
		return
	}

	for _, cfg := range s.engine.Hubs() {
		if cfg.ID == id {
			writeJSON(w, http.StatusOK, s.hubResponseFor(cfg))
			return
		}
	}
	writeNotFound(w, "hub not found")
}

// handleRemoveHub unregisters a hub and drops its devices.
func (s *Server) handleRemoveHub(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.engine.RemoveHub(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "id": id})
}

// handleRefreshHub triggers an immediate poll of one hub and returns the
// result. If a poll is already running the previous result is returned.
func (s *Server) handleRefreshHub(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	res, err := s.engine.RefreshHub(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newPollResponse(res))
}

// handleRefreshAll polls every hub concurrently and returns per-hub results.
// Individual hub failures are reported in the body, not as an HTTP error.
func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	results := s.engine.RefreshAll(r.Context())

	out := make(map[string]pollResponse, len(results))
	for id, res := range results {
		out[id] = newPollResponse(res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out, "count": len(out)})
}
