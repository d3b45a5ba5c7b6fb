package api

import (
	"encoding/json"
	"net/http"

	"github.com/graymere/hublink/internal/hub"
)

// settingsResponse is the wire form of the engine settings. Hub API keys
// are stripped; the hubs endpoint is the authoritative hub view anyway.
type settingsResponse struct {
	DefaultPollInterval string `json:"default_poll_interval"`
	GracePeriod         string `json:"grace_period"`
	DebugMode           bool   `json:"debug_mode"`
	HubCount            int    `json:"hub_count"`
}

func newSettingsResponse(s hub.Settings) settingsResponse {
	return settingsResponse{
		DefaultPollInterval: s.DefaultPollInterval.String(),
		GracePeriod:         s.GracePeriod.String(),
		DebugMode:           s.DebugMode,
		HubCount:            len(s.Hubs),
	}
}

// handleGetSettings returns the current global settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newSettingsResponse(s.engine.Settings()))
}

// handleUpdateSettings partially updates the global settings.
//
// A changed default poll interval applies immediately to hubs without a
// per-hub override; a changed grace period applies to future connections.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch hub.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.engine.UpdateSettings(r.Context(), patch); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newSettingsResponse(s.engine.Settings()))
}
