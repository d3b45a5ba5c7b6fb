package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListDevices returns the unified device view across all hubs,
// with optional query filters.
//
// Query parameters:
//   - hub_id: filter by owning hub
//   - category: filter by device category (light, thermostat, camera, ...)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.engine.ListDevices()

	if hubID := r.URL.Query().Get("hub_id"); hubID != "" {
		filtered := devices[:0]
		for _, d := range devices {
			if d.HubID == hubID {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	if cat := r.URL.Query().Get("category"); cat != "" {
		filtered := devices[:0]
		for _, d := range devices {
			if string(d.Device.Category) == cat {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID. The ID may be a raw hub
// device ID or the composite "hubId:deviceId" form.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.engine.GetDevice(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// setPropertiesRequest is the body for PUT /devices/{id}/properties.
type setPropertiesRequest struct {
	Properties map[string]any `json:"properties"`
}

// handleSetDeviceProperties forwards a property change to the owning hub.
func (s *Server) handleSetDeviceProperties(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req setPropertiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Properties) == 0 {
		writeBadRequest(w, "properties must not be empty")
		return
	}

	if err := s.engine.SetDeviceProperties(r.Context(), id, req.Properties); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted", "id": id})
}

// handleSnapshot fetches a camera snapshot from the owning hub and
// streams the image bytes back to the caller.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	img, err := s.engine.Snapshot(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	contentType := http.DetectContentType(img)
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(img)
}
