package web

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"pi-camera-node/camera"
	"pi-camera-node/config"
)

// Handlers implements the control API endpoints.
type Handlers struct {
	config   *config.Config
	pipeline *camera.Pipeline
	logger   *zap.Logger
}

// NewHandlers creates the handler set for pipeline.
func NewHandlers(cfg *config.Config, pipeline *camera.Pipeline, logger *zap.Logger) *Handlers {
	return &Handlers{
		config:   cfg,
		pipeline: pipeline,
		logger:   logger,
	}
}

// HandleStart starts frame capture.
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.pipeline.Start(); err != nil {
		h.logger.Error("Failed to start pipeline", zap.Error(err))
		h.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSONResponse(w, map[string]interface{}{
		"action": "start",
		"state":  h.pipeline.State().String(),
	})
}

// HandleStop stops capture and tears the pipeline down.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.pipeline.Stop()
	h.writeJSONResponse(w, map[string]interface{}{
		"action": "stop",
		"state":  h.pipeline.State().String(),
	})
}

// HandleStatus reports the pipeline state and frame counters.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	raw, jpeg := h.pipeline.FrameCounts()
	h.writeJSONResponse(w, map[string]interface{}{
		"session":     h.pipeline.Session(),
		"state":       h.pipeline.State().String(),
		"running":     h.pipeline.Running(),
		"raw_frames":  raw,
		"jpeg_frames": jpeg,
		"camera":      h.config.Camera,
	})
}

// HandleConfig returns the active configuration.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, h.config)
}

// HandleHealth is the liveness endpoint.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"pipeline":  h.pipeline.State().String(),
	})
}

func (h *Handlers) writeJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func (h *Handlers) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  message,
		"status": statusCode,
	})
}
