package handlers

import (
	"context"

	"github.com/maruel/songdb/internal/catalog"
	"github.com/maruel/songdb/internal/flush"
)

// HealthHandler reports the server state.
type HealthHandler struct {
	svc       *catalog.Service
	scheduler *flush.Scheduler
	tracker   *flush.Tracker
	backend   string
	version   string
}

// NewHealthHandler returns a health handler. scheduler and tracker are nil
// when every write is flushed synchronously.
func NewHealthHandler(svc *catalog.Service, scheduler *flush.Scheduler, tracker *flush.Tracker, backend, version string) *HealthHandler {
	return &HealthHandler{
		svc:       svc,
		scheduler: scheduler,
		tracker:   tracker,
		backend:   backend,
		version:   version,
	}
}

// HealthRequest is the request type for health check (empty).
type HealthRequest struct{}

// Validate implements Validatable.
func (r *HealthRequest) Validate() error {
	return nil
}

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version,omitempty"`
	Backend string       `json:"backend"`
	Policy  string       `json:"policy"`
	Songs   int          `json:"songs"`
	Pending bool         `json:"pending"`
	Flush   *flush.Stats `json:"flush,omitempty"`
}

// Health returns the health status of the server.
func (h *HealthHandler) Health(ctx context.Context, req *HealthRequest) (*HealthResponse, error) {
	n, err := h.svc.Count(ctx)
	if err != nil {
		return nil, toAPIError(err)
	}
	resp := &HealthResponse{
		Status:  "ok",
		Version: h.version,
		Backend: h.backend,
		Policy:  h.svc.PolicyName(),
		Songs:   n,
	}
	if h.tracker != nil {
		resp.Pending = h.tracker.IsDirty()
	}
	if h.scheduler != nil {
		st := h.scheduler.Stats()
		resp.Flush = &st
		if st.LastError != "" {
			resp.Status = "degraded"
		}
	}
	return resp, nil
}
