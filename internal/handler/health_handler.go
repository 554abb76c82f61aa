package handler

import (
	"context"
	"net/http"
	"time"

	"carebridge-auth/internal/container"
)

const (
	serviceName    = "carebridge-auth"
	serviceVersion = "1.0.0"
	healthTimeout  = 2 * time.Second
)

// HealthHandler handles health check requests
type HealthHandler struct {
	container *container.Container
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(container *container.Container) *HealthHandler {
	return &HealthHandler{
		container: container,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Version      string            `json:"version"`
	Service      string            `json:"service"`
	Dependencies map[string]string `json:"dependencies"`
}

// Check handles GET /health. A configured dependency that is down degrades the status.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()
	cfg := h.container.GetConfig()

	logger.Debug("Health check requested")

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	response := HealthResponse{
		Status:       "healthy",
		Timestamp:    time.Now().UTC(),
		Version:      serviceVersion,
		Service:      serviceName,
		Dependencies: map[string]string{},
	}

	if cfg.BackendConfigured() {
		response.Dependencies["auth_backend"] = "configured"
	} else {
		response.Dependencies["auth_backend"] = "not_configured"
		response.Status = "degraded"
	}

	if h.container.HasRedis() {
		if err := h.container.GetRedisClient().Health(ctx); err != nil {
			logger.WithError(err).Warn("Redis health check failed")
			response.Dependencies["redis"] = "unhealthy"
			response.Status = "degraded"
		} else {
			response.Dependencies["redis"] = "healthy"
		}
	} else {
		response.Dependencies["redis"] = "disabled"
	}

	if h.container.HasDatabase() {
		if err := h.container.DB.Health(ctx); err != nil {
			logger.WithError(err).Warn("Database health check failed")
			response.Dependencies["database"] = "unhealthy"
			response.Status = "degraded"
		} else {
			response.Dependencies["database"] = "healthy"
		}
	} else {
		response.Dependencies["database"] = "disabled"
	}

	writeJSON(w, http.StatusOK, response, logger)
}
