package health

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/verlyn13/dicee-sub002/internal/v1/bus"
	"github.com/verlyn13/dicee-sub002/internal/v1/logging"
)

// Handler manages the liveness/readiness HTTP surface, per SPEC_FULL's
// supplemented-features section: a production session server needs these
// even though the distilled spec's component table doesn't name them.
type Handler struct {
	redisService *bus.Service
}

// NewHandler creates a new health check handler bound to the lobby/storage
// Redis connection.
func NewHandler(redisService *bus.Service) *Handler {
	return &Handler{redisService: redisService}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles GET /healthz. Returns 200 if the process is alive,
// with no dependency checks.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /readyz. Returns 200 only if every critical
// dependency (the Redis-backed Storage Facade and lobby transport) is
// healthy, 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	redisStatus := h.checkRedis(ctx)
	checks["redis"] = redisStatus
	if redisStatus != "healthy" {
		allHealthy = false
	}
	if redisStatus == "healthy" {
		checks["activeRooms"] = h.checkActiveRooms(ctx)
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// checkRedis verifies Redis connectivity using the PING command. When Redis
// is disabled (single-instance mode), storage falls back to
// storage.MemoryFacade and there is nothing external to check.
func (h *Handler) checkRedis(ctx context.Context) string {
	if h.redisService == nil {
		return "healthy"
	}
	if err := h.redisService.Ping(ctx); err != nil {
		logging.Error(ctx, "Redis health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

// checkActiveRooms reports how many room codes the fleet currently has
// registered in bus.ActiveRoomsKey. It never fails readiness on its own --
// an error here just means the figure is omitted, not that the process is
// unhealthy.
func (h *Handler) checkActiveRooms(ctx context.Context) string {
	members, err := h.redisService.SetMembers(ctx, bus.ActiveRoomsKey)
	if err != nil {
		return "unknown"
	}
	return strconv.Itoa(len(members))
}

// MarshalJSON implements custom JSON marshaling for ReadinessResponse.
func (r ReadinessResponse) MarshalJSON() ([]byte, error) {
	type Alias ReadinessResponse
	return json.Marshal(&struct {
		*Alias
	}{
		Alias: (*Alias)(&r),
	})
}
