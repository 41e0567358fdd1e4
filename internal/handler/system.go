package handler

import (
	"context"
	"net/http"
	"time"

	"cardhub/internal/apiclient"
	"cardhub/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// SystemHandler reports the portal's own health and that of its
// dependencies.
type SystemHandler struct {
	client      *apiclient.Client
	redisClient *redis.Client
	logger      logger.Logger
	startTime   time.Time
}

// NewSystemHandler creates a SystemHandler. redisClient is nil when the
// portal runs on in-memory stores.
func NewSystemHandler(client *apiclient.Client, redisClient *redis.Client, log logger.Logger) *SystemHandler {
	return &SystemHandler{
		client:      client,
		redisClient: redisClient,
		logger:      log,
		startTime:   time.Now(),
	}
}

type ServiceStatus struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"` // operational, degraded, outage, disabled
	LastUpdated string `json:"lastUpdated"`
	LatencyMs   int64  `json:"latency_ms"`
}

type SystemStatusResponse struct {
	Status        string          `json:"status"`
	Service       string          `json:"service"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Services      []ServiceStatus `json:"services"`
}

// Health is the liveness probe. It answers 200 while the card API is
// reachable and 503 otherwise; Redis trouble only degrades the status.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	upstream := h.checkUpstream(ctx)
	cache := h.checkRedis(ctx)

	overall := "healthy"
	status := http.StatusOK
	switch {
	case upstream.Status == "outage":
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	case upstream.Status == "degraded" || cache.Status == "outage" || cache.Status == "degraded":
		overall = "degraded"
	}

	respondJSON(w, status, SystemStatusResponse{
		Status:        overall,
		Service:       "cardhub-portal",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Services:      []ServiceStatus{upstream, cache},
	})
}

func (h *SystemHandler) checkUpstream(ctx context.Context) ServiceStatus {
	s := ServiceStatus{
		ID:          "card-api",
		Name:        "Card API",
		Status:      "operational",
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
	}
	start := time.Now()
	err := h.client.Ping(ctx)
	s.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		s.Status = "outage"
		h.logger.Error("Card API ping failed", map[string]interface{}{"error": err.Error()})
	} else if s.LatencyMs > 500 {
		s.Status = "degraded"
	}
	return s
}

func (h *SystemHandler) checkRedis(ctx context.Context) ServiceStatus {
	s := ServiceStatus{
		ID:          "redis",
		Name:        "Redis Cache",
		Status:      "operational",
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
	}
	if h.redisClient == nil {
		s.Status = "disabled"
		return s
	}
	start := time.Now()
	err := h.redisClient.Ping(ctx).Err()
	s.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		s.Status = "outage"
		h.logger.Error("Redis ping failed", map[string]interface{}{"error": err.Error()})
	} else if s.LatencyMs > 50 {
		s.Status = "degraded"
	}
	return s
}
