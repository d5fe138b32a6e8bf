package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mocktest/internal/response"
	"github.com/stemsi/exstem-mocktest/internal/service"
)

const healthTimeout = 2 * time.Second

// HealthCheck probes one backing service.
type HealthCheck func(ctx context.Context) error

// QueueLengther reports the result persist backlog.
type QueueLengther interface {
	QueueLength(ctx context.Context) (int64, error)
}

// SystemHandler reports liveness and runtime stats.
type SystemHandler struct {
	sessionService *service.SessionService
	queue          QueueLengther
	checks         map[string]HealthCheck
	startTime      time.Time
	log            zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler. checks are keyed by the
// dependency name shown in the health body; queue may be nil.
func NewSystemHandler(sessionService *service.SessionService, queue QueueLengther, checks map[string]HealthCheck, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		sessionService: sessionService,
		queue:          queue,
		checks:         checks,
		startTime:      time.Now(),
		log:            log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	deps := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			deps[name] = "down"
			healthy = false
			continue
		}
		deps[name] = "up"
	}

	if !healthy {
		response.FailWithData(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable,
			gin.H{"status": "degraded", "dependencies": deps})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ok", "dependencies": deps})
}

type systemStats struct {
	Uptime       string `json:"uptime"`
	Sessions     int    `json:"sessions"`
	QueueResults int64  `json:"queue_results"`
	Goroutines   int    `json:"goroutines"`
	HeapAlloc    uint64 `json:"heap_alloc"`
	NumGC        uint32 `json:"num_gc"`
	GoVersion    string `json:"go_version"`
}

// Stats godoc
// GET /api/v1/system/stats
func (h *SystemHandler) Stats(c *gin.Context) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := systemStats{
		Uptime:     formatDuration(time.Since(h.startTime)),
		Sessions:   h.sessionService.Count(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc,
		NumGC:      ms.NumGC,
		GoVersion:  runtime.Version(),
	}
	if h.queue != nil {
		if n, err := h.queue.QueueLength(c.Request.Context()); err == nil {
			s.QueueResults = n
		}
	}
	response.Success(c, http.StatusOK, s)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
