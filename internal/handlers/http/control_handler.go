package http

import (
	"errors"
	"net/http"
	"strconv"

	"livepush/internal/core/domain"
	"livepush/internal/core/ports"
	"livepush/internal/core/services"
	apperrors "livepush/pkg/errors"
	"livepush/pkg/validation"

	"github.com/gin-gonic/gin"
)

// ControlHandler exposes the streaming pipeline over the control API.
type ControlHandler struct {
	controller *services.ConnectionController
	capture    *services.CaptureLifecycleManager
	health     *services.HealthMonitor
	ts         *services.TimestampSynthesizer
	sessions   ports.SessionRepository
}

func NewControlHandler(
	controller *services.ConnectionController,
	capture *services.CaptureLifecycleManager,
	health *services.HealthMonitor,
	ts *services.TimestampSynthesizer,
	sessions ports.SessionRepository,
) *ControlHandler {
	return &ControlHandler{
		controller: controller,
		capture:    capture,
		health:     health,
		ts:         ts,
		sessions:   sessions,
	}
}

func (h *ControlHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/state", h.GetState)
		api.GET("/health", h.GetHealth)
		api.GET("/stats", h.GetStats)
		api.GET("/capture", h.GetCapture)
		api.GET("/sessions", h.ListSessions)
		api.GET("/sessions/:id", h.GetSession)

		api.POST("/preview/start", h.StartPreview)
		api.POST("/stream/start", h.StartStream)
		api.POST("/stream/stop", h.StopStream)
		api.POST("/stream/cancel-reconnect", h.CancelReconnect)
	}
}

func stateResponse(state domain.ConnectionState) gin.H {
	resp := gin.H{
		"phase": state.Phase.String(),
	}
	if !state.StartedAt.IsZero() {
		resp["started_at"] = state.StartedAt
	}
	if state.Phase == domain.PhaseReconnecting {
		resp["attempt"] = state.Attempt
		resp["max_attempts"] = state.MaxAttempts
	}
	if state.Err != nil {
		resp["error"] = gin.H{
			"kind":    string(state.Err.Kind),
			"message": state.Err.Error(),
		}
	}
	return resp
}

func (h *ControlHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state": stateResponse(h.controller.State().Load()),
	})
}

func (h *ControlHandler) GetHealth(c *gin.Context) {
	status := h.health.Status().Load()
	metrics := h.health.Metrics()

	c.JSON(http.StatusOK, gin.H{
		"level":   status.Level.String(),
		"score":   metrics.HealthScore(),
		"healthy": metrics.IsHealthy(),
		"issues":  status.Issues,
		"reason":  status.Reason,
		"metrics": gin.H{
			"session_duration_ms":   metrics.SessionDurationMs,
			"buffer_overflow_count": metrics.BufferOverflowCount,
			"buffer_underrun_count": metrics.BufferUnderrunCount,
			"current_latency_ms":    metrics.CurrentLatencyMs,
			"average_latency_ms":    metrics.AverageLatencyMs,
			"max_latency_ms":        metrics.MaxLatencyMs,
			"memory_growth_mb":      metrics.MemoryGrowthMb,
		},
	})
}

func (h *ControlHandler) GetStats(c *gin.Context) {
	stats := h.ts.Stats()

	c.JSON(http.StatusOK, gin.H{
		"stats": gin.H{
			"total_buffers_processed":   stats.TotalBuffersProcessed,
			"total_bytes_processed":     stats.TotalBytesProcessed,
			"buffer_errors":             stats.BufferErrors,
			"release_errors":            stats.ReleaseErrors,
			"last_presentation_time_us": stats.LastPresentationTimeUs,
			"average_buffer_size":       stats.AverageBufferSize(),
			"error_rate":                stats.ErrorRate(),
		},
	})
}

func (h *ControlHandler) GetCapture(c *gin.Context) {
	status := h.capture.Status().Load()
	bufferHealth := h.capture.BufferHealth().Load()

	c.JSON(http.StatusOK, gin.H{
		"state":       status.State.String(),
		"sample_rate": status.SampleRate,
		"buffer_size": status.BufferSize,
		"message":     status.Message,
		"buffer": gin.H{
			"size":      bufferHealth.BufferSize,
			"min_size":  bufferHealth.MinBufferSize,
			"recording": bufferHealth.Recording,
		},
	})
}

func (h *ControlHandler) ListSessions(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.Error(apperrors.NewInvalidInputError("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	records, err := h.sessions.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.Error(apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list sessions"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": records,
	})
}

func (h *ControlHandler) GetSession(c *gin.Context) {
	id := domain.SessionID(c.Param("id"))

	record, err := h.sessions.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			c.Error(apperrors.NewNotFoundError("session"))
			return
		}
		c.Error(apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to load session"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": record,
	})
}

func (h *ControlHandler) StartPreview(c *gin.Context) {
	if err := h.controller.StartPreview(); err != nil {
		failStream(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"state": stateResponse(h.controller.State().Load()),
	})
}

func (h *ControlHandler) StartStream(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required,min=5,max=2048"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateIngestURL(req.URL); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	if err := h.controller.StartStream(req.URL); err != nil {
		failStream(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"state": stateResponse(h.controller.State().Load()),
	})
}

func (h *ControlHandler) StopStream(c *gin.Context) {
	h.controller.StopStream()

	c.JSON(http.StatusOK, gin.H{
		"state": stateResponse(h.controller.State().Load()),
	})
}

func (h *ControlHandler) CancelReconnect(c *gin.Context) {
	h.controller.CancelReconnection()

	c.JSON(http.StatusOK, gin.H{
		"state": stateResponse(h.controller.State().Load()),
	})
}

// failStream attaches the failure to the context; the error handler
// middleware renders it.
func failStream(c *gin.Context, err error) {
	var streamErr *domain.StreamError
	if !errors.As(err, &streamErr) {
		c.Error(apperrors.Wrap(err, apperrors.ErrCodeInternal, "stream operation failed"))
		return
	}
	c.Error(streamAppError(streamErr))
}

// streamAppError maps the stream error taxonomy onto API error codes.
func streamAppError(streamErr *domain.StreamError) *apperrors.AppError {
	var appErr *apperrors.AppError
	switch streamErr.Kind {
	case domain.ErrPermissionDenied:
		appErr = apperrors.NewForbiddenError(streamErr.Error())
	case domain.ErrMicNotAvailable, domain.ErrCameraNotAvailable:
		appErr = apperrors.NewServiceUnavailableError(streamErr.Error())
	case domain.ErrConnectionFailed:
		if streamErr.Reason == "stream already active" {
			appErr = apperrors.NewConflictError(streamErr.Error())
		}
	}
	if appErr == nil {
		appErr = apperrors.New(apperrors.ErrCodeUpstreamFailure, streamErr.Error())
	}
	appErr.Cause = streamErr
	return appErr.WithContext("kind", string(streamErr.Kind))
}
