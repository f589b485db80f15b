package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/image-picker/internal/events"
	"github.com/example/image-picker/internal/permission"
	"github.com/example/image-picker/internal/repository"
	"github.com/example/image-picker/internal/scaler"
	"github.com/example/image-picker/internal/usecase"
)

// MethodPickImage is the only method served on the picker channel.
const MethodPickImage = "pickImage"

const (
	codeUnknownMethod    = "UNKNOWN_METHOD"
	codeInvalidArguments = "INVALID_ARGUMENTS"
)

// Coordinator is the part of the request coordinator driven over HTTP.
type Coordinator interface {
	BeginRequest(ctx context.Context, source usecase.Source, constraints scaler.Constraints, hasForeground bool, result usecase.Result) (string, error)
	OnPermissionResult(ctx context.Context, granted bool) error
	OnPickerResult(ctx context.Context, outcome usecase.Outcome) error
	OnCameraResult(ctx context.Context, outcome usecase.Outcome) error
	State() usecase.State
	Pending() (usecase.PendingRequest, bool)
}

// PermissionCompleter records the host's answer to a permission request and
// reports whether every requested capability was granted. Revoke drops a
// grant the user withdrew in the host's settings.
type PermissionCompleter interface {
	Complete(granted bool) bool
	Revoke(c permission.Capability)
}

// StatusReader looks up the cached status of a request.
type StatusReader interface {
	Get(ctx context.Context, requestID string) (*usecase.RequestStatus, error)
}

// LogReader finds finished requests in the audit log.
type LogReader interface {
	FindByRequestID(ctx context.Context, requestID string) (*repository.RequestLog, error)
}

// EventStream attaches a host to the launch events.
type EventStream interface {
	Subscribe() (<-chan events.Event, func())
}

// Dependencies wires the HTTP surface. Everything except Coordinator and
// ReplyTimeout is optional.
type Dependencies struct {
	Coordinator  Coordinator
	Foreground   events.ForegroundReporter
	Permissions  PermissionCompleter
	Status       StatusReader
	Logs         LogReader
	Metrics      usecase.MetricsSource
	Stream       EventStream
	ReplyTimeout time.Duration
	Logger       *zap.Logger
}

type handler struct {
	Dependencies
	heartbeat time.Duration
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, deps Dependencies, authMiddleware gin.HandlerFunc) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.Logger = deps.Logger.Named("handlers")
	h := &handler{Dependencies: deps, heartbeat: 30 * time.Second}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/")
	if authMiddleware != nil {
		protected.Use(authMiddleware)
	}

	protected.POST("/channel/image_picker", h.methodCall)
	protected.POST("/callbacks/permission", h.permissionResult)
	protected.POST("/callbacks/picker", h.sourceResult(deps.Coordinator.OnPickerResult))
	protected.POST("/callbacks/camera", h.sourceResult(deps.Coordinator.OnCameraResult))
	protected.GET("/requests/:id", h.requestStatus)
	protected.GET("/state", h.state)
	protected.GET("/metrics", h.metrics)
	if deps.Stream != nil {
		protected.GET("/events", h.eventStream)
	}
}

type methodCallRequest struct {
	Method    string          `json:"method" binding:"required"`
	Arguments json.RawMessage `json:"arguments"`
}

type pickImageArgs struct {
	Source    *int     `json:"source" binding:"required"`
	MaxWidth  *float64 `json:"maxWidth" binding:"omitempty,gt=0"`
	MaxHeight *float64 `json:"maxHeight" binding:"omitempty,gt=0"`
	Quality   *int     `json:"quality" binding:"omitempty,min=0,max=100"`
}

func (a pickImageArgs) constraints() scaler.Constraints {
	return scaler.Constraints{MaxWidth: a.MaxWidth, MaxHeight: a.MaxHeight, Quality: a.Quality}
}

type reply struct {
	out *usecase.ScaledOutput
	err error
}

func (h *handler) methodCall(c *gin.Context) {
	var call methodCallRequest
	if err := c.ShouldBindJSON(&call); err != nil {
		writeCode(c, http.StatusBadRequest, codeInvalidArguments, err.Error())
		return
	}
	if call.Method != MethodPickImage {
		h.Logger.Error("unknown method on image picker channel", zap.String("method", call.Method))
		writeCode(c, http.StatusNotImplemented, codeUnknownMethod, "method not implemented: "+call.Method)
		return
	}

	var args pickImageArgs
	if len(call.Arguments) == 0 {
		writeCode(c, http.StatusBadRequest, codeInvalidArguments, "arguments are required")
		return
	}
	if err := binding.JSON.BindBody(call.Arguments, &args); err != nil {
		writeCode(c, http.StatusBadRequest, codeInvalidArguments, err.Error())
		return
	}
	constraints := args.constraints()
	if err := constraints.Validate(); err != nil {
		writeCode(c, http.StatusBadRequest, codeInvalidArguments, err.Error())
		return
	}

	replies := make(chan reply, 1)
	result := usecase.ResultFunc(func(out *usecase.ScaledOutput, err error) {
		replies <- reply{out: out, err: err}
	})

	hasForeground := h.Foreground != nil && h.Foreground.HasForeground()
	requestID, err := h.Coordinator.BeginRequest(c.Request.Context(), usecase.Source(*args.Source), constraints, hasForeground, result)
	if err != nil {
		if usecase.IsContractViolation(err) {
			h.Logger.Error("pickImage called with invalid arguments",
				zap.Int("source", *args.Source),
				zap.String("code", usecase.CodeOf(err)),
				zap.Error(err),
			)
		}
		writeError(c, err)
		return
	}

	timer := time.NewTimer(h.ReplyTimeout)
	defer timer.Stop()

	select {
	case r := <-replies:
		if r.err != nil {
			writeError(c, r.err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"request_id": requestID, "name": r.out.Name, "bytes": r.out.Bytes})
	case <-timer.C:
		c.JSON(http.StatusAccepted, gin.H{"request_id": requestID, "status": h.Coordinator.State().String()})
	case <-c.Request.Context().Done():
		h.Logger.Info("caller went away before the pick finished", zap.String("request_id", requestID))
	}
}

func (h *handler) requestStatus(c *gin.Context) {
	requestID := c.Param("id")
	if requestID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}

	if h.Status != nil {
		st, err := h.Status.Get(c.Request.Context(), requestID)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, st)
			return
		case !errors.Is(err, usecase.ErrStatusNotFound):
			h.Logger.Warn("status lookup failed", zap.String("request_id", requestID), zap.Error(err))
		}
	}

	if p, ok := h.Coordinator.Pending(); ok && p.ID == requestID {
		c.JSON(http.StatusOK, usecase.RequestStatus{
			RequestID: p.ID,
			Source:    p.Source.String(),
			State:     p.State.String(),
			UpdatedAt: p.StartedAt,
		})
		return
	}

	if h.Logs != nil {
		entry, err := h.Logs.FindByRequestID(c.Request.Context(), requestID)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, usecase.RequestStatus{
				RequestID: entry.RequestID,
				Source:    entry.Source,
				State:     usecase.StateIdle.String(),
				Outcome:   entry.Outcome,
				ErrorCode: entry.ErrorCode,
				UpdatedAt: entry.FinishedAt,
			})
			return
		case !errors.Is(err, gorm.ErrRecordNotFound):
			h.Logger.Error("audit log lookup failed", zap.String("request_id", requestID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load request"})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
}

func (h *handler) state(c *gin.Context) {
	body := gin.H{
		"state":      h.Coordinator.State().String(),
		"foreground": h.Foreground != nil && h.Foreground.HasForeground(),
	}
	if p, ok := h.Coordinator.Pending(); ok {
		body["request_id"] = p.ID
		body["source"] = p.Source.String()
		body["started_at"] = p.StartedAt
	}
	c.JSON(http.StatusOK, body)
}

func (h *handler) metrics(c *gin.Context) {
	if h.Metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics are disabled"})
		return
	}
	summary, err := usecase.GetMetricsSummary(c.Request.Context(), h.Metrics)
	if err != nil {
		h.Logger.Error("failed to aggregate metrics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load metrics"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func httpStatus(code string) int {
	switch code {
	case usecase.CodeAlreadyActive, usecase.CodeNoActivity, usecase.CodeInvalidState:
		return http.StatusConflict
	case usecase.CodePickError:
		return http.StatusBadGateway
	case usecase.CodePermissionDenied:
		return http.StatusForbidden
	case usecase.CodeInvalidSource:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := usecase.CodeOf(err)
	writeCode(c, httpStatus(code), code, err.Error())
}

func writeCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"code": code, "message": message})
}
