package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/image-picker/internal/permission"
	"github.com/example/image-picker/internal/usecase"
)

// permissionResultRequest answers the outstanding permission request
// (granted) and/or reports capabilities withdrawn since (revoked).
type permissionResultRequest struct {
	Granted *bool    `json:"granted"`
	Revoked []string `json:"revoked" binding:"omitempty,dive,oneof=CAMERA READ_EXTERNAL_STORAGE"`
}

type imagePayload struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bytes  []byte `json:"bytes"`
}

type sourceResultRequest struct {
	Outcome string         `json:"outcome" binding:"required,oneof=picked cancelled failed"`
	Images  []imagePayload `json:"images"`
	Message string         `json:"message"`
}

func (r sourceResultRequest) toOutcome() usecase.Outcome {
	out := usecase.Outcome{Message: r.Message}
	switch r.Outcome {
	case "picked":
		out.Kind = usecase.OutcomePicked
	case "cancelled":
		out.Kind = usecase.OutcomeCancelled
	default:
		out.Kind = usecase.OutcomeFailed
	}
	for _, img := range r.Images {
		out.Images = append(out.Images, usecase.AcquiredImage{
			Path:   img.Path,
			Bytes:  img.Bytes,
			Name:   img.Name,
			Width:  img.Width,
			Height: img.Height,
		})
	}
	return out
}

func (h *handler) permissionResult(c *gin.Context) {
	var req permissionResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeCode(c, http.StatusBadRequest, codeInvalidArguments, err.Error())
		return
	}

	if req.Granted == nil && len(req.Revoked) == 0 {
		writeCode(c, http.StatusBadRequest, codeInvalidArguments, "granted or revoked is required")
		return
	}

	if h.Permissions != nil {
		for _, name := range req.Revoked {
			h.Permissions.Revoke(permission.Capability(name))
		}
		if len(req.Revoked) > 0 {
			h.Logger.Info("host revoked permissions", zap.Strings("revoked", req.Revoked))
		}
	}

	if req.Granted != nil {
		granted := *req.Granted
		if h.Permissions != nil {
			granted = h.Permissions.Complete(granted)
		}
		if err := h.Coordinator.OnPermissionResult(c.Request.Context(), granted); err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusAccepted, gin.H{"state": h.Coordinator.State().String()})
}

func (h *handler) sourceResult(deliver func(context.Context, usecase.Outcome) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sourceResultRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeCode(c, http.StatusBadRequest, codeInvalidArguments, err.Error())
			return
		}

		if err := deliver(c.Request.Context(), req.toOutcome()); err != nil {
			if errors.Is(err, usecase.ErrInvalidState) {
				h.Logger.Error("host delivered an unrequested image", zap.String("path", c.FullPath()))
			}
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"state": h.Coordinator.State().String()})
	}
}
