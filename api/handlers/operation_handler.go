package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sridip-de/yt-dlp-gui/internal/app"
	"github.com/sridip-de/yt-dlp-gui/internal/domain"
	"go.uber.org/zap"
)

// OperationHandler handles fetch, download and cancel requests
type OperationHandler struct {
	manager *app.Manager
	logger  *zap.Logger
}

// NewOperationHandler creates a new operation handler
func NewOperationHandler(manager *app.Manager, logger *zap.Logger) *OperationHandler {
	return &OperationHandler{
		manager: manager,
		logger:  logger,
	}
}

// FetchFormatsRequest represents a request to list a URL's formats
type FetchFormatsRequest struct {
	URL  string `json:"url" binding:"required"`
	Wait bool   `json:"wait,omitempty"`
}

// AcceptedResponse is returned when an operation has been started
type AcceptedResponse struct {
	OperationID string      `json:"operation_id"`
	Slot        domain.Slot `json:"slot"`
}

// FetchFormats handles POST /api/v1/formats
func (h *OperationHandler) FetchFormats(c *gin.Context) {
	var req FetchFormatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op, err := h.manager.FetchFormats(c.Request.Context(), req.URL)
	if err != nil {
		h.respondError(c, "Failed to start format listing", err)
		return
	}

	if !req.Wait {
		c.JSON(http.StatusAccepted, AcceptedResponse{OperationID: op.ID, Slot: op.Slot})
		return
	}

	// The operation keeps running if the client goes away
	result, err := op.Wait(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusAccepted, AcceptedResponse{OperationID: op.ID, Slot: op.Slot})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Download handles POST /api/v1/downloads
func (h *OperationHandler) Download(c *gin.Context) {
	var req domain.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op, err := h.manager.Download(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "Failed to start download", err)
		return
	}

	c.JSON(http.StatusAccepted, AcceptedResponse{OperationID: op.ID, Slot: op.Slot})
}

// Cancel handles POST /api/v1/slots/:slot/cancel
func (h *OperationHandler) Cancel(c *gin.Context) {
	slot := domain.Slot(c.Param("slot"))
	if !domain.ValidateSlot(slot) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slot"})
		return
	}

	if err := h.manager.Cancel(slot); err != nil {
		h.respondError(c, "Failed to cancel", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "cancel requested", "slot": slot})
}

// ListSlots handles GET /api/v1/slots
func (h *OperationHandler) ListSlots(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"slots": h.manager.Slots()})
}

// GetOperation handles GET /api/v1/operations/:id
func (h *OperationHandler) GetOperation(c *gin.Context) {
	status, err := h.manager.GetOperation(c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to get operation", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *OperationHandler) respondError(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	} else {
		h.logger.Debug(msg, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSlotBusy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrOperationNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrManagerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
