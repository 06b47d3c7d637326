package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ericlam1114/datasynthetix-api/internal/middleware"
	"github.com/ericlam1114/datasynthetix-api/internal/model"
	"github.com/ericlam1114/datasynthetix-api/internal/service"
	"github.com/ericlam1114/datasynthetix-api/pkg/response"
)

type BatchHandler struct {
	service   *service.BatchService
	validator *validator.Validate
}

func NewBatchHandler(svc *service.BatchService, v *validator.Validate) *BatchHandler {
	return &BatchHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/batch/start
// @Summary      Start batch processing
// @Description  Queue a set of documents processed through a bounded worker pool
// @Tags         Batch
// @Accept       json
// @Produce      json
// @Param        request body model.BatchStartRequest true "Batch start request"
// @Success      202 {object} model.BatchStartResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/batch/start [post]
func (h *BatchHandler) Start(c *fiber.Ctx) error {
	var req model.BatchStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Start(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		if errors.Is(err, service.ErrMissingSource) {
			return response.ValidationError(c, err.Error(), nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/batch/status/:batchId
// @Summary      Get batch status
// @Description  Poll the aggregate status of a batch and its documents
// @Tags         Batch
// @Produce      json
// @Param        batchId path string true "Batch ID"
// @Success      200 {object} model.BatchStatusResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/batch/status/{batchId} [get]
func (h *BatchHandler) Status(c *fiber.Ctx) error {
	batchID := c.Params("batchId")
	if batchID == "" {
		return response.ValidationError(c, "Batch ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), middleware.GetUserID(c), batchID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			return response.NotFound(c, "Batch not found")
		case errors.Is(err, service.ErrForbidden):
			return response.Forbidden(c, "Batch belongs to another user")
		default:
			return response.ServiceError(c, err.Error())
		}
	}

	return response.OK(c, result)
}
