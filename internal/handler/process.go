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

type ProcessHandler struct {
	service   *service.ProcessService
	validator *validator.Validate
}

func NewProcessHandler(svc *service.ProcessService, v *validator.Validate) *ProcessHandler {
	return &ProcessHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/process/start
// @Summary      Start document processing
// @Description  Queue a document for the extract/classify/duplicate pipeline
// @Tags         Process
// @Accept       json
// @Produce      json
// @Param        request body model.ProcessStartRequest true "Process start request"
// @Success      202 {object} model.ProcessStartResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/process/start [post]
func (h *ProcessHandler) Start(c *fiber.Ctx) error {
	var req model.ProcessStartRequest
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

// Status handles GET /api/process/status
// Identification is by jobId or fileName query parameter.
// @Summary      Get job status
// @Description  Poll the status and progress of a processing job
// @Tags         Process
// @Produce      json
// @Param        jobId    query string false "Job ID"
// @Param        fileName query string false "File name of the latest job"
// @Success      200 {object} model.ProcessStatusResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/process/status [get]
func (h *ProcessHandler) Status(c *fiber.Ctx) error {
	jobID := c.Query("jobId")
	fileName := c.Query("fileName")

	result, err := h.service.GetStatus(c.Context(), middleware.GetUserID(c), jobID, fileName)
	if err != nil {
		return processError(c, err)
	}

	return response.OK(c, result)
}

// UpdateStatus handles POST /api/process/status
// @Summary      Update job status
// @Description  Apply an external progress or status update to a job
// @Tags         Process
// @Accept       json
// @Produce      json
// @Param        request body model.UpdateStatusRequest true "Status update"
// @Success      200 {object} model.UpdateStatusResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/process/status [post]
func (h *ProcessHandler) UpdateStatus(c *fiber.Ctx) error {
	var req model.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if req.JobID == "" && req.FileName == "" {
		return response.ValidationError(c, "jobId or fileName is required", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.UpdateStatus(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		return processError(c, err)
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/process/cancel/:jobId
// @Summary      Cancel job
// @Description  Cancel a processing job; cancelling a finished job is a no-op
// @Tags         Process
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.CancelResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/process/cancel/{jobId} [post]
func (h *ProcessHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Cancel(c.Context(), middleware.GetUserID(c), jobID)
	if err != nil {
		return processError(c, err)
	}

	return response.OK(c, result)
}

// Result handles GET /api/process/result/:jobId
// @Summary      Get job result
// @Description  Get the JSONL artifact reference of a completed job
// @Tags         Process
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobResult
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/process/result/{jobId} [get]
func (h *ProcessHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), middleware.GetUserID(c), jobID)
	if err != nil {
		if errors.Is(err, service.ErrNotComplete) {
			return response.ValidationError(c, "Job not completed yet", nil)
		}
		return processError(c, err)
	}

	return response.OK(c, result)
}

// processError maps service errors onto the HTTP error envelope.
func processError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, service.ErrForbidden):
		return response.Forbidden(c, "Job belongs to another user")
	case errors.Is(err, service.ErrMissingIdentifier):
		return response.ValidationError(c, err.Error(), nil)
	default:
		return response.ServiceError(c, err.Error())
	}
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
