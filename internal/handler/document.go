package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ericlam1114/datasynthetix-api/internal/middleware"
	"github.com/ericlam1114/datasynthetix-api/internal/service"
	"github.com/ericlam1114/datasynthetix-api/pkg/response"
)

const maxUploadSize = 50 * 1024 * 1024 // 50MB

type DocumentHandler struct {
	service   *service.DocumentService
	validator *validator.Validate
}

func NewDocumentHandler(svc *service.DocumentService, v *validator.Validate) *DocumentHandler {
	return &DocumentHandler{
		service:   svc,
		validator: v,
	}
}

// Upload handles POST /api/documents/upload
// @Summary      Upload source document
// @Description  Upload a document to be processed into synthetic training data
// @Tags         Documents
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "Document (PDF, DOCX, TXT, HTML; max 50MB)"
// @Success      201 {object} model.UploadDocumentResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/documents/upload [post]
func (h *DocumentHandler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > maxUploadSize {
		return response.ValidationError(c, "File size exceeds 50MB limit", map[string]interface{}{
			"maxSize":  maxUploadSize,
			"fileSize": file.Size,
		})
	}

	contentType := file.Header.Get("Content-Type")
	validTypes := map[string]bool{
		"application/pdf": true,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
		"application/msword": true,
		"text/plain":         true,
		"text/html":          true,
		"application/jsonl":  true,
		"application/json":   true,
	}

	if !validTypes[contentType] {
		return response.ValidationError(c, "Invalid file type. Supported: PDF, DOCX, TXT, HTML", map[string]interface{}{
			"contentType": contentType,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	result, err := h.service.Upload(c.Context(), middleware.GetUserID(c), file.Filename, contentType, f, file.Size)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, result)
}

// Delete handles DELETE /api/documents/:documentId
// @Summary      Delete source document
// @Description  Delete a previously uploaded document
// @Tags         Documents
// @Produce      json
// @Param        documentId path string true "Document ID"
// @Param        fileName   query string true "Original file name"
// @Success      204 "No Content"
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/documents/{documentId} [delete]
func (h *DocumentHandler) Delete(c *fiber.Ctx) error {
	documentID := c.Params("documentId")
	if documentID == "" {
		return response.ValidationError(c, "Document ID is required", nil)
	}
	fileName := c.Query("fileName")
	if fileName == "" {
		return response.ValidationError(c, "fileName is required", nil)
	}

	if err := h.service.DeleteDocument(c.Context(), middleware.GetUserID(c), documentID, fileName); err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.NoContent(c)
}
