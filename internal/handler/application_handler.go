package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admission-portal-api/internal/dto"
	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/internal/service"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
	"github.com/noah-isme/admission-portal-api/pkg/response"
)

type applicationService interface {
	Submit(ctx context.Context, actor service.Actor, req models.SubmitApplicationRequest) (*models.Application, error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.Application, error)
	ListMine(ctx context.Context, actor service.Actor) ([]models.Application, error)
	List(ctx context.Context, query dto.ApplicationListQuery) ([]models.Application, *response.Pagination, error)
	Stats(ctx context.Context) (*dto.ApplicationStatsResponse, error)
	UpdateStatus(ctx context.Context, actor service.Actor, id string, req dto.UpdateStatusRequest) (*models.Application, error)
	ConfirmAdmission(ctx context.Context, actor service.Actor, id string) (*dto.ConfirmAdmissionResponse, error)
	BulkApprove(ctx context.Context, actor service.Actor, req dto.BulkStatusRequest) (*dto.BulkStatusResponse, error)
	BulkReject(ctx context.Context, actor service.Actor, req dto.BulkStatusRequest) (*dto.BulkStatusResponse, error)
}

// ApplicationHandler exposes application submission and review endpoints.
type ApplicationHandler struct {
	service applicationService
}

// NewApplicationHandler constructs the handler.
func NewApplicationHandler(svc applicationService) *ApplicationHandler {
	return &ApplicationHandler{service: svc}
}

// Submit godoc
// @Summary Submit application
// @Tags Applications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.SubmitApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	var req models.SubmitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid application payload"))
		return
	}
	app, err := h.service.Submit(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// ListMine godoc
// @Summary List my applications
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /applications/me [get]
func (h *ApplicationHandler) ListMine(c *gin.Context) {
	apps, err := h.service.ListMine(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, nil)
}

// List godoc
// @Summary List applications
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status"
// @Param course query string false "Course id"
// @Param category query string false "Category"
// @Param search query string false "Name, email or application number"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	var query dto.ApplicationListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid query parameters"))
		return
	}
	apps, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, pagination)
}

// Stats godoc
// @Summary Application statistics
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /applications/stats [get]
func (h *ApplicationHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Get godoc
// @Summary Get application
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	app, err := h.service.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// UpdateStatus godoc
// @Summary Update application status
// @Tags Applications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param payload body dto.UpdateStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id}/status [put]
func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid status payload"))
		return
	}
	app, err := h.service.UpdateStatus(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// ConfirmAdmission godoc
// @Summary Confirm admission
// @Description Issue student id and roll number for an approved application
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id}/confirm-admission [post]
func (h *ApplicationHandler) ConfirmAdmission(c *gin.Context) {
	res, err := h.service.ConfirmAdmission(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// BulkApprove godoc
// @Summary Bulk approve
// @Tags Applications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.BulkStatusRequest true "Application ids"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications/bulk-approve [post]
func (h *ApplicationHandler) BulkApprove(c *gin.Context) {
	h.bulk(c, h.service.BulkApprove)
}

// BulkReject godoc
// @Summary Bulk reject
// @Tags Applications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.BulkStatusRequest true "Application ids"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications/bulk-reject [post]
func (h *ApplicationHandler) BulkReject(c *gin.Context) {
	h.bulk(c, h.service.BulkReject)
}

func (h *ApplicationHandler) bulk(c *gin.Context, apply func(context.Context, service.Actor, dto.BulkStatusRequest) (*dto.BulkStatusResponse, error)) {
	var req dto.BulkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid bulk payload"))
		return
	}
	res, err := apply(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
