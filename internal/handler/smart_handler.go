package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admission-portal-api/internal/dto"
	"github.com/noah-isme/admission-portal-api/internal/middleware"
	"github.com/noah-isme/admission-portal-api/internal/scoring"
	"github.com/noah-isme/admission-portal-api/internal/service"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
	"github.com/noah-isme/admission-portal-api/pkg/response"
)

type smartService interface {
	RecommendCourses(ctx context.Context, req dto.RecommendRequest) ([]scoring.ScoredCourse, error)
	MeritList(ctx context.Context, query dto.MeritListQuery) ([]scoring.MeritEntry, bool, error)
	ExportMeritList(ctx context.Context, query dto.MeritListQuery) (*service.MeritExport, error)
	PredictAdmission(ctx context.Context, req dto.PredictRequest) (*scoring.Prediction, error)
}

// SmartHandler exposes the scoring endpoints.
type SmartHandler struct {
	service smartService
}

// NewSmartHandler constructs the handler.
func NewSmartHandler(svc smartService) *SmartHandler {
	return &SmartHandler{service: svc}
}

// RecommendCourses godoc
// @Summary Recommend courses
// @Description Rank open courses against an applicant profile
// @Tags Smart
// @Accept json
// @Produce json
// @Param payload body dto.RecommendRequest true "Applicant profile"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /smart/recommend-courses [post]
func (h *SmartHandler) RecommendCourses(c *gin.Context) {
	var req dto.RecommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid recommendation payload"))
		return
	}
	results, err := h.service.RecommendCourses(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.RecommendResponse{Recommendations: results, Count: len(results)}, nil)
}

// MeritList godoc
// @Summary Merit list
// @Description Rank approved applications by merit score
// @Tags Smart
// @Produce json
// @Security BearerAuth
// @Param course query string false "Course id or code"
// @Param category query string false "Reservation category"
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /smart/merit-list [get]
func (h *SmartHandler) MeritList(c *gin.Context) {
	var query dto.MeritListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid merit list query"))
		return
	}
	entries, hit, err := h.service.MeritList(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, dto.MeritListResponse{MeritList: entries, Count: len(entries)}, nil, middleware.ExtractMeta(c))
}

// ExportMeritList godoc
// @Summary Export merit list
// @Description Download the merit list as CSV or PDF
// @Tags Smart
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param course query string false "Course id or code"
// @Param category query string false "Reservation category"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /smart/merit-list/export [get]
func (h *SmartHandler) ExportMeritList(c *gin.Context) {
	var query dto.MeritListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid merit list query"))
		return
	}
	file, err := h.service.ExportMeritList(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}

// PredictAdmission godoc
// @Summary Predict admission chance
// @Description Estimate the chance of admission from historical decisions
// @Tags Smart
// @Accept json
// @Produce json
// @Param payload body dto.PredictRequest true "Prediction input"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /smart/predict-admission [post]
func (h *SmartHandler) PredictAdmission(c *gin.Context) {
	var req dto.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid prediction payload"))
		return
	}
	prediction, err := h.service.PredictAdmission(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.PredictResponse{Prediction: *prediction}, nil)
}
