package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/internal/service"
	appErrors "github.com/noah-isme/admission-portal-api/pkg/errors"
	"github.com/noah-isme/admission-portal-api/pkg/response"
)

type courseService interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
	Get(ctx context.Context, ref string) (*models.Course, error)
	Create(ctx context.Context, actor service.Actor, req models.CreateCourseRequest) (*models.Course, error)
	Update(ctx context.Context, actor service.Actor, id string, req models.UpdateCourseRequest) (*models.Course, error)
}

// CourseHandler manages the course catalogue.
type CourseHandler struct {
	service courseService
}

// NewCourseHandler constructs the handler.
func NewCourseHandler(svc courseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param search query string false "Name or code"
// @Param all query bool false "Include inactive courses (admin)"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	filter := models.CourseFilter{ActiveOnly: true, Search: c.Query("search")}
	if c.Query("all") == "true" && actorFromContext(c).IsAdmin() {
		filter.ActiveOnly = false
	}
	courses, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Get godoc
// @Summary Get course
// @Tags Courses
// @Produce json
// @Param ref path string true "Course id or code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{ref} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.service.Get(c.Request.Context(), c.Param("ref"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Create course
// @Tags Courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req models.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid course payload"))
		return
	}
	course, err := h.service.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param ref path string true "Course ID"
// @Param payload body models.UpdateCourseRequest true "Course patch"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{ref} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	var req models.UpdateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid course payload"))
		return
	}
	course, err := h.service.Update(c.Request.Context(), actorFromContext(c), c.Param("ref"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}
