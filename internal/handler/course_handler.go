package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ukcas/accreditation-api/internal/models"
	"github.com/ukcas/accreditation-api/internal/service"
	appErrors "github.com/ukcas/accreditation-api/pkg/errors"
	"github.com/ukcas/accreditation-api/pkg/response"
)

// CourseHandler exposes course record endpoints.
type CourseHandler struct {
	service *service.CourseService
}

// NewCourseHandler creates a new handler.
func NewCourseHandler(svc *service.CourseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param search query string false "Name or code search"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)

	var filter models.CourseFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if claims != nil && claims.Role == models.RoleAdmin {
		filter.InstituteID = c.Query("institute_id")
	}
	filter.Page, filter.PageSize = paginationFromQuery(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	courses, pagination, err := h.service.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, courses, pagination)
}

// Get godoc
// @Summary Get a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Register a course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req service.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}

	course, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, course)
}

// Update godoc
// @Summary Update a course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.UpdateCourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	var req service.UpdateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}

	course, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Remove a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
