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

// CertificateHandler exposes the duplicate guard and issuance endpoints.
type CertificateHandler struct {
	service *service.CertificateService
	metrics *service.MetricsService
}

// NewCertificateHandler creates a new handler.
func NewCertificateHandler(svc *service.CertificateService, metrics *service.MetricsService) *CertificateHandler {
	return &CertificateHandler{service: svc, metrics: metrics}
}

// Check godoc
// @Summary Check for an existing certificate
// @Description Reports whether an active certificate already covers the student and course for the caller's institute
// @Tags Certificates
// @Produce json
// @Param student_id query string true "Student ID"
// @Param course_id query string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates/check [get]
func (h *CertificateHandler) Check(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.InstituteID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "no active institute in session"))
		return
	}

	studentID := strings.TrimSpace(c.Query("student_id"))
	courseID := strings.TrimSpace(c.Query("course_id"))

	summary, err := h.service.CheckExisting(c.Request.Context(), studentID, courseID, claims.InstituteID)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := gin.H{"exists": summary != nil}
	if summary != nil {
		payload["certificate"] = summary
	}
	response.JSON(c, http.StatusOK, payload, nil)
}

// Issue godoc
// @Summary Issue a certificate
// @Description Creates a PENDING certificate for the caller's institute
// @Tags Certificates
// @Accept json
// @Produce json
// @Param payload body service.IssueCertificateRequest true "Issuance payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates [post]
func (h *CertificateHandler) Issue(c *gin.Context) {
	claims := claimsFromContext(c)

	var req service.IssueCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid certificate payload"))
		return
	}

	cert, err := h.service.Issue(c.Request.Context(), claims, req)
	if err != nil {
		h.recordIssuance(err)
		response.Error(c, err)
		return
	}

	h.metrics.RecordIssuance("issued")
	response.Created(c, cert)
}

// List godoc
// @Summary List certificates
// @Description Lists certificates with filters; institute users see only their own
// @Tags Certificates
// @Produce json
// @Param status query string false "Status filter"
// @Param student_id query string false "Student filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates [get]
func (h *CertificateHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)

	var filter models.CertificateFilter
	filter.Status = models.CertificateStatus(strings.ToUpper(c.Query("status")))
	filter.StudentID = c.Query("student_id")
	if claims != nil && claims.Role == models.RoleAdmin {
		filter.InstituteID = c.Query("institute_id")
	}
	filter.Page, filter.PageSize = paginationFromQuery(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	certs, pagination, err := h.service.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, certs, pagination)
}

// Get godoc
// @Summary Get a certificate
// @Description Fetch a single certificate by ID
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates/{id} [get]
func (h *CertificateHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)

	cert, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, cert, nil)
}

func (h *CertificateHandler) recordIssuance(err error) {
	appErr := appErrors.FromError(err)
	switch appErr.Code {
	case appErrors.ErrDuplicateCert.Code:
		h.metrics.RecordIssuance("duplicate")
	case appErrors.ErrValidation.Code:
		h.metrics.RecordIssuance("validation_error")
	default:
		h.metrics.RecordIssuance("error")
	}
}
