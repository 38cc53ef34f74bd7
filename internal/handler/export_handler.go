package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ukcas/accreditation-api/internal/models"
	"github.com/ukcas/accreditation-api/internal/service"
	"github.com/ukcas/accreditation-api/pkg/response"
)

// ExportHandler serves register exports and certificate documents.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler creates a new handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Register godoc
// @Summary Export the certificate register
// @Description Downloads the certificate register as CSV or PDF
// @Tags Exports
// @Produce application/octet-stream
// @Param format query string false "csv or pdf" default(csv)
// @Param status query string false "Status filter"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates/export [get]
func (h *ExportHandler) Register(c *gin.Context) {
	claims := claimsFromContext(c)

	var filter models.CertificateFilter
	filter.Status = models.CertificateStatus(strings.ToUpper(c.Query("status")))
	if claims != nil && claims.Role == models.RoleAdmin {
		filter.InstituteID = c.Query("institute_id")
	}

	result, err := h.service.Register(c.Request.Context(), claims, filter, strings.ToLower(c.Query("format")))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+result.FileName+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

// DocumentLink godoc
// @Summary Issue a certificate document link
// @Description Renders the printable document for an approved certificate and returns a signed download token
// @Tags Exports
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /certificates/{id}/document [post]
func (h *ExportHandler) DocumentLink(c *gin.Context) {
	link, err := h.service.IssueDocumentLink(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download a certificate document
// @Description Streams the document identified by a signed token; no session required
// @Tags Exports
// @Produce application/pdf
// @Param token path string true "Signed document token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	f, name, err := h.service.OpenDocument(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, f)
}
