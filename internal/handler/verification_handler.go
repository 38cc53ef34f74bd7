package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ukcas/accreditation-api/internal/service"
	appErrors "github.com/ukcas/accreditation-api/pkg/errors"
	"github.com/ukcas/accreditation-api/pkg/response"
)

// VerificationHandler serves the public verification endpoint. No
// authentication is required; a certificate ID is the only credential.
type VerificationHandler struct {
	service *service.VerificationService
	metrics *service.MetricsService
}

// NewVerificationHandler creates a new handler.
func NewVerificationHandler(svc *service.VerificationService, metrics *service.MetricsService) *VerificationHandler {
	return &VerificationHandler{service: svc, metrics: metrics}
}

// Verify godoc
// @Summary Verify a certificate
// @Description Resolves the certificate, institute and course for public display
// @Tags Verification
// @Produce json
// @Param certificateId path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /verify/{certificateId} [get]
func (h *VerificationHandler) Verify(c *gin.Context) {
	result, err := h.service.Verify(c.Request.Context(), c.Param("certificateId"))
	if err != nil {
		appErr := appErrors.FromError(err)
		if appErr.Code == appErrors.ErrCertificateNotFound.Code {
			h.metrics.RecordVerification("not_found")
		} else {
			h.metrics.RecordVerification("error")
		}
		response.Error(c, err)
		return
	}

	h.metrics.RecordVerification("ok")
	response.JSON(c, http.StatusOK, result, nil)
}
