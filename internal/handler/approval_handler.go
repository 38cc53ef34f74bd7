package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ukcas/accreditation-api/internal/service"
	appErrors "github.com/ukcas/accreditation-api/pkg/errors"
	"github.com/ukcas/accreditation-api/pkg/response"
)

// ApprovalHandler exposes the admin decision endpoint for pending
// certificates.
type ApprovalHandler struct {
	service      *service.ApprovalService
	verification *service.VerificationService
	metrics      *service.MetricsService
}

// NewApprovalHandler creates a new handler.
func NewApprovalHandler(svc *service.ApprovalService, verification *service.VerificationService, metrics *service.MetricsService) *ApprovalHandler {
	return &ApprovalHandler{service: svc, verification: verification, metrics: metrics}
}

// SetStatus godoc
// @Summary Approve or reject a certificate
// @Description Moves a PENDING certificate into a terminal state; approval captures the issuance cost
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Certificate ID"
// @Param payload body service.SetStatusRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/certificates/{id}/status [patch]
func (h *ApprovalHandler) SetStatus(c *gin.Context) {
	var req service.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	certificateID := c.Param("id")
	result, err := h.service.SetStatus(c.Request.Context(), certificateID, req)
	if err != nil {
		h.metrics.RecordTransition(string(req.Status), "error")
		response.Error(c, err)
		return
	}

	h.metrics.RecordTransition(string(req.Status), "ok")
	if h.verification != nil {
		h.verification.InvalidateCache(c.Request.Context(), certificateID)
	}

	response.JSON(c, http.StatusOK, result, nil)
}
