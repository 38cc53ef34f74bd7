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

// InstituteHandler exposes institute management and balance endpoints.
type InstituteHandler struct {
	service *service.InstituteService
	ledger  *service.LedgerService
}

// NewInstituteHandler creates a new handler.
func NewInstituteHandler(svc *service.InstituteService, ledger *service.LedgerService) *InstituteHandler {
	return &InstituteHandler{service: svc, ledger: ledger}
}

// List godoc
// @Summary List institutes
// @Tags Institutes
// @Produce json
// @Param status query string false "Accreditation status filter"
// @Param search query string false "Name or code search"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/institutes [get]
func (h *InstituteHandler) List(c *gin.Context) {
	var filter models.InstituteFilter
	filter.AccreditationStatus = models.AccreditationStatus(strings.ToUpper(c.Query("status")))
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Page, filter.PageSize = paginationFromQuery(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	institutes, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, institutes, pagination)
}

// Get godoc
// @Summary Get an institute
// @Tags Institutes
// @Produce json
// @Param id path string true "Institute ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /institutes/{id} [get]
func (h *InstituteHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)

	inst, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, inst, nil)
}

// Create godoc
// @Summary Register an institute
// @Tags Institutes
// @Accept json
// @Produce json
// @Param payload body service.CreateInstituteRequest true "Institute payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/institutes [post]
func (h *InstituteHandler) Create(c *gin.Context) {
	var req service.CreateInstituteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid institute payload"))
		return
	}

	inst, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, inst)
}

// Update godoc
// @Summary Update institute contact details
// @Tags Institutes
// @Accept json
// @Produce json
// @Param id path string true "Institute ID"
// @Param payload body service.UpdateInstituteRequest true "Institute payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/institutes/{id} [put]
func (h *InstituteHandler) Update(c *gin.Context) {
	var req service.UpdateInstituteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid institute payload"))
		return
	}

	inst, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, inst, nil)
}

// SetAccreditation godoc
// @Summary Record an accreditation decision
// @Tags Institutes
// @Accept json
// @Produce json
// @Param id path string true "Institute ID"
// @Param payload body service.SetAccreditationRequest true "Accreditation payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/institutes/{id}/accreditation [patch]
func (h *InstituteHandler) SetAccreditation(c *gin.Context) {
	var req service.SetAccreditationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid accreditation payload"))
		return
	}

	inst, err := h.service.SetAccreditation(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, inst, nil)
}

// TopUp godoc
// @Summary Credit an institute balance
// @Tags Institutes
// @Accept json
// @Produce json
// @Param id path string true "Institute ID"
// @Param payload body service.TopUpRequest true "Top-up payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/institutes/{id}/topup [post]
func (h *InstituteHandler) TopUp(c *gin.Context) {
	var req service.TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid top-up payload"))
		return
	}

	result, err := h.ledger.TopUp(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// Balance godoc
// @Summary Read an institute balance
// @Tags Institutes
// @Produce json
// @Param id path string true "Institute ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /institutes/{id}/balance [get]
func (h *InstituteHandler) Balance(c *gin.Context) {
	result, err := h.ledger.Balance(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}
