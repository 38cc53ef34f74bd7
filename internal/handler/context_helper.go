package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ukcas/accreditation-api/internal/middleware"
	"github.com/ukcas/accreditation-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func paginationFromQuery(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20
	if p, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && p > 0 {
		page = p
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil && size > 0 {
		pageSize = size
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
