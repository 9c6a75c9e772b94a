// internal/handlers/bargaining/bargaining_handler.go
package bargaining

import (
	"net/http"
	"strings"

	"bargain-service/internal/domain/bargaining"
	"bargain-service/internal/middleware"
	"bargain-service/internal/pkg/response"
	service "bargain-service/internal/service/bargaining"

	"github.com/gin-gonic/gin"
)

type BargainingHandler struct {
	service *service.BargainingService
}

func NewBargainingHandler(svc *service.BargainingService) *BargainingHandler {
	return &BargainingHandler{service: svc}
}

// GetLimits returns the caller's quota
func (h *BargainingHandler) GetLimits(c *gin.Context) {
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	limits, err := h.service.GetLimits(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, "bargaining limits retrieved", limits)
}

// GetSettings lists settings, optionally filtered by ?product_ids=a,b
func (h *BargainingHandler) GetSettings(c *gin.Context) {
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	settings, err := h.service.GetSettings(c.Request.Context(), userID, splitIDs(c.Query("product_ids")))
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, "bargaining settings retrieved", settings)
}

// Enable turns bargaining on for one variant
func (h *BargainingHandler) Enable(c *gin.Context) {
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var req bargaining.EnableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	result, err := h.service.EnableFromCatalog(c.Request.Context(), userID, &req)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, "bargaining enabled", result)
}

// Disable turns bargaining off for one variant
func (h *BargainingHandler) Disable(c *gin.Context) {
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var req bargaining.DisableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	result, err := h.service.Disable(c.Request.Context(), userID, req.ProductID, req.VariantID)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, "bargaining disabled", result)
}

// BulkUpdate applies settings to many products at once
func (h *BargainingHandler) BulkUpdate(c *gin.Context) {
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var req bargaining.BulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	result, err := h.service.BulkUpdate(c.Request.Context(), userID, &req)
	if err != nil {
		response.Fail(c, err)
		return
	}

	message := "bargaining settings updated"
	if len(result.Skipped) > 0 {
		message = "bargaining settings updated, some variants were skipped"
	}
	response.Success(c, http.StatusOK, message, result)
}

func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
