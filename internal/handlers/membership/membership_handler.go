// internal/handlers/membership/membership_handler.go
package membership

import (
	"net/http"

	"bargain-service/internal/domain/membership"
	"bargain-service/internal/middleware"
	"bargain-service/internal/pkg/response"
	service "bargain-service/internal/service/membership"

	"github.com/gin-gonic/gin"
)

type MembershipHandler struct {
	service *service.MembershipService
}

func NewMembershipHandler(svc *service.MembershipService) *MembershipHandler {
	return &MembershipHandler{service: svc}
}

// ListPlans is public
func (h *MembershipHandler) ListPlans(c *gin.Context) {
	plans, err := h.service.ListPlans(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, "plans retrieved", plans)
}

func (h *MembershipHandler) GetCurrent(c *gin.Context) {
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	overview, err := h.service.GetCurrentMembership(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, "membership retrieved", overview)
}

// ChangePlan switches immediately for free plans and returns a confirmation
// URL for paid ones.
func (h *MembershipHandler) ChangePlan(c *gin.Context) {
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var req membership.ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	result, err := h.service.ChangePlan(c.Request.Context(), userID, &req)
	if err != nil {
		response.Fail(c, err)
		return
	}

	if !result.Completed {
		response.Success(c, http.StatusAccepted, "confirm the charge to finish the plan change", result)
		return
	}
	response.Success(c, http.StatusOK, "membership plan changed", result)
}

func (h *MembershipHandler) ListHistory(c *gin.Context) {
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var q membership.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	entries, err := h.service.ListHistory(c.Request.Context(), userID, q.Limit)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, "membership history retrieved", entries)
}

func (h *MembershipHandler) ListEvents(c *gin.Context) {
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var q membership.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	events, err := h.service.ListBillingEvents(c.Request.Context(), userID, q.Limit)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, "billing events retrieved", events)
}
