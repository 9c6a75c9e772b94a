// internal/handlers/billing/billing_handler.go
package billing

import (
	"errors"
	"io"
	"net/http"

	"bargain-service/internal/domain/membership"
	"bargain-service/internal/middleware"
	"bargain-service/internal/pkg/response"
	service "bargain-service/internal/service/membership"

	"github.com/gin-gonic/gin"
)

// SignatureVerifier checks the signature on a confirmation redirect.
type SignatureVerifier interface {
	Verify(userID, planID int64, sessionID, signature string) bool
}

type BillingHandler struct {
	service  *service.MembershipService
	verifier SignatureVerifier
}

func NewBillingHandler(svc *service.MembershipService, verifier SignatureVerifier) *BillingHandler {
	return &BillingHandler{service: svc, verifier: verifier}
}

// Confirm is where the billing provider redirects the merchant after they
// approve a charge. It is not behind bearer auth; the signed query string
// identifies the user.
func (h *BillingHandler) Confirm(c *gin.Context) {
	var req membership.ConfirmBillingRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ValidationError(c, "invalid confirmation parameters", err)
		return
	}

	if !h.verifier.Verify(req.UserID, req.PlanID, req.SessionID, req.Signature) {
		response.Unauthorized(c, "confirmation link is invalid")
		return
	}

	active, err := h.service.ConfirmBilling(c.Request.Context(), service.ConfirmInput{
		UserID:    req.UserID,
		PlanID:    req.PlanID,
		ChargeID:  req.ChargeID,
		SessionID: req.SessionID,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, "billing confirmed", active)
}

// Cancel drops the caller back to the free plan
func (h *BillingHandler) Cancel(c *gin.Context) {
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var req membership.CancelBillingRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	result, err := h.service.CancelBilling(c.Request.Context(), userID, req.Reason)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, "membership cancelled", result)
}
