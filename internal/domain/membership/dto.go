// internal/domain/membership/dto.go
package membership

type ChangePlanRequest struct {
	PlanID int64  `json:"plan_id" binding:"required"`
	Reason string `json:"reason"`
}

// ChangePlanResult is returned by a plan change. Free changes complete
// immediately; paid changes hand back a redirect to the billing provider.
type ChangePlanResult struct {
	Completed       bool            `json:"completed"`
	Membership      *UserMembership `json:"membership,omitempty"`
	ConfirmationURL string          `json:"confirmation_url,omitempty"`
	SessionID       string          `json:"session_id,omitempty"`
}

type ConfirmBillingRequest struct {
	UserID    int64  `form:"user_id" binding:"required"`
	PlanID    int64  `form:"plan_id" binding:"required"`
	ChargeID  string `form:"charge_id"`
	SessionID string `form:"session_id"`
	Signature string `form:"sig"`
}

type CancelBillingRequest struct {
	Reason string `json:"reason"`
}

type MembershipOverview struct {
	Membership *UserMembership `json:"membership,omitempty"`
	Plan       *Plan           `json:"plan"`
}

type ListQuery struct {
	Limit int `form:"limit"`
}
