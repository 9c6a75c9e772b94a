// internal/domain/membership/entity.go
package membership

import "time"

// FreePlanSlug identifies the fallback tier every user lands on when no paid
// membership is active.
const FreePlanSlug = "free"

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

type ChangeType string

const (
	ChangeUpgrade   ChangeType = "upgrade"
	ChangeDowngrade ChangeType = "downgrade"
	ChangeSwitch    ChangeType = "switch"
)

type EventType string

const (
	EventChangeInitiated  EventType = "membership_change_initiated"
	EventPendingCreated   EventType = "membership_pending_created"
	EventChargeCreated    EventType = "charge_created"
	EventBillingConfirmed EventType = "membership_billing_confirmed"
	EventChargeRejected   EventType = "membership_charge_rejected"
	EventCancelled        EventType = "membership_cancelled"
	EventChanged          EventType = "membership_changed"
)

// Plan is immutable reference data seeded by migrations.
type Plan struct {
	ID           int64     `json:"id" db:"id"`
	Slug         string    `json:"slug" db:"slug"`
	Name         string    `json:"name" db:"name"`
	Price        float64   `json:"price" db:"price"`
	ProductLimit int       `json:"product_limit" db:"product_limit"`
	TrialDays    int       `json:"trial_days" db:"trial_days"`
	Features     []string  `json:"features" db:"features"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// IsFree reports whether switching to the plan skips the billing provider.
func (p *Plan) IsFree() bool {
	return p.Price <= 0
}

// IsUnlimited reports whether the plan caps bargaining-enabled products.
func (p *Plan) IsUnlimited() bool {
	return p.ProductLimit == 0
}

type UserMembership struct {
	ID               int64                  `json:"id" db:"id"`
	UserID           int64                  `json:"user_id" db:"user_id"`
	PlanID           int64                  `json:"plan_id" db:"plan_id"`
	Status           Status                 `json:"status" db:"status"`
	StartDate        time.Time              `json:"start_date" db:"start_date"`
	EndDate          *time.Time             `json:"end_date,omitempty" db:"end_date"`
	NextBillingDate  *time.Time             `json:"next_billing_date,omitempty" db:"next_billing_date"`
	TrialEndDate     *time.Time             `json:"trial_end_date,omitempty" db:"trial_end_date"`
	BillingStatus    *string                `json:"billing_status,omitempty" db:"billing_status"`
	BillingDetails   map[string]interface{} `json:"billing_details,omitempty" db:"billing_details"`
	ExternalChargeID *string                `json:"external_charge_id,omitempty" db:"external_charge_id"`
	SessionID        *string                `json:"session_id,omitempty" db:"session_id"`
	CreatedAt        time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at" db:"updated_at"`
}

type HistoryEntry struct {
	ID         int64      `json:"id" db:"id"`
	UserID     int64      `json:"user_id" db:"user_id"`
	FromPlanID *int64     `json:"from_plan_id,omitempty" db:"from_plan_id"`
	ToPlanID   int64      `json:"to_plan_id" db:"to_plan_id"`
	ChangeDate time.Time  `json:"change_date" db:"change_date"`
	Reason     *string    `json:"reason,omitempty" db:"reason"`
	ChangeType ChangeType `json:"change_type" db:"change_type"`
}

type BillingEvent struct {
	ID        int64                  `json:"id" db:"id"`
	UserID    int64                  `json:"user_id" db:"user_id"`
	EventType EventType              `json:"event_type" db:"event_type"`
	ChargeID  *string                `json:"charge_id,omitempty" db:"charge_id"`
	PlanID    *int64                 `json:"plan_id,omitempty" db:"plan_id"`
	Status    string                 `json:"status" db:"status"`
	SessionID *string                `json:"session_id,omitempty" db:"session_id"`
	Details   map[string]interface{} `json:"details,omitempty" db:"details"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}

// ChargeDetails is what the billing provider reports about a recurring charge.
// Every field is optional; callers keep whatever is already stored when a
// field is missing.
type ChargeDetails struct {
	ChargeID    string                 `json:"charge_id"`
	Status      string                 `json:"status,omitempty"`
	BillingOn   *time.Time             `json:"billing_on,omitempty"`
	TrialEndsOn *time.Time             `json:"trial_ends_on,omitempty"`
	Raw         map[string]interface{} `json:"raw,omitempty"`
}

// Charge is the provider's answer to a charge request.
type Charge struct {
	ChargeID        string `json:"charge_id"`
	ConfirmationURL string `json:"confirmation_url"`
	Status          string `json:"status"`
}

// Activation carries what is stored when a pending membership goes active.
// Nil fields keep the value already on the row.
type Activation struct {
	StartDate       time.Time
	ChargeID        *string
	SessionID       *string
	NextBillingDate *time.Time
	TrialEndDate    *time.Time
	BillingStatus   *string
	BillingDetails  map[string]interface{}
}
