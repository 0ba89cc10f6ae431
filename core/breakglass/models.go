package breakglass

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
)

// ReasonExpired is the deactivation reason of grants ended by ExpireStale.
const ReasonExpired = "expired"

// Grant temporarily elevates a user to admin.
type Grant struct {
	ID                 string     `json:"id"`
	Ticket             string     `json:"ticket"`
	UserID             string     `json:"user_id"`
	GrantedBy          string     `json:"granted_by"`
	Reason             string     `json:"reason"`
	SelfPromoted       bool       `json:"self_promoted"`
	ActivatedAt        time.Time  `json:"activated_at"` // UTC
	ExpiresAt          time.Time  `json:"expires_at"`   // UTC
	DeactivatedAt      *time.Time `json:"deactivated_at"`
	DeactivatedBy      string     `json:"deactivated_by,omitempty"`
	DeactivationReason string     `json:"deactivation_reason,omitempty"`
}

// IsActive reports whether g elevates its user at `now`.
func (g Grant) IsActive(now time.Time) bool {
	return g.DeactivatedAt == nil && !now.Before(g.ActivatedAt) && now.Before(g.ExpiresAt)
}

// Activation requests a grant for UserID (the actor when empty). Duration is in minutes.
type Activation struct {
	UserID   string `json:"user_id"`
	Reason   string `json:"reason" validate:"required,max=500"`
	Duration int    `json:"duration" validate:"omitempty,gt=0"`
}

func (a *Activation) Validate(validate *validator.Validate) error {
	a.UserID = core.CleanString(a.UserID)
	a.Reason = core.CleanString(a.Reason)
	return validate.Struct(a)
}

type Deactivation struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (d *Deactivation) Validate(validate *validator.Validate) error {
	d.Reason = core.CleanString(d.Reason)
	return validate.Struct(d)
}

type QueryFilter struct {
	UserID     string `query:"user_id"`
	ActiveOnly bool   `query:"active"`
}
