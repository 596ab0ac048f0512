package lifecycle

import (
	"strings"

	"pawcare/internal/models"
)

// Palette names used by the presenter.
const (
	PaletteDefault = "default"
	PaletteLab     = "lab"
	PaletteCare    = "care"
	PaletteCake    = "cake"
	PalettePetShop = "petshop"
)

var canonicalStatus = map[string]string{
	"pending":     models.StatusPending,
	"placed":      models.StatusPending,
	"booked":      models.StatusPending,
	"confirmed":   models.StatusConfirmed,
	"accepted":    models.StatusConfirmed,
	"rescheduled": models.StatusRescheduled,
	"dispatched":  models.StatusDispatched,
	"shipped":     models.StatusDispatched,
	"cancelled":   models.StatusCancelled,
	"canceled":    models.StatusCancelled,
	"completed":   models.StatusCompleted,
	"complete":    models.StatusCompleted,
	"delivered":   models.StatusDelivered,
	"rejected":    models.StatusRejected,
	"declined":    models.StatusRejected,
}

// Normalize maps a backend status to the canonical vocabulary. Unknown
// values come back trimmed but otherwise untouched.
func Normalize(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "_", " ")
	if c, ok := canonicalStatus[key]; ok {
		return c
	}
	return strings.TrimSpace(raw)
}

// IsTerminal reports whether no further reschedule/cancel is possible.
func IsTerminal(status string) bool {
	switch Normalize(status) {
	case models.StatusCancelled, models.StatusCompleted, models.StatusDelivered, models.StatusRejected:
		return true
	default:
		return false
	}
}

// IsFulfilled reports whether the booking reached its successful end state.
func IsFulfilled(status string) bool {
	switch Normalize(status) {
	case models.StatusCompleted, models.StatusDelivered:
		return true
	default:
		return false
	}
}

// Actions is the set of controls a screen may offer for a booking.
type Actions struct {
	Cancel         bool `json:"cancel"`
	Reschedule     bool `json:"reschedule"`
	SubmitReview   bool `json:"submit_review"`
	UpdateSchedule bool `json:"update_schedule"`
}

func (a Actions) Allows(kind models.ActionKind) bool {
	switch kind {
	case models.ActionCancel:
		return a.Cancel
	case models.ActionReschedule:
		return a.Reschedule
	case models.ActionSubmitReview:
		return a.SubmitReview
	case models.ActionUpdateSchedule:
		return a.UpdateSchedule
	default:
		return false
	}
}

func AvailableActions(spec DomainSpec, b *models.Booking) Actions {
	if b == nil {
		return Actions{}
	}
	terminal := IsTerminal(b.Status)
	return Actions{
		Cancel:         !terminal && spec.Supports(models.ActionCancel),
		Reschedule:     !terminal && spec.Supports(models.ActionReschedule),
		SubmitReview:   IsFulfilled(b.Status) && b.Review == nil && spec.Supports(models.ActionSubmitReview),
		UpdateSchedule: !isVoid(b.Status) && spec.Supports(models.ActionUpdateSchedule),
	}
}

// isVoid reports a booking that ended without being fulfilled.
func isVoid(status string) bool {
	switch Normalize(status) {
	case models.StatusCancelled, models.StatusRejected:
		return true
	default:
		return false
	}
}
