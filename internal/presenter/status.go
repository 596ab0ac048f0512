package presenter

import (
	"pawcare/internal/lifecycle"
	"pawcare/internal/models"
)

// StatusBadge is how a status is drawn on a booking card.
type StatusBadge struct {
	Background string `json:"background"`
	Text       string `json:"text"`
	Label      string `json:"label"`
}

var defaultBadge = StatusBadge{Background: "#e5e7eb", Text: "#374151", Label: "Processing"}

const white = "#ffffff"

var (
	amber   = StatusBadge{Background: "#f59e0b", Text: white}
	indigo  = StatusBadge{Background: "#6366f1", Text: white}
	violet  = StatusBadge{Background: "#8b5cf6", Text: white}
	sky     = StatusBadge{Background: "#0ea5e9", Text: white}
	red     = StatusBadge{Background: "#ef4444", Text: white}
	emerald = StatusBadge{Background: "#10b981", Text: white}
	slate   = StatusBadge{Background: "#64748b", Text: white}
)

func labelled(b StatusBadge, label string) StatusBadge {
	b.Label = label
	return b
}

var palettes = map[string]map[string]StatusBadge{
	lifecycle.PaletteLab: {
		models.StatusPending:     labelled(amber, "Pending"),
		models.StatusConfirmed:   labelled(indigo, "Confirmed"),
		models.StatusRescheduled: labelled(sky, "Rescheduled"),
		models.StatusCancelled:   labelled(red, "Cancelled"),
		models.StatusCompleted:   labelled(emerald, "Completed"),
	},
	lifecycle.PaletteCare: {
		models.StatusPending:     labelled(amber, "Pending"),
		models.StatusConfirmed:   labelled(violet, "Confirmed"),
		models.StatusRescheduled: labelled(sky, "Rescheduled"),
		models.StatusCancelled:   labelled(red, "Cancelled"),
		models.StatusCompleted:   labelled(emerald, "Completed"),
	},
	lifecycle.PaletteCake: {
		models.StatusPending:   labelled(amber, "Order Placed"),
		models.StatusConfirmed: labelled(violet, "Baking"),
		models.StatusCancelled: labelled(red, "Cancelled"),
		models.StatusDelivered: labelled(emerald, "Delivered"),
		models.StatusCompleted: labelled(emerald, "Delivered"),
	},
	lifecycle.PalettePetShop: {
		models.StatusPending:    labelled(amber, "Pending"),
		models.StatusConfirmed:  labelled(indigo, "Confirmed"),
		models.StatusDispatched: labelled(sky, "Dispatched"),
		models.StatusDelivered:  labelled(emerald, "Delivered"),
		models.StatusCancelled:  labelled(red, "Cancelled"),
		models.StatusRejected:   labelled(slate, "Rejected"),
	},
}

// Badge maps a status to its badge. It is total: unknown palettes and
// unknown statuses fall back to the neutral "Processing" badge.
func Badge(palette, status string) StatusBadge {
	table, ok := palettes[palette]
	if !ok {
		return defaultBadge
	}
	if b, ok := table[lifecycle.Normalize(status)]; ok {
		return b
	}
	return defaultBadge
}
