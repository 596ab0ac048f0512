package presenter

import (
	"math"
	"strconv"
	"strings"
	"time"

	"pawcare/internal/lifecycle"
	"pawcare/internal/models"
)

const displayDateLayout = "02 Jan 2006"

// FormatINR renders an amount the way en-IN currency formatting does:
// ₹1,23,456.00 (last three digits, then groups of two).
func FormatINR(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}

	paise := int64(math.Round(amount * 100))
	rupees := strconv.FormatInt(paise/100, 10)
	frac := paise % 100

	var b strings.Builder
	b.WriteString(sign)
	b.WriteString("₹")
	b.WriteString(groupIndian(rupees))
	b.WriteByte('.')
	if frac < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(frac, 10))
	return b.String()
}

func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]

	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	if head != "" {
		groups = append([]string{head}, groups...)
	}
	return strings.Join(groups, ",") + "," + tail
}

// FormatDate turns an ISO date into "01 Jun 2024". Input it cannot parse is
// returned as is.
func FormatDate(iso string) string {
	iso = strings.TrimSpace(iso)
	if iso == "" {
		return ""
	}
	for _, layout := range lifecycle.DateLayouts {
		if t, err := time.Parse(layout, iso); err == nil {
			return t.Format(displayDateLayout)
		}
	}
	return iso
}

// DiscountPercent returns the rounded discount of price against mrp.
func DiscountPercent(mrp, price float64) int {
	if mrp <= 0 || price <= 0 || price >= mrp {
		return 0
	}
	return int(math.Round((mrp - price) / mrp * 100))
}

// Display holds the derived fields a booking screen renders.
type Display struct {
	Badge           StatusBadge                 `json:"badge"`
	Status          string                      `json:"status"`
	Price           string                      `json:"price,omitempty"`
	DiscountPercent int                         `json:"discount_percent,omitempty"`
	Date            string                      `json:"date,omitempty"`
	Time            string                      `json:"time,omitempty"`
	Rescheduled     bool                        `json:"rescheduled"`
	PaymentStatus   string                      `json:"payment_status,omitempty"`
	Timeline        []models.StatusHistoryEntry `json:"timeline,omitempty"`
}

func Describe(spec lifecycle.DomainSpec, b *models.Booking) Display {
	if b == nil {
		return Display{Badge: defaultBadge}
	}

	date, clock := b.EffectiveSlot()
	d := Display{
		Badge:       Badge(spec.Palette, b.Status),
		Status:      lifecycle.Normalize(b.Status),
		Date:        FormatDate(date),
		Time:        clock,
		Rescheduled: b.RescheduledDate != "",
		Timeline:    lifecycle.UniqueStatusHistory(b.StatusHistory),
	}
	if amount := b.PaidAmount(); amount > 0 {
		d.Price = FormatINR(amount)
		d.DiscountPercent = DiscountPercent(b.MRP, amount)
	}
	if b.Payment != nil {
		d.PaymentStatus = b.Payment.Status
	}
	return d
}
