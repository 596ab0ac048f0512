package models

import (
	"encoding/json"
	"time"
)

type Booking struct {
	ID              string `json:"id"`
	Domain          string `json:"domain,omitempty"`
	Status          string `json:"status"` // domain vocabulary, see lifecycle.Normalize
	ScheduledDate   string `json:"scheduledDate,omitempty"`
	ScheduledTime   string `json:"scheduledTime,omitempty"`
	RescheduledDate string `json:"rescheduledDate,omitempty"`
	RescheduledTime string `json:"rescheduledTime,omitempty"`

	Payment     *Payment `json:"payment,omitempty"`
	TotalAmount float64  `json:"totalAmount,omitempty"`
	MRP         float64  `json:"mrp,omitempty"`

	Review *Review `json:"review,omitempty"`

	// vaccine only
	NextScheduledVaccination []ScheduleItem `json:"nextScheduledVaccination,omitempty"`
	// petshop only, append-only
	StatusHistory []StatusHistoryEntry `json:"statusHistory,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

type Payment struct {
	Status string  `json:"status"`
	Amount float64 `json:"amount"`
}

type Review struct {
	Rating    int       `json:"rating"`
	Text      string    `json:"review,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

type ScheduleItem struct {
	VaccineName string `json:"vaccineName" validate:"required"`
	Date        string `json:"date" validate:"required,isodate"`
	Time        string `json:"time,omitempty"`
}

type StatusHistoryEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// UnmarshalJSON accepts both "id" and the backend's "_id".
func (b *Booking) UnmarshalJSON(data []byte) error {
	type plain Booking
	var wire struct {
		plain
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*b = Booking(wire.plain)
	if b.ID == "" {
		b.ID = wire.MongoID
	}
	return nil
}

// EffectiveSlot returns the slot to display: the rescheduled one when set,
// the original otherwise.
func (b *Booking) EffectiveSlot() (date, clock string) {
	if b.RescheduledDate != "" {
		date = b.RescheduledDate
		clock = b.RescheduledTime
		if clock == "" {
			clock = b.ScheduledTime
		}
		return date, clock
	}
	return b.ScheduledDate, b.ScheduledTime
}

// PaidAmount prefers the gateway record and falls back to the order total.
func (b *Booking) PaidAmount() float64 {
	if b.Payment != nil && b.Payment.Amount > 0 {
		return b.Payment.Amount
	}
	return b.TotalAmount
}

func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	if b.Payment != nil {
		p := *b.Payment
		c.Payment = &p
	}
	if b.Review != nil {
		r := *b.Review
		c.Review = &r
	}
	if b.NextScheduledVaccination != nil {
		c.NextScheduledVaccination = append([]ScheduleItem(nil), b.NextScheduledVaccination...)
	}
	if b.StatusHistory != nil {
		c.StatusHistory = append([]StatusHistoryEntry(nil), b.StatusHistory...)
	}
	return &c
}
