package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBooking_UnmarshalID(t *testing.T) {
	t.Run("MongoID", func(t *testing.T) {
		var b Booking
		require.NoError(t, json.Unmarshal([]byte(`{"_id":"abc","status":"confirmed"}`), &b))
		assert.Equal(t, "abc", b.ID)
		assert.Equal(t, "confirmed", b.Status)
	})

	t.Run("PlainIDWins", func(t *testing.T) {
		var b Booking
		require.NoError(t, json.Unmarshal([]byte(`{"id":"plain","_id":"mongo"}`), &b))
		assert.Equal(t, "plain", b.ID)
	})

	t.Run("Nested", func(t *testing.T) {
		raw := `{"_id":"v1","payment":{"status":"paid","amount":1499},
			"nextScheduledVaccination":[{"vaccineName":"Rabies","date":"2024-07-01"}],
			"statusHistory":[{"status":"Pending","timestamp":"2024-06-01T10:00:00Z"}]}`
		var b Booking
		require.NoError(t, json.Unmarshal([]byte(raw), &b))
		require.NotNil(t, b.Payment)
		assert.Equal(t, 1499.0, b.Payment.Amount)
		assert.Len(t, b.NextScheduledVaccination, 1)
		assert.Len(t, b.StatusHistory, 1)
	})

	t.Run("Invalid", func(t *testing.T) {
		var b Booking
		assert.Error(t, json.Unmarshal([]byte(`{"_id":`), &b))
	})
}

func TestBooking_EffectiveSlot(t *testing.T) {
	b := &Booking{ScheduledDate: "2024-06-01", ScheduledTime: "10:00"}
	d, tm := b.EffectiveSlot()
	assert.Equal(t, "2024-06-01", d)
	assert.Equal(t, "10:00", tm)

	b.RescheduledDate = "2024-06-03"
	b.RescheduledTime = "14:00"
	d, tm = b.EffectiveSlot()
	assert.Equal(t, "2024-06-03", d)
	assert.Equal(t, "14:00", tm)

	b.RescheduledTime = ""
	_, tm = b.EffectiveSlot()
	assert.Equal(t, "10:00", tm)
}

func TestBooking_PaidAmount(t *testing.T) {
	b := &Booking{TotalAmount: 500}
	assert.Equal(t, 500.0, b.PaidAmount())
	b.Payment = &Payment{Amount: 450}
	assert.Equal(t, 450.0, b.PaidAmount())
}

func TestBooking_Clone(t *testing.T) {
	assert.Nil(t, (*Booking)(nil).Clone())

	orig := &Booking{
		ID:            "1",
		Payment:       &Payment{Status: "paid"},
		Review:        &Review{Rating: 4},
		StatusHistory: []StatusHistoryEntry{{Status: "Pending", Timestamp: time.Now()}},
		NextScheduledVaccination: []ScheduleItem{
			{VaccineName: "DHPP", Date: "2024-07-01"},
		},
	}
	c := orig.Clone()
	c.Payment.Status = "refunded"
	c.Review.Rating = 1
	c.StatusHistory[0].Status = "Cancelled"
	c.NextScheduledVaccination[0].VaccineName = "Rabies"

	assert.Equal(t, "paid", orig.Payment.Status)
	assert.Equal(t, 4, orig.Review.Rating)
	assert.Equal(t, "Pending", orig.StatusHistory[0].Status)
	assert.Equal(t, "DHPP", orig.NextScheduledVaccination[0].VaccineName)
}

func TestResultHelpers(t *testing.T) {
	ok := OK(42)
	assert.True(t, ok.Success)
	assert.Equal(t, 42, ok.Data)

	f := Fail[int](ErrorServer, "")
	assert.False(t, f.Success)
	assert.Equal(t, GenericErrorMessage, f.Error)
	assert.Equal(t, ErrorServer, f.Kind)
}
