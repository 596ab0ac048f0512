package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pawcare/internal/models"

	"github.com/go-playground/validator/v10"
)

// DateLayouts are the date forms accepted from clients and from the backend.
var DateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		return IsDate(fl.Field().String())
	})
	return v
}

// IsDate reports whether s is a date in one of DateLayouts.
func IsDate(s string) bool {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

type ReschedulePayload struct {
	Date string `json:"rescheduledDate" validate:"required,isodate"`
	Time string `json:"rescheduledTime" validate:"required"`
}

type ReviewPayload struct {
	Rating int    `json:"rating" validate:"gte=1,lte=5"`
	Text   string `json:"review" validate:"max=2000"`
}

type SchedulePayload struct {
	Items []models.ScheduleItem `json:"nextScheduledVaccination" validate:"required,min=1,dive"`
}

// ActionRequest is one mutating call scoped to a booking. Exactly one payload
// matching Kind is set; cancel carries none.
type ActionRequest struct {
	Kind       models.ActionKind
	BookingID  string
	Reschedule *ReschedulePayload
	Review     *ReviewPayload
	Schedule   *SchedulePayload
}

func CancelRequest(bookingID string) ActionRequest {
	return ActionRequest{Kind: models.ActionCancel, BookingID: bookingID}
}

func RescheduleRequest(bookingID, date, clock string) ActionRequest {
	return ActionRequest{
		Kind:       models.ActionReschedule,
		BookingID:  bookingID,
		Reschedule: &ReschedulePayload{Date: strings.TrimSpace(date), Time: strings.TrimSpace(clock)},
	}
}

func ReviewRequest(bookingID string, rating int, text string) ActionRequest {
	return ActionRequest{
		Kind:      models.ActionSubmitReview,
		BookingID: bookingID,
		Review:    &ReviewPayload{Rating: rating, Text: strings.TrimSpace(text)},
	}
}

func ScheduleRequest(bookingID string, items []models.ScheduleItem) ActionRequest {
	return ActionRequest{
		Kind:      models.ActionUpdateSchedule,
		BookingID: bookingID,
		Schedule:  &SchedulePayload{Items: items},
	}
}

// Validate runs the local preconditions. A failing request must never reach
// the backend.
func Validate(req ActionRequest) error {
	if strings.TrimSpace(req.BookingID) == "" {
		return validationError(req.Kind, "Booking is not loaded yet")
	}

	var payload any
	switch req.Kind {
	case models.ActionCancel:
		return nil
	case models.ActionReschedule:
		if req.Reschedule == nil {
			return validationError(req.Kind, userMessage(req.Kind, "", ""))
		}
		payload = req.Reschedule
	case models.ActionSubmitReview:
		if req.Review == nil {
			return validationError(req.Kind, userMessage(req.Kind, "", ""))
		}
		payload = req.Review
	case models.ActionUpdateSchedule:
		if req.Schedule == nil {
			return validationError(req.Kind, userMessage(req.Kind, "", ""))
		}
		payload = req.Schedule
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAction, req.Kind)
	}

	err := validate.Struct(payload)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &Error{
			Kind:    models.ErrorValidation,
			Op:      string(req.Kind),
			Message: userMessage(req.Kind, verrs[0].Field(), verrs[0].Tag()),
			Err:     err,
		}
	}
	return &Error{Kind: models.ErrorValidation, Op: string(req.Kind), Message: userMessage(req.Kind, "", ""), Err: err}
}

func userMessage(kind models.ActionKind, field, tag string) string {
	switch kind {
	case models.ActionReschedule:
		if field == "Date" && tag == "isodate" {
			return "Please select a valid date"
		}
		return "Please select both date and time"
	case models.ActionSubmitReview:
		if field == "Text" {
			return "Review is too long"
		}
		return "Please select a rating"
	case models.ActionUpdateSchedule:
		if field == "Items" {
			return "Please select at least one vaccine"
		}
		return "Please fill in vaccine name and date"
	default:
		return "Invalid request"
	}
}

// RequestBody builds the JSON body of a mutating call. Nil means no body.
func RequestBody(spec DomainSpec, req ActionRequest) (map[string]any, error) {
	ep, err := spec.Endpoint(req.Kind)
	if err != nil {
		return nil, err
	}

	body := map[string]any{}
	switch req.Kind {
	case models.ActionCancel:
		if spec.CancelStatus != "" {
			body["status"] = spec.CancelStatus
		}
	case models.ActionReschedule:
		if req.Reschedule == nil {
			return nil, validationError(req.Kind, userMessage(req.Kind, "", ""))
		}
		body["rescheduledDate"] = req.Reschedule.Date
		body["rescheduledTime"] = req.Reschedule.Time
		if spec.RescheduleStatus != "" {
			body["status"] = spec.RescheduleStatus
		}
	case models.ActionSubmitReview:
		if req.Review == nil {
			return nil, validationError(req.Kind, userMessage(req.Kind, "", ""))
		}
		body["rating"] = req.Review.Rating
		body["review"] = req.Review.Text
	case models.ActionUpdateSchedule:
		if req.Schedule == nil {
			return nil, validationError(req.Kind, userMessage(req.Kind, "", ""))
		}
		body["nextScheduledVaccination"] = req.Schedule.Items
	}

	if ep.IDIn == IDInBody {
		body["id"] = req.BookingID
	}
	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}

func validationError(kind models.ActionKind, msg string) error {
	return &Error{Kind: models.ErrorValidation, Op: string(kind), Message: msg}
}
