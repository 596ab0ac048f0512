package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"pawcare/internal/client"
	"pawcare/internal/lifecycle"
	"pawcare/internal/models"
	"pawcare/internal/presenter"
	"pawcare/internal/service"
	"pawcare/internal/session"
	"pawcare/internal/view"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type openRequest struct {
	Domain    string `json:"domain" validate:"required"`
	BookingID string `json:"booking_id" validate:"required,max=128"`
}

type rescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type reviewRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

type scheduleRequest struct {
	Items []models.ScheduleItem `json:"items" validate:"max=20"`
}

// sessionView is what a booking screen renders.
type sessionView struct {
	SessionID string             `json:"session_id"`
	Domain    string             `json:"domain"`
	BookingID string             `json:"booking_id"`
	State     view.State         `json:"state"`
	Display   *presenter.Display `json:"display,omitempty"`
	Actions   lifecycle.Actions  `json:"actions"`
	Error     string             `json:"error,omitempty"`
	ErrorKind models.ErrorKind   `json:"error_kind,omitempty"`
}

func newSessionView(s *session.Session, st view.State) sessionView {
	rec := s.Reconciler()
	v := sessionView{
		SessionID: s.ID,
		Domain:    s.Domain,
		BookingID: s.BookingID,
		State:     st,
		Actions:   rec.Actions(),
	}
	if st.Booking != nil {
		d := presenter.Describe(rec.Spec(), st.Booking)
		v.Display = &d
	}
	return v
}

type bookingView struct {
	Booking models.Booking    `json:"booking"`
	Display presenter.Display `json:"display"`
	Actions lifecycle.Actions `json:"actions"`
}

func (s *HTTPServer) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sess, st, err := s.sessions.Open(r.Context(), req.Domain, req.BookingID, backendToken(r))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.logger.Debug().Str("client", clientName(r.Context())).Str("session_id", sess.ID).Msg("session opened over http")
	writeJSON(w, http.StatusCreated, newSessionView(sess, st))
}

func (s *HTTPServer) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(sess, sess.State()))
}

func (s *HTTPServer) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleResume(w http.ResponseWriter, r *http.Request) {
	sess, st, err := s.sessions.Resume(r.Context(), chi.URLParam(r, "id"), backendToken(r))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(sess, st))
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	st := sess.Reconciler().Refresh(sess.Context(r.Context()))
	writeJSON(w, http.StatusOK, newSessionView(sess, st))
}

func (s *HTTPServer) handleDismiss(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(sess, sess.Reconciler().DismissNotice()))
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, func(ctx context.Context, rec *service.Reconciler) (view.State, error) {
		return rec.Cancel(ctx)
	})
}

func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.act(w, r, func(ctx context.Context, rec *service.Reconciler) (view.State, error) {
		return rec.Reschedule(ctx, req.Date, req.Time)
	})
}

func (s *HTTPServer) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.act(w, r, func(ctx context.Context, rec *service.Reconciler) (view.State, error) {
		return rec.SubmitReview(ctx, req.Rating, req.Review)
	})
}

func (s *HTTPServer) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.act(w, r, func(ctx context.Context, rec *service.Reconciler) (view.State, error) {
		return rec.UpdateSchedule(ctx, req.Items)
	})
}

// act runs a mutating action and answers with the resulting view. Failed
// actions still carry the view so the screen can show the notice.
func (s *HTTPServer) act(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, rec *service.Reconciler) (view.State, error)) {
	id := chi.URLParam(r, "id")
	st, actErr := s.sessions.Act(r.Context(), id, fn)

	sess, err := s.sessions.Get(id)
	if err != nil {
		code := http.StatusNotFound
		if actErr != nil {
			code = statusFor(actErr)
		}
		writeError(w, code, "session not found")
		return
	}

	v := newSessionView(sess, st)
	if actErr != nil {
		v.Error = lifecycle.UserMessage(actErr)
		v.ErrorKind = lifecycle.KindOf(actErr)
		if errors.Is(actErr, session.ErrRateLimited) {
			v.Error = actErr.Error()
		}
		writeJSON(w, statusFor(actErr), v)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	spec, ok := s.registry.Get(chi.URLParam(r, "domain"))
	if !ok {
		writeError(w, http.StatusNotFound, session.ErrUnknownDomain.Error())
		return
	}

	ctx := r.Context()
	if tok := backendToken(r); tok != "" {
		ctx = client.WithToken(ctx, tok)
	}
	res := s.gateway.FetchBookings(ctx, spec)
	if !res.Success {
		writeJSON(w, statusForKind(res.Kind), map[string]any{"error": res.Error, "error_kind": res.Kind})
		return
	}

	out := make([]bookingView, 0, len(res.Data))
	for i := range res.Data {
		b := &res.Data[i]
		out = append(out, bookingView{
			Booking: *b,
			Display: presenter.Describe(spec, b),
			Actions: lifecycle.AvailableActions(spec, b),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"domain": spec.Name, "bookings": out})
}

func (s *HTTPServer) handleStatusBadge(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	palette := lifecycle.PaletteDefault
	if name := strings.TrimSpace(q.Get("domain")); name != "" {
		spec, ok := s.registry.Get(name)
		if !ok {
			writeError(w, http.StatusNotFound, session.ErrUnknownDomain.Error())
			return
		}
		palette = spec.Palette
	}
	status := q.Get("status")
	writeJSON(w, http.StatusOK, map[string]any{
		"status": lifecycle.Normalize(status),
		"badge":  presenter.Badge(palette, status),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusUnprocessableEntity, "invalid field "+strings.ToLower(verrs[0].Field()))
			return false
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

func backendToken(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderBackendToken))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrUnknownDomain):
		return http.StatusNotFound
	case errors.Is(err, session.ErrMissingBooking):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, lifecycle.ErrActionNotAllowed),
		errors.Is(err, lifecycle.ErrActionInFlight),
		errors.Is(err, lifecycle.ErrUnsupportedAction),
		errors.Is(err, lifecycle.ErrNotLoaded),
		errors.Is(err, lifecycle.ErrDetached):
		return http.StatusConflict
	}
	if kind := lifecycle.KindOf(err); kind != "" {
		return statusForKind(kind)
	}
	return http.StatusInternalServerError
}

func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrorValidation:
		return http.StatusUnprocessableEntity
	case models.ErrorServer, models.ErrorTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
