package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"pawcare/internal/client"
	"pawcare/internal/domain"
	"pawcare/internal/events"
	"pawcare/internal/lifecycle"
	"pawcare/internal/metrics"
	"pawcare/internal/models"
	"pawcare/internal/view"

	"github.com/rs/zerolog"
)

// Deps are the collaborators shared by every reconciler.
type Deps struct {
	Gateway domain.BookingGateway
	Events  domain.EventPublisher
	Journal domain.ActionJournal
	Logger  *zerolog.Logger
}

// Reconciler keeps one booking screen in sync with the backend. It owns the
// screen's view store; nothing else writes to it.
type Reconciler struct {
	sessionID string
	spec      lifecycle.DomainSpec
	bookingID string
	store     *view.Store

	gateway domain.BookingGateway
	events  domain.EventPublisher
	journal domain.ActionJournal
	logger  zerolog.Logger

	// guards the check-then-start of an action
	mu sync.Mutex
}

func NewReconciler(sessionID string, spec lifecycle.DomainSpec, bookingID string, store *view.Store, deps Deps) *Reconciler {
	logger := zerolog.Nop()
	if deps.Logger != nil {
		logger = deps.Logger.With().
			Str("session_id", sessionID).
			Str("domain", spec.Name).
			Str("booking_id", bookingID).
			Logger()
	}
	if store == nil {
		store = view.NewStore()
	}
	return &Reconciler{
		sessionID: sessionID,
		spec:      spec,
		bookingID: bookingID,
		store:     store,
		gateway:   deps.Gateway,
		events:    deps.Events,
		journal:   deps.Journal,
		logger:    logger,
	}
}

func (r *Reconciler) SessionID() string          { return r.sessionID }
func (r *Reconciler) BookingID() string          { return r.bookingID }
func (r *Reconciler) Spec() lifecycle.DomainSpec { return r.spec }
func (r *Reconciler) Store() *view.Store         { return r.store }
func (r *Reconciler) State() view.State          { return r.store.State() }

// Actions returns what the screen may offer right now. Nothing is offered
// while an action is in flight.
func (r *Reconciler) Actions() lifecycle.Actions {
	st := r.store.State()
	if st.Detached || !st.Submission.IsIdle() {
		return lifecycle.Actions{}
	}
	return lifecycle.AvailableActions(r.spec, st.Booking)
}

// Load is the fetch issued when the screen mounts. It may be served from the
// booking cache.
func (r *Reconciler) Load(ctx context.Context) view.State {
	return r.fetch(ctx, "mount")
}

// Refresh refetches on demand. Overlapping refreshes are allowed; only the
// last issued one is applied. Refreshes always reach the backend.
func (r *Reconciler) Refresh(ctx context.Context) view.State {
	return r.fetch(client.WithFreshRead(ctx), "refresh")
}

func (r *Reconciler) fetch(ctx context.Context, reason string) view.State {
	started := r.store.Dispatch(view.FetchStarted{})
	if started.Detached {
		return started
	}
	seq := started.LatestSeq

	res := r.gateway.FetchBooking(ctx, r.spec, r.bookingID)

	var next view.State
	if res.Success {
		next = r.store.Dispatch(view.FetchSucceeded{Seq: seq, Booking: res.Data})
	} else {
		next = r.store.Dispatch(view.FetchFailed{Seq: seq, Kind: res.Kind, Message: res.Error})
	}

	if next.Detached {
		return next
	}
	if next.LatestSeq != seq {
		metrics.IncStale(r.spec.Name)
		r.logger.Debug().Uint64("seq", seq).Uint64("latest", next.LatestSeq).Msg("Discarded stale fetch result")
		return next
	}

	if !res.Success {
		r.logger.Warn().Str("reason", reason).Str("kind", string(res.Kind)).Str("error", res.Error).Msg("Booking fetch failed")
		return next
	}
	r.publish(events.EventBookingLoaded, next, "", "", "")
	return next
}

func (r *Reconciler) Cancel(ctx context.Context) (view.State, error) {
	return r.dispatch(ctx, lifecycle.CancelRequest(r.bookingID))
}

func (r *Reconciler) Reschedule(ctx context.Context, date, clock string) (view.State, error) {
	return r.dispatch(ctx, lifecycle.RescheduleRequest(r.bookingID, date, clock))
}

func (r *Reconciler) SubmitReview(ctx context.Context, rating int, text string) (view.State, error) {
	return r.dispatch(ctx, lifecycle.ReviewRequest(r.bookingID, rating, text))
}

func (r *Reconciler) UpdateSchedule(ctx context.Context, items []models.ScheduleItem) (view.State, error) {
	return r.dispatch(ctx, lifecycle.ScheduleRequest(r.bookingID, items))
}

// DismissNotice clears the transient notice.
func (r *Reconciler) DismissNotice() view.State {
	return r.store.Dispatch(view.NoticeDismissed{})
}

// Restore seeds an empty view from a persisted booking.
func (r *Reconciler) Restore(b models.Booking) view.State {
	return r.store.Dispatch(view.Restored{Booking: b})
}

// Unmount detaches the view. Responses still in flight are dropped on arrival.
func (r *Reconciler) Unmount() {
	r.store.Dispatch(view.Detached{})
}

func (r *Reconciler) dispatch(ctx context.Context, req lifecycle.ActionRequest) (view.State, error) {
	st, err := r.begin(ctx, req)
	if err != nil {
		return st, err
	}

	res := r.gateway.Send(ctx, r.spec, req)
	if !res.Success {
		st = r.store.Dispatch(view.SubmitFailed{Kind: req.Kind, ErrKind: res.Kind, Message: res.Error})
		r.logger.Warn().Str("action", string(req.Kind)).Str("kind", string(res.Kind)).Str("error", res.Error).Msg("Booking action failed")
		r.record(ctx, req, models.OutcomeFailed, res.Error)
		r.publish(events.EventActionFailed, st, req.Kind, res.Kind, res.Error)
		return st, &lifecycle.Error{Kind: res.Kind, Op: string(req.Kind), Message: res.Error}
	}

	var patch string
	if req.Kind == models.ActionCancel && r.spec.OptimisticCancel {
		patch = r.spec.CancelStatus
	}
	st = r.store.Dispatch(view.SubmitSucceeded{Kind: req.Kind, StatusPatch: patch})
	r.logger.Info().Str("action", string(req.Kind)).Msg("Booking action succeeded")
	r.record(ctx, req, models.OutcomeSucceeded, "")
	r.publish(events.TypeForAction(req.Kind), st, req.Kind, "", res.Data.Message)

	// the mutation response is not trusted as the new canonical state
	return r.fetch(client.WithFreshRead(ctx), "after_"+string(req.Kind)), nil
}

// begin runs every local precondition and marks the action in flight.
// On error no network call may follow.
func (r *Reconciler) begin(ctx context.Context, req lifecycle.ActionRequest) (view.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.store.State()
	switch {
	case st.Detached:
		return st, lifecycle.ErrDetached
	case st.Booking == nil:
		return st, lifecycle.ErrNotLoaded
	case !st.Submission.IsIdle():
		kind, _ := st.Submission.Active()
		return st, fmt.Errorf("%w: %s", lifecycle.ErrActionInFlight, kind)
	case !r.spec.Supports(req.Kind):
		return st, fmt.Errorf("%w: %s does not support %s", lifecycle.ErrUnsupportedAction, r.spec.Name, req.Kind)
	case !lifecycle.AvailableActions(r.spec, st.Booking).Allows(req.Kind):
		return st, fmt.Errorf("%w: %s while %s", lifecycle.ErrActionNotAllowed, req.Kind, lifecycle.Normalize(st.Booking.Status))
	}

	if err := lifecycle.Validate(req); err != nil {
		msg := lifecycle.UserMessage(err)
		st = r.store.Dispatch(view.NoticeShown{Kind: models.ErrorValidation, Message: msg})
		r.logger.Info().Str("action", string(req.Kind)).Str("reason", msg).Msg("Booking action rejected locally")
		r.record(ctx, req, models.OutcomeRejected, msg)
		r.publish(events.EventActionRejected, st, req.Kind, models.ErrorValidation, msg)
		return st, err
	}

	return r.store.Dispatch(view.SubmitStarted{Kind: req.Kind}), nil
}

func (r *Reconciler) record(ctx context.Context, req lifecycle.ActionRequest, outcome, errMsg string) {
	metrics.IncAction(r.spec.Name, string(req.Kind), outcome)
	if r.journal == nil {
		return
	}

	entry := &models.JournalEntry{
		SessionID: r.sessionID,
		Domain:    r.spec.Name,
		BookingID: r.bookingID,
		Action:    req.Kind,
		Payload:   payloadJSON(req),
		Outcome:   outcome,
		CreatedAt: time.Now().UTC(),
	}
	if errMsg != "" {
		entry.Error = &errMsg
	}
	if err := r.journal.Record(ctx, entry); err != nil {
		r.logger.Error().Err(err).Str("action", string(req.Kind)).Msg("journal record error")
	}
}

func (r *Reconciler) publish(eventType string, st view.State, kind models.ActionKind, errKind models.ErrorKind, msg string) {
	if r.events == nil || eventType == "" {
		return
	}

	payload := events.BookingEventPayload{
		SessionID: r.sessionID,
		Domain:    r.spec.Name,
		BookingID: r.bookingID,
		Action:    kind,
		ErrorKind: errKind,
		Message:   msg,
		At:        time.Now().UTC(),
	}
	if st.Booking != nil {
		payload.Status = st.Booking.Status
	}

	if err := r.events.PublishJSON(eventType, payload); err != nil {
		r.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func payloadJSON(req lifecycle.ActionRequest) string {
	var payload any
	switch {
	case req.Reschedule != nil:
		payload = req.Reschedule
	case req.Review != nil:
		payload = req.Review
	case req.Schedule != nil:
		payload = req.Schedule
	default:
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(data)
}
