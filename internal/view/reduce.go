package view

import (
	"pawcare/internal/models"
)

// Msg is a state transition request. The set is closed.
type Msg interface {
	isMsg()
}

// FetchStarted issues the next sequence token. The token is returned in
// the resulting State.LatestSeq.
type FetchStarted struct{}

type FetchSucceeded struct {
	Seq     uint64
	Booking models.Booking
}

type FetchFailed struct {
	Seq     uint64
	Kind    models.ErrorKind
	Message string
}

type SubmitStarted struct {
	Kind models.ActionKind
}

type SubmitFailed struct {
	Kind    models.ActionKind
	ErrKind models.ErrorKind
	Message string
}

// SubmitSucceeded ends the submission. A non-empty StatusPatch is applied to
// the booking before the refetch lands.
type SubmitSucceeded struct {
	Kind        models.ActionKind
	StatusPatch string
}

type NoticeShown struct {
	Kind    models.ErrorKind
	Message string
}

type NoticeDismissed struct{}

// Restored seeds the view from a persisted snapshot.
type Restored struct {
	Booking models.Booking
}

// Detached marks the screen as gone. Nothing is applied afterwards.
type Detached struct{}

func (FetchStarted) isMsg()    {}
func (FetchSucceeded) isMsg()  {}
func (FetchFailed) isMsg()     {}
func (SubmitStarted) isMsg()   {}
func (SubmitFailed) isMsg()    {}
func (SubmitSucceeded) isMsg() {}
func (NoticeShown) isMsg()     {}
func (NoticeDismissed) isMsg() {}
func (Restored) isMsg()        {}
func (Detached) isMsg()        {}

// Reduce is the pure transition function of the booking view.
func Reduce(prev State, msg Msg) State {
	if prev.Detached {
		return prev
	}

	next := prev
	switch m := msg.(type) {
	case FetchStarted:
		next.LatestSeq = prev.LatestSeq + 1
		if prev.Booking != nil {
			next.Refreshing = true
			return next
		}
		next.Phase = PhaseLoading
		next.Error = ""

	case FetchSucceeded:
		if m.Seq != prev.LatestSeq {
			return prev
		}
		next.Booking = m.Booking.Clone()
		next.Phase = PhaseReady
		next.Error = ""
		next.Refreshing = false

	case FetchFailed:
		if m.Seq != prev.LatestSeq {
			return prev
		}
		msgText := messageOr(m.Message)
		next.Refreshing = false
		if prev.Booking != nil {
			// устаревшее бронирование остаётся на экране
			next.Phase = PhaseReady
			next.Notice = &Notice{Kind: m.Kind, Message: msgText}
			return next
		}
		next.Phase = PhaseError
		next.Error = msgText

	case SubmitStarted:
		if !prev.Submission.IsIdle() || prev.Booking == nil {
			return prev
		}
		next.Submission = Submitting(m.Kind)
		next.Notice = nil

	case SubmitFailed:
		if kind, ok := prev.Submission.Active(); !ok || kind != m.Kind {
			return prev
		}
		next.Submission = Idle()
		next.Notice = &Notice{Kind: m.ErrKind, Message: messageOr(m.Message)}

	case SubmitSucceeded:
		if kind, ok := prev.Submission.Active(); !ok || kind != m.Kind {
			return prev
		}
		next.Submission = Idle()
		if m.StatusPatch != "" && prev.Booking != nil {
			b := prev.Booking.Clone()
			b.Status = m.StatusPatch
			next.Booking = b
		}

	case NoticeShown:
		next.Notice = &Notice{Kind: m.Kind, Message: messageOr(m.Message)}

	case NoticeDismissed:
		next.Notice = nil

	case Restored:
		if prev.Booking != nil {
			return prev
		}
		next.Booking = m.Booking.Clone()
		next.Phase = PhaseReady
		next.Error = ""

	case Detached:
		next.Detached = true
		next.Refreshing = false
	}
	return next
}

func messageOr(msg string) string {
	if msg == "" {
		return models.GenericErrorMessage
	}
	return msg
}
