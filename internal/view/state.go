package view

import (
	"fmt"
	"strings"

	"pawcare/internal/models"
	"pawcare/internal/store"
)

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseError   Phase = "error"
)

// Submission is either idle or submitting exactly one action kind.
// The zero value is idle.
type Submission struct {
	kind models.ActionKind
}

func Idle() Submission { return Submission{} }

func Submitting(kind models.ActionKind) Submission { return Submission{kind: kind} }

func (s Submission) IsIdle() bool { return s.kind == "" }

// Active reports the action in flight, if any.
func (s Submission) Active() (models.ActionKind, bool) {
	return s.kind, s.kind != ""
}

func (s Submission) String() string {
	if s.IsIdle() {
		return "idle"
	}
	return fmt.Sprintf("submitting(%s)", s.kind)
}

func (s Submission) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Submission) UnmarshalText(text []byte) error {
	raw := string(text)
	if raw == "" || raw == "idle" {
		*s = Idle()
		return nil
	}
	kind, ok := strings.CutPrefix(raw, "submitting(")
	if !ok || !strings.HasSuffix(kind, ")") {
		return fmt.Errorf("invalid submission %q", raw)
	}
	*s = Submitting(models.ActionKind(strings.TrimSuffix(kind, ")")))
	return nil
}

// Notice is a transient message shown over the booking view.
type Notice struct {
	Kind    models.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// State is the local view of one booking screen.
// Booking is treated as immutable: reducers replace it, never edit it.
type State struct {
	Phase      Phase           `json:"phase"`
	Booking    *models.Booking `json:"booking,omitempty"`
	Error      string          `json:"error,omitempty"`
	Refreshing bool            `json:"refreshing"`
	Submission Submission      `json:"submission"`
	Notice     *Notice         `json:"notice,omitempty"`
	LatestSeq  uint64          `json:"latest_seq"`
	Detached   bool            `json:"detached"`
}

func (s State) Loaded() bool { return s.Booking != nil }

// Loading is true while the very first fetch (or a retry after an error) is pending.
func (s State) Loading() bool { return s.Phase == PhaseLoading }

// Store is the container one screen session owns.
type Store = store.Store[State, Msg]

func NewStore() *Store {
	return store.New[State, Msg](State{Phase: PhaseIdle}, Reduce)
}
