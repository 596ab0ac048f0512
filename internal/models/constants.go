package models

const (
	DomainLab     = "lab"
	DomainVaccine = "vaccine"
	DomainPhysio  = "physio"
	DomainCake    = "cake"
	DomainPetShop = "petshop"
)

// Canonical statuses. Backends send these in varying case and wording.
const (
	StatusPending     = "Pending"
	StatusConfirmed   = "Confirmed"
	StatusRescheduled = "Rescheduled"
	StatusDispatched  = "Dispatched"
	StatusCancelled   = "Cancelled"
	StatusCompleted   = "Completed"
	StatusDelivered   = "Delivered"
	StatusRejected    = "Rejected"
)

type ActionKind string

const (
	ActionCancel         ActionKind = "cancel"
	ActionReschedule     ActionKind = "reschedule"
	ActionSubmitReview   ActionKind = "submit_review"
	ActionUpdateSchedule ActionKind = "update_schedule"
)

type ErrorKind string

const (
	ErrorTransport  ErrorKind = "transport"
	ErrorServer     ErrorKind = "server"
	ErrorValidation ErrorKind = "validation"
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

const (
	// GenericErrorMessage is shown when the backend gives no message.
	GenericErrorMessage = "Something went wrong. Please try again."

	// DefaultSessionTTL время жизни снапшота сессии, секунды
	DefaultSessionTTL = 24 * 60 * 60

	// DefaultRefreshSchedule расписание фонового обновления открытых сессий
	DefaultRefreshSchedule = "@every 1m"

	// ActionLimit количество действий на сессию в окне
	ActionLimit = 10

	// ActionLimitWindow окно ограничения действий, секунды
	ActionLimitWindow = 60

	// BackendTimeout таймаут запросов к бэкенду, секунды
	BackendTimeout = 15
)
