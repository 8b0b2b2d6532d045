package audit

import "time"

// Kind — тип события жизненного цикла заявки.
type Kind string

const (
	KindSubmissionInvalid Kind = "submission_invalid"
	KindRequestSubmitted  Kind = "request_submitted"
	KindDeliveryFailed    Kind = "delivery_failed"
	KindDecisionRecorded  Kind = "decision_recorded"
	KindDecisionReverted  Kind = "decision_reverted"
	KindDuplicateDecision Kind = "duplicate_decision"
	KindRequestExpired    Kind = "request_expired"
)

type Event struct {
	ID         string `json:"id"`          // UUID события
	TraceID    string `json:"trace_id"`    // Сквозной ID запроса Slack
	ApprovalID string `json:"approval_id"` // Ссылка из токена решения
	Kind       Kind   `json:"kind"`

	ActorID   string `json:"actor_id"`   // Кто действовал (инициатор или согласующий)
	SubjectID string `json:"subject_id"` // Вторая сторона
	Decision  string `json:"decision,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}
