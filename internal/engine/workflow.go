package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/xela07ax/slack-approval-bot/internal/audit"
	"github.com/xela07ax/slack-approval-bot/internal/connectors"
	"github.com/xela07ax/slack-approval-bot/internal/domain"
	"github.com/xela07ax/slack-approval-bot/internal/policy"
)

// Messenger — исходящие вызовы Slack Web API.
type Messenger interface {
	OpenView(ctx context.Context, triggerID string, view slack.ModalViewRequest) error
	PostMessage(ctx context.Context, msg connectors.Message) (connectors.Posted, error)
	UpdateMessage(ctx context.Context, upd connectors.Update) error
}

// ApprovalStore хранит заявки между запросами Slack.
// ResolveApproval обязан быть атомарным: второй вызов для той же заявки возвращает domain.ErrAlreadyProcessed.
type ApprovalStore interface {
	CreateApproval(ctx context.Context, app *domain.ApprovalRequest) error
	GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	ResolveApproval(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID string, at time.Time) (*domain.ApprovalRequest, error)
	// ReopenApproval атомарно возвращает заявку из статуса from в PENDING.
	ReopenApproval(ctx context.Context, id string, from domain.ApprovalStatus) error
	DeleteApproval(ctx context.Context, id string) error
}

// SubmissionEvent — отправленная модалка.
type SubmissionEvent struct {
	RequesterID string
	Values      map[string]map[string]slack.BlockAction
}

// DecisionEvent — клик по кнопке Approve/Reject.
type DecisionEvent struct {
	ActionID  string
	UserID    string
	ChannelID string
	Message   slack.Message
}

// Workflow — три обработчика процесса согласования. Общего изменяемого состояния нет,
// всё, что нужно между запросами, лежит в ApprovalStore и в самих сообщениях Slack.
type Workflow struct {
	slack   Messenger
	store   ApprovalStore
	pdp     policy.Enforcer
	auditor audit.Auditor
	metrics *Metrics
	logger  *zap.Logger

	pendingTTL time.Duration
	now        func() time.Time
	newID      func() string
}

type Option func(*Workflow)

// WithPendingTTL включает ленивое истечение заявок при клике.
func WithPendingTTL(ttl time.Duration) Option {
	return func(w *Workflow) { w.pendingTTL = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(w *Workflow) { w.newID = newID }
}

func NewWorkflow(
	messenger Messenger,
	store ApprovalStore,
	pdp policy.Enforcer,
	auditor audit.Auditor,
	metrics *Metrics,
	logger *zap.Logger,
	opts ...Option,
) *Workflow {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	w := &Workflow{
		slack:   messenger,
		store:   store,
		pdp:     pdp,
		auditor: auditor,
		metrics: metrics,
		logger:  logger.Named("workflow"),
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleCommand открывает модалку заявки. Ack уже отправлен диспетчером,
// поэтому ошибка только логируется.
func (w *Workflow) HandleCommand(ctx context.Context, cmd slack.SlashCommand) {
	logger := w.logger.With(zap.String("user_id", cmd.UserID), zap.String("trace_id", extractTraceID(ctx)))

	if err := w.slack.OpenView(ctx, cmd.TriggerID, buildRequestModal()); err != nil {
		w.metrics.ErrorTotal.WithLabelValues("open_view").Inc()
		logger.Error("error opening modal", zap.Error(err))
		return
	}
	logger.Info("modal opened for user")
}

func (w *Workflow) audit(ctx context.Context, e audit.Event) {
	if w.auditor == nil {
		return
	}
	e.TraceID = extractTraceID(ctx)
	e.Timestamp = w.now()
	w.auditor.Log(e)
}

func (w *Workflow) dm(ctx context.Context, userID, text string) error {
	_, err := w.slack.PostMessage(ctx, connectors.Message{Channel: userID, Text: text})
	return err
}

// isRequestID отличает ссылку на заявку в хранилище от legacy ID пользователя.
func isRequestID(ref string) bool {
	_, err := uuid.Parse(ref)
	return err == nil
}
