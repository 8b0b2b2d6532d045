package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/xela07ax/slack-approval-bot/internal/audit"
	"github.com/xela07ax/slack-approval-bot/internal/connectors"
	"github.com/xela07ax/slack-approval-bot/internal/domain"
)

// decisionTarget — кому и что сообщить о решении.
type decisionTarget struct {
	approvalID  string
	requesterID string
	requestText string
	stored      bool // false для legacy-токена без записи в хранилище
}

// HandleDecision обрабатывает клик Approve/Reject: не более одного решения на заявку,
// уведомление инициатора, затем замена кнопок в сообщении согласующего.
func (w *Workflow) HandleDecision(ctx context.Context, ev DecisionEvent) {
	logger := w.logger.With(
		zap.String("approver_id", ev.UserID),
		zap.String("action_id", ev.ActionID),
		zap.String("trace_id", extractTraceID(ctx)),
	)

	tok, err := domain.ParseDecisionToken(ev.ActionID)
	if err != nil {
		logger.Error("unexpected decision action", zap.Error(err))
		return
	}
	logger = logger.With(zap.String("decision", string(tok.Decision)))

	target, ok := w.resolveTarget(ctx, logger, tok, ev)
	if !ok {
		return
	}
	logger = logger.With(zap.String("requester_id", target.requesterID), zap.String("approval_id", target.approvalID))

	notified, err := w.announceDecision(ctx, logger, tok.Decision, target, ev)
	if !notified && target.stored && w.reopen(ctx, logger, tok, target, ev, err) {
		return
	}

	w.metrics.Decisions.WithLabelValues(string(tok.Decision)).Inc()
	e := audit.Event{
		Kind: audit.KindDecisionRecorded, ApprovalID: target.approvalID,
		ActorID: ev.UserID, SubjectID: target.requesterID, Decision: string(tok.Decision),
	}
	if err != nil {
		e.Error = err.Error()
	}
	w.audit(ctx, e)
}

// resolveTarget переводит заявку в конечный статус. При false дальше ничего делать не нужно.
func (w *Workflow) resolveTarget(ctx context.Context, logger *zap.Logger, tok domain.DecisionToken, ev DecisionEvent) (decisionTarget, bool) {
	req, err := w.store.GetApproval(ctx, tok.Ref)
	switch {
	case err == nil:
		now := w.now()
		if req.IsExpired(w.pendingTTL, now) {
			w.expire(ctx, logger, req, ev, now)
			return decisionTarget{}, false
		}

		resolved, err := w.store.ResolveApproval(ctx, req.ID, tok.Decision.Status(), ev.UserID, now)
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			w.metrics.Decisions.WithLabelValues("duplicate").Inc()
			logger.Info("duplicate decision ignored", zap.String("approval_id", req.ID))
			w.audit(ctx, audit.Event{
				Kind: audit.KindDuplicateDecision, ApprovalID: req.ID,
				ActorID: ev.UserID, SubjectID: req.RequesterID, Decision: string(tok.Decision),
			})
			return decisionTarget{}, false
		}
		if err != nil {
			w.metrics.ErrorTotal.WithLabelValues("store").Inc()
			logger.Error("failed to persist decision", zap.String("approval_id", req.ID), zap.Error(err))
			return decisionTarget{}, false
		}
		return decisionTarget{
			approvalID:  resolved.ID,
			requesterID: resolved.RequesterID,
			requestText: quoteRequest(resolved.Reason),
			stored:      true,
		}, true

	case errors.Is(err, domain.ErrNotFound) && isRequestID(tok.Ref):
		// Заявка удалена по retention или потеряна с in-memory хранилищем
		w.metrics.Decisions.WithLabelValues("unknown").Inc()
		logger.Warn("decision for unknown approval request", zap.String("approval_id", tok.Ref))
		annotation := "This request is no longer available. No one was notified."
		w.rewriteApproverMessage(ctx, logger, ev, "Request unavailable.", annotation)
		return decisionTarget{}, false

	case errors.Is(err, domain.ErrNotFound):
		// legacy-токен: ссылка — это ID инициатора, текст берём из самого сообщения
		return decisionTarget{
			approvalID:  tok.Ref,
			requesterID: tok.Ref,
			requestText: extractRequestText(ev.Message.Blocks.BlockSet),
		}, true

	default:
		w.metrics.ErrorTotal.WithLabelValues("store").Inc()
		logger.Error("failed to load approval request", zap.String("approval_id", tok.Ref), zap.Error(err))
		return decisionTarget{}, false
	}
}

// announceDecision возвращает notified=true, если инициатор получил сообщение о решении.
func (w *Workflow) announceDecision(ctx context.Context, logger *zap.Logger, d domain.Decision, target decisionTarget, ev DecisionEvent) (bool, error) {
	// 1. Уведомляем инициатора
	text := decisionNotificationText(target.requestText, d, ev.UserID)
	_, err := w.slack.PostMessage(ctx, connectors.Message{
		Channel: target.requesterID,
		Text:    text,
		Blocks: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
		},
	})
	if err != nil {
		w.metrics.ErrorTotal.WithLabelValues("notify").Inc()
		logger.Error("error processing approval decision: requester not notified", zap.Error(err))
		return false, err
	}
	logger.Info("notified requester of decision")

	// 2. Убираем кнопки у согласующего
	annotation := decisionAnnotation(d, target.requesterID, w.now())
	if err := w.rewriteApproverMessage(ctx, logger, ev, fmt.Sprintf("Request %s.", d.Label()), annotation); err != nil {
		return true, err
	}
	logger.Info("updated original message for approver")
	return true, nil
}

// reopen возвращает заявку в PENDING, когда инициатор не узнал о решении:
// кнопки у согласующего остаются, и повторный клик после восстановления Slack
// проходит как первый. false — откатить не удалось, решение остаётся в силе.
func (w *Workflow) reopen(ctx context.Context, logger *zap.Logger, tok domain.DecisionToken, target decisionTarget, ev DecisionEvent, cause error) bool {
	if err := w.store.ReopenApproval(ctx, target.approvalID, tok.Decision.Status()); err != nil {
		w.metrics.ErrorTotal.WithLabelValues("store").Inc()
		logger.Error("failed to reopen approval after notify failure", zap.Error(err))
		return false
	}

	w.metrics.Decisions.WithLabelValues("reverted").Inc()
	logger.Warn("decision reverted, approval request is pending again")
	w.audit(ctx, audit.Event{
		Kind: audit.KindDecisionReverted, ApprovalID: target.approvalID,
		ActorID: ev.UserID, SubjectID: target.requesterID, Decision: string(tok.Decision), Error: cause.Error(),
	})
	return true
}

func (w *Workflow) expire(ctx context.Context, logger *zap.Logger, req *domain.ApprovalRequest, ev DecisionEvent, now time.Time) {
	logger = logger.With(zap.String("approval_id", req.ID), zap.String("requester_id", req.RequesterID))

	if _, err := w.store.ResolveApproval(ctx, req.ID, domain.StatusExpired, "", now); err != nil {
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			w.metrics.Decisions.WithLabelValues("duplicate").Inc()
			logger.Info("expired request already resolved")
			return
		}
		w.metrics.ErrorTotal.WithLabelValues("store").Inc()
		logger.Error("failed to expire approval request", zap.Error(err))
		return
	}

	w.metrics.Decisions.WithLabelValues("expired").Inc()
	w.audit(ctx, audit.Event{
		Kind: audit.KindRequestExpired, ApprovalID: req.ID, ActorID: ev.UserID, SubjectID: req.RequesterID,
	})
	logger.Info("approval request expired before decision", zap.Duration("ttl", w.pendingTTL))

	text := fmt.Sprintf("Your approval request to <@%s> expired without a decision:\n```%s```", req.ApproverID, req.Reason)
	if err := w.dm(ctx, req.RequesterID, text); err != nil {
		w.metrics.ErrorTotal.WithLabelValues("notify").Inc()
		logger.Error("failed to notify requester about expiry", zap.Error(err))
	}

	annotation := fmt.Sprintf("This request expired on %s. Requester <@%s> notified.", slackDate(now), req.RequesterID)
	w.rewriteApproverMessage(ctx, logger, ev, "Request expired.", annotation)
}

func (w *Workflow) rewriteApproverMessage(ctx context.Context, logger *zap.Logger, ev DecisionEvent, text, annotation string) error {
	err := w.slack.UpdateMessage(ctx, connectors.Update{
		Channel:   ev.ChannelID,
		Timestamp: ev.Message.Timestamp,
		Text:      text,
		Blocks:    resolvedBlocks(ev.Message.Blocks.BlockSet, annotation),
	})
	if err != nil {
		w.metrics.ErrorTotal.WithLabelValues("update_message").Inc()
		logger.Error("failed to update approver message", zap.Error(err))
	}
	return err
}
