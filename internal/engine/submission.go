package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xela07ax/slack-approval-bot/internal/audit"
	"github.com/xela07ax/slack-approval-bot/internal/domain"
)

// HandleSubmission валидирует модалку, сохраняет заявку и отправляет её согласующему.
// Порядок побочных эффектов: (1) сообщение согласующему, (2) подтверждение инициатору.
func (w *Workflow) HandleSubmission(ctx context.Context, ev SubmissionEvent) {
	req := &domain.ApprovalRequest{
		ID:          w.newID(),
		RequesterID: ev.RequesterID,
		ApproverID:  ev.Values[ApproverBlockID][ApproverActionID].SelectedUser,
		Reason:      ev.Values[ReasonBlockID][ReasonActionID].Value,
		Status:      domain.StatusPending,
		CreatedAt:   w.now(),
	}

	logger := w.logger.With(
		zap.String("requester_id", req.RequesterID),
		zap.String("approver_id", req.ApproverID),
		zap.String("trace_id", extractTraceID(ctx)),
	)

	if err := w.pdp.Authorize(ctx, req); err != nil {
		w.rejectSubmission(ctx, logger, req, err)
		return
	}

	// 1. Persistence. Без хранилища деградируем до legacy-токена с ID инициатора.
	ref := req.ID
	if err := w.store.CreateApproval(ctx, req); err != nil {
		w.metrics.ErrorTotal.WithLabelValues("store").Inc()
		logger.Warn("approval store unavailable, falling back to requester token", zap.Error(err))
		ref = req.RequesterID
	}
	logger = logger.With(zap.String("approval_id", ref))

	msg, err := buildApproverMessage(req.RequesterID, req.ApproverID, req.Reason, ref)
	if err == nil {
		_, err = w.slack.PostMessage(ctx, msg)
	}
	if err != nil {
		w.metrics.Requests.WithLabelValues("delivery_failed").Inc()
		w.metrics.ErrorTotal.WithLabelValues("post_message").Inc()
		logger.Error("error sending approval request message", zap.Error(err))
		w.audit(ctx, audit.Event{
			Kind: audit.KindDeliveryFailed, ApprovalID: ref,
			ActorID: req.RequesterID, SubjectID: req.ApproverID, Error: err.Error(),
		})

		if ref == req.ID {
			if dErr := w.store.DeleteApproval(ctx, req.ID); dErr != nil {
				logger.Warn("failed to discard undelivered approval request", zap.Error(dErr))
			}
		}

		text := fmt.Sprintf("Sorry, there was an error sending your request to <@%s>. Please try again later.", req.ApproverID)
		if nErr := w.dm(ctx, req.RequesterID, text); nErr != nil {
			w.metrics.ErrorTotal.WithLabelValues("notify").Inc()
			logger.Error("failed to send failure notification", zap.Error(nErr))
		}
		return
	}

	w.metrics.Requests.WithLabelValues("submitted").Inc()
	w.audit(ctx, audit.Event{
		Kind: audit.KindRequestSubmitted, ApprovalID: ref,
		ActorID: req.RequesterID, SubjectID: req.ApproverID,
	})
	logger.Info("approval request sent")

	// 2. Подтверждение инициатору: отказ только логируется, шаг 1 не откатывается
	text := fmt.Sprintf("Your approval request has been sent to <@%s>.", req.ApproverID)
	if err := w.dm(ctx, req.RequesterID, text); err != nil {
		w.metrics.ErrorTotal.WithLabelValues("notify").Inc()
		logger.Error("failed to send confirmation to requester", zap.Error(err))
	}
}

func (w *Workflow) rejectSubmission(ctx context.Context, logger *zap.Logger, req *domain.ApprovalRequest, cause error) {
	w.metrics.Requests.WithLabelValues("invalid").Inc()
	logger.Error("form validation failed",
		zap.Bool("has_approver", req.ApproverID != ""),
		zap.Bool("has_reason", req.Reason != ""),
		zap.Error(cause))
	w.audit(ctx, audit.Event{
		Kind: audit.KindSubmissionInvalid, ActorID: req.RequesterID, SubjectID: req.ApproverID, Error: cause.Error(),
	})

	text := textValidationFailed
	switch {
	case errors.Is(cause, domain.ErrRequesterNotAllowed):
		text = textRequesterBlocked
	case errors.Is(cause, domain.ErrReservedUser):
		text = fmt.Sprintf(textReservedApprover, req.ApproverID)
	}
	if err := w.dm(ctx, req.RequesterID, text); err != nil {
		w.metrics.ErrorTotal.WithLabelValues("notify").Inc()
		logger.Error("failed to send validation error message", zap.Error(err))
	}
}
