package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/slack-approval-bot/internal/audit"
)

// AuditLogProvider описывает контракт для чтения журнала решений.
type AuditLogProvider interface {
	FetchEvents(ctx context.Context, approvalID string, limit int) ([]audit.Event, error)
}

type AuditService struct {
	repo AuditLogProvider
}

func NewAuditService(repo AuditLogProvider) *AuditService {
	return &AuditService{repo: repo}
}

// FetchLogs возвращает историю заявки (или последние события, если approvalID пуст).
func (s *AuditService) FetchLogs(ctx context.Context, approvalID string, limit int) ([]audit.Event, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = DefaultListLimit
	}
	logs, err := s.repo.FetchEvents(ctx, approvalID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch logs: %w", err)
	}
	return logs, nil
}
