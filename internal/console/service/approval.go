package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xela07ax/slack-approval-bot/internal/domain"
)

// DefaultListLimit — размер очереди в консоли, если limit не передан.
const DefaultListLimit = 100

const maxListLimit = 1000

var ErrBadStatus = errors.New("unknown approval status")

// ApprovalRepository — часть хранилища заявок, нужная консоли (только чтение).
type ApprovalRepository interface {
	GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	FindApprovals(ctx context.Context, status domain.ApprovalStatus, limit int) ([]*domain.ApprovalRequest, error)
}

type ApprovalService struct {
	repo ApprovalRepository
}

func NewApprovalService(repo ApprovalRepository) *ApprovalService {
	return &ApprovalService{repo: repo}
}

func (s *ApprovalService) GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	app, err := s.repo.GetApproval(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("approval_service: %w", err)
	}
	return app, nil
}

// GetApprovals: status "ALL" — без фильтра, пустой — PENDING.
func (s *ApprovalService) GetApprovals(ctx context.Context, status string, limit int) ([]*domain.ApprovalRequest, error) {
	st, err := parseStatus(status)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	list, err := s.repo.FindApprovals(ctx, st, limit)
	if err != nil {
		return nil, fmt.Errorf("approval_service: failed to list approvals: %w", err)
	}
	return list, nil
}

func parseStatus(raw string) (domain.ApprovalStatus, error) {
	switch st := domain.ApprovalStatus(strings.ToUpper(strings.TrimSpace(raw))); st {
	case "":
		return domain.StatusPending, nil
	case "ALL":
		return "", nil
	case domain.StatusPending, domain.StatusApproved, domain.StatusRejected, domain.StatusExpired:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrBadStatus, raw)
	}
}
