package policy

import (
	"context"

	"github.com/xela07ax/slack-approval-bot/internal/domain"
)

// Enforcer решает, можно ли отправить заявку выбранному согласующему.
type Enforcer interface {
	Authorize(ctx context.Context, req *domain.ApprovalRequest) error
}

// BlockChecker — динамический список запретов (см. Blocklist).
type BlockChecker interface {
	IsBlocked(userID string) bool
}

// ReservedUsersEnforcer проверяет обязательные поля и отсекает системные ID
// (USLACKBOT и список workflow.reserved_users), а также заблокированных пользователей.
type ReservedUsersEnforcer struct {
	reserved []string
	blocked  BlockChecker
}

type EnforcerOption func(*ReservedUsersEnforcer)

func WithBlockChecker(b BlockChecker) EnforcerOption {
	return func(e *ReservedUsersEnforcer) { e.blocked = b }
}

func NewReservedUsersEnforcer(reserved []string, opts ...EnforcerOption) *ReservedUsersEnforcer {
	e := &ReservedUsersEnforcer{reserved: reserved}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *ReservedUsersEnforcer) Authorize(ctx context.Context, req *domain.ApprovalRequest) error {
	if err := req.Validate(e.reserved...); err != nil {
		return err
	}
	if e.blocked == nil {
		return nil
	}
	if e.blocked.IsBlocked(req.RequesterID) {
		return domain.ErrRequesterNotAllowed
	}
	if e.blocked.IsBlocked(req.ApproverID) {
		return domain.ErrReservedUser
	}
	return nil
}
