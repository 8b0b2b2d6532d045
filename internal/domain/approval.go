package domain

import (
	"errors"
	"strings"
	"time"
)

// Статусы State Machine
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "PENDING"
	StatusApproved ApprovalStatus = "APPROVED"
	StatusRejected ApprovalStatus = "REJECTED"
	StatusExpired  ApprovalStatus = "EXPIRED"
)

// ReservedUserID — системный пользователь Slack, которому нельзя адресовать заявку.
const ReservedUserID = "USLACKBOT"

var (
	ErrInvalidTransition = errors.New("invalid approval status transition")
	ErrAlreadyProcessed  = errors.New("approval request already processed")
	ErrNotFound          = errors.New("approval request not found")

	ErrMissingRequester = errors.New("requester is required")
	ErrMissingApprover  = errors.New("approver is required")
	ErrMissingReason    = errors.New("reason is required")
	ErrReservedUser     = errors.New("user id is reserved by the platform")

	// ErrRequesterNotAllowed — инициатор сам в списке зарезервированных или заблокированных.
	ErrRequesterNotAllowed = errors.New("requester is not allowed to submit requests")
)

type ApprovalRequest struct {
	ID          string         `json:"id"`
	RequesterID string         `json:"requester_id"`
	ApproverID  string         `json:"approver_id"`
	Reason      string         `json:"reason"`
	Status      ApprovalStatus `json:"status"`

	ReviewerID *string `json:"reviewer_id,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Validate проверяет инварианты заявки до её отправки согласующему.
// reserved — дополнительные идентификаторы, запрещённые конфигурацией.
func (a *ApprovalRequest) Validate(reserved ...string) error {
	if a.RequesterID == "" {
		return ErrMissingRequester
	}
	if a.ApproverID == "" {
		return ErrMissingApprover
	}
	if strings.TrimSpace(a.Reason) == "" {
		return ErrMissingReason
	}
	if IsReservedUser(a.RequesterID, reserved...) {
		return ErrRequesterNotAllowed
	}
	if IsReservedUser(a.ApproverID, reserved...) {
		return ErrReservedUser
	}
	return nil
}

// CanTransitionTo проверяет правила конечного автомата
func (a *ApprovalRequest) CanTransitionTo(next ApprovalStatus) error {
	if a.Status != StatusPending {
		return ErrAlreadyProcessed
	}
	if next == StatusPending {
		return ErrInvalidTransition
	}
	return nil
}

// Resolve переводит заявку из PENDING в конечный статус.
func (a *ApprovalRequest) Resolve(next ApprovalStatus, reviewerID string, at time.Time) error {
	if err := a.CanTransitionTo(next); err != nil {
		return err
	}
	a.Status = next
	if reviewerID != "" {
		a.ReviewerID = &reviewerID
	}
	a.ResolvedAt = &at
	return nil
}

// Reopen возвращает заявку в PENDING, если она всё ещё в статусе from.
// Это компенсация для решения, о котором инициатор так и не узнал, а не переход автомата.
func (a *ApprovalRequest) Reopen(from ApprovalStatus) error {
	if from == StatusPending || a.Status != from {
		return ErrInvalidTransition
	}
	a.Status = StatusPending
	a.ReviewerID = nil
	a.ResolvedAt = nil
	return nil
}

// IsExpired сообщает, провисела ли заявка в PENDING дольше ttl. ttl <= 0 — без срока.
func (a *ApprovalRequest) IsExpired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 || a.Status != StatusPending {
		return false
	}
	return now.Sub(a.CreatedAt) > ttl
}

func IsReservedUser(id string, reserved ...string) bool {
	if id == ReservedUserID {
		return true
	}
	for _, r := range reserved {
		if r != "" && r == id {
			return true
		}
	}
	return false
}
