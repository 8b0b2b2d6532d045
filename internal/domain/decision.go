package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Decision — выбор согласующего, закодированный в action_id кнопки.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

const tokenDelimiter = "_"

// tokenInfix соединяет тип решения и ссылку: "<decision>_request_<ref>".
const tokenInfix = tokenDelimiter + "request" + tokenDelimiter

var (
	ErrMalformedToken = errors.New("malformed decision token")
	ErrAmbiguousRef   = errors.New("decision token reference contains the delimiter")
)

// Label возвращает человекочитаемую форму решения.
func (d Decision) Label() string {
	if d == DecisionApprove {
		return "Approved"
	}
	return "Rejected"
}

// Status переводит решение в конечный статус заявки.
func (d Decision) Status() ApprovalStatus {
	if d == DecisionApprove {
		return StatusApproved
	}
	return StatusRejected
}

// DecisionToken — единственная связь между кликом и исходной заявкой.
// Ref — ID заявки в хранилище либо (legacy) ID инициатора.
type DecisionToken struct {
	Decision Decision
	Ref      string
}

// String кодирует токен. Ref с разделителем нельзя восстановить позиционным разбором.
func (t DecisionToken) String() string {
	return string(t.Decision) + tokenInfix + t.Ref
}

// EncodeDecisionToken строит action_id для кнопки решения.
func EncodeDecisionToken(d Decision, ref string) (string, error) {
	if d != DecisionApprove && d != DecisionReject {
		return "", fmt.Errorf("%w: unknown decision %q", ErrMalformedToken, d)
	}
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrMalformedToken)
	}
	if strings.Contains(ref, tokenDelimiter) {
		return "", fmt.Errorf("%w: %q", ErrAmbiguousRef, ref)
	}
	return DecisionToken{Decision: d, Ref: ref}.String(), nil
}

// ParseDecisionToken разбирает action_id позиционно: первый сегмент — решение,
// последний — ссылка. Для ref с "_" результат неоднозначен: вернётся хвост после последнего "_".
func ParseDecisionToken(actionID string) (DecisionToken, error) {
	if !strings.Contains(actionID, tokenInfix) {
		return DecisionToken{}, fmt.Errorf("%w: %q", ErrMalformedToken, actionID)
	}

	parts := strings.Split(actionID, tokenDelimiter)
	decision := Decision(parts[0])
	if decision != DecisionApprove && decision != DecisionReject {
		return DecisionToken{}, fmt.Errorf("%w: unknown decision %q", ErrMalformedToken, parts[0])
	}

	ref := parts[len(parts)-1]
	if ref == "" {
		return DecisionToken{}, fmt.Errorf("%w: empty reference", ErrMalformedToken)
	}

	return DecisionToken{Decision: decision, Ref: ref}, nil
}
