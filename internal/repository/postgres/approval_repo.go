package postgres

/*
Файл approval_repo.go — хранилище заявок на согласование в PostgreSQL.
Атомарность решения обеспечивает условие WHERE status = 'PENDING' в UPDATE.
*/

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/xela07ax/slack-approval-bot/internal/domain"
)

var approvalColumns = []string{
	"id", "requester_id", "approver_id", "reason", "status", "reviewer_id", "created_at", "resolved_at",
}

type ApprovalRepo struct {
	db *sql.DB
}

func NewApprovalRepo(db *sql.DB) *ApprovalRepo {
	return &ApprovalRepo{db: db}
}

func (r *ApprovalRepo) CreateApproval(ctx context.Context, app *domain.ApprovalRequest) error {
	_, err := psql.Insert("approvals").
		Columns("id", "requester_id", "approver_id", "reason", "status", "created_at").
		Values(app.ID, app.RequesterID, app.ApproverID, app.Reason, string(app.Status), app.CreatedAt).
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("postgres: failed to create approval request: %w", err)
	}
	return nil
}

func (r *ApprovalRepo) GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	row := psql.Select(approvalColumns...).From("approvals").
		Where(sq.Eq{"id": id}).
		RunWith(r.db).QueryRowContext(ctx)

	app, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to load approval: %w", err)
	}
	return app, nil
}

// ResolveApproval атомарно переводит заявку из PENDING. RETURNING отдаёт итоговую
// строку за один проход; пустой результат разбирается отдельным SELECT.
func (r *ApprovalRepo) ResolveApproval(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID string, at time.Time) (*domain.ApprovalRequest, error) {
	if status == domain.StatusPending {
		return nil, domain.ErrInvalidTransition
	}

	row := psql.Update("approvals").
		Set("status", string(status)).
		Set("reviewer_id", sql.NullString{String: reviewerID, Valid: reviewerID != ""}).
		Set("resolved_at", at).
		Where(sq.Eq{"id": id, "status": string(domain.StatusPending)}).
		Suffix("RETURNING " + strings.Join(approvalColumns, ", ")).
		RunWith(r.db).QueryRowContext(ctx)

	app, err := scanApproval(row)
	if err == nil {
		return app, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("postgres: failed to update approval status: %w", err)
	}

	// Строк нет: либо ID неверный, либо решение уже принято ранее
	if _, gErr := r.GetApproval(ctx, id); gErr != nil {
		return nil, gErr
	}
	return nil, fmt.Errorf("approval %s: %w", id, domain.ErrAlreadyProcessed)
}

// ReopenApproval — тот же compare-and-set, что и в ResolveApproval, только обратно в PENDING.
func (r *ApprovalRepo) ReopenApproval(ctx context.Context, id string, from domain.ApprovalStatus) error {
	if from == domain.StatusPending {
		return domain.ErrInvalidTransition
	}

	res, err := psql.Update("approvals").
		Set("status", string(domain.StatusPending)).
		Set("reviewer_id", nil).
		Set("resolved_at", nil).
		Where(sq.Eq{"id": id, "status": string(from)}).
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("postgres: failed to reopen approval: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to reopen approval: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, gErr := r.GetApproval(ctx, id); gErr != nil {
		return gErr
	}
	return fmt.Errorf("approval %s: %w", id, domain.ErrInvalidTransition)
}

func (r *ApprovalRepo) DeleteApproval(ctx context.Context, id string) error {
	_, err := psql.Delete("approvals").Where(sq.Eq{"id": id}).RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete approval: %w", err)
	}
	return nil
}

// FindApprovals фильтрация и выборка списка заявок для консоли.
func (r *ApprovalRepo) FindApprovals(ctx context.Context, status domain.ApprovalStatus, limit int) ([]*domain.ApprovalRequest, error) {
	sb := psql.Select(approvalColumns...).From("approvals")
	if status != "" {
		sb = sb.Where(sq.Eq{"status": string(status)})
	}
	sb = sb.OrderBy("created_at DESC")
	if limit > 0 {
		sb = sb.Limit(uint64(limit))
	}

	rows, err := sb.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query approvals: %w", err)
	}
	defer rows.Close()

	// Пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.ApprovalRequest, 0)
	for rows.Next() {
		app, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan approval: %w", err)
		}
		results = append(results, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// PurgeResolved удаляет закрытые заявки старше before (store.retention).
func (r *ApprovalRepo) PurgeResolved(ctx context.Context, before time.Time) (int64, error) {
	res, err := psql.Delete("approvals").
		Where(sq.NotEq{"status": string(domain.StatusPending)}).
		Where(sq.Lt{"resolved_at": before}).
		RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to purge approvals: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApproval(row rowScanner) (*domain.ApprovalRequest, error) {
	var app domain.ApprovalRequest
	var status string
	var reviewerID sql.NullString // Используем для обработки NULL из БД
	var resolvedAt sql.NullTime

	if err := row.Scan(
		&app.ID, &app.RequesterID, &app.ApproverID, &app.Reason,
		&status, &reviewerID, &app.CreatedAt, &resolvedAt,
	); err != nil {
		return nil, err
	}

	app.Status = domain.ApprovalStatus(status)
	if reviewerID.Valid {
		val := reviewerID.String
		app.ReviewerID = &val
	}
	if resolvedAt.Valid {
		val := resolvedAt.Time
		app.ResolvedAt = &val
	}
	return &app, nil
}
