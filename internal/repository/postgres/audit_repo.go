package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/xela07ax/slack-approval-bot/internal/audit"
)

// AuditRepo — sink для audit.Trail: одна пачка событий = один INSERT.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	ib := psql.Insert("audit_logs").
		Columns("id", "trace_id", "approval_id", "kind", "actor_id", "subject_id", "decision", "error", "timestamp")
	for _, e := range events {
		ib = ib.Values(
			e.ID, e.TraceID, nullable(e.ApprovalID), string(e.Kind),
			nullable(e.ActorID), nullable(e.SubjectID), nullable(e.Decision), nullable(e.Error), e.Timestamp,
		)
	}

	if _, err := ib.RunWith(r.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("postgres: failed to write audit batch of %d: %w", len(events), err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// FetchEvents читает журнал для консоли: новые сверху, при пустом approvalID без фильтра.
func (r *AuditRepo) FetchEvents(ctx context.Context, approvalID string, limit int) ([]audit.Event, error) {
	sb := psql.Select("id", "trace_id", "approval_id", "kind", "actor_id", "subject_id", "decision", "error", "timestamp").
		From("audit_logs")
	if approvalID != "" {
		sb = sb.Where(sq.Eq{"approval_id": approvalID})
	}
	sb = sb.OrderBy("timestamp DESC")
	if limit > 0 {
		sb = sb.Limit(uint64(limit))
	}

	rows, err := sb.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]audit.Event, 0)
	for rows.Next() {
		var e audit.Event
		var kind string
		var approval, actor, subject, decision, errText sql.NullString
		if err := rows.Scan(&e.ID, &e.TraceID, &approval, &kind, &actor, &subject, &decision, &errText, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan audit event: %w", err)
		}
		e.Kind = audit.Kind(kind)
		e.ApprovalID = approval.String
		e.ActorID = actor.String
		e.SubjectID = subject.String
		e.Decision = decision.String
		e.Error = errText.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return events, nil
}
