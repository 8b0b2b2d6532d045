package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/slack-approval-bot/internal/domain"
	"github.com/xela07ax/slack-approval-bot/internal/infra"
)

// resolveScript: 0 — нет заявки, -1 — уже не PENDING, 1 — переведена.
// Retention (ARGV[4], мс) начинает отсчёт только с решения: PENDING живёт бессрочно.
var resolveScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
	return 0
end
if status ~= 'PENDING' then
	return -1
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'reviewer_id', ARGV[2], 'resolved_at', ARGV[3])
local ttl = tonumber(ARGV[4])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// reopenScript: 0 — нет заявки, -1 — статус уже не ARGV[1], 1 — снова PENDING.
var reopenScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
	return 0
end
if status ~= ARGV[1] then
	return -1
end
redis.call('HSET', KEYS[1], 'status', 'PENDING')
redis.call('HDEL', KEYS[1], 'reviewer_id', 'resolved_at')
redis.call('PERSIST', KEYS[1])
return 1
`)

// findPageSize — сколько id из индекса читается и подгружается одним pipeline.
const findPageSize = 100

// ApprovalRepo хранит заявку в hash approvalbot:approvals:<id>,
// sorted set approvalbot:approvals:index нужен для выборки в консоли.
type ApprovalRepo struct {
	rdb       redis.UniversalClient
	retention time.Duration
	pageSize  int64
}

func NewApprovalRepo(rdb redis.UniversalClient, retention time.Duration) *ApprovalRepo {
	return &ApprovalRepo{rdb: rdb, retention: retention, pageSize: findPageSize}
}

func (r *ApprovalRepo) CreateApproval(ctx context.Context, app *domain.ApprovalRequest) error {
	key := infra.ApprovalKey(app.ID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, toHash(app))
		pipe.ZAdd(ctx, infra.RedisKeyApprovalIndex, redis.Z{
			Score:  float64(app.CreatedAt.UnixNano()),
			Member: app.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: failed to create approval request: %w", err)
	}
	return nil
}

func (r *ApprovalRepo) GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	fields, err := r.rdb.HGetAll(ctx, infra.ApprovalKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to load approval: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}
	return fromHash(fields)
}

// ResolveApproval атомарен за счёт Lua: проверка PENDING и запись выполняются одной командой.
func (r *ApprovalRepo) ResolveApproval(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID string, at time.Time) (*domain.ApprovalRequest, error) {
	if status == domain.StatusPending {
		return nil, domain.ErrInvalidTransition
	}

	res, err := resolveScript.Run(ctx, r.rdb, []string{infra.ApprovalKey(id)},
		string(status), reviewerID, at.UTC().Format(time.RFC3339Nano), r.retention.Milliseconds()).Int()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to resolve approval: %w", err)
	}
	switch res {
	case 0:
		return nil, domain.ErrNotFound
	case -1:
		return nil, fmt.Errorf("approval %s: %w", id, domain.ErrAlreadyProcessed)
	}
	return r.GetApproval(ctx, id)
}

func (r *ApprovalRepo) ReopenApproval(ctx context.Context, id string, from domain.ApprovalStatus) error {
	if from == domain.StatusPending {
		return domain.ErrInvalidTransition
	}

	res, err := reopenScript.Run(ctx, r.rdb, []string{infra.ApprovalKey(id)}, string(from)).Int()
	if err != nil {
		return fmt.Errorf("redis: failed to reopen approval: %w", err)
	}
	switch res {
	case 0:
		return domain.ErrNotFound
	case -1:
		return fmt.Errorf("approval %s: %w", id, domain.ErrInvalidTransition)
	}
	return nil
}

func (r *ApprovalRepo) DeleteApproval(ctx context.Context, id string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, infra.ApprovalKey(id))
		pipe.ZRem(ctx, infra.RedisKeyApprovalIndex, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: failed to delete approval: %w", err)
	}
	return nil
}

// FindApprovals идёт по индексу от новых к старым страницами по pageSize,
// hash'и страницы читаются одним pipeline. Заявки, удалённые по retention,
// вычищаются из индекса после обхода, чтобы не сдвигать смещения страниц.
func (r *ApprovalRepo) FindApprovals(ctx context.Context, status domain.ApprovalStatus, limit int) ([]*domain.ApprovalRequest, error) {
	results := make([]*domain.ApprovalRequest, 0)
	var stale []interface{}

scan:
	for offset := int64(0); ; offset += r.pageSize {
		ids, err := r.rdb.ZRevRange(ctx, infra.RedisKeyApprovalIndex, offset, offset+r.pageSize-1).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: failed to read approval index: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		cmds := make([]*redis.MapStringStringCmd, len(ids))
		_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, id := range ids {
				cmds[i] = pipe.HGetAll(ctx, infra.ApprovalKey(id))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("redis: failed to load approval page: %w", err)
		}

		for i, cmd := range cmds {
			fields := cmd.Val()
			if len(fields) == 0 {
				stale = append(stale, ids[i])
				continue
			}
			app, err := fromHash(fields)
			if err != nil {
				return nil, err
			}
			if status != "" && app.Status != status {
				continue
			}
			results = append(results, app)
			if limit > 0 && len(results) >= limit {
				break scan
			}
		}
		if int64(len(ids)) < r.pageSize {
			break
		}
	}

	if len(stale) > 0 {
		if err := r.rdb.ZRem(ctx, infra.RedisKeyApprovalIndex, stale...).Err(); err != nil {
			return nil, fmt.Errorf("redis: failed to prune approval index: %w", err)
		}
	}
	return results, nil
}

func toHash(app *domain.ApprovalRequest) map[string]interface{} {
	h := map[string]interface{}{
		"id":           app.ID,
		"requester_id": app.RequesterID,
		"approver_id":  app.ApproverID,
		"reason":       app.Reason,
		"status":       string(app.Status),
		"created_at":   app.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if app.ReviewerID != nil {
		h["reviewer_id"] = *app.ReviewerID
	}
	if app.ResolvedAt != nil {
		h["resolved_at"] = app.ResolvedAt.UTC().Format(time.RFC3339Nano)
	}
	return h
}

func fromHash(h map[string]string) (*domain.ApprovalRequest, error) {
	app := &domain.ApprovalRequest{
		ID:          h["id"],
		RequesterID: h["requester_id"],
		ApproverID:  h["approver_id"],
		Reason:      h["reason"],
		Status:      domain.ApprovalStatus(h["status"]),
	}

	created, err := time.Parse(time.RFC3339Nano, h["created_at"])
	if err != nil {
		return nil, fmt.Errorf("redis: bad created_at for approval %s: %w", app.ID, err)
	}
	app.CreatedAt = created

	if v := h["reviewer_id"]; v != "" {
		app.ReviewerID = &v
	}
	if v := h["resolved_at"]; v != "" {
		resolved, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("redis: bad resolved_at for approval %s: %w", app.ID, err)
		}
		app.ResolvedAt = &resolved
	}
	return app, nil
}
