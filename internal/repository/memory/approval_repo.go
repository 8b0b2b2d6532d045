package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/slack-approval-bot/internal/domain"
)

// ApprovalRepo — хранилище по умолчанию. Живёт только в памяти процесса:
// после рестарта кнопки старых сообщений получают "no longer available".
type ApprovalRepo struct {
	mu    sync.RWMutex
	items map[string]domain.ApprovalRequest
}

func NewApprovalRepo() *ApprovalRepo {
	return &ApprovalRepo{items: make(map[string]domain.ApprovalRequest)}
}

func (r *ApprovalRepo) CreateApproval(ctx context.Context, app *domain.ApprovalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[app.ID] = *app
	return nil
}

func (r *ApprovalRepo) GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &app, nil
}

// ResolveApproval — проверка статуса и запись под одной блокировкой.
func (r *ApprovalRepo) ResolveApproval(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID string, at time.Time) (*domain.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := app.Resolve(status, reviewerID, at); err != nil {
		return nil, err
	}
	r.items[id] = app
	return &app, nil
}

func (r *ApprovalRepo) ReopenApproval(ctx context.Context, id string, from domain.ApprovalStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if err := app.Reopen(from); err != nil {
		return err
	}
	r.items[id] = app
	return nil
}

func (r *ApprovalRepo) DeleteApproval(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

// FindApprovals — новые сверху; пустой status означает все статусы.
func (r *ApprovalRepo) FindApprovals(ctx context.Context, status domain.ApprovalStatus, limit int) ([]*domain.ApprovalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]*domain.ApprovalRequest, 0)
	for _, app := range r.items {
		if status != "" && app.Status != status {
			continue
		}
		app := app
		results = append(results, &app)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
