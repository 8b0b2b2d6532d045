package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/slack-approval-bot/internal/domain"
)

func TestApprovalRepoLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewApprovalRepo()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.GetApproval(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repo.CreateApproval(ctx, &domain.ApprovalRequest{
		ID: "a1", RequesterID: "U1", ApproverID: "U2", Reason: "r", Status: domain.StatusPending, CreatedAt: at,
	}))

	got, err := repo.ResolveApproval(ctx, "a1", domain.StatusRejected, "U2", at.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, got.Status)

	_, err = repo.ResolveApproval(ctx, "a1", domain.StatusApproved, "U2", at)
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)

	stored, err := repo.GetApproval(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, stored.Status)

	require.NoError(t, repo.DeleteApproval(ctx, "a1"))
	_, err = repo.ResolveApproval(ctx, "a1", domain.StatusApproved, "U2", at)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApprovalRepoConcurrentResolve(t *testing.T) {
	ctx := context.Background()
	repo := NewApprovalRepo()
	require.NoError(t, repo.CreateApproval(ctx, &domain.ApprovalRequest{ID: "a1", Status: domain.StatusPending}))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.ResolveApproval(ctx, "a1", domain.StatusApproved, "U2", time.Now()); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestApprovalRepoFindApprovals(t *testing.T) {
	ctx := context.Background()
	repo := NewApprovalRepo()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, repo.CreateApproval(ctx, &domain.ApprovalRequest{
			ID: id, Status: domain.StatusPending, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	_, err := repo.ResolveApproval(ctx, "a2", domain.StatusApproved, "U2", base)
	require.NoError(t, err)

	pending, err := repo.FindApprovals(ctx, domain.StatusPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a3", pending[0].ID)
	assert.Equal(t, "a1", pending[1].ID)

	all, err := repo.FindApprovals(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestApprovalRepoReopen(t *testing.T) {
	ctx := context.Background()
	repo := NewApprovalRepo()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateApproval(ctx, &domain.ApprovalRequest{ID: "a1", Status: domain.StatusPending}))

	assert.ErrorIs(t, repo.ReopenApproval(ctx, "missing", domain.StatusApproved), domain.ErrNotFound)
	assert.ErrorIs(t, repo.ReopenApproval(ctx, "a1", domain.StatusApproved), domain.ErrInvalidTransition)

	_, err := repo.ResolveApproval(ctx, "a1", domain.StatusApproved, "U2", at)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.ReopenApproval(ctx, "a1", domain.StatusRejected), domain.ErrInvalidTransition)
	require.NoError(t, repo.ReopenApproval(ctx, "a1", domain.StatusApproved))

	got, err := repo.GetApproval(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Nil(t, got.ReviewerID)

	_, err = repo.ResolveApproval(ctx, "a1", domain.StatusRejected, "U2", at)
	assert.NoError(t, err)
}
