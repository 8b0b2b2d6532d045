package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprovalRequestValidate(t *testing.T) {
	testMap := map[string]struct {
		in       ApprovalRequest
		reserved []string
		wantErr  error
	}{
		"valid": {
			in: ApprovalRequest{RequesterID: "U1", ApproverID: "U2", Reason: "Need budget sign-off"},
		},
		"missing requester": {
			in:      ApprovalRequest{ApproverID: "U2", Reason: "x"},
			wantErr: ErrMissingRequester,
		},
		"missing approver": {
			in:      ApprovalRequest{RequesterID: "U1", Reason: "x"},
			wantErr: ErrMissingApprover,
		},
		"missing reason": {
			in:      ApprovalRequest{RequesterID: "U1", ApproverID: "U2"},
			wantErr: ErrMissingReason,
		},
		"blank reason": {
			in:      ApprovalRequest{RequesterID: "U1", ApproverID: "U2", Reason: " \n\t "},
			wantErr: ErrMissingReason,
		},
		"slackbot approver": {
			in:      ApprovalRequest{RequesterID: "U1", ApproverID: "USLACKBOT", Reason: "x"},
			wantErr: ErrReservedUser,
		},
		"configured reserved approver": {
			in:       ApprovalRequest{RequesterID: "U1", ApproverID: "UBOT", Reason: "x"},
			reserved: []string{"UBOT"},
			wantErr:  ErrReservedUser,
		},
		"slackbot requester": {
			in:      ApprovalRequest{RequesterID: "USLACKBOT", ApproverID: "U2", Reason: "x"},
			wantErr: ErrRequesterNotAllowed,
		},
		"configured reserved requester": {
			in:       ApprovalRequest{RequesterID: "UBOT", ApproverID: "U2", Reason: "x"},
			reserved: []string{"UBOT"},
			wantErr:  ErrRequesterNotAllowed,
		},
	}
	for name, tc := range testMap {
		t.Run(name, func(t *testing.T) {
			err := tc.in.Validate(tc.reserved...)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestApprovalRequestCanTransitionTo(t *testing.T) {
	pending := &ApprovalRequest{Status: StatusPending}
	assert.NoError(t, pending.CanTransitionTo(StatusApproved))
	assert.NoError(t, pending.CanTransitionTo(StatusRejected))
	assert.NoError(t, pending.CanTransitionTo(StatusExpired))
	assert.ErrorIs(t, pending.CanTransitionTo(StatusPending), ErrInvalidTransition)

	resolved := &ApprovalRequest{Status: StatusApproved}
	assert.ErrorIs(t, resolved.CanTransitionTo(StatusRejected), ErrAlreadyProcessed)
	assert.ErrorIs(t, resolved.CanTransitionTo(StatusPending), ErrAlreadyProcessed)
}

func TestApprovalRequestIsExpired(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	req := &ApprovalRequest{Status: StatusPending, CreatedAt: now.Add(-2 * time.Hour)}

	assert.False(t, req.IsExpired(0, now), "zero ttl never expires")
	assert.False(t, req.IsExpired(3*time.Hour, now))
	assert.True(t, req.IsExpired(time.Hour, now))

	req.Status = StatusApproved
	assert.False(t, req.IsExpired(time.Hour, now), "resolved requests do not expire")
}

func TestApprovalRequestResolve(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	app := &ApprovalRequest{ID: "a", Status: StatusPending}

	assert.ErrorIs(t, app.Resolve(StatusPending, "U2", at), ErrInvalidTransition)

	assert.NoError(t, app.Resolve(StatusApproved, "U2", at))
	assert.Equal(t, StatusApproved, app.Status)
	if assert.NotNil(t, app.ReviewerID) {
		assert.Equal(t, "U2", *app.ReviewerID)
	}
	assert.Equal(t, at, *app.ResolvedAt)

	assert.ErrorIs(t, app.Resolve(StatusRejected, "U3", at), ErrAlreadyProcessed)
	assert.Equal(t, StatusApproved, app.Status)
}

func TestApprovalRequestReopen(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	app := &ApprovalRequest{ID: "a", Status: StatusPending}

	assert.ErrorIs(t, app.Reopen(StatusApproved), ErrInvalidTransition, "pending request has nothing to reopen")

	require.NoError(t, app.Resolve(StatusApproved, "U2", at))
	assert.ErrorIs(t, app.Reopen(StatusRejected), ErrInvalidTransition)
	assert.ErrorIs(t, app.Reopen(StatusPending), ErrInvalidTransition)

	require.NoError(t, app.Reopen(StatusApproved))
	assert.Equal(t, StatusPending, app.Status)
	assert.Nil(t, app.ReviewerID)
	assert.Nil(t, app.ResolvedAt)

	// после компенсации заявку снова можно решить
	assert.NoError(t, app.Resolve(StatusRejected, "U2", at))
}
