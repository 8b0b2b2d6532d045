package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/slack-approval-bot/internal/audit"
	"github.com/xela07ax/slack-approval-bot/internal/console/handler"
	"github.com/xela07ax/slack-approval-bot/internal/console/service"
	"github.com/xela07ax/slack-approval-bot/internal/domain"
	"github.com/xela07ax/slack-approval-bot/internal/infra/auth"
	"github.com/xela07ax/slack-approval-bot/internal/repository/memory"
)

type consoleFixture struct {
	srv   *ConsoleServer
	token string
}

func newConsole(t *testing.T) consoleFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	repo := memory.NewApprovalRepo()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, repo.CreateApproval(ctx, &domain.ApprovalRequest{
			ID: id, RequesterID: "U123", ApproverID: "U456", Reason: "r",
			Status: domain.StatusPending, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	_, err = repo.ResolveApproval(ctx, "a2", domain.StatusApproved, "U456", base)
	require.NoError(t, err)

	logger := zap.NewNop()
	srv := NewConsoleServer(logger, auth.NewBaseValidator(&key.PublicKey),
		handler.NewApprovalHandler(service.NewApprovalService(repo), logger))

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, domain.CustomClaims{
		UserID: "ops-1",
		Scopes: map[string]bool{domain.ScopeApprovalsRead: true},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(key)
	require.NoError(t, err)

	return consoleFixture{srv: srv, token: token}
}

func (f consoleFixture) get(path string, authorized bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorized {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func TestConsoleHealthIsPublic(t *testing.T) {
	f := newConsole(t)
	assert.Equal(t, http.StatusOK, f.get("/health", false).Code)
}

func TestConsoleRequiresToken(t *testing.T) {
	f := newConsole(t)
	assert.Equal(t, http.StatusUnauthorized, f.get("/v1/approvals", false).Code)
}

func TestConsoleListApprovals(t *testing.T) {
	testMap := map[string]struct {
		query   string
		wantIDs []string
		code    int
	}{
		"default pending": {query: "", wantIDs: []string{"a3", "a1"}, code: http.StatusOK},
		"approved":        {query: "?status=approved", wantIDs: []string{"a2"}, code: http.StatusOK},
		"all with limit":  {query: "?status=ALL&limit=2", wantIDs: []string{"a3", "a2"}, code: http.StatusOK},
		"no matches":      {query: "?status=EXPIRED", wantIDs: []string{}, code: http.StatusOK},
		"bad status":      {query: "?status=DONE", code: http.StatusBadRequest},
		"bad limit":       {query: "?limit=x", code: http.StatusBadRequest},
	}
	for name, tc := range testMap {
		t.Run(name, func(t *testing.T) {
			f := newConsole(t)
			rec := f.get("/v1/approvals"+tc.query, true)
			require.Equal(t, tc.code, rec.Code)
			if tc.code != http.StatusOK {
				return
			}

			var list []domain.ApprovalRequest
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
			ids := make([]string, 0, len(list))
			for _, a := range list {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tc.wantIDs, ids)
		})
	}
}

func TestConsoleGetApproval(t *testing.T) {
	f := newConsole(t)

	rec := f.get("/v1/approvals/a2", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var app domain.ApprovalRequest
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&app))
	assert.Equal(t, domain.StatusApproved, app.Status)
	require.NotNil(t, app.ReviewerID)
	assert.Equal(t, "U456", *app.ReviewerID)

	assert.Equal(t, http.StatusNotFound, f.get("/v1/approvals/missing", true).Code)
}

type staticAudit struct {
	events []audit.Event
	gotID  string
	gotLim int
}

func (a *staticAudit) FetchEvents(ctx context.Context, approvalID string, limit int) ([]audit.Event, error) {
	a.gotID, a.gotLim = approvalID, limit
	return a.events, nil
}

func TestConsoleAuditRoute(t *testing.T) {
	f := newConsole(t)
	assert.Equal(t, http.StatusNotFound, f.get("/v1/audit", true).Code, "disabled without audit provider")

	provider := &staticAudit{events: []audit.Event{{ID: "e1", ApprovalID: "a2", Kind: audit.KindDecisionRecorded, Decision: "approve"}}}
	logger := zap.NewNop()
	WithAuditHandler(handler.NewAuditHandler(service.NewAuditService(provider), logger))(f.srv)
	f.srv.router = chi.NewRouter()
	f.srv.routes()

	assert.Equal(t, http.StatusUnauthorized, f.get("/v1/audit", false).Code)

	rec := f.get("/v1/audit?approval_id=a2&limit=5", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []audit.Event
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&events))
	require.Len(t, events, 1)
	assert.Equal(t, "approve", events[0].Decision)
	assert.Equal(t, "a2", provider.gotID)
	assert.Equal(t, 5, provider.gotLim)

	f.get("/v1/audit", true)
	assert.Equal(t, service.DefaultListLimit, provider.gotLim)
}
