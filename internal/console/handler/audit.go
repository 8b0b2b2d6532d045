package handler

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/xela07ax/slack-approval-bot/internal/audit"
)

type AuditService interface {
	FetchLogs(ctx context.Context, approvalID string, limit int) ([]audit.Event, error)
}

type AuditHandler struct {
	service AuditService
	logger  *zap.Logger
}

func NewAuditHandler(s AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{service: s, logger: logger}
}

// GetLogs возвращает журнал решений
// GET /v1/audit?approval_id=...&limit=...
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	approvalID := r.URL.Query().Get("approval_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	logs, err := h.service.FetchLogs(r.Context(), approvalID, limit)
	if err != nil {
		h.logger.Error("failed to fetch audit logs", zap.String("approval_id", approvalID), zap.Error(err))
		http.Error(w, "Failed to fetch audit logs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, logs)
}
