package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/slack-approval-bot/internal/console/handler"
	"github.com/xela07ax/slack-approval-bot/internal/domain"
	"github.com/xela07ax/slack-approval-bot/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка RS256 токенов операторов
	authValidator auth.TokenValidator

	approvalHandler *handler.ApprovalHandler // /v1/approvals
	auditHandler    *handler.AuditHandler    // /v1/audit, только при Postgres-журнале
}

// Option донастраивает консоль.
type Option func(*ConsoleServer)

// WithAuditHandler включает чтение журнала решений.
func WithAuditHandler(h *handler.AuditHandler) Option {
	return func(s *ConsoleServer) { s.auditHandler = h }
}

// NewConsoleServer инициализирует сервер админки со всеми зависимостями
func NewConsoleServer(logger *zap.Logger, validator auth.TokenValidator, approvalH *handler.ApprovalHandler, opts ...Option) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		authValidator:   validator,
		approvalHandler: approvalH,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))
		r.Use(auth.RequireScope(domain.ScopeApprovalsRead))

		r.Route("/v1/approvals", func(r chi.Router) {
			r.Get("/", s.approvalHandler.List)
			r.Get("/{id}", s.approvalHandler.GetDetails)
		})
		if s.auditHandler != nil {
			r.Get("/v1/audit", s.auditHandler.GetLogs)
		}
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
