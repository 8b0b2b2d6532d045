package engine

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const traceIDKey ctxKey = "trace_id"

// maxSlackBody — Slack не присылает payload больше нескольких десятков КБ.
const maxSlackBody = 1 << 20

// TracingMiddleware инициализирует Trace-ID для каждого запроса
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}

		w.Header().Set("X-Trace-ID", traceID)
		next.ServeHTTP(w, r.WithContext(withTraceID(r.Context(), traceID)))
	})
}

func withTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// extractTraceID помогает безопасно достать ID в любом месте кода
func extractTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return "00000000-0000-0000-0000-000000000000" // Fallback
}

// SlackVerifier проверяет X-Slack-Signature до разбора тела.
// Тело восстанавливается, чтобы следующий обработчик мог вызвать ParseForm.
func SlackVerifier(signingSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxSlackBody))
			if err != nil {
				http.Error(w, "cannot read body", http.StatusBadRequest)
				return
			}

			sv, err := slack.NewSecretsVerifier(r.Header, signingSecret)
			if err == nil {
				if _, err = sv.Write(body); err == nil {
					err = sv.Ensure()
				}
			}
			if err != nil {
				logger.Warn("rejected request with invalid slack signature",
					zap.String("path", r.URL.Path),
					zap.String("trace_id", extractTraceID(r.Context())),
					zap.Error(err))
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
