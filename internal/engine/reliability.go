package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/slack-go/slack"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/xela07ax/slack-approval-bot/internal/connectors"
	"github.com/xela07ax/slack-approval-bot/internal/infra"
)

// ReliabilityWrapper оборачивает Slack: rate limit, circuit breaker и повтор только на 429.
// Остальные ошибки не повторяются: повторный chat.postMessage продублирует сообщение.
type ReliabilityWrapper struct {
	next     Messenger
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	attempts uint
	timeout  time.Duration
	metrics  *Metrics
}

func NewReliabilityWrapper(next Messenger, cfg infra.SlackConfig, metrics *Metrics) *ReliabilityWrapper {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	failures := cfg.CBFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "slack-web-api",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > failures
		},
		// 429 — штатная ситуация, предохранитель на неё не реагирует
		IsSuccessful: func(err error) bool {
			var tErr *connectors.ThrottleError
			return err == nil || errors.As(err, &tErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.Set(breakerGauge(to))
		},
	})

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}

	return &ReliabilityWrapper{
		next:     next,
		cb:       cb,
		limiter:  rate.NewLimiter(limit, burst),
		attempts: attempts,
		timeout:  cfg.CallTimeout,
		metrics:  metrics,
	}
}

func (w *ReliabilityWrapper) OpenView(ctx context.Context, triggerID string, view slack.ModalViewRequest) error {
	return w.call(ctx, connectors.MethodOpenView, func(ctx context.Context) error {
		return w.next.OpenView(ctx, triggerID, view)
	})
}

func (w *ReliabilityWrapper) PostMessage(ctx context.Context, msg connectors.Message) (connectors.Posted, error) {
	var posted connectors.Posted
	err := w.call(ctx, connectors.MethodPostMessage, func(ctx context.Context) error {
		var callErr error
		posted, callErr = w.next.PostMessage(ctx, msg)
		return callErr
	})
	return posted, err
}

func (w *ReliabilityWrapper) UpdateMessage(ctx context.Context, upd connectors.Update) error {
	return w.call(ctx, connectors.MethodUpdateMessage, func(ctx context.Context) error {
		return w.next.UpdateMessage(ctx, upd)
	})
}

func (w *ReliabilityWrapper) call(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	start := time.Now()
	status := "ok"
	defer func() {
		w.metrics.SlackCallDuration.WithLabelValues(method, status).Observe(time.Since(start).Seconds())
	}()

	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		status = "rate_limited"
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker
	_, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			retry.RetryIf(func(err error) bool {
				var tErr *connectors.ThrottleError
				return errors.As(err, &tErr)
			}),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Slack прислал Retry-After, ждём ровно столько
				var tErr *connectors.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		return nil, r.Do(func() error {
			tCtx := ctx
			if w.timeout > 0 {
				var cancel context.CancelFunc
				tCtx, cancel = context.WithTimeout(ctx, w.timeout)
				defer cancel()
			}
			return fn(tCtx)
		})
	})

	if err != nil {
		status = "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			status = "circuit_open"
		}
		return err
	}
	return nil
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	default:
		return 0
	}
}
