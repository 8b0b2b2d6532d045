package connectors

import (
	"errors"
	"fmt"
	"time"

	"github.com/slack-go/slack"
)

// ThrottleError — Slack ответил 429, повтор допустим не раньше RetryAfter.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error {
	return e.Cause
}

// classify превращает ошибки slack-go в ошибки коннектора.
func classify(method string, err error) error {
	if err == nil {
		return nil
	}
	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		return &ThrottleError{RetryAfter: rl.RetryAfter, Cause: err}
	}
	return fmt.Errorf("slack %s failed: %w", method, err)
}
