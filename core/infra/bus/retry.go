package bus

import (
	"errors"
	"fmt"
	"time"
)

// RetryableError tells the JetStream consumer to nak a sync job instead of
// acking it away. Delay spaces the redelivery; zero means redeliver at the
// server's discretion. Handlers wrap transient failures (directory reads,
// downstream enqueues) in one of these; anything else is treated as a
// permanent failure and acked.
type RetryableError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryableError) Error() string {
	if e == nil {
		return ""
	}
	if e.Delay > 0 {
		return fmt.Sprintf("retryable (in %s): %v", e.Delay, e.Err)
	}
	return fmt.Sprintf("retryable: %v", e.Err)
}

// RetryDelay exposes the redelivery spacing to the consumer loop.
func (e *RetryableError) RetryDelay() time.Duration {
	if e == nil {
		return 0
	}
	return e.Delay
}

func (e *RetryableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RetryAfter marks err as retryable with the given redelivery spacing.
func RetryAfter(err error, delay time.Duration) error {
	if err == nil {
		err = errors.New("retry requested")
	}
	if delay < 0 {
		delay = 0
	}
	return &RetryableError{Err: err, Delay: delay}
}

// RetryDelay reports whether err asks for redelivery, and after how long.
// It matches anything in the chain carrying a RetryDelay method, so wrapped
// handler errors stay retryable.
func RetryDelay(err error) (time.Duration, bool) {
	type delayed interface {
		RetryDelay() time.Duration
	}
	var d delayed
	if errors.As(err, &d) {
		delay := d.RetryDelay()
		if delay < 0 {
			delay = 0
		}
		return delay, true
	}
	return 0, false
}
