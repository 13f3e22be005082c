package notification

import "time"

// ReconnectPolicy is a linear backoff with an attempt ceiling
type ReconnectPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultReconnectPolicy retries five times, waiting 1s, 2s, 3s, 4s and 5s
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
	}
}

// Delay returns the wait before the given 1-based attempt
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	return time.Duration(attempt) * p.BaseDelay
}

type stopper interface {
	Stop() bool
}

// afterFunc schedules f; time.AfterFunc in production
type afterFunc func(d time.Duration, f func()) stopper

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}
