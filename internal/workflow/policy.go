package workflow

import "time"

// RetryPolicy controls how transient failures of retry-safe calls are handled.
// Reservation creation retries the primary transport with the same key and
// then, when Fallback is set, tries the fallback transport once.
// Confirm and cancel use StateChangeAttempts, or MaxAttempts when unset.
type RetryPolicy struct {
	MaxAttempts         int
	StateChangeAttempts int
	Backoff             time.Duration
	Fallback            bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		Backoff:     200 * time.Millisecond,
		Fallback:    true,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) stateChangeAttempts() int {
	if p.StateChangeAttempts < 1 {
		return p.attempts()
	}
	return p.StateChangeAttempts
}
