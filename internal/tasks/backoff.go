package tasks

import "time"

const (
	DefaultBackoffBase = 600 * time.Second
	DefaultBackoffMax  = 86400 * time.Second
)

// Backoff is an exponential retry delay that doubles from base up to max.
//
// The current delay always lies in [base, max].
type Backoff struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff creates a backoff. Non-positive values take the defaults and max is raised to base if lower.
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if max <= 0 {
		max = DefaultBackoffMax
	}
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max, current: base}
}

// Next returns the current delay and doubles it for the following call.
func (b *Backoff) Next() time.Duration {
	d := b.current
	if b.current > b.max/2 {
		b.current = b.max
	} else {
		b.current *= 2
	}
	return d
}

// Reset returns the delay to base.
func (b *Backoff) Reset() { b.current = b.base }

// Current returns the delay the next call to [Backoff.Next] will return.
func (b *Backoff) Current() time.Duration { return b.current }
