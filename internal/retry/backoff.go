// Package retry implements exponential backoff for the DTM-KEX retransmit
// path.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Clock is redeclared so tests can override the passage of time.
type Clock struct {
	Now   func() time.Time
	After func(d time.Duration) <-chan time.Time
}

var SystemClock = Clock{
	Now:   time.Now,
	After: time.After,
}

// Handler manages exponential backoff and limits the maximum number of
// retries for one direction of the DTM-KEX retransmit/resend cycle.
// The base time period is 1 second, doubling with each retry. After a
// period of successful traffic a grace period can be set which resets the
// backoff counters once it elapses.
type Handler struct {
	// MaxRetries caps the number of retries. Zero disables retry entirely.
	MaxRetries uint
	// RetryForever keeps backing off past MaxRetries instead of giving up.
	RetryForever bool
	// BaseTime sets the initial backoff period, defaulting to one second.
	BaseTime time.Duration

	clock Clock

	retries       uint
	resetDeadline time.Time
}

// New returns a Handler using the system clock.
func New(maxRetries uint, retryForever bool, baseTime time.Duration) *Handler {
	return &Handler{
		MaxRetries:   maxRetries,
		RetryForever: retryForever,
		BaseTime:     baseTime,
		clock:        SystemClock,
	}
}

func (h *Handler) clockOrDefault() Clock {
	if h.clock.Now == nil {
		return SystemClock
	}
	return h.clock
}

// Timer returns a channel that fires once the next exponential backoff
// period has elapsed. Returns nil once the retry budget is exhausted.
func (h *Handler) Timer() <-chan time.Time {
	clock := h.clockOrDefault()
	if !h.resetDeadline.IsZero() && clock.Now().After(h.resetDeadline) {
		h.retries = 0
		h.resetDeadline = time.Time{}
	}
	if h.retries >= h.MaxRetries {
		if !h.RetryForever {
			return nil
		}
	} else {
		h.retries++
	}
	maxTimeToWait := h.baseTime() * time.Duration(1<<h.retries)
	timeToWait := time.Duration(rand.Int63n(int64(maxTimeToWait)))
	return clock.After(timeToWait)
}

// Wait blocks until the next backoff period elapses or ctx is cancelled.
// Returns false if the retry budget is exhausted or ctx was cancelled.
func (h *Handler) Wait(ctx context.Context) bool {
	c := h.Timer()
	if c == nil {
		return false
	}
	select {
	case <-c:
		return true
	case <-ctx.Done():
		return false
	}
}

// SetGracePeriod arms a deadline after which the retry counters reset,
// used once a DTM session has stayed Established for a while.
func (h *Handler) SetGracePeriod() {
	clock := h.clockOrDefault()
	maxTimeToWait := h.baseTime() * 2 << (h.retries + 1)
	timeToWait := time.Duration(rand.Int63n(int64(maxTimeToWait)))
	h.resetDeadline = clock.Now().Add(timeToWait)
}

func (h *Handler) baseTime() time.Duration {
	if h.BaseTime == 0 {
		return time.Second
	}
	return h.BaseTime
}

// Retries reports the number of retries consumed so far.
func (h *Handler) Retries() int {
	return int(h.retries)
}

func (h *Handler) ReachedMaxRetries() bool {
	return h.retries == h.MaxRetries
}
