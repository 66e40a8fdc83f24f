// Package signal provides a one-shot event primitive used for DTM-KEX
// cancel tokens and other single-fire coordination between goroutines.
package signal

import "sync"

// Signal lets one goroutine notify others that a one-time event occurred.
type Signal struct {
	ch   chan struct{}
	once sync.Once
}

// New wraps ch as a one-shot signal.
func New(ch chan struct{}) *Signal {
	return &Signal{ch: ch}
}

// Notify wakes any goroutines waiting on Wait. Subsequent calls are no-ops.
func (s *Signal) Notify() {
	s.once.Do(func() {
		close(s.ch)
	})
}

// Wait returns a channel that closes the first time Notify is called.
func (s *Signal) Wait() <-chan struct{} {
	return s.ch
}
