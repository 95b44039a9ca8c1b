package core

import (
	"context"
	"errors"
	"sync"
)

// ErrShutdown is returned by every blocking primitive once Stop was requested.
var ErrShutdown = errors.New("supervisor shutting down")

// Signal is a counting semaphore whose raises may carry a value. Every Raise
// wakes exactly one Wait, in raise order; raises are never merged or lost.
type Signal[T any] struct {
	name    string
	mu      sync.Mutex
	pending []T
	ready   chan struct{}
}

// NewSignal creates a signal with no pending raise.
func NewSignal[T any](name string) *Signal[T] {
	return &Signal[T]{name: name, ready: make(chan struct{}, 1)}
}

// Name returns the name the signal is registered under.
func (s *Signal[T]) Name() string { return s.name }

// Raise records one raise and wakes a waiter.
func (s *Signal[T]) Raise(v T) {
	s.mu.Lock()
	s.pending = append(s.pending, v)
	s.mu.Unlock()
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Wait consumes one raise, blocking until there is one or ctx is done.
func (s *Signal[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	for {
		if ctx.Err() != nil {
			return zero, ErrShutdown
		}
		s.mu.Lock()
		if len(s.pending) > 0 {
			v := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()
			return v, nil
		}
		s.mu.Unlock()
		select {
		case <-s.ready:
		case <-ctx.Done():
			return zero, ErrShutdown
		}
	}
}

// Pending returns the number of raises not yet consumed.
func (s *Signal[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Barrier holds every task until Release.
type Barrier struct {
	ch   chan struct{}
	once sync.Once
}

// NewBarrier creates a closed barrier.
func NewBarrier() *Barrier { return &Barrier{ch: make(chan struct{})} }

// Release lets every current and future waiter through.
func (b *Barrier) Release() { b.once.Do(func() { close(b.ch) }) }

// Wait blocks until Release or ctx is done.
func (b *Barrier) Wait(ctx context.Context) error {
	select {
	case <-b.ch:
		return nil
	case <-ctx.Done():
		return ErrShutdown
	}
}
