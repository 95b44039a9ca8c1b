package core

import (
	"context"
	"fmt"

	"RobotSupervisor/internal/model"
)

// MessageQueue is the outbound queue towards the monitor: many producers, one
// consumer, fixed capacity. A full queue blocks its producers; nothing is
// dropped.
type MessageQueue struct {
	ch chan *model.Message
}

// NewMessageQueue creates a queue holding at most size messages.
func NewMessageQueue(size int) (*MessageQueue, error) {
	if size <= 0 {
		return nil, fmt.Errorf("message queue size must be positive, got %d", size)
	}
	return &MessageQueue{ch: make(chan *model.Message, size)}, nil
}

// Write enqueues msg, blocking while the queue is full. It returns ErrShutdown
// if ctx is done first.
func (q *MessageQueue) Write(ctx context.Context, msg *model.Message) error {
	if ctx.Err() != nil {
		return ErrShutdown
	}
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ErrShutdown
	}
}

// Read dequeues the oldest message. ok is false once ctx is done.
func (q *MessageQueue) Read(ctx context.Context) (msg *model.Message, ok bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	select {
	case msg = <-q.ch:
		return msg, true
	case <-ctx.Done():
		return nil, false
	}
}

// Len returns the number of queued messages.
func (q *MessageQueue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *MessageQueue) Cap() int { return cap(q.ch) }
