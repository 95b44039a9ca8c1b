package core

import (
	"sync"

	"RobotSupervisor/internal/model"
)

// cell is one piece of shared state guarded by its own mutex. The value is
// only reachable through Get, Set and Update, so the lock is always released
// in the scope that took it.
type cell[T any] struct {
	mu sync.Mutex
	v  T
}

func (c *cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *cell[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v = v
}

// Update runs fn with the lock held. fn must not touch another cell.
func (c *cell[T]) Update(fn func(v *T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.v)
}

// motionState is the locomotion order shared by the monitor dispatch, MoveTask
// and the watchdog. enabled lives in the same cell so that a forced stop and a
// MoveTask update can never interleave.
type motionState struct {
	commanded model.Motion
	applied   model.Motion
	enabled   bool
}

type robotStatus struct {
	started bool
	withWD  bool
}

// sharedState holds every cell shared between tasks.
type sharedState struct {
	robotLink     cell[bool]
	motion        cell[motionState]
	robotStarted  cell[robotStatus]
	robotFailures cell[int]
	camera        cell[bool]
	periodicImage cell[bool]
	position      cell[model.Position]
	arena         cell[model.Arena]
	arenaConfirm  cell[bool]
}
