// Package device implements a simulated camera producing synthetic grayscale
// frames of the arena with the robot marker drawn on it.
package device

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"RobotSupervisor/internal/model"
)

// Pixel levels drawn by SimCamera.
const (
	SimBackgroundLevel = 20
	SimArenaLevel      = 100
	SimMarkerLevel     = 250
	simMarkerSize      = 8
)

// SimCamera generates frames: dark background, a lit arena inset by 10% on
// every side and a bright square marker that drifts across the arena.
type SimCamera struct {
	Width  int
	Height int

	mu   sync.Mutex
	open bool
	seq  uint64
}

// NewSimCamera creates a closed simulated camera.
func NewSimCamera(width, height int) *SimCamera {
	return &SimCamera{Width: width, Height: height}
}

// Open starts the capture. Opening an open camera is a no-op.
func (c *SimCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	return nil
}

// Close stops the capture.
func (c *SimCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

// IsOpen reports whether the camera is capturing.
func (c *SimCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// SimArena returns the arena rectangle drawn in every frame.
func (c *SimCamera) SimArena() model.Arena {
	mx, my := c.Width/10, c.Height/10
	return model.Arena{X: mx, Y: my, Width: c.Width - 2*mx, Height: c.Height - 2*my}
}

// MarkerAt returns the top-left corner of the marker in frame seq.
func (c *SimCamera) MarkerAt(seq uint64) (int, int) {
	a := c.SimArena()
	span := a.Width - simMarkerSize
	if span <= 0 {
		return a.X, a.Y
	}
	return a.X + int(seq%uint64(span)), a.Y + (a.Height-simMarkerSize)/2
}

// Grab captures one frame.
func (c *SimCamera) Grab() (*model.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil, ErrNotOpen
	}
	c.seq++

	data := make([]byte, c.Width*c.Height)
	for i := range data {
		data[i] = SimBackgroundLevel
	}
	a := c.SimArena()
	for y := a.Y; y < a.Y+a.Height; y++ {
		for x := a.X; x < a.X+a.Width; x++ {
			data[y*c.Width+x] = SimArenaLevel
		}
	}
	mx, my := c.MarkerAt(c.seq)
	for y := my; y < my+simMarkerSize && y < c.Height; y++ {
		for x := mx; x < mx+simMarkerSize && x < c.Width; x++ {
			data[y*c.Width+x] = SimMarkerLevel
		}
	}
	return &model.Image{
		Seq:       c.seq,
		Timestamp: time.Now(),
		Width:     c.Width,
		Height:    c.Height,
		Data:      data,
		TraceID:   uuid.NewString(),
	}, nil
}
