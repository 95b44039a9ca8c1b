// Package vision derives the arena and the robot position from a camera frame.
//
// The routine is intentionally plain: the arena is the bounding box of every
// pixel at or above ArenaLevel and the robot is the centroid of every pixel at
// or above MarkerLevel inside that box.
package vision

import (
	"errors"
	"fmt"

	"RobotSupervisor/internal/model"
)

var (
	// ErrNoArena is returned when no pixel reaches the arena level.
	ErrNoArena = errors.New("arena not found")
	// ErrNoRobot is returned when no marker pixel lies inside the arena.
	ErrNoRobot = errors.New("robot marker not found")
)

// ThresholdCalibrator locates the arena and the robot marker by brightness.
type ThresholdCalibrator struct {
	ArenaLevel  uint8
	MarkerLevel uint8
}

// NewThresholdCalibrator creates a calibrator for the given levels.
func NewThresholdCalibrator(arenaLevel, markerLevel uint8) *ThresholdCalibrator {
	return &ThresholdCalibrator{ArenaLevel: arenaLevel, MarkerLevel: markerLevel}
}

// Calibrate returns the robot position and the arena found in img.
func (c *ThresholdCalibrator) Calibrate(img *model.Image) (model.Position, model.Arena, error) {
	if img == nil || img.Width <= 0 || img.Height <= 0 || len(img.Data) != img.Width*img.Height {
		return model.Position{}, model.Arena{}, errors.New("invalid frame")
	}

	minX, minY, maxX, maxY := img.Width, img.Height, -1, -1
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			if img.At(x, y) < c.ArenaLevel {
				continue
			}
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}
	if maxX < 0 {
		return model.Position{}, model.Arena{}, ErrNoArena
	}
	arena := model.Arena{X: minX, Y: minY, Width: maxX - minX + 1, Height: maxY - minY + 1}

	var sumX, sumY, n float64
	for y := arena.Y; y < arena.Y+arena.Height; y++ {
		for x := arena.X; x < arena.X+arena.Width; x++ {
			if img.At(x, y) >= c.MarkerLevel {
				sumX += float64(x)
				sumY += float64(y)
				n++
			}
		}
	}
	if n == 0 {
		return model.Position{}, arena, ErrNoRobot
	}
	pos := model.Position{X: sumX / n, Y: sumY / n}
	if !arena.Contains(pos.X, pos.Y) {
		return model.Position{}, arena, fmt.Errorf("robot at (%.1f, %.1f) outside arena", pos.X, pos.Y)
	}
	return pos, arena, nil
}
