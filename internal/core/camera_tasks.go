package core

import (
	"context"
	"errors"
	"time"

	"RobotSupervisor/internal/model"
)

var errCameraClosed = errors.New("camera not open")

func (t *Tasks) startCameraTask(ctx context.Context) {
	for {
		if _, err := t.sig.startCamera.Wait(ctx); err != nil {
			return
		}
		var err error
		already := false
		t.state.camera.Update(func(open *bool) {
			if *open {
				already = true
				return
			}
			if err = t.opts.Camera.Open(); err == nil {
				*open = true
			}
		})
		switch {
		case already:
			t.send(ctx, model.NewStatus("camera already open"))
		case err != nil:
			t.sendError(ctx, "open camera: %v", err)
		default:
			t.send(ctx, model.NewMessage(model.MsgCamStarted))
		}
	}
}

func (t *Tasks) closeCameraTask(ctx context.Context) {
	for {
		if _, err := t.sig.closeCamera.Wait(ctx); err != nil {
			return
		}
		var err error
		already := false
		t.state.camera.Update(func(open *bool) {
			if !*open {
				already = true
				return
			}
			err = t.opts.Camera.Close()
			*open = false
		})
		switch {
		case already:
			t.send(ctx, model.NewStatus("camera already closed"))
		case err != nil:
			t.sendError(ctx, "close camera: %v", err)
		default:
			t.send(ctx, model.NewMessage(model.MsgCamClosed))
		}
	}
}

func (t *Tasks) periodicImageTask(ctx context.Context) {
	every(ctx, t.opts.ImagePeriod, func(time.Time) {
		if !t.state.periodicImage.Get() {
			return
		}
		var (
			img     *model.Image
			err     error
			grabbed bool
		)
		t.state.camera.Update(func(open *bool) {
			if !*open {
				return
			}
			img, err = t.opts.Camera.Grab()
			grabbed = true
		})
		if !grabbed {
			return
		}
		if err != nil {
			t.sendError(ctx, "grab image: %v", err)
			return
		}
		t.send(ctx, &model.Message{Type: model.MsgCamImage, Image: img})
	})
}

func (t *Tasks) calibrationTask(ctx context.Context) {
	for {
		if _, err := t.sig.calibration.Wait(ctx); err != nil {
			return
		}
		t.calibrate(ctx)
	}
}

// calibrate grabs a frame and, on success only, replaces the position and
// the arena.
func (t *Tasks) calibrate(ctx context.Context) {
	var (
		img *model.Image
		err error
	)
	t.state.camera.Update(func(open *bool) {
		if !*open {
			err = errCameraClosed
			return
		}
		img, err = t.opts.Camera.Grab()
	})
	if err != nil {
		t.sendError(ctx, "calibration failed: %v", err)
		return
	}
	pos, arena, err := t.opts.Calibrator.Calibrate(img)
	if err != nil {
		t.sendError(ctx, "calibration failed: %v", err)
		return
	}
	t.state.position.Set(pos)
	t.state.arena.Set(arena)
	t.state.arenaConfirm.Set(true)
	t.stats.IncCalibration()
	t.log.Infof("[%s] robot at (%.1f, %.1f), arena %+v", taskCalibration, pos.X, pos.Y, arena)
	t.send(ctx, &model.Message{
		Type:      model.MsgCalibrationResult,
		Position:  &pos,
		Arena:     &arena,
		Confirmed: true,
	})
}
