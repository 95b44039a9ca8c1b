package core

import (
	"encoding/json"
	"net/http"

	"RobotSupervisor/internal/model"
)

// Status is a read-only view of the supervisor state. Each field is read
// under its own lock, so the view is not a joint snapshot.
type Status struct {
	RobotLinkOpen  bool           `json:"robot_link_open"`
	RobotStarted   bool           `json:"robot_started"`
	WatchdogArmed  bool           `json:"watchdog_armed"`
	Motion         string         `json:"motion"`
	CameraOpen     bool           `json:"camera_open"`
	PeriodicImage  bool           `json:"periodic_image"`
	Position       model.Position `json:"position"`
	Arena          model.Arena    `json:"arena"`
	ArenaConfirmed bool           `json:"arena_confirmed"`
	QueueLength    int            `json:"queue_length"`
	Stats          StatsSnapshot  `json:"stats"`
}

// Status returns the current state; ok is false before Init succeeded.
func (t *Tasks) Status() (st Status, ok bool) {
	if !t.ready.Load() {
		return Status{}, false
	}
	return Status{
		RobotLinkOpen:  t.state.robotLink.Get(),
		RobotStarted:   t.state.robotStarted.Get().started,
		WatchdogArmed:  t.wd.Armed(),
		Motion:         t.state.motion.Get().commanded.String(),
		CameraOpen:     t.state.camera.Get(),
		PeriodicImage:  t.state.periodicImage.Get(),
		Position:       t.state.position.Get(),
		Arena:          t.state.arena.Get(),
		ArenaConfirmed: t.state.arenaConfirm.Get(),
		QueueLength:    t.queue.Len(),
		Stats:          t.stats.Snapshot(),
	}, true
}

// StatusHandler serves Status as JSON.
func (t *Tasks) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		st, ok := t.Status()
		if !ok {
			http.Error(w, "supervisor not initialized", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(st); err != nil {
			t.log.Warnf("[status] write response: %v", err)
		}
	}
}
