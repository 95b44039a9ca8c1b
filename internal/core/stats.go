package core

import "sync"

// StatsSnapshot is a point-in-time copy of the supervisor counters.
type StatsSnapshot struct {
	MessagesReceived int64
	MessagesSent     int64
	DecodeErrors     int64
	EncodeErrors     int64
	WatchdogTrips    int64
	RobotFailures    int64
	RobotLost        int64
	ImagesSent       int64
	Calibrations     int64
	MonitorSessions  int64
}

// Stats accumulates counters while the supervisor runs.
// All methods are nil-receiver safe.
type Stats struct {
	mu sync.Mutex
	s  StatsSnapshot
}

func (st *Stats) add(fn func(s *StatsSnapshot)) {
	if st == nil {
		return
	}
	st.mu.Lock()
	fn(&st.s)
	st.mu.Unlock()
}

func (st *Stats) IncReceived()       { st.add(func(s *StatsSnapshot) { s.MessagesReceived++ }) }
func (st *Stats) IncSent()           { st.add(func(s *StatsSnapshot) { s.MessagesSent++ }) }
func (st *Stats) IncDecodeError()    { st.add(func(s *StatsSnapshot) { s.DecodeErrors++ }) }
func (st *Stats) IncEncodeError()    { st.add(func(s *StatsSnapshot) { s.EncodeErrors++ }) }
func (st *Stats) IncWatchdogTrip()   { st.add(func(s *StatsSnapshot) { s.WatchdogTrips++ }) }
func (st *Stats) IncRobotFailure()   { st.add(func(s *StatsSnapshot) { s.RobotFailures++ }) }
func (st *Stats) IncRobotLost()      { st.add(func(s *StatsSnapshot) { s.RobotLost++ }) }
func (st *Stats) IncImageSent()      { st.add(func(s *StatsSnapshot) { s.ImagesSent++ }) }
func (st *Stats) IncCalibration()    { st.add(func(s *StatsSnapshot) { s.Calibrations++ }) }
func (st *Stats) IncMonitorSession() { st.add(func(s *StatsSnapshot) { s.MonitorSessions++ }) }

// Snapshot returns a copy of the counters.
func (st *Stats) Snapshot() StatsSnapshot {
	if st == nil {
		return StatsSnapshot{}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s
}
