package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatchdogDeadline(t *testing.T) {
	wd := newWatchdog(time.Second)
	now := time.Now()

	assert.False(t, wd.Expired(now.Add(time.Hour)), "disarmed watchdog never expires")
	assert.True(t, wd.Arm(now))
	assert.False(t, wd.Arm(now), "already armed")

	assert.False(t, wd.Expired(now.Add(time.Second)))
	assert.True(t, wd.Expired(now.Add(1001*time.Millisecond)))

	wd.Feed(now.Add(900 * time.Millisecond))
	assert.False(t, wd.Expired(now.Add(1500*time.Millisecond)))

	wd.Disarm()
	assert.False(t, wd.Armed())
	assert.False(t, wd.Expired(now.Add(time.Hour)))
}

func TestStats_NilSafe(t *testing.T) {
	var st *Stats
	st.IncSent()
	assert.Equal(t, StatsSnapshot{}, st.Snapshot())

	st = &Stats{}
	st.IncSent()
	st.IncSent()
	st.IncWatchdogTrip()
	snap := st.Snapshot()
	assert.Equal(t, int64(2), snap.MessagesSent)
	assert.Equal(t, int64(1), snap.WatchdogTrips)
}
