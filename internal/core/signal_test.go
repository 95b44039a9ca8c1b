package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignal_EveryRaiseWakesOneWait(t *testing.T) {
	s := NewSignal[int]("test")
	s.Raise(1)
	s.Raise(2)
	s.Raise(3)
	assert.Equal(t, 3, s.Pending())

	for want := 1; want <= 3; want++ {
		got, err := s.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Wait(ctx)
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestSignal_ConcurrentWaiters(t *testing.T) {
	s := NewSignal[struct{}]("test")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu    sync.Mutex
		woken int
		wg    sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Wait(ctx); err == nil {
				mu.Lock()
				woken++
				mu.Unlock()
			}
		}()
	}
	s.Raise(struct{}{})
	s.Raise(struct{}{})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return woken == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	wg.Wait()
	assert.Equal(t, 2, woken)
	assert.Zero(t, s.Pending())
}

func TestSignal_ShutdownWinsOverPendingRaise(t *testing.T) {
	s := NewSignal[bool]("test")
	s.Raise(true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Wait(ctx)
	assert.ErrorIs(t, err, ErrShutdown)
	assert.Equal(t, 1, s.Pending())
}

func TestBarrier(t *testing.T) {
	b := NewBarrier()
	released := make(chan struct{})
	go func() {
		if b.Wait(context.Background()) == nil {
			close(released)
		}
	}()

	select {
	case <-released:
		t.Fatal("barrier opened before Release")
	case <-time.After(20 * time.Millisecond):
	}
	b.Release()
	b.Release()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}

	closed := NewBarrier()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, closed.Wait(ctx), ErrShutdown)
}

func TestSignalTable(t *testing.T) {
	require.NoError(t, validateSignalTable(signalTable))

	var names []string
	for _, s := range signalTable {
		names = append(names, s.Name)
	}
	assert.Equal(t, names, newSignals().names(), "every table entry has exactly one semaphore")

	spec, ok := lookupSignal(sigStartRobot)
	require.True(t, ok)
	assert.True(t, spec.Guarded)
	assert.Equal(t, sigOpenComRobot, spec.Requires)
}

func TestValidateSignalTable_Errors(t *testing.T) {
	tests := []struct {
		name  string
		table []signalSpec
		want  string
	}{
		{
			name: "duplicate",
			table: []signalSpec{
				{Name: "a", Raiser: "R", Waiter: "W1"},
				{Name: "a", Raiser: "R", Waiter: "W2"},
			},
			want: "declared twice",
		},
		{
			name: "requirement declared later",
			table: []signalSpec{
				{Name: "b", Raiser: "R", Waiter: "W1", Requires: "a"},
				{Name: "a", Raiser: "R", Waiter: "W2"},
			},
			want: "not declared before",
		},
		{
			name: "task waits twice",
			table: []signalSpec{
				{Name: "a", Raiser: "R", Waiter: "W"},
				{Name: "b", Raiser: "R", Waiter: "W"},
			},
			want: "waits on both",
		},
		{
			name:  "guard without requirement",
			table: []signalSpec{{Name: "a", Raiser: "R", Waiter: "W", Guarded: true}},
			want:  "no requirement",
		},
		{
			name:  "missing waiter",
			table: []signalSpec{{Name: "a", Raiser: "R"}},
			want:  "required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSignalTable(tt.table)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
