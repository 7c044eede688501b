package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caejd/jobdiary/app/service/mocks"
)

func stoppedCron() *mocks.CronMock {
	return &mocks.CronMock{
		ScheduleFunc: func(cron.Schedule, cron.Job) cron.EntryID { return 1 },
		StartFunc:    func() {},
		StopFunc: func() context.Context {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			return ctx
		},
	}
}

func TestLoop_Do(t *testing.T) {
	var runs atomic.Int32
	cr := stoppedCron()
	l := &Loop{Name: "poll", Spec: "@every 5s", Cron: cr, Task: func(context.Context) error {
		runs.Add(1)
		return nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- l.Do(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond, "first pass on start")
	require.Len(t, cr.ScheduleCalls(), 1)
	assert.Len(t, cr.StartCalls(), 1)

	// cron tick
	cr.ScheduleCalls()[0].Cmd.Run()
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)

	// manual trigger
	l.Trigger()
	require.Eventually(t, func() bool { return l.State().Runs == 3 }, time.Second, 5*time.Millisecond)

	st := l.State()
	assert.Equal(t, "poll", st.Name)
	assert.Equal(t, "@every 5s", st.Spec)
	assert.False(t, st.LastRun.IsZero())
	assert.Empty(t, st.LastErr)
	assert.True(t, st.NextRun.After(st.LastRun))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop not stopped")
	}
	assert.Len(t, cr.StopCalls(), 1)
}

func TestLoop_TaskError(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	l := &Loop{Name: "update", Spec: "@every 1m", Cron: stoppedCron(), Task: func(context.Context) error {
		if fail.Load() {
			return errors.New("db locked")
		}
		return nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Do(ctx) }()

	require.Eventually(t, func() bool { return l.State().Runs == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "db locked", l.State().LastErr)

	fail.Store(false)
	l.Trigger()
	require.Eventually(t, func() bool { return l.State().Runs == 2 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, l.State().LastErr, "error cleared by successful pass")
}

func TestLoop_TriggerCoalesced(t *testing.T) {
	l := &Loop{Name: "poll", Spec: "@every 5s"}
	assert.True(t, l.Trigger())
	assert.False(t, l.Trigger(), "one pass already waiting")
	assert.False(t, l.State().Running)
}

func TestLoop_NoOverlap(t *testing.T) {
	var active, maxActive atomic.Int32
	release := make(chan struct{})
	l := &Loop{Name: "poll", Spec: "@every 5s", Cron: stoppedCron(), Task: func(context.Context) error {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		<-release
		active.Add(-1)
		return nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Do(ctx) }()

	require.Eventually(t, func() bool { return l.State().Running }, time.Second, 5*time.Millisecond)
	assert.True(t, l.Trigger())
	assert.False(t, l.Trigger())
	close(release)
	require.Eventually(t, func() bool { return l.State().Runs == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestLoop_BadSpec(t *testing.T) {
	l := &Loop{Name: "poll", Spec: "every now and then", Task: func(context.Context) error { return nil }}
	err := l.Do(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't parse schedule")
}

func TestLoop_RealCron(t *testing.T) {
	if testing.Short() {
		t.Skip("skip in short mode")
	}
	var runs atomic.Int32
	l := &Loop{Name: "poll", Spec: "@every 1s", Task: func(context.Context) error {
		runs.Add(1)
		return nil
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	require.NoError(t, l.Do(ctx))
	assert.GreaterOrEqual(t, runs.Load(), int32(2))
}
