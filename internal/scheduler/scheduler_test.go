package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okRunner(detail string) runner {
	return func(context.Context) outcome { return success("%s", detail) }
}

func newStarted(t *testing.T) *Scheduler {
	t.Helper()
	s := New(Options{})
	s.Start(context.Background())
	t.Cleanup(s.Stop)
	return s
}

func TestTriggerJobRecordsOutcome(t *testing.T) {
	s := newStarted(t)
	require.NoError(t, s.Register("refresh", "0 2 * * *", true, false, okRunner("42 records")))

	before := s.GetStatus()
	require.Len(t, before, 1)
	assert.Equal(t, StateNever, before[0].State)
	assert.Nil(t, before[0].LastRun)

	status, err := s.TriggerJob(context.Background(), "refresh")
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, status.State)
	assert.Equal(t, "42 records", status.Detail)
	require.NotNil(t, status.LastRun)
	assert.WithinDuration(t, time.Now(), *status.LastRun, 5*time.Second)
}

func TestTriggerJobRejectedWhenStopped(t *testing.T) {
	s := New(Options{})
	require.NoError(t, s.Register("refresh", "0 2 * * *", true, false, okRunner("noop")))

	_, err := s.TriggerJob(context.Background(), "refresh")
	require.Error(t, err)

	s.Start(context.Background())
	s.Stop()
	_, err = s.TriggerJob(context.Background(), "refresh")
	require.Error(t, err, "a stopped scheduler must refuse triggers")
}

func TestTriggerUnknownJob(t *testing.T) {
	s := newStarted(t)
	_, err := s.TriggerJob(context.Background(), "nonsense")
	require.Error(t, err)
}

func TestRegisterRejectsBadSchedule(t *testing.T) {
	s := New(Options{})
	err := s.Register("refresh", "every tuesday", true, false, okRunner("noop"))
	require.Error(t, err)

	err = s.Register("refresh", "0 2 * * *", true, false, okRunner("noop"))
	require.NoError(t, err)
	err = s.Register("refresh", "0 3 * * *", true, false, okRunner("noop"))
	require.Error(t, err, "duplicate names must be rejected")
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	s := newStarted(t)
	require.NoError(t, s.Register("slow", "0 2 * * *", true, false, func(context.Context) outcome {
		close(entered)
		<-release
		return success("done")
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.TriggerJob(context.Background(), "slow")
		assert.NoError(t, err)
	}()

	<-entered
	_, err := s.TriggerJob(context.Background(), "slow")
	require.Error(t, err, "a second run while the first is in flight must be refused")

	close(release)
	wg.Wait()

	status := s.GetStatus()[0]
	assert.Equal(t, StateSuccess, status.State)
}

func TestFailureAndWarningStates(t *testing.T) {
	s := newStarted(t)
	require.NoError(t, s.Register("broken", "0 2 * * *", true, false, func(context.Context) outcome {
		return failure(errors.New("upstream on fire"))
	}))
	require.NoError(t, s.Register("shaky", "0 2 * * *", true, false, func(context.Context) outcome {
		return warning("0 records")
	}))
	require.NoError(t, s.Register("panicky", "0 2 * * *", true, false, func(context.Context) outcome {
		panic("boom")
	}))

	status, err := s.TriggerJob(context.Background(), "broken")
	require.NoError(t, err, "a failing job run is not a trigger error")
	assert.Equal(t, StateError, status.State)
	assert.Equal(t, "upstream on fire", status.Detail)

	status, err = s.TriggerJob(context.Background(), "shaky")
	require.NoError(t, err)
	assert.Equal(t, StateWarning, status.State)

	status, err = s.TriggerJob(context.Background(), "panicky")
	require.NoError(t, err, "a panicking job must not take the scheduler down")
	assert.Equal(t, StateError, status.State)
	assert.Contains(t, status.Detail, "boom")
}

func TestUpdateSchedulePreservesStatus(t *testing.T) {
	s := newStarted(t)
	require.NoError(t, s.Register("refresh", "0 2 * * *", true, false, okRunner("done")))

	_, err := s.TriggerJob(context.Background(), "refresh")
	require.NoError(t, err)

	require.NoError(t, s.UpdateSchedule("refresh", "30 4 * * *"))
	status := s.GetStatus()[0]
	assert.Equal(t, "30 4 * * *", status.Schedule)
	assert.Equal(t, StateSuccess, status.State, "a reschedule must not wipe run history")
	assert.NotNil(t, status.LastRun)

	require.Error(t, s.UpdateSchedule("refresh", "not a cron line"))
	require.Error(t, s.UpdateSchedule("ghost", "0 2 * * *"))
	assert.Equal(t, "30 4 * * *", s.GetStatus()[0].Schedule, "a rejected update must not apply")
}

func TestDisabledJobIsTriggerableButNotScheduled(t *testing.T) {
	s := newStarted(t)
	require.NoError(t, s.Register("manual", "0 2 * * *", false, false, okRunner("ran by hand")))

	status := s.GetStatus()[0]
	assert.False(t, status.Enabled)

	got, err := s.TriggerJob(context.Background(), "manual")
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, got.State)
}

func TestStatusKeepsRegistrationOrder(t *testing.T) {
	s := New(Options{})
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.Register(name, "0 2 * * *", true, false, okRunner("x")))
	}
	var names []string
	for _, st := range s.GetStatus() {
		names = append(names, st.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)
}

type recordingSink struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingSink) Notify(_ context.Context, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
}

func TestNotificationSentOnFlaggedJob(t *testing.T) {
	sink := &recordingSink{}
	s := New(Options{Sink: sink})
	s.Start(context.Background())
	t.Cleanup(s.Stop)

	require.NoError(t, s.Register("noisy", "0 2 * * *", true, true, okRunner("3 loans")))
	require.NoError(t, s.Register("quiet", "0 2 * * *", true, false, okRunner("done")))

	_, err := s.TriggerJob(context.Background(), "noisy")
	require.NoError(t, err)
	_, err = s.TriggerJob(context.Background(), "quiet")
	require.NoError(t, err)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.texts, 1)
	assert.Contains(t, sink.texts[0], "noisy")
	assert.Contains(t, sink.texts[0], "3 loans")
}

func TestScheduledEntryFires(t *testing.T) {
	fired := make(chan struct{}, 1)
	s := New(Options{})
	require.NoError(t, s.Register("tick", "* * * * *", true, false, func(context.Context) outcome {
		select {
		case fired <- struct{}{}:
		default:
		}
		return success("tick")
	}))
	s.Start(context.Background())
	t.Cleanup(s.Stop)

	if testing.Short() {
		t.Skip("waiting for a cron minute boundary")
	}
	select {
	case <-fired:
	case <-time.After(90 * time.Second):
		t.Fatal("scheduled job never fired")
	}
}
