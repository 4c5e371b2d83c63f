package scheduling

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerStartup(t *testing.T) {
	t.Parallel()

	scheduler, err := NewScheduler()
	require.NoError(t, err)
	require.Empty(t, scheduler.jobs, "Scheduler should have no registered jobs after creation")
}

func TestSchedulerUsage(t *testing.T) {
	t.Parallel()

	scheduler, err := NewScheduler()
	require.NoError(t, err)

	// Register the first job.
	firstJob := JobName("first_job")
	err = scheduler.RegisterJob(firstJob, Schedule{Every: time.Hour}, func(_ context.Context) error { return nil })
	require.NoError(t, err)
	require.Len(t, scheduler.jobs, 1)
	require.Contains(t, scheduler.jobs, firstJob)

	// Register the second job.
	secondJob := JobName("second_job")
	start := time.Now().Add(2 * time.Hour)
	err = scheduler.RegisterJob(secondJob, Schedule{Every: 24 * time.Hour, StartAt: start}, func(_ context.Context) error { return nil })
	require.NoError(t, err)
	require.Len(t, scheduler.jobs, 2)

	scheduler.Start()

	t.Cleanup(func() {
		_ = scheduler.Shutdown()
	})

	next, err := scheduler.NextRun(secondJob)
	require.NoError(t, err)
	require.WithinDuration(t, start, next, time.Second)

	// Reschedule the second job.
	start = time.Now().Add(3 * time.Hour)
	err = scheduler.RegisterJob(secondJob, Schedule{Every: 72 * time.Hour, StartAt: start}, func(_ context.Context) error { return nil })
	require.NoError(t, err)
	require.Len(t, scheduler.jobs, 2)

	next, err = scheduler.NextRun(secondJob)
	require.NoError(t, err)
	require.WithinDuration(t, start, next, time.Second)

	_, err = scheduler.NextRun(JobName("missing"))
	require.ErrorIs(t, err, ErrUnknownJob)
}

func TestSchedulerRuns(t *testing.T) {
	t.Parallel()

	scheduler, err := NewScheduler()
	require.NoError(t, err)

	var runs atomic.Int32

	err = scheduler.RegisterJob(JobName("fast"), Schedule{Every: 50 * time.Millisecond}, func(_ context.Context) error {
		runs.Add(1)

		return nil
	})
	require.NoError(t, err)

	scheduler.Start()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, scheduler.Shutdown())
}

func TestScheduleValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		schedule Schedule
	}{
		{
			name:     "No interval",
			schedule: Schedule{},
		},
		{
			name:     "Negative interval",
			schedule: Schedule{Every: -time.Hour},
		},
		{
			name:     "Start in the past",
			schedule: Schedule{Every: time.Hour, StartAt: time.Now().Add(-time.Minute)},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			scheduler, err := NewScheduler()
			require.NoError(t, err)

			got := scheduler.RegisterJob(JobName("test"), tc.schedule, func(_ context.Context) error { return nil })
			require.ErrorIs(t, got, ErrInvalidSchedule, tc.name)
		})
	}
}

func TestNextStart(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

	require.Equal(t, time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC), NextStart(now, 12, 0))
	require.Equal(t, time.Date(2024, 5, 11, 8, 0, 0, 0, time.UTC), NextStart(now, 8, 0))
	require.Equal(t, time.Date(2024, 5, 10, 9, 35, 0, 0, time.UTC), NextStart(now, 9, 35*time.Minute))
	require.Equal(t, time.Date(2024, 5, 11, 9, 25, 0, 0, time.UTC), NextStart(now, 9, 25*time.Minute))
	require.Equal(t, time.Date(2024, 5, 11, 11, 55, 0, 0, time.UTC), NextStart(time.Date(2024, 5, 10, 11, 56, 0, 0, time.UTC), 12, -5*time.Minute))
}

func TestJitter(t *testing.T) {
	t.Parallel()

	for range 200 {
		jitter := Jitter(false)
		require.GreaterOrEqual(t, jitter, -5*time.Minute)
		require.LessOrEqual(t, jitter, 5*time.Minute)

		jitter = Jitter(true)
		require.GreaterOrEqual(t, jitter, time.Duration(0))
		require.Less(t, jitter, time.Hour)
	}
}
