package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// JobName represents the name of a periodic job.
type JobName string

// Schedule describes when a periodic job runs: first at StartAt, then every Every.
type Schedule struct {
	Every   time.Duration
	StartAt time.Time
}

// Scheduler represents a background job scheduler.
type Scheduler struct {
	mu        sync.Mutex
	jobs      map[JobName]uuid.UUID
	scheduler gocron.Scheduler
}

// JobFunc represents the type of function that executes a scheduled job.
type JobFunc func(context.Context) error

// ErrInvalidSchedule is returned when a schedule can't be used.
var ErrInvalidSchedule = errors.New("invalid schedule")

// ErrUnknownJob is returned when no job was registered under the name.
var ErrUnknownJob = errors.New("unknown job")

// NewScheduler creates a new Scheduler.
func NewScheduler() (*Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		jobs:      map[JobName]uuid.UUID{},
		scheduler: scheduler,
	}, nil
}

// RegisterJob registers a job in the Scheduler.
//
// If the job does not exist, it is created. If it already exists, it is rescheduled.
func (s *Scheduler) RegisterJob(name JobName, schedule Schedule, jobFunc JobFunc) error {
	if schedule.Every <= 0 {
		return ErrInvalidSchedule
	}

	definition := gocron.DurationJob(schedule.Every)

	options := []gocron.JobOption{
		gocron.WithName(string(name)),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}

	if !schedule.StartAt.IsZero() {
		if !schedule.StartAt.After(time.Now()) {
			return ErrInvalidSchedule
		}

		options = append(options, gocron.WithStartAt(gocron.WithStartDateTime(schedule.StartAt)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.jobs[name]
	if ok {
		_, err := s.scheduler.Update(id, definition, gocron.NewTask(wrapJob(name, jobFunc)), options...)
		if err != nil {
			return err
		}
	} else {
		job, err := s.scheduler.NewJob(definition, gocron.NewTask(wrapJob(name, jobFunc)), options...)
		if err != nil {
			return err
		}

		s.jobs[name] = job.ID()
	}

	slog.Debug("Scheduled periodic job", "job", name, "every", schedule.Every, "start", schedule.StartAt)

	return nil
}

// NextRun returns when the job runs next.
func (s *Scheduler) NextRun(name JobName) (time.Time, error) {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()

	if !ok {
		return time.Time{}, ErrUnknownJob
	}

	for _, job := range s.scheduler.Jobs() {
		if job.ID() == id {
			return job.NextRun()
		}
	}

	return time.Time{}, ErrUnknownJob
}

// Start starts the scheduler and its registered jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Shutdown shuts down the scheduler and its registered jobs.
func (s *Scheduler) Shutdown() error {
	return s.scheduler.Shutdown()
}

// NextStart returns the first time after now at the given hour, shifted by jitter.
func NextStart(now time.Time, hour int, jitter time.Duration) time.Time {
	start := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location()).Add(jitter)

	for !start.After(now) {
		start = start.AddDate(0, 0, 1)
	}

	return start
}

// Jitter returns a random offset spreading the checks of many devices.
//
// Checks hitting the mirror get pushed within the hour, others move by up to five minutes either way.
func Jitter(mirror bool) time.Duration {
	if mirror {
		return time.Duration(rand.IntN(60)) * time.Minute //nolint:gosec
	}

	return time.Duration(rand.IntN(11)-5) * time.Minute //nolint:gosec
}

func wrapJob(name JobName, jobFunc JobFunc) func(context.Context) {
	return func(ctx context.Context) {
		select {
		// If the context is already cancelled, don't start the job.
		case <-ctx.Done():
			return

		default:
			slog.InfoContext(ctx, "Executing periodic job", slog.String("job", string(name)))

			err := jobFunc(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "Error running periodic job", slog.String("job", string(name)), slog.Any("error", err))
			}
		}
	}
}
