package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/example/dreamate/internal/metrics"
	"github.com/example/dreamate/pkg/models"
)

// Default notification settings
const (
	DefaultNotificationStartHour = 8
	DefaultNotificationEndHour   = 22
	DefaultInterval              = time.Hour
)

// Notifier sends review reminders
type Notifier interface {
	SendReminder(ctx context.Context, stats models.VocabStats) error
}

// StatsSource reports how many vocab items are due
type StatsSource interface {
	Stats(ctx context.Context) (models.VocabStats, error)
}

// Config controls when reminders go out. Hours are in the scheduler's
// location; EndHour is exclusive.
type Config struct {
	Interval  time.Duration
	StartHour int
	EndHour   int
	Location  *time.Location
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	stats     StatsSource
	notifier  Notifier
	cfg       Config
	now       func() time.Time
	log       zerolog.Logger
}

// New creates a new scheduler instance
func New(stats StatsSource, notifier Notifier, cfg Config, log zerolog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StartHour == 0 && cfg.EndHour == 0 {
		cfg.StartHour = DefaultNotificationStartHour
		cfg.EndHour = DefaultNotificationEndHour
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(cfg.Location),
		stats:     stats,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
		log:       log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins running all scheduled tasks
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.cfg.Interval).WaitForSchedule().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.CheckAndSendReminders(ctx); err != nil {
			s.log.Error().Err(err).Msg("reminder check failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reminders: %w", err)
	}

	s.scheduler.StartAsync()
	s.log.Info().
		Dur("interval", s.cfg.Interval).
		Int("start_hour", s.cfg.StartHour).
		Int("end_hour", s.cfg.EndHour).
		Msg("scheduler started")
	return nil
}

// Run starts the scheduler and blocks until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// InWindow reports whether t falls inside the notification hours.
func (s *Scheduler) InWindow(t time.Time) bool {
	hour := t.In(s.cfg.Location).Hour()
	return hour >= s.cfg.StartHour && hour < s.cfg.EndHour
}

// CheckAndSendReminders notifies when items are due and the current hour is
// inside the notification window. It reports whether a reminder was sent.
func (s *Scheduler) CheckAndSendReminders(ctx context.Context) (bool, error) {
	now := s.now()
	if !s.InWindow(now) {
		s.log.Debug().
			Int("hour", now.In(s.cfg.Location).Hour()).
			Msg("outside notification hours, skipping reminders")
		return false, nil
	}
	return s.RunManualCheck(ctx)
}

// RunManualCheck sends a reminder when items are due, ignoring the window
func (s *Scheduler) RunManualCheck(ctx context.Context) (bool, error) {
	stats, err := s.stats.Stats(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count due items: %w", err)
	}
	if stats.Due == 0 {
		return false, nil
	}

	if err := s.notifier.SendReminder(ctx, stats); err != nil {
		return false, fmt.Errorf("failed to send reminder: %w", err)
	}
	metrics.RemindersTotal.Inc()
	s.log.Info().Int("due", stats.Due).Msg("review reminder sent")
	return true, nil
}
