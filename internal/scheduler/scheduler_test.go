package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/dreamate/pkg/models"
)

type fakeStats struct {
	stats models.VocabStats
	err   error
}

func (f *fakeStats) Stats(context.Context) (models.VocabStats, error) { return f.stats, f.err }

type fakeNotifier struct {
	sent []models.VocabStats
	err  error
}

func (f *fakeNotifier) SendReminder(_ context.Context, stats models.VocabStats) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, stats)
	return nil
}

func newTestScheduler(stats *fakeStats, notifier *fakeNotifier, hour int) *Scheduler {
	s := New(stats, notifier, Config{StartHour: 8, EndHour: 22, Location: time.UTC}, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2025, 3, 1, hour, 30, 0, 0, time.UTC) }
	return s
}

func TestCheckAndSendRemindersInsideWindow(t *testing.T) {
	stats := &fakeStats{stats: models.VocabStats{Total: 10, Due: 4}}
	notifier := &fakeNotifier{}
	s := newTestScheduler(stats, notifier, 9)

	sent, err := s.CheckAndSendReminders(context.Background())
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, 4, notifier.sent[0].Due)
}

func TestCheckAndSendRemindersOutsideWindow(t *testing.T) {
	for _, hour := range []int{0, 7, 22, 23} {
		notifier := &fakeNotifier{}
		s := newTestScheduler(&fakeStats{stats: models.VocabStats{Due: 3}}, notifier, hour)

		sent, err := s.CheckAndSendReminders(context.Background())
		require.NoError(t, err)
		assert.False(t, sent, "hour %d", hour)
		assert.Empty(t, notifier.sent)
	}
}

func TestCheckAndSendRemindersNothingDue(t *testing.T) {
	notifier := &fakeNotifier{}
	s := newTestScheduler(&fakeStats{stats: models.VocabStats{Total: 5}}, notifier, 12)

	sent, err := s.CheckAndSendReminders(context.Background())
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, notifier.sent)
}

func TestCheckAndSendRemindersErrors(t *testing.T) {
	s := newTestScheduler(&fakeStats{err: errors.New("db closed")}, &fakeNotifier{}, 12)
	_, err := s.CheckAndSendReminders(context.Background())
	assert.ErrorContains(t, err, "db closed")

	s = newTestScheduler(&fakeStats{stats: models.VocabStats{Due: 1}}, &fakeNotifier{err: errors.New("blocked")}, 12)
	sent, err := s.CheckAndSendReminders(context.Background())
	assert.ErrorContains(t, err, "blocked")
	assert.False(t, sent)
}

func TestRunManualCheckIgnoresWindow(t *testing.T) {
	notifier := &fakeNotifier{}
	s := newTestScheduler(&fakeStats{stats: models.VocabStats{Due: 2}}, notifier, 3)

	sent, err := s.RunManualCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestNewDefaults(t *testing.T) {
	s := New(&fakeStats{}, &fakeNotifier{}, Config{}, zerolog.Nop())
	assert.Equal(t, DefaultInterval, s.cfg.Interval)
	assert.Equal(t, DefaultNotificationStartHour, s.cfg.StartHour)
	assert.Equal(t, DefaultNotificationEndHour, s.cfg.EndHour)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(&fakeStats{}, &fakeNotifier{}, Config{Interval: time.Hour, StartHour: 8, EndHour: 22}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
