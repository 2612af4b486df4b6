package worker

import (
	"context"
	"fmt"
	"time"

	"zapis/internal/calendar"
	"zapis/internal/domain"
	"zapis/internal/metrics"
	"zapis/internal/notify"

	"github.com/rs/zerolog"
)

// ReminderScheduler sends reminders for appointments that start a fixed lead
// time from now.
type ReminderScheduler struct {
	repo     domain.ReminderRepository
	sender   domain.NotificationSender
	rules    calendar.Rules
	lead     time.Duration
	interval time.Duration
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewReminderScheduler(
	repo domain.ReminderRepository,
	sender domain.NotificationSender,
	rules calendar.Rules,
	lead, interval time.Duration,
	logger *zerolog.Logger,
) *ReminderScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReminderScheduler{
		repo:     repo,
		sender:   sender,
		rules:    rules,
		lead:     lead,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// TargetDay is the business-local day whose appointments are due for a
// reminder at now.
func (s *ReminderScheduler) TargetDay(now time.Time) calendar.Day {
	return s.rules.Today(now.Add(s.lead))
}

// RunSweep sends one reminder per due appointment and returns how many were
// delivered. A failed delivery is logged and retried on the next sweep; it
// does not stop the sweep.
func (s *ReminderScheduler) RunSweep(ctx context.Context, now time.Time) (int, error) {
	day := s.TargetDay(now)

	due, err := s.repo.ListDueForReminder(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("list appointments for reminders: %w", err)
	}

	sent := 0
	for _, a := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		if err := s.sender.Send(ctx, a.UserID, notify.RenderReminder(a)); err != nil {
			metrics.IncReminder("failed")
			s.logger.Error().Err(err).
				Str("appointment_id", a.ID).
				Str("user_id", a.UserID).
				Msg("Failed to send reminder")
			continue
		}

		if err := s.repo.MarkReminded(ctx, a.ID, now); err != nil {
			s.logger.Error().Err(err).Str("appointment_id", a.ID).Msg("Failed to mark appointment reminded")
		}
		metrics.IncReminder("sent")
		sent++
	}

	s.logger.Info().
		Str("day", day.String()).
		Int("due", len(due)).
		Int("sent", sent).
		Msg("Reminder sweep finished")
	return sent, nil
}

// Start runs a sweep right away and then every interval until ctx is done.
func (s *ReminderScheduler) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Dur("lead", s.lead).Msg("Reminder scheduler started")
	defer s.logger.Info().Msg("Reminder scheduler stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunSweep(ctx, s.now()); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("Reminder sweep failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
