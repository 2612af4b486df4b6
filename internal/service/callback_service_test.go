package service

import (
	"context"
	"testing"
	"time"

	"zapis/internal/database"
	"zapis/internal/events"
	"zapis/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localTime(day, hour, minute int) time.Time {
	return time.Date(2026, time.October, day, hour, minute, 0, 0, testZone)
}

func newCallbackService(t *testing.T, db *database.DB, bus *events.EventBus) *CallbackService {
	t.Helper()
	logger := zerolog.Nop()
	s, err := NewCallbackService(db, db, testRules(), bus, CallbackOptions{
		MaxAttempts:  3,
		Backoff:      func(attempt int) time.Duration { return time.Duration(attempt) * 10 * time.Minute },
		StoreTimeout: time.Second,
	}, &logger)
	require.NoError(t, err)
	return s
}

func TestCallbackService_ProposeTimes(t *testing.T) {
	s := newCallbackService(t, nil, nil)

	tests := []struct {
		name  string
		now   time.Time
		first time.Time
		count int
	}{
		{"BeforeOpening", localTime(15, 8, 0), localTime(16, 9, 0), 9},
		{"InsideHours", localTime(15, 10, 20), localTime(15, 11, 0), 7 + 9},
		{"OnTheHour", localTime(15, 11, 0), localTime(15, 12, 0), 6 + 9},
		{"LastHour", localTime(15, 17, 30), localTime(16, 9, 0), 9},
		{"AfterClosing", localTime(15, 19, 0), localTime(16, 9, 0), 9},
		{"DayOff", localTime(18, 10, 0), localTime(19, 9, 0), 9},
		{"BeforeDayOff", localTime(17, 10, 0), localTime(17, 11, 0), 7 + 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			times := s.ProposeTimes(tt.now)
			require.Len(t, times, tt.count)
			assert.True(t, tt.first.Equal(times[0]), "first proposal %s", times[0])
			for i := 1; i < len(times); i++ {
				assert.True(t, times[i].After(times[i-1]))
			}
			last := times[len(times)-1].In(testZone)
			assert.Equal(t, 17, last.Hour())
		})
	}
}

func TestCallbackService_ProposedTimesAreSchedulable(t *testing.T) {
	db := setupTestDB(t)
	s := newCallbackService(t, db, events.NewEventBus())
	ctx := context.Background()

	// Суббота, следующий рабочий день понедельник
	for _, now := range []time.Time{localTime(17, 10, 0), localTime(17, 19, 0), localTime(18, 10, 0)} {
		s.now = func() time.Time { return now }
		for _, proposed := range s.ProposeTimes(now) {
			assert.NotEqual(t, time.Sunday, proposed.In(testZone).Weekday())
			_, err := s.ScheduleCallback(ctx, "u1", Contact{Phone: "+972501234567"}, proposed)
			assert.NoError(t, err, "proposed %s at %s", proposed, now)
		}
	}
}

func TestCallbackService_NextAvailableTime(t *testing.T) {
	s := newCallbackService(t, nil, nil)

	assert.True(t, localTime(15, 11, 0).Equal(s.NextAvailableTime(localTime(15, 10, 20))))
	assert.True(t, localTime(16, 9, 0).Equal(s.NextAvailableTime(localTime(15, 17, 30))))
	// Суббота вечером: воскресенье выходной
	assert.True(t, localTime(19, 9, 0).Equal(s.NextAvailableTime(localTime(17, 19, 0))))
}

func TestCallbackService_RequestConsultation(t *testing.T) {
	db := setupTestDB(t)
	bus := events.NewEventBus()
	s := newCallbackService(t, db, bus)
	s.now = func() time.Time { return localTime(15, 10, 20) }
	ctx := context.Background()

	var requested []events.CallbackEventPayload
	bus.Subscribe(events.EventCallbackRequested, func(e *events.Event) error {
		var p events.CallbackEventPayload
		require.NoError(t, e.Decode(&p))
		requested = append(requested, p)
		return nil
	})

	first, err := s.RequestConsultation(ctx, "u1", Contact{FirstName: "Дана", Phone: "+972 50 123 4567"})
	require.NoError(t, err)
	assert.Equal(t, models.CallbackKindConsultation, first.Kind)
	assert.Equal(t, models.CallbackStatusInQueue, first.Status)
	assert.Equal(t, 1, first.QueuePosition)
	assert.Equal(t, 3, first.MaxAttempts)
	assert.True(t, localTime(15, 11, 0).Equal(first.PreferredAt))

	second, err := s.RequestConsultation(ctx, "u2", Contact{Phone: "+972501234568"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.QueuePosition)

	require.Len(t, requested, 2)
	assert.Equal(t, "+972501234567", requested[0].Phone)

	user, err := db.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Дана", user.FirstName)

	_, err = s.RequestConsultation(ctx, "u3", Contact{Phone: "12345"})
	assert.ErrorIs(t, err, ErrValidation)

	queue, err := s.ListQueue(ctx)
	require.NoError(t, err)
	assert.Len(t, queue, 2)
}

func TestCallbackService_ScheduleCallback(t *testing.T) {
	db := setupTestDB(t)
	s := newCallbackService(t, db, events.NewEventBus())
	s.now = func() time.Time { return localTime(15, 10, 20) }
	ctx := context.Background()
	contact := Contact{FirstName: "Дана", Phone: "+972501234567"}

	_, err := s.ScheduleCallback(ctx, "u1", contact, localTime(15, 9, 0))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.ScheduleCallback(ctx, "u1", contact, localTime(16, 20, 0))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.ScheduleCallback(ctx, "u1", contact, localTime(18, 10, 0))
	assert.ErrorIs(t, err, ErrValidation)

	// Несколько заявок на одно и то же время допустимы
	for _, user := range []string{"u1", "u2"} {
		ticket, err := s.ScheduleCallback(ctx, user, contact, localTime(16, 10, 0))
		require.NoError(t, err)
		assert.Equal(t, models.CallbackStatusScheduled, ticket.Status)
		assert.Equal(t, models.CallbackKindCallback, ticket.Kind)
		assert.Zero(t, ticket.QueuePosition)
	}
}

func TestCallbackService_CheckStatusAndCancel(t *testing.T) {
	db := setupTestDB(t)
	bus := events.NewEventBus()
	s := newCallbackService(t, db, bus)
	s.now = func() time.Time { return localTime(15, 10, 20) }
	ctx := context.Background()

	var cancelled int
	bus.Subscribe(events.EventCallbackCancelled, func(e *events.Event) error {
		cancelled++
		return nil
	})

	_, ok, err := s.CheckStatus(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	ticket, err := s.ScheduleCallback(ctx, "u1", Contact{Phone: "+972501234567"}, localTime(16, 10, 0))
	require.NoError(t, err)

	got, ok, err := s.CheckStatus(ctx, ticket.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.CallbackStatusScheduled, got.Status)

	done, err := s.Cancel(ctx, ticket.ID, "u2")
	require.NoError(t, err)
	assert.False(t, done)

	done, err = s.Cancel(ctx, ticket.ID, "u1")
	require.NoError(t, err)
	assert.True(t, done)

	done, err = s.Cancel(ctx, ticket.ID, "u1")
	require.NoError(t, err)
	assert.False(t, done)

	got, _, err = s.CheckStatus(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallbackStatusCancelled, got.Status)
	assert.Equal(t, 1, cancelled)
}

func TestCallbackService_PromoteDue(t *testing.T) {
	db := setupTestDB(t)
	bus := events.NewEventBus()
	s := newCallbackService(t, db, bus)
	s.now = func() time.Time { return localTime(15, 10, 20) }
	ctx := context.Background()

	var queued []string
	bus.Subscribe(events.EventCallbackQueued, func(e *events.Event) error {
		var p events.CallbackEventPayload
		require.NoError(t, e.Decode(&p))
		queued = append(queued, p.RequestID)
		return nil
	})

	soon, err := s.ScheduleCallback(ctx, "u1", Contact{Phone: "+972501234567"}, localTime(15, 12, 0))
	require.NoError(t, err)
	later, err := s.ScheduleCallback(ctx, "u2", Contact{Phone: "+972501234568"}, localTime(16, 12, 0))
	require.NoError(t, err)

	n, err := s.PromoteDue(ctx, localTime(15, 11, 59))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.PromoteDue(ctx, localTime(15, 12, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{soon.ID}, queued)

	got, _, err := s.CheckStatus(ctx, soon.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallbackStatusInQueue, got.Status)
	assert.Equal(t, 1, got.QueuePosition)

	got, _, err = s.CheckStatus(ctx, later.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallbackStatusScheduled, got.Status)

	n, err = s.PromoteDue(ctx, localTime(15, 12, 5))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCallbackService_AttemptsUntilMissed(t *testing.T) {
	db := setupTestDB(t)
	s := newCallbackService(t, db, events.NewEventBus())
	now := localTime(15, 10, 20)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	ticket, err := s.RequestConsultation(ctx, "u1", Contact{Phone: "+972501234567"})
	require.NoError(t, err)

	got, err := s.RecordAttempt(ctx, ticket.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.CallbackStatusInQueue, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.WithinDuration(t, now.Add(10*time.Minute), got.PreferredAt, time.Second)

	got, err = s.RecordAttempt(ctx, ticket.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
	assert.WithinDuration(t, now.Add(20*time.Minute), got.PreferredAt, time.Second)

	got, err = s.RecordAttempt(ctx, ticket.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.CallbackStatusMissed, got.Status)
	assert.Equal(t, 3, got.Attempts)

	_, err = s.RecordAttempt(ctx, ticket.ID, false)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, _, err = s.CheckStatus(ctx, ticket.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, got.Attempts, got.MaxAttempts)

	done, err := s.Cancel(ctx, ticket.ID, "u1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestCallbackService_OperatorFlow(t *testing.T) {
	db := setupTestDB(t)
	s := newCallbackService(t, db, events.NewEventBus())
	s.now = func() time.Time { return localTime(15, 10, 20) }
	ctx := context.Background()

	ticket, err := s.RequestConsultation(ctx, "u1", Contact{Phone: "+972501234567"})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Complete(ctx, ticket.ID), ErrInvalidTransition)
	assert.ErrorIs(t, s.Begin(ctx, "missing"), ErrNotFound)

	got, err := s.RecordAttempt(ctx, ticket.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.CallbackStatusInProgress, got.Status)
	assert.Zero(t, got.QueuePosition)

	require.NoError(t, s.Complete(ctx, ticket.ID))

	got, _, err = s.CheckStatus(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallbackStatusCompleted, got.Status)

	assert.ErrorIs(t, s.Begin(ctx, ticket.ID), ErrInvalidTransition)
	done, err := s.Cancel(ctx, ticket.ID, "u1")
	require.NoError(t, err)
	assert.False(t, done)
}
