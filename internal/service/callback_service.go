package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"zapis/internal/calendar"
	"zapis/internal/domain"
	"zapis/internal/events"
	"zapis/internal/metrics"
	"zapis/internal/models"

	"github.com/rs/zerolog"
)

// Contact is the caller-supplied contact of a callback request.
type Contact struct {
	FirstName string `json:"first_name"`
	Phone     string `json:"phone"`
}

// Ticket is the status snapshot of a callback request.
type Ticket struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Status        string    `json:"status"`
	PreferredAt   time.Time `json:"preferred_at"`
	Attempts      int       `json:"attempts"`
	MaxAttempts   int       `json:"max_attempts"`
	QueuePosition int       `json:"queue_position,omitempty"`
}

type CallbackOptions struct {
	PhonePattern string
	MaxAttempts  int
	// Backoff returns the delay before the given (1-based) retry.
	Backoff      func(attempt int) time.Duration
	StoreTimeout time.Duration
}

// CallbackService manages consultation and callback requests. Unlike
// appointments, requests do not compete for time: any number may share the
// same preferred time.
type CallbackService struct {
	repo   domain.CallbackRepository
	users  domain.UserRepository
	rules  calendar.Rules
	events domain.EventPublisher
	phone  *regexp.Regexp
	opts   CallbackOptions
	logger *zerolog.Logger
	now    func() time.Time
}

func NewCallbackService(
	repo domain.CallbackRepository,
	users domain.UserRepository,
	rules calendar.Rules,
	eventBus domain.EventPublisher,
	opts CallbackOptions,
	logger *zerolog.Logger,
) (*CallbackService, error) {
	if opts.PhonePattern == "" {
		opts.PhonePattern = models.DefaultPhonePattern
	}
	phone, err := regexp.Compile(opts.PhonePattern)
	if err != nil {
		return nil, fmt.Errorf("compile phone pattern: %w", err)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = models.DefaultCallbackMaxAttempts
	}
	if opts.Backoff == nil {
		opts.Backoff = func(int) time.Duration { return 15 * time.Minute }
	}

	return &CallbackService{
		repo:   repo,
		users:  users,
		rules:  rules,
		events: eventBus,
		phone:  phone,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}, nil
}

// ProposeTimes lists hourly callback times. During business hours of a
// working day the rest of today is offered first; the next working day is
// always offered.
func (s *CallbackService) ProposeTimes(now time.Time) []time.Time {
	today, clock := s.rules.Now(now)

	var times []time.Time
	if s.rules.IsWorkingDay(today) && s.rules.InBusinessHours(clock) {
		for c := s.rules.Open; c < s.rules.Close; c += 60 {
			if c > clock {
				times = append(times, s.rules.At(today, c))
			}
		}
	}

	next := s.rules.NextWorkingDay(today)
	for c := s.rules.Open; c < s.rules.Close; c += 60 {
		times = append(times, s.rules.At(next, c))
	}
	return times
}

// NextAvailableTime is when an operator can call back a request made at now:
// the next full hour during business hours, else the opening of the next
// working day.
func (s *CallbackService) NextAvailableTime(now time.Time) time.Time {
	today, clock := s.rules.Now(now)
	if s.rules.IsWorkingDay(today) && s.rules.InBusinessHours(clock) {
		next := calendar.NewClock(clock.Hour()+1, 0)
		if next < s.rules.Close {
			return s.rules.At(today, next)
		}
	}

	return s.rules.At(s.rules.NextWorkingDay(today), s.rules.Open)
}

// RequestConsultation queues a request to be called as soon as possible.
func (s *CallbackService) RequestConsultation(ctx context.Context, userID string, contact Contact) (*Ticket, error) {
	now := s.now()
	return s.create(ctx, userID, contact, models.CallbackKindConsultation, models.CallbackStatusInQueue, s.NextAvailableTime(now))
}

// ScheduleCallback books a call at preferredAt, which must be in the future
// and inside business hours of a working day.
func (s *CallbackService) ScheduleCallback(ctx context.Context, userID string, contact Contact, preferredAt time.Time) (*Ticket, error) {
	if !preferredAt.After(s.now()) {
		return nil, fmt.Errorf("%w: callback time is in the past", ErrValidation)
	}
	day, clock := s.rules.Now(preferredAt)
	if !s.rules.IsWorkingDay(day) || !s.rules.InBusinessHours(clock) {
		return nil, fmt.Errorf("%w: callback time is outside business hours", ErrValidation)
	}
	return s.create(ctx, userID, contact, models.CallbackKindCallback, models.CallbackStatusScheduled, preferredAt)
}

func (s *CallbackService) create(ctx context.Context, userID string, contact Contact, kind, status string, preferredAt time.Time) (*Ticket, error) {
	phone := normalizePhone(contact.Phone)
	if !s.phone.MatchString(phone) {
		return nil, fmt.Errorf("%w: invalid phone number", ErrValidation)
	}

	req := &models.CallbackRequest{
		UserID:      userID,
		Kind:        kind,
		FirstName:   strings.TrimSpace(contact.FirstName),
		Phone:       phone,
		PreferredAt: preferredAt,
		Status:      status,
		MaxAttempts: s.opts.MaxAttempts,
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.repo.CreateCallback(storeCtx, req); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("kind", kind).Msg("Failed to create callback request")
		return nil, storeError(err)
	}

	if err := s.users.UpsertUser(storeCtx, &models.User{UserID: userID, FirstName: req.FirstName, Phone: phone}); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to cache user contact")
	}

	if err := s.events.PublishJSON(events.EventCallbackRequested, events.NewCallbackPayload(req)); err != nil {
		s.logger.Warn().Err(err).Str("request_id", req.ID).Msg("Callback requested handlers failed")
	}
	metrics.IncCallback(kind)

	s.logger.Info().
		Str("request_id", req.ID).
		Str("user_id", userID).
		Str("kind", kind).
		Time("preferred_at", req.PreferredAt).
		Msg("Callback request created")

	return s.ticket(storeCtx, req)
}

// CheckStatus returns the ticket snapshot; ok is false for unknown ids.
func (s *CallbackService) CheckStatus(ctx context.Context, id string) (*Ticket, bool, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	req, err := s.repo.GetCallback(storeCtx, id)
	if err != nil {
		err = storeError(err)
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	t, err := s.ticket(storeCtx, req)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// Cancel cancels the user's open request. Unknown, foreign and finished
// requests return false.
func (s *CallbackService) Cancel(ctx context.Context, id, userID string) (bool, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	ok, err := s.repo.CancelCallback(storeCtx, id, userID)
	if err != nil {
		return false, storeError(err)
	}
	if !ok {
		return false, nil
	}

	if req, gerr := s.repo.GetCallback(storeCtx, id); gerr == nil {
		if perr := s.events.PublishJSON(events.EventCallbackCancelled, events.NewCallbackPayload(req)); perr != nil {
			s.logger.Warn().Err(perr).Str("request_id", id).Msg("Callback cancelled handlers failed")
		}
	}
	s.logger.Info().Str("request_id", id).Str("user_id", userID).Msg("Callback request cancelled")
	return true, nil
}

// Begin marks a queued request as being handled by an operator.
func (s *CallbackService) Begin(ctx context.Context, id string) error {
	return s.transition(ctx, id, []string{models.CallbackStatusInQueue}, models.CallbackStatusInProgress)
}

// Complete closes a request after the call took place.
func (s *CallbackService) Complete(ctx context.Context, id string) error {
	return s.transition(ctx, id, []string{models.CallbackStatusInProgress}, models.CallbackStatusCompleted)
}

// RecordAttempt registers an operator's call attempt. An answered call moves
// the request in progress. An unanswered one counts against max attempts and
// pushes the request back in the queue; the last allowed miss makes it missed.
func (s *CallbackService) RecordAttempt(ctx context.Context, id string, answered bool) (*Ticket, error) {
	if answered {
		if err := s.Begin(ctx, id); err != nil {
			return nil, err
		}
	} else {
		storeCtx, cancel := s.storeContext(ctx)
		req, err := s.repo.GetCallback(storeCtx, id)
		if err == nil {
			next := s.now().Add(s.opts.Backoff(req.Attempts + 1))
			err = s.repo.RecordFailedAttempt(storeCtx, id, next)
		}
		cancel()
		if err != nil {
			return nil, storeError(err)
		}
	}

	t, ok, err := s.CheckStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status == models.CallbackStatusMissed {
		s.logger.Warn().Str("request_id", id).Int("attempts", t.Attempts).Msg("Callback request missed")
	}
	return t, nil
}

// PromoteDue moves scheduled requests whose time has come into the queue.
// A failure on one request does not stop the others.
func (s *CallbackService) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	storeCtx, cancel := s.storeContext(ctx)
	due, err := s.repo.ListDueCallbacks(storeCtx, now)
	cancel()
	if err != nil {
		return 0, storeError(err)
	}

	promoted := 0
	for _, req := range due {
		if ctx.Err() != nil {
			return promoted, ctx.Err()
		}

		err := s.transition(ctx, req.ID, []string{models.CallbackStatusScheduled}, models.CallbackStatusInQueue)
		if err != nil {
			s.logger.Error().Err(err).Str("request_id", req.ID).Msg("Failed to queue callback request")
			continue
		}
		req.Status = models.CallbackStatusInQueue
		if perr := s.events.PublishJSON(events.EventCallbackQueued, events.NewCallbackPayload(req)); perr != nil {
			s.logger.Warn().Err(perr).Str("request_id", req.ID).Msg("Callback queued handlers failed")
		}
		promoted++
	}
	return promoted, nil
}

// ListQueue returns the requests waiting for an operator, earliest first.
func (s *CallbackService) ListQueue(ctx context.Context) ([]*models.CallbackRequest, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	list, err := s.repo.ListCallbacksByStatus(storeCtx, models.CallbackStatusInQueue)
	if err != nil {
		return nil, storeError(err)
	}
	return list, nil
}

func (s *CallbackService) transition(ctx context.Context, id string, from []string, to string) error {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.repo.TransitionCallback(storeCtx, id, from, to); err != nil {
		return storeError(err)
	}
	s.logger.Debug().Str("request_id", id).Str("status", to).Msg("Callback status changed")
	return nil
}

func (s *CallbackService) ticket(ctx context.Context, req *models.CallbackRequest) (*Ticket, error) {
	t := &Ticket{
		ID:          req.ID,
		Kind:        req.Kind,
		Status:      req.Status,
		PreferredAt: req.PreferredAt,
		Attempts:    req.Attempts,
		MaxAttempts: req.MaxAttempts,
	}
	if req.Status == models.CallbackStatusInQueue {
		pos, err := s.repo.QueuePosition(ctx, req)
		if err != nil {
			return nil, storeError(err)
		}
		t.QueuePosition = pos
	}
	return t, nil
}

func (s *CallbackService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}
