package notify

import (
	"context"
	"fmt"
	"time"

	"zapis/internal/domain"
	"zapis/internal/events"
	"zapis/internal/models"

	"github.com/rs/zerolog"
)

const sendTimeout = 10 * time.Second

// Subscriber turns domain events into messages for users and the clinic
// administrator. Delivery failures are logged and never fail the publisher.
type Subscriber struct {
	sender  domain.NotificationSender
	adminID string
	loc     *time.Location
	logger  *zerolog.Logger
}

func NewSubscriber(sender domain.NotificationSender, adminID string, loc *time.Location, logger *zerolog.Logger) *Subscriber {
	if loc == nil {
		loc = time.UTC
	}
	return &Subscriber{sender: sender, adminID: adminID, loc: loc, logger: logger}
}

// Register subscribes the handlers on the bus.
func (s *Subscriber) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventAppointmentCreated, s.onAppointmentCreated)
	bus.Subscribe(events.EventAppointmentCancelled, s.onAppointmentCancelled)
	bus.Subscribe(events.EventCallbackRequested, s.onCallbackRequested)
	bus.Subscribe(events.EventCallbackQueued, s.onCallbackQueued)
	bus.Subscribe(events.EventCallbackCancelled, s.onCallbackCancelled)
}

func (s *Subscriber) onAppointmentCreated(e *events.Event) error {
	var p events.AppointmentEventPayload
	if err := e.Decode(&p); err != nil {
		s.logger.Error().Err(err).Str("event", e.Type).Msg("event bus: decode payload")
		return nil
	}
	a := p.Appointment()

	s.send(a.UserID, RenderConfirmation(a))
	s.send(s.adminID, "Новая запись\n\n"+AppointmentSummary(a))
	return nil
}

func (s *Subscriber) onAppointmentCancelled(e *events.Event) error {
	var p events.AppointmentEventPayload
	if err := e.Decode(&p); err != nil {
		s.logger.Error().Err(err).Str("event", e.Type).Msg("event bus: decode payload")
		return nil
	}
	a := p.Appointment()

	// Пациент сам отменил запись и уже видел ответ
	if p.CancelledBy == "admin" {
		s.send(a.UserID, RenderCancellation(a))
	}
	s.send(s.adminID, fmt.Sprintf("%s\nТелефон: %s", RenderCancellation(a), a.Phone))
	return nil
}

func (s *Subscriber) onCallbackRequested(e *events.Event) error {
	c, ok := s.decodeCallback(e)
	if !ok {
		return nil
	}

	if c.Kind == models.CallbackKindCallback {
		s.send(c.UserID, RenderCallbackScheduled(c, s.loc))
	} else {
		s.send(c.UserID, RenderCallbackQueued(c))
	}
	s.send(s.adminID, RenderAdminCallback(c, s.loc))
	return nil
}

func (s *Subscriber) onCallbackQueued(e *events.Event) error {
	c, ok := s.decodeCallback(e)
	if !ok {
		return nil
	}
	s.send(s.adminID, RenderAdminCallback(c, s.loc))
	return nil
}

func (s *Subscriber) onCallbackCancelled(e *events.Event) error {
	c, ok := s.decodeCallback(e)
	if !ok {
		return nil
	}
	s.send(s.adminID, RenderAdminCallbackCancelled(c, s.loc))
	return nil
}

func (s *Subscriber) decodeCallback(e *events.Event) (*models.CallbackRequest, bool) {
	var p events.CallbackEventPayload
	if err := e.Decode(&p); err != nil {
		s.logger.Error().Err(err).Str("event", e.Type).Msg("event bus: decode payload")
		return nil, false
	}
	return &models.CallbackRequest{
		ID:          p.RequestID,
		UserID:      p.UserID,
		Kind:        p.Kind,
		FirstName:   p.FirstName,
		Phone:       p.Phone,
		PreferredAt: p.PreferredAt,
		Status:      p.Status,
	}, true
}

func (s *Subscriber) send(userID, text string) {
	if userID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := s.sender.Send(ctx, userID, text); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to deliver notification")
	}
}
