package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"zapis/internal/calendar"
	"zapis/internal/models"
)

const (
	EventAppointmentCreated   = "appointment.created"
	EventAppointmentCancelled = "appointment.cancelled"
	EventCallbackRequested    = "callback.requested"
	EventCallbackCancelled    = "callback.cancelled"
	EventCallbackQueued       = "callback.queued"
)

// AppointmentEventPayload is the appointment snapshot handed to subscribers.
type AppointmentEventPayload struct {
	AppointmentID   string         `json:"appointment_id"`
	UserID          string         `json:"user_id"`
	FirstName       string         `json:"first_name"`
	Phone           string         `json:"phone"`
	ServiceID       string         `json:"service_id"`
	ServiceName     string         `json:"service_name"`
	Date            calendar.Day   `json:"date"`
	Time            calendar.Clock `json:"time"`
	DurationMinutes int            `json:"duration_minutes"`
	Price           int64          `json:"price"`
	Currency        string         `json:"currency"`
	CancelledBy     string         `json:"cancelled_by,omitempty"`
}

// NewAppointmentPayload snapshots an appointment for publishing.
func NewAppointmentPayload(a *models.Appointment) AppointmentEventPayload {
	return AppointmentEventPayload{
		AppointmentID:   a.ID,
		UserID:          a.UserID,
		FirstName:       a.FirstName,
		Phone:           a.Phone,
		ServiceID:       a.ServiceID,
		ServiceName:     a.ServiceName,
		Date:            a.Date,
		Time:            a.Time,
		DurationMinutes: a.DurationMinutes,
		Price:           a.Price,
		Currency:        a.Currency,
	}
}

// Appointment rebuilds the appointment fields carried by the payload.
func (p AppointmentEventPayload) Appointment() *models.Appointment {
	return &models.Appointment{
		ID:              p.AppointmentID,
		UserID:          p.UserID,
		FirstName:       p.FirstName,
		Phone:           p.Phone,
		ServiceID:       p.ServiceID,
		ServiceName:     p.ServiceName,
		Date:            p.Date,
		Time:            p.Time,
		DurationMinutes: p.DurationMinutes,
		Price:           p.Price,
		Currency:        p.Currency,
	}
}

type CallbackEventPayload struct {
	RequestID   string    `json:"request_id"`
	UserID      string    `json:"user_id"`
	Kind        string    `json:"kind"`
	FirstName   string    `json:"first_name"`
	Phone       string    `json:"phone"`
	PreferredAt time.Time `json:"preferred_at"`
	Status      string    `json:"status"`
}

func NewCallbackPayload(c *models.CallbackRequest) CallbackEventPayload {
	return CallbackEventPayload{
		RequestID:   c.ID,
		UserID:      c.UserID,
		Kind:        c.Kind,
		FirstName:   c.FirstName,
		Phone:       c.Phone,
		PreferredAt: c.PreferredAt,
		Status:      c.Status,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs every handler of the event type synchronously. A failing
// handler does not stop the others; all errors are returned joined.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}
