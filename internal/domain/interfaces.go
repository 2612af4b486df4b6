package domain

import (
	"context"
	"time"

	"zapis/internal/calendar"
	"zapis/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// AppointmentRepository is the durable appointment store.
type AppointmentRepository interface {
	CreateAppointment(ctx context.Context, a *models.Appointment) error
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	ListAppointmentsByUser(ctx context.Context, userID string) ([]*models.Appointment, error)
	ListAppointmentsByDate(ctx context.Context, day calendar.Day) ([]*models.Appointment, error)
	ListAppointmentsByServiceDate(ctx context.Context, serviceID string, day calendar.Day) ([]*models.Appointment, error)
	CancelAppointment(ctx context.Context, id, userID string) (bool, error)
	AdminCancelAppointment(ctx context.Context, id string) (bool, error)
}

// ReminderRepository is the part of the store used by the reminder sweep.
type ReminderRepository interface {
	ListDueForReminder(ctx context.Context, day calendar.Day) ([]*models.Appointment, error)
	MarkReminded(ctx context.Context, id string, at time.Time) error
}

type UserRepository interface {
	UpsertUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

type CallbackRepository interface {
	CreateCallback(ctx context.Context, c *models.CallbackRequest) error
	GetCallback(ctx context.Context, id string) (*models.CallbackRequest, error)
	QueuePosition(ctx context.Context, c *models.CallbackRequest) (int, error)
	ListDueCallbacks(ctx context.Context, now time.Time) ([]*models.CallbackRequest, error)
	ListCallbacksByStatus(ctx context.Context, status string) ([]*models.CallbackRequest, error)
	TransitionCallback(ctx context.Context, id string, from []string, to string) error
	CancelCallback(ctx context.Context, id, userID string) (bool, error)
	RecordFailedAttempt(ctx context.Context, id string, next time.Time) error
}

// SessionRepository keeps in-progress booking drafts. Get returns nil, nil
// when the user has no session.
type SessionRepository interface {
	GetSession(ctx context.Context, userID string) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, userID string) error
}

// Catalog resolves bookable services.
type Catalog interface {
	Service(id string) (models.Service, bool)
	Services() []models.Service
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// NotificationSender delivers plain text to a user.
type NotificationSender interface {
	Send(ctx context.Context, userID, text string) error
}

// TelegramSender is the subset of the bot API used for outbound messages.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
