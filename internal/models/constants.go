package models

const (
	AppointmentStatusActive    = "active"
	AppointmentStatusCancelled = "cancelled"
)

const (
	CallbackKindConsultation = "consultation"
	CallbackKindCallback     = "callback"
)

const (
	CallbackStatusScheduled  = "scheduled"
	CallbackStatusInQueue    = "in_queue"
	CallbackStatusInProgress = "in_progress"
	CallbackStatusCompleted  = "completed"
	CallbackStatusCancelled  = "cancelled"
	CallbackStatusMissed     = "missed"
)

const (
	// DefaultSessionIdleTimeout время жизни незавершенной сессии записи
	DefaultSessionIdleTimeout = 30 * 60 // 30 минут в секундах

	// DefaultReminderLeadHours за сколько часов до приема отправляется напоминание
	DefaultReminderLeadHours = 24

	// DefaultReminderInterval период между проходами напоминаний
	DefaultReminderInterval = 60 * 60 // 1 час в секундах

	// DefaultAdvanceBookingDays на сколько дней вперед можно записаться
	DefaultAdvanceBookingDays = 30

	// DefaultSlotIntervalMinutes шаг сетки слотов
	DefaultSlotIntervalMinutes = 30

	// DefaultCallbackMaxAttempts количество попыток дозвона
	DefaultCallbackMaxAttempts = 3

	// DefaultSkipToken ответ, которым пациент пропускает комментарий
	DefaultSkipToken = "пропустить"

	// DefaultPhonePattern формат израильского мобильного номера
	DefaultPhonePattern = `^\+972\d{9}$`

	// DefaultMaxNotesLength ограничение на длину комментария
	DefaultMaxNotesLength = 500

	// DefaultFirstName имя, если пациент его не сообщил
	DefaultFirstName = "Пациент"

	// RateLimitRPS запросов в секунду на один API ключ
	RateLimitRPS = 10

	// RateLimitBurst допустимый всплеск запросов
	RateLimitBurst = 20
)
