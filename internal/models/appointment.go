package models

import (
	"time"

	"zapis/internal/calendar"
)

type Appointment struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	FirstName       string         `json:"first_name"`
	LastName        string         `json:"last_name"`
	Phone           string         `json:"phone"`
	ServiceID       string         `json:"service_id"`
	ServiceName     string         `json:"service_name"`
	Date            calendar.Day   `json:"date"`
	Time            calendar.Clock `json:"time"`
	DurationMinutes int            `json:"duration_minutes"`
	Price           int64          `json:"price"`
	Currency        string         `json:"currency"`
	Notes           string         `json:"notes"`
	Status          string         `json:"status"` // active, cancelled
	RemindedAt      *time.Time     `json:"reminded_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (a *Appointment) IsActive() bool {
	return a.Status == AppointmentStatusActive
}
