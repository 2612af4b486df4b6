package models

import "time"

type CallbackRequest struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Kind        string    `json:"kind"` // consultation, callback
	FirstName   string    `json:"first_name"`
	Phone       string    `json:"phone"`
	PreferredAt time.Time `json:"preferred_at"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsTerminal reports whether the request can no longer change status.
func (c *CallbackRequest) IsTerminal() bool {
	return IsTerminalCallbackStatus(c.Status)
}

func IsTerminalCallbackStatus(status string) bool {
	switch status {
	case CallbackStatusCompleted, CallbackStatusCancelled, CallbackStatusMissed:
		return true
	}
	return false
}
