package models

import (
	"time"

	"zapis/internal/calendar"
)

// Step is a state of the booking dialogue.
type Step string

const (
	StepSelectService Step = "select_service"
	StepSelectDate    Step = "select_date"
	StepSelectTime    Step = "select_time"
	StepEnterContact  Step = "enter_contact"
	StepEnterNotes    Step = "enter_notes"
	StepConfirm       Step = "confirm"
)

var stepOrder = map[Step]int{
	StepSelectService: 0,
	StepSelectDate:    1,
	StepSelectTime:    2,
	StepEnterContact:  3,
	StepEnterNotes:    4,
	StepConfirm:       5,
}

// Reached reports whether the session has got at least as far as step.
func (s Step) Reached(step Step) bool {
	return stepOrder[s] >= stepOrder[step]
}

// Session is the per-user booking draft. Fields owned by a step are only
// meaningful once that step has been passed.
type Session struct {
	UserID          string           `json:"user_id"`
	Step            Step             `json:"step"`
	ServiceID       string           `json:"service_id,omitempty"`
	ServiceName     string           `json:"service_name,omitempty"`
	DurationMinutes int              `json:"duration_minutes,omitempty"`
	Price           int64            `json:"price,omitempty"`
	Currency        string           `json:"currency,omitempty"`
	Date            calendar.Day     `json:"date"`
	OfferedTimes    []calendar.Clock `json:"offered_times,omitempty"`
	Time            calendar.Clock   `json:"time,omitempty"`
	Phone           string           `json:"phone,omitempty"`
	FirstName       string           `json:"first_name,omitempty"`
	LastName        string           `json:"last_name,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func NewSession(userID string, now time.Time) *Session {
	return &Session{
		UserID:    userID,
		Step:      StepSelectService,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ResetTo moves the session back to step and clears every field owned by
// step and the steps after it.
func (s *Session) ResetTo(step Step) {
	if !s.Step.Reached(step) {
		return
	}
	switch step {
	case StepSelectService:
		s.ServiceID, s.ServiceName, s.Currency = "", "", ""
		s.DurationMinutes, s.Price = 0, 0
		fallthrough
	case StepSelectDate:
		s.Date = calendar.Day{}
		s.OfferedTimes = nil
		fallthrough
	case StepSelectTime:
		s.Time = 0
		fallthrough
	case StepEnterContact:
		s.Phone, s.FirstName, s.LastName = "", "", ""
		fallthrough
	case StepEnterNotes:
		s.Notes = ""
	}
	s.Step = step
}

// Offered reports whether c was part of the last availability answer.
func (s *Session) Offered(c calendar.Clock) bool {
	for _, o := range s.OfferedTimes {
		if o == c {
			return true
		}
	}
	return false
}

// Complete reports whether every field required for commit is set.
func (s *Session) Complete() bool {
	return s.Step == StepConfirm &&
		s.ServiceID != "" &&
		!s.Date.IsZero() &&
		s.DurationMinutes > 0 &&
		s.Phone != "" &&
		s.FirstName != ""
}

// Clone returns a copy that shares no mutable state with s.
func (s *Session) Clone() *Session {
	c := *s
	if s.OfferedTimes != nil {
		c.OfferedTimes = append([]calendar.Clock(nil), s.OfferedTimes...)
	}
	return &c
}
