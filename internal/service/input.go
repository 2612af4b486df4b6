package service

import (
	"zapis/internal/calendar"
	"zapis/internal/models"
)

// InputKind tags the variant carried by Input.
type InputKind string

const (
	InputStart            InputKind = "start"
	InputServiceSelection InputKind = "service"
	InputDateSelection    InputKind = "date"
	InputTimeSelection    InputKind = "time"
	InputText             InputKind = "text"
	InputConfirm          InputKind = "confirm"
	InputDecline          InputKind = "decline"
	InputBack             InputKind = "back"
	InputCancel           InputKind = "cancel"
)

// Profile carries the names the transport knows about the user.
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Input is one user action in the booking dialogue.
type Input struct {
	Kind      InputKind      `json:"kind"`
	ServiceID string         `json:"service_id,omitempty"`
	Date      calendar.Day   `json:"date"`
	Time      calendar.Clock `json:"time,omitempty"`
	Text      string         `json:"text,omitempty"`
	Profile   *Profile       `json:"profile,omitempty"`
}

func Start() Input { return Input{Kind: InputStart} }
func SelectService(id string) Input { return Input{Kind: InputServiceSelection, ServiceID: id} }
func SelectDate(d calendar.Day) Input { return Input{Kind: InputDateSelection, Date: d} }
func SelectTime(c calendar.Clock) Input { return Input{Kind: InputTimeSelection, Time: c} }
func Text(s string) Input { return Input{Kind: InputText, Text: s} }
func Confirm() Input { return Input{Kind: InputConfirm} }
func Decline() Input { return Input{Kind: InputDecline} }
func Back() Input { return Input{Kind: InputBack} }
func Cancel() Input { return Input{Kind: InputCancel} }
func (in Input) WithProfile(p Profile) Input { in.Profile = &p; return in }

// Option is a selectable answer. Value is what the transport sends back.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Prompt is what the user should see next. An empty Step means the dialogue
// has ended.
type Prompt struct {
	Step        models.Step         `json:"step,omitempty"`
	Text        string              `json:"text"`
	Options     []Option            `json:"options,omitempty"`
	Notice      string              `json:"notice,omitempty"`
	Appointment *models.Appointment `json:"appointment,omitempty"`
}

// Confirmation is the result of a successful commit.
type Confirmation struct {
	AppointmentID string              `json:"appointment_id"`
	Summary       string              `json:"summary"`
	Appointment   *models.Appointment `json:"appointment"`
}
