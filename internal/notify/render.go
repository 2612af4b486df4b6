// Package notify renders plain-text notifications and delivers them.
package notify

import (
	"fmt"
	"strings"
	"time"

	"zapis/internal/calendar"
	"zapis/internal/models"
)

var weekdayShort = [...]string{"вс", "пн", "вт", "ср", "чт", "пт", "сб"}

// FormatDay renders a day as 20.10.2026 (вт).
func FormatDay(d calendar.Day) string {
	return fmt.Sprintf("%02d.%02d.%04d (%s)", d.Dom, int(d.Month), d.Year, weekdayShort[d.Weekday()])
}

func FormatPrice(price int64, currency string) string {
	if currency == "" {
		return fmt.Sprintf("%d", price)
	}
	return fmt.Sprintf("%d %s", price, currency)
}

// AppointmentSummary lists the details of a booking, one per line.
func AppointmentSummary(a *models.Appointment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Услуга: %s\n", a.ServiceName)
	fmt.Fprintf(&b, "Дата: %s\n", FormatDay(a.Date))
	fmt.Fprintf(&b, "Время: %s\n", a.Time)
	fmt.Fprintf(&b, "Длительность: %d мин\n", a.DurationMinutes)
	fmt.Fprintf(&b, "Стоимость: %s", FormatPrice(a.Price, a.Currency))
	if a.Phone != "" {
		fmt.Fprintf(&b, "\nТелефон: %s", a.Phone)
	}
	if a.Notes != "" {
		fmt.Fprintf(&b, "\nКомментарий: %s", a.Notes)
	}
	return b.String()
}

func RenderConfirmation(a *models.Appointment) string {
	return fmt.Sprintf("Запись подтверждена.\n\n%s\n\nНомер записи: %s", AppointmentSummary(a), a.ID)
}

func RenderCancellation(a *models.Appointment) string {
	return fmt.Sprintf("Запись отменена: %s, %s в %s.", a.ServiceName, FormatDay(a.Date), a.Time)
}

func RenderReminder(a *models.Appointment) string {
	name := a.FirstName
	if name == "" {
		name = "Здравствуйте"
	}
	return fmt.Sprintf(
		"%s, напоминаем о записи на %s %s в %s.\nДлительность: %d мин.\nЕсли планы изменились, пожалуйста, отмените запись заранее.",
		name, a.ServiceName, FormatDay(a.Date), a.Time, a.DurationMinutes)
}

func RenderCallbackQueued(c *models.CallbackRequest) string {
	return fmt.Sprintf("Ваша заявка в очереди. Оператор позвонит на номер %s в ближайшее время.", c.Phone)
}

func RenderCallbackScheduled(c *models.CallbackRequest, loc *time.Location) string {
	at := c.PreferredAt.In(loc)
	return fmt.Sprintf("Обратный звонок запланирован на %s в %s. Номер заявки: %s",
		FormatDay(calendar.DayOf(at)), calendar.ClockOf(at), c.ID)
}

// RenderAdminCallback is sent to the clinic administrator about a new request.
func RenderAdminCallback(c *models.CallbackRequest, loc *time.Location) string {
	kind := "обратный звонок"
	if c.Kind == models.CallbackKindConsultation {
		kind = "консультацию"
	}
	at := c.PreferredAt.In(loc)
	return fmt.Sprintf("Новая заявка на %s\nИмя: %s\nТелефон: %s\nВремя: %s %s\nID: %s",
		kind, c.FirstName, c.Phone, FormatDay(calendar.DayOf(at)), calendar.ClockOf(at), c.ID)
}

func RenderAdminCallbackCancelled(c *models.CallbackRequest, loc *time.Location) string {
	at := c.PreferredAt.In(loc)
	return fmt.Sprintf("Заявка отменена пациентом\nИмя: %s\nТелефон: %s\nВремя: %s %s\nID: %s",
		c.FirstName, c.Phone, FormatDay(calendar.DayOf(at)), calendar.ClockOf(at), c.ID)
}
