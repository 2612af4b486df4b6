package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"zapis/internal/calendar"
	"zapis/internal/domain"
	"zapis/internal/events"
	"zapis/internal/metrics"
	"zapis/internal/models"
	"zapis/internal/notify"

	"github.com/rs/zerolog"
)

const (
	noticeChooseService  = "Выберите услугу из списка."
	noticeServiceOff     = "Эта услуга сейчас недоступна для записи."
	noticeChooseDate     = "Выберите дату из списка."
	noticePastDate       = "Эта дата уже прошла."
	noticeDayOff         = "В этот день клиника не работает."
	noticeNoSlots        = "На эту дату нет свободного времени. Выберите другой день."
	noticeChooseTime     = "Выберите время из предложенных вариантов."
	noticeSlotTaken      = "Это время только что заняли. Выберите другое."
	noticeBadPhone       = "Неверный формат номера. Пример: +972501234567"
	noticeEnterText      = "Отправьте ответ текстом."
	noticeFinishBooking  = "Сначала завершите текущую запись или отмените ее."
	noticeUnknownCommand = "Команда не распознана."
	textBookingCancelled = "Запись отменена. Чтобы начать заново, выберите услугу."
)

var previousStep = map[models.Step]models.Step{
	models.StepSelectDate:   models.StepSelectService,
	models.StepSelectTime:   models.StepSelectDate,
	models.StepEnterContact: models.StepSelectTime,
	models.StepEnterNotes:   models.StepEnterContact,
	models.StepConfirm:      models.StepEnterNotes,
}

// BookingOptions tunes the booking dialogue.
type BookingOptions struct {
	PhonePattern     string
	SkipToken        string
	DefaultFirstName string
	MaxNotesLength   int
	StoreTimeout     time.Duration
}

// BookingService drives the per-user booking dialogue and commits finished
// sessions to the appointment store.
type BookingService struct {
	sessions     domain.SessionRepository
	appointments domain.AppointmentRepository
	users        domain.UserRepository
	catalog      domain.Catalog
	availability *AvailabilityService
	rules        calendar.Rules
	events       domain.EventPublisher
	phone        *regexp.Regexp
	opts         BookingOptions
	locks        *keyedMutex
	logger       *zerolog.Logger
	now          func() time.Time
}

func NewBookingService(
	sessions domain.SessionRepository,
	appointments domain.AppointmentRepository,
	users domain.UserRepository,
	catalog domain.Catalog,
	availability *AvailabilityService,
	rules calendar.Rules,
	eventBus domain.EventPublisher,
	opts BookingOptions,
	logger *zerolog.Logger,
) (*BookingService, error) {
	if opts.PhonePattern == "" {
		opts.PhonePattern = models.DefaultPhonePattern
	}
	phone, err := regexp.Compile(opts.PhonePattern)
	if err != nil {
		return nil, fmt.Errorf("compile phone pattern: %w", err)
	}
	if opts.SkipToken == "" {
		opts.SkipToken = models.DefaultSkipToken
	}
	if opts.MaxNotesLength <= 0 {
		opts.MaxNotesLength = models.DefaultMaxNotesLength
	}
	if strings.TrimSpace(opts.DefaultFirstName) == "" {
		opts.DefaultFirstName = models.DefaultFirstName
	}

	return &BookingService{
		sessions:     sessions,
		appointments: appointments,
		users:        users,
		catalog:      catalog,
		availability: availability,
		rules:        rules,
		events:       eventBus,
		phone:        phone,
		opts:         opts,
		locks:        newKeyedMutex(),
		logger:       logger,
		now:          time.Now,
	}, nil
}

// Advance applies one input to the user's session and returns the next
// prompt. Rejected input never surfaces as an error: the prompt of the same
// step comes back with a Notice. A non-nil error means the store failed; the
// prompt then still describes the unchanged session.
func (s *BookingService) Advance(ctx context.Context, userID string, in Input) (*Prompt, error) {
	started := time.Now()
	defer func() { metrics.ObserveAdvance(string(in.Kind), time.Since(started)) }()

	prompt, err := s.advance(ctx, userID, in)
	if err == nil && prompt != nil && prompt.Appointment != nil {
		s.announceCreated(prompt.Appointment)
	}
	return prompt, err
}

func (s *BookingService) advance(ctx context.Context, userID string, in Input) (*Prompt, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	if in.Kind == InputCancel {
		if err := s.deleteSession(ctx, userID); err != nil {
			return s.failure(nil, err)
		}
		return &Prompt{Text: textBookingCancelled}, nil
	}

	session, err := s.loadSession(ctx, userID)
	if err != nil {
		return s.failure(nil, err)
	}
	if session == nil {
		session = models.NewSession(userID, s.now())
		if in.Kind != InputServiceSelection {
			if err := s.saveSession(ctx, session); err != nil {
				return s.failure(nil, err)
			}
			return s.render(session, ""), nil
		}
	}
	orig := session.Clone()

	var notice string
	switch {
	case in.Kind == InputStart:
	case in.Kind == InputBack:
		notice, err = s.back(ctx, session)
	case session.Step == models.StepConfirm:
		return s.handleConfirm(ctx, session, orig, in)
	default:
		notice, err = s.handleStep(ctx, session, in)
	}
	if err != nil {
		return s.failure(orig, err)
	}

	if err := s.saveSession(ctx, session); err != nil {
		return s.failure(orig, err)
	}
	return s.render(session, notice), nil
}

func (s *BookingService) handleStep(ctx context.Context, session *models.Session, in Input) (string, error) {
	switch session.Step {
	case models.StepSelectService:
		return s.handleService(session, in), nil
	case models.StepSelectDate:
		return s.handleDate(ctx, session, in)
	case models.StepSelectTime:
		return s.handleTime(ctx, session, in)
	case models.StepEnterContact:
		return s.handleContact(ctx, session, in), nil
	case models.StepEnterNotes:
		return s.handleNotes(session, in), nil
	}
	return noticeUnknownCommand, nil
}

func (s *BookingService) handleService(session *models.Session, in Input) string {
	if in.Kind != InputServiceSelection {
		return mismatch(in, noticeChooseService)
	}
	svc, ok := s.catalog.Service(in.ServiceID)
	if !ok || !svc.Available {
		return noticeServiceOff
	}

	session.ServiceID = svc.ID
	session.ServiceName = svc.Name
	session.DurationMinutes = svc.DurationMinutes
	session.Price = svc.Price
	session.Currency = svc.Currency
	session.Step = models.StepSelectDate
	return ""
}

func (s *BookingService) handleDate(ctx context.Context, session *models.Session, in Input) (string, error) {
	if in.Kind != InputDateSelection || in.Date.IsZero() {
		return mismatch(in, noticeChooseDate), nil
	}

	today := s.rules.Today(s.now())
	switch {
	case in.Date.Before(today):
		return noticePastDate, nil
	case !s.rules.WithinHorizon(in.Date, today):
		return fmt.Sprintf("Запись возможна не более чем на %d дней вперед.", s.rules.HorizonDays), nil
	case !s.rules.IsWorkingDay(in.Date):
		return noticeDayOff, nil
	}

	slots, err := s.listSlots(ctx, session.ServiceID, in.Date)
	if errors.Is(err, ErrValidation) {
		session.ResetTo(models.StepSelectService)
		return noticeServiceOff, nil
	}
	if err != nil {
		return "", err
	}
	if len(slots) == 0 {
		return noticeNoSlots, nil
	}

	session.Date = in.Date
	session.OfferedTimes = slots
	session.Step = models.StepSelectTime
	return "", nil
}

func (s *BookingService) handleTime(ctx context.Context, session *models.Session, in Input) (string, error) {
	if in.Kind != InputTimeSelection || !session.Offered(in.Time) {
		return mismatch(in, noticeChooseTime), nil
	}

	// The offered list may be stale; ask the store again.
	fresh, err := s.listSlots(ctx, session.ServiceID, session.Date)
	if errors.Is(err, ErrValidation) {
		session.ResetTo(models.StepSelectService)
		return noticeServiceOff, nil
	}
	if err != nil {
		return "", err
	}

	for _, c := range fresh {
		if c == in.Time {
			session.Time = in.Time
			session.Step = models.StepEnterContact
			return "", nil
		}
	}

	metrics.IncConflict("select")
	s.logger.Info().
		Str("user_id", session.UserID).
		Str("service_id", session.ServiceID).
		Str("date", session.Date.String()).
		Str("time", in.Time.String()).
		Msg("Selected slot already taken")

	if len(fresh) == 0 {
		session.ResetTo(models.StepSelectDate)
		return noticeNoSlots, nil
	}
	session.OfferedTimes = fresh
	return noticeSlotTaken, nil
}

func (s *BookingService) handleContact(ctx context.Context, session *models.Session, in Input) string {
	if in.Kind != InputText {
		return mismatch(in, noticeEnterText)
	}
	phone := normalizePhone(in.Text)
	if !s.phone.MatchString(phone) {
		return noticeBadPhone
	}

	session.Phone = phone
	session.FirstName, session.LastName = s.resolveNames(ctx, session.UserID, in.Profile)
	session.Step = models.StepEnterNotes
	return ""
}

func (s *BookingService) handleNotes(session *models.Session, in Input) string {
	switch in.Kind {
	case InputDecline:
		session.Notes = ""
	case InputText:
		text := strings.TrimSpace(in.Text)
		if strings.EqualFold(text, s.opts.SkipToken) {
			text = ""
		}
		session.Notes = truncateRunes(text, s.opts.MaxNotesLength)
	default:
		return mismatch(in, noticeEnterText)
	}
	session.Step = models.StepConfirm
	return ""
}

func (s *BookingService) handleConfirm(ctx context.Context, session, orig *models.Session, in Input) (*Prompt, error) {
	switch in.Kind {
	case InputConfirm:
		conf, err := s.commit(ctx, session)
		switch {
		case err == nil:
			return &Prompt{
				Text:        notify.RenderConfirmation(conf.Appointment),
				Appointment: conf.Appointment,
			}, nil
		case errors.Is(err, ErrConflict):
			return s.render(session, UserMessage(err)), nil
		default:
			return s.failure(orig, err)
		}
	case InputDecline:
		if err := s.deleteSession(ctx, session.UserID); err != nil {
			return s.failure(orig, err)
		}
		return &Prompt{Text: textBookingCancelled}, nil
	case InputStart:
		return s.render(session, ""), nil
	default:
		return s.render(session, "Подтвердите запись или отмените ее."), nil
	}
}

func (s *BookingService) back(ctx context.Context, session *models.Session) (string, error) {
	prev, ok := previousStep[session.Step]
	if !ok {
		return "", nil
	}
	if prev == models.StepSelectTime {
		return s.reoffer(ctx, session)
	}
	session.ResetTo(prev)
	return "", nil
}

// reoffer returns the session to time selection with a fresh slot list, or
// to date selection when the day has filled up.
func (s *BookingService) reoffer(ctx context.Context, session *models.Session) (string, error) {
	slots, err := s.listSlots(ctx, session.ServiceID, session.Date)
	if errors.Is(err, ErrValidation) {
		session.ResetTo(models.StepSelectService)
		return noticeServiceOff, nil
	}
	if err != nil {
		return "", err
	}

	session.ResetTo(models.StepSelectTime)
	if len(slots) == 0 {
		session.ResetTo(models.StepSelectDate)
		return noticeNoSlots, nil
	}
	session.OfferedTimes = slots
	return "", nil
}

// Confirm commits the user's finished session.
func (s *BookingService) Confirm(ctx context.Context, userID string) (*Confirmation, error) {
	conf, err := s.confirm(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.announceCreated(conf.Appointment)
	return conf, nil
}

func (s *BookingService) confirm(ctx context.Context, userID string) (*Confirmation, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	session, err := s.loadSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoSession
	}
	return s.commit(ctx, session)
}

// commit creates the appointment. The session is removed only after the
// insert succeeded. On a conflict the session goes back to time selection
// with a fresh slot list. The created event is left to the caller, which
// publishes it once the user lock is released.
func (s *BookingService) commit(ctx context.Context, session *models.Session) (*Confirmation, error) {
	if !session.Complete() {
		return nil, ErrNotReady
	}

	appt := draftAppointment(session)
	storeCtx, cancel := s.storeContext(ctx)
	err := s.appointments.CreateAppointment(storeCtx, appt)
	cancel()

	if err = storeError(err); err != nil {
		if !errors.Is(err, ErrConflict) {
			s.logger.Error().Err(err).Str("user_id", session.UserID).Msg("Failed to create appointment")
			return nil, err
		}

		metrics.IncConflict("commit")
		s.logger.Info().
			Str("user_id", session.UserID).
			Str("service_id", session.ServiceID).
			Str("date", session.Date.String()).
			Str("time", session.Time.String()).
			Msg("Booking conflict at commit")

		if _, rerr := s.reoffer(ctx, session); rerr != nil {
			return nil, rerr
		}
		if serr := s.saveSession(ctx, session); serr != nil {
			return nil, serr
		}
		return nil, ErrConflict
	}

	if derr := s.deleteSession(ctx, session.UserID); derr != nil {
		s.logger.Error().Err(derr).Str("user_id", session.UserID).Msg("Failed to delete committed session")
	}

	storeCtx, cancel = s.storeContext(ctx)
	uerr := s.users.UpsertUser(storeCtx, &models.User{
		UserID:    appt.UserID,
		FirstName: appt.FirstName,
		LastName:  appt.LastName,
		Phone:     appt.Phone,
	})
	cancel()
	if uerr != nil {
		s.logger.Warn().Err(uerr).Str("user_id", appt.UserID).Msg("Failed to cache user contact")
	}

	metrics.IncAppointmentCreated(appt.ServiceID)

	s.logger.Info().
		Str("appointment_id", appt.ID).
		Str("user_id", appt.UserID).
		Str("service_id", appt.ServiceID).
		Str("date", appt.Date.String()).
		Str("time", appt.Time.String()).
		Msg("Appointment booked")

	return &Confirmation{
		AppointmentID: appt.ID,
		Summary:       notify.AppointmentSummary(appt),
		Appointment:   appt,
	}, nil
}

func (s *BookingService) announceCreated(appt *models.Appointment) {
	if perr := s.events.PublishJSON(events.EventAppointmentCreated, events.NewAppointmentPayload(appt)); perr != nil {
		s.logger.Warn().Err(perr).Str("appointment_id", appt.ID).Msg("Appointment created handlers failed")
	}
}

// CancelSession drops the user's draft, if any.
func (s *BookingService) CancelSession(ctx context.Context, userID string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()
	return s.deleteSession(ctx, userID)
}

// ListUserAppointments returns upcoming active appointments, soonest first.
func (s *BookingService) ListUserAppointments(ctx context.Context, userID string) ([]*models.Appointment, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	list, err := s.appointments.ListAppointmentsByUser(storeCtx, userID)
	if err != nil {
		return nil, storeError(err)
	}

	today := s.rules.Today(s.now())
	result := make([]*models.Appointment, 0, len(list))
	for _, a := range list {
		if a.Date.Before(today) {
			continue
		}
		result = append(result, a)
	}
	return result, nil
}

// ListAppointmentsByDate returns the active schedule of a day.
func (s *BookingService) ListAppointmentsByDate(ctx context.Context, day calendar.Day) ([]*models.Appointment, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	list, err := s.appointments.ListAppointmentsByDate(storeCtx, day)
	if err != nil {
		return nil, storeError(err)
	}
	return list, nil
}

// CancelAppointment cancels the user's own appointment. Unknown ids, foreign
// appointments and repeated cancellations return false.
func (s *BookingService) CancelAppointment(ctx context.Context, id, userID string) (bool, error) {
	return s.cancelAppointment(ctx, id, userID, false)
}

// AdminCancelAppointment cancels any active appointment.
func (s *BookingService) AdminCancelAppointment(ctx context.Context, id string) (bool, error) {
	return s.cancelAppointment(ctx, id, "", true)
}

func (s *BookingService) cancelAppointment(ctx context.Context, id, userID string, admin bool) (bool, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	appt, err := s.appointments.GetAppointment(storeCtx, id)
	if err != nil {
		err = storeError(err)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	var ok bool
	if admin {
		ok, err = s.appointments.AdminCancelAppointment(storeCtx, id)
	} else {
		ok, err = s.appointments.CancelAppointment(storeCtx, id, userID)
	}
	if err != nil {
		return false, storeError(err)
	}
	if !ok {
		return false, nil
	}

	appt.Status = models.AppointmentStatusCancelled
	payload := events.NewAppointmentPayload(appt)
	if admin {
		payload.CancelledBy = "admin"
	} else {
		payload.CancelledBy = "user"
	}
	if perr := s.events.PublishJSON(events.EventAppointmentCancelled, payload); perr != nil {
		s.logger.Warn().Err(perr).Str("appointment_id", id).Msg("Appointment cancelled handlers failed")
	}
	metrics.IncAppointmentCancelled(appt.ServiceID)

	s.logger.Info().
		Str("appointment_id", id).
		Str("cancelled_by", payload.CancelledBy).
		Msg("Appointment cancelled")
	return true, nil
}

func (s *BookingService) render(session *models.Session, notice string) *Prompt {
	p := &Prompt{Step: session.Step, Notice: notice}

	switch session.Step {
	case models.StepSelectService:
		p.Text = "Выберите услугу:"
		for _, svc := range s.catalog.Services() {
			p.Options = append(p.Options, Option{
				Label: fmt.Sprintf("%s, %d мин, %s", svc.Name, svc.DurationMinutes, notify.FormatPrice(svc.Price, svc.Currency)),
				Value: svc.ID,
			})
		}
	case models.StepSelectDate:
		p.Text = fmt.Sprintf("%s\nВыберите дату:", session.ServiceName)
		for _, d := range s.availability.BookableDays() {
			p.Options = append(p.Options, Option{Label: notify.FormatDay(d), Value: d.String()})
		}
	case models.StepSelectTime:
		p.Text = fmt.Sprintf("%s, %s\nВыберите время:", session.ServiceName, notify.FormatDay(session.Date))
		for _, c := range session.OfferedTimes {
			p.Options = append(p.Options, Option{Label: c.String(), Value: c.String()})
		}
	case models.StepEnterContact:
		p.Text = "Введите номер телефона в формате +972XXXXXXXXX:"
	case models.StepEnterNotes:
		p.Text = fmt.Sprintf("Добавьте комментарий к записи или отправьте «%s».", s.opts.SkipToken)
		p.Options = []Option{{Label: "Пропустить", Value: s.opts.SkipToken}}
	case models.StepConfirm:
		draft := draftAppointment(session)
		p.Text = "Проверьте данные записи:\n\n" + notify.AppointmentSummary(draft)
		p.Options = []Option{
			{Label: "Подтвердить", Value: string(InputConfirm)},
			{Label: "Отменить", Value: string(InputDecline)},
		}
		p.Appointment = draft
	}
	return p
}

// failure reports a store error together with the prompt of the session as
// it is still stored.
func (s *BookingService) failure(session *models.Session, err error) (*Prompt, error) {
	msg := UserMessage(err)
	if session == nil {
		return &Prompt{Text: msg}, err
	}
	return s.render(session, msg), err
}

func (s *BookingService) listSlots(ctx context.Context, serviceID string, day calendar.Day) ([]calendar.Clock, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.availability.ListSlots(storeCtx, serviceID, day)
}

func (s *BookingService) resolveNames(ctx context.Context, userID string, profile *Profile) (string, string) {
	if profile != nil && strings.TrimSpace(profile.FirstName) != "" {
		return strings.TrimSpace(profile.FirstName), strings.TrimSpace(profile.LastName)
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	user, err := s.users.GetUser(storeCtx, userID)
	if err == nil && user.FirstName != "" {
		return user.FirstName, user.LastName
	}
	if err != nil && !errors.Is(storeError(err), ErrNotFound) {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to read cached user")
	}
	return s.opts.DefaultFirstName, ""
}

func (s *BookingService) loadSession(ctx context.Context, userID string) (*models.Session, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	session, err := s.sessions.GetSession(storeCtx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to load session")
		return nil, transient(err)
	}
	return session, nil
}

func (s *BookingService) saveSession(ctx context.Context, session *models.Session) error {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	session.UpdatedAt = s.now()
	if err := s.sessions.SaveSession(storeCtx, session); err != nil {
		s.logger.Error().Err(err).Str("user_id", session.UserID).Msg("Failed to save session")
		return transient(err)
	}
	return nil
}

func (s *BookingService) deleteSession(ctx context.Context, userID string) error {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.sessions.DeleteSession(storeCtx, userID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to delete session")
		return transient(err)
	}
	return nil
}

func (s *BookingService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

func draftAppointment(session *models.Session) *models.Appointment {
	return &models.Appointment{
		UserID:          session.UserID,
		FirstName:       session.FirstName,
		LastName:        session.LastName,
		Phone:           session.Phone,
		ServiceID:       session.ServiceID,
		ServiceName:     session.ServiceName,
		Date:            session.Date,
		Time:            session.Time,
		DurationMinutes: session.DurationMinutes,
		Price:           session.Price,
		Currency:        session.Currency,
		Notes:           session.Notes,
		Status:          models.AppointmentStatusActive,
	}
}

// mismatch picks the notice for an input that does not belong to the step.
func mismatch(in Input, notice string) string {
	switch in.Kind {
	case InputServiceSelection:
		return noticeFinishBooking
	case InputDateSelection, InputTimeSelection, InputText, InputConfirm, InputDecline:
		return notice
	}
	return noticeUnknownCommand
}

func normalizePhone(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
