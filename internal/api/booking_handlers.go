package api

import (
	"net/http"
	"strings"

	"zapis/internal/calendar"
	"zapis/internal/models"
	"zapis/internal/service"

	"github.com/gorilla/mux"
)

const (
	msgInvalidBody    = "invalid JSON body"
	msgDateRequired   = "date is required"
	msgInvalidDate    = "invalid date format; expected YYYY-MM-DD"
	msgServiceMissing = "service is required"
)

func (s *HTTPServer) handleServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"services": s.svc.Catalog.Services()})
}

func (s *HTTPServer) handleDays(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"days": s.svc.Availability.BookableDays()})
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	serviceID := strings.TrimSpace(r.URL.Query().Get("service"))
	if serviceID == "" {
		writeError(w, http.StatusBadRequest, msgServiceMissing)
		return
	}
	day, ok := queryDay(w, r)
	if !ok {
		return
	}

	slots, err := s.svc.Availability.ListSlots(r.Context(), serviceID, day)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceID,
		"date":    day,
		"slots":   slots,
	})
}

func (s *HTTPServer) handleAdvance(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var in service.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	prompt, err := s.svc.Booking.Advance(r.Context(), userID, in)
	if err != nil {
		// Подсказка описывает сохраненное состояние, клиент может повторить ввод
		writeJSON(w, statusFor(err), map[string]any{
			"error":  service.UserMessage(err),
			"prompt": prompt,
		})
		return
	}
	writeJSON(w, http.StatusOK, prompt)
}

func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	confirmation, err := s.svc.Booking.Confirm(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, confirmation)
}

func (s *HTTPServer) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	if err := s.svc.Booking.CancelSession(r.Context(), userID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleUserAppointments(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	appts, err := s.svc.Booking.ListUserAppointments(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": nonNil(appts)})
}

func (s *HTTPServer) handleCancelAppointment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	ok, err := s.svc.Booking.CancelAppointment(r.Context(), vars["id"], vars["userID"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !ok {
		s.writeServiceError(w, r, service.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryDay reads the date query parameter and answers 400 itself when it is
// missing or malformed.
func queryDay(w http.ResponseWriter, r *http.Request) (calendar.Day, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, msgDateRequired)
		return calendar.Day{}, false
	}
	day, err := calendar.ParseDay(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidDate)
		return calendar.Day{}, false
	}
	return day, true
}

func nonNil(appts []*models.Appointment) []*models.Appointment {
	if appts == nil {
		return []*models.Appointment{}
	}
	return appts
}
