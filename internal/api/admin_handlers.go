package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"zapis/internal/export"
	"zapis/internal/service"

	"github.com/gorilla/mux"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *HTTPServer) handleAdminAppointments(w http.ResponseWriter, r *http.Request) {
	day, ok := queryDay(w, r)
	if !ok {
		return
	}

	appts, err := s.svc.Booking.ListAppointmentsByDate(r.Context(), day)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day, "appointments": nonNil(appts)})
}

func (s *HTTPServer) handleAdminCancelAppointment(w http.ResponseWriter, r *http.Request) {
	ok, err := s.svc.Booking.AdminCancelAppointment(r.Context(), mux.Vars(r)["id"])
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

func (s *HTTPServer) handleExportSchedule(w http.ResponseWriter, r *http.Request) {
	if s.svc.Exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is disabled")
		return
	}
	day, ok := queryDay(w, r)
	if !ok {
		return
	}

	appts, err := s.svc.Booking.ListAppointmentsByDate(r.Context(), day)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	// save=true кладёт файл в каталог выгрузок вместо ответа
	if r.URL.Query().Get("save") == "true" {
		path, err := s.svc.Exporter.Save(day, appts)
		if err != nil {
			s.logger.Error().Err(err).Str("date", day.String()).Msg("Failed to save schedule export")
			writeError(w, http.StatusInternalServerError, "export failed")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"file": filepath.Base(path), "appointments": len(appts)})
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(day)))
	if err := s.svc.Exporter.Write(w, day, appts); err != nil {
		s.logger.Error().Err(err).Str("date", day.String()).Msg("Failed to write schedule export")
	}
}

// handleReminderSweep runs a reminder pass immediately. An optional now
// query parameter (RFC 3339) replaces the current time.
func (s *HTTPServer) handleReminderSweep(w http.ResponseWriter, r *http.Request) {
	if s.svc.Reminders == nil {
		writeError(w, http.StatusNotImplemented, "reminders are disabled")
		return
	}

	now := s.now()
	if raw := strings.TrimSpace(r.URL.Query().Get("now")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid now; expected RFC 3339")
			return
		}
		now = t
	}

	sent, err := s.svc.Reminders.RunSweep(r.Context(), now)
	if err != nil {
		s.writeServiceError(w, r, fmt.Errorf("%w: %w", service.ErrTransient, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}
