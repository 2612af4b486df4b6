package api

import (
	"net/http"
	"strings"
	"time"

	"zapis/internal/models"
	"zapis/internal/service"

	"github.com/gorilla/mux"
)

const msgUserRequired = "user_id is required"

type consultationRequest struct {
	UserID    string `json:"user_id"`
	FirstName string `json:"first_name"`
	Phone     string `json:"phone"`
}

func (r consultationRequest) contact() service.Contact {
	return service.Contact{FirstName: strings.TrimSpace(r.FirstName), Phone: r.Phone}
}

type callbackRequest struct {
	consultationRequest
	PreferredAt time.Time `json:"preferred_at"`
}

type attemptRequest struct {
	Answered bool `json:"answered"`
}

func (s *HTTPServer) handleRequestConsultation(w http.ResponseWriter, r *http.Request) {
	var req consultationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, msgUserRequired)
		return
	}

	ticket, err := s.svc.Callbacks.RequestConsultation(r.Context(), req.UserID, req.contact())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (s *HTTPServer) handleCallbackTimes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"times": s.svc.Callbacks.ProposeTimes(s.now())})
}

func (s *HTTPServer) handleScheduleCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, msgUserRequired)
		return
	}
	if req.PreferredAt.IsZero() {
		writeError(w, http.StatusBadRequest, "preferred_at is required")
		return
	}

	ticket, err := s.svc.Callbacks.ScheduleCallback(r.Context(), req.UserID, req.contact(), req.PreferredAt)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (s *HTTPServer) handleCallbackStatus(w http.ResponseWriter, r *http.Request) {
	ticket, ok, err := s.svc.Callbacks.CheckStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !ok {
		s.writeServiceError(w, r, service.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (s *HTTPServer) handleCancelCallback(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, msgUserRequired)
		return
	}

	ok, err := s.svc.Callbacks.Cancel(r.Context(), mux.Vars(r)["id"], userID)
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

func (s *HTTPServer) handleCallbackQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := s.svc.Callbacks.ListQueue(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if queue == nil {
		queue = []*models.CallbackRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": queue})
}

func (s *HTTPServer) handleCallbackAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	ticket, err := s.svc.Callbacks.RecordAttempt(r.Context(), mux.Vars(r)["id"], req.Answered)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (s *HTTPServer) handleCallbackComplete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Callbacks.Complete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
