package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"zapis/internal/config"
	"zapis/internal/domain"
	"zapis/internal/export"
	"zapis/internal/metrics"
	"zapis/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	apiPrefix       = "/api/v1"
	requestIDHeader = "X-Request-ID"
)

// ReminderSweeper runs one reminder pass on demand.
type ReminderSweeper interface {
	RunSweep(ctx context.Context, now time.Time) (int, error)
}

// HealthCheck is one dependency checked by /readyz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Services bundles everything the HTTP layer calls into.
type Services struct {
	Booking      *service.BookingService
	Callbacks    *service.CallbackService
	Availability *service.AvailabilityService
	Catalog      domain.Catalog
	Reminders    ReminderSweeper
	Exporter     *export.Exporter
	Health       []HealthCheck
}

// HTTPServer exposes the booking core over JSON/HTTP.
type HTTPServer struct {
	cfg    config.APIConfig
	svc    Services
	auth   *HTTPAuth
	logger *zerolog.Logger
	server *http.Server
	now    func() time.Time
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:    cfg,
		svc:    svc,
		auth:   NewHTTPAuth(cfg),
		logger: logger,
		now:    time.Now,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// Handler returns the root handler; used by tests and embedding servers.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix(apiPrefix).Subrouter()
	api.Use(s.auth.Wrap)

	// Каталог и свободное время
	api.HandleFunc("/services", s.handleServices).Methods(http.MethodGet)
	api.HandleFunc("/days", s.handleDays).Methods(http.MethodGet)
	api.HandleFunc("/slots", s.handleSlots).Methods(http.MethodGet)

	// Диалог записи
	api.HandleFunc("/sessions/{userID}/advance", s.handleAdvance).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{userID}/confirm", s.handleConfirm).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{userID}", s.handleCancelSession).Methods(http.MethodDelete)

	// Записи пользователя
	api.HandleFunc("/users/{userID}/appointments", s.handleUserAppointments).Methods(http.MethodGet)
	api.HandleFunc("/users/{userID}/appointments/{id}", s.handleCancelAppointment).Methods(http.MethodDelete)

	// Консультации и обратные звонки
	api.HandleFunc("/consultations", s.handleRequestConsultation).Methods(http.MethodPost)
	api.HandleFunc("/callbacks/times", s.handleCallbackTimes).Methods(http.MethodGet)
	api.HandleFunc("/callbacks", s.handleScheduleCallback).Methods(http.MethodPost)
	api.HandleFunc("/callbacks/{id}", s.handleCallbackStatus).Methods(http.MethodGet)
	api.HandleFunc("/callbacks/{id}", s.handleCancelCallback).Methods(http.MethodDelete)

	// Администрирование
	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/appointments", s.handleAdminAppointments).Methods(http.MethodGet)
	admin.HandleFunc("/appointments/{id}", s.handleAdminCancelAppointment).Methods(http.MethodDelete)
	admin.HandleFunc("/schedule.xlsx", s.handleExportSchedule).Methods(http.MethodGet)
	admin.HandleFunc("/callbacks", s.handleCallbackQueue).Methods(http.MethodGet)
	admin.HandleFunc("/callbacks/{id}/attempts", s.handleCallbackAttempt).Methods(http.MethodPost)
	admin.HandleFunc("/callbacks/{id}/complete", s.handleCallbackComplete).Methods(http.MethodPost)
	admin.HandleFunc("/reminders/sweep", s.handleReminderSweep).Methods(http.MethodPost)

	return r
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.svc.Health))
	statusCode := http.StatusOK
	for _, h := range s.svc.Health {
		if err := h.Check(ctx); err != nil {
			checks[h.Name] = err.Error()
			statusCode = http.StatusServiceUnavailable
			continue
		}
		checks[h.Name] = "ok"
	}
	writeJSON(w, statusCode, map[string]any{"checks": checks})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		metrics.IncHTTP(endpoint)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("endpoint", endpoint).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeServiceError maps service errors onto HTTP statuses. The body carries
// the user-facing message.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := statusFor(err)
	if statusCode >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeError(w, statusCode, service.UserMessage(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrNotReady),
		errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
