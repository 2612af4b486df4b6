package api

import (
	"net/http"
	"testing"
	"time"

	"zapis/internal/models"
	"zapis/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsultationLifecycle(t *testing.T) {
	env := newTestEnv(t, testAPIConfig())

	resp := env.do(t, http.MethodPost, "/api/v1/consultations", botKey, map[string]string{
		"user_id":    "u1",
		"first_name": "Дана",
		"phone":      "+972 50 123 4567",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ticket := decodeBody[service.Ticket](t, resp)
	assert.Equal(t, models.CallbackStatusInQueue, ticket.Status)
	assert.Equal(t, 1, ticket.QueuePosition)

	resp = env.do(t, http.MethodGet, "/api/v1/callbacks/"+ticket.ID, botKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ticket.ID, decodeBody[service.Ticket](t, resp).ID)

	resp = env.do(t, http.MethodGet, "/api/v1/admin/callbacks", adminKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	queue := decodeBody[map[string][]models.CallbackRequest](t, resp)
	require.Len(t, queue["queue"], 1)
	assert.Equal(t, "+972501234567", queue["queue"][0].Phone)

	// Две неудачные попытки при лимите 2
	resp = env.do(t, http.MethodPost, "/api/v1/admin/callbacks/"+ticket.ID+"/attempts", adminKey, map[string]bool{"answered": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[service.Ticket](t, resp)
	assert.Equal(t, models.CallbackStatusInQueue, got.Status)
	assert.Equal(t, 1, got.Attempts)

	resp = env.do(t, http.MethodPost, "/api/v1/admin/callbacks/"+ticket.ID+"/attempts", adminKey, map[string]bool{"answered": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.CallbackStatusMissed, decodeBody[service.Ticket](t, resp).Status)

	resp = env.do(t, http.MethodPost, "/api/v1/admin/callbacks/"+ticket.ID+"/complete", adminKey, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestOperatorCompletesCall(t *testing.T) {
	env := newTestEnv(t, testAPIConfig())

	resp := env.do(t, http.MethodPost, "/api/v1/consultations", botKey, map[string]string{"user_id": "u1", "phone": phone})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ticket := decodeBody[service.Ticket](t, resp)

	resp = env.do(t, http.MethodPost, "/api/v1/admin/callbacks/"+ticket.ID+"/attempts", adminKey, map[string]bool{"answered": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.CallbackStatusInProgress, decodeBody[service.Ticket](t, resp).Status)

	resp = env.do(t, http.MethodPost, "/api/v1/admin/callbacks/"+ticket.ID+"/complete", adminKey, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/admin/callbacks/missing/attempts", adminKey, map[string]bool{"answered": true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScheduleCallbackOverHTTP(t *testing.T) {
	env := newTestEnv(t, testAPIConfig())
	preferred := env.rules.At(env.day, at(t, "10:00"))

	resp := env.do(t, http.MethodPost, "/api/v1/callbacks", botKey, map[string]any{
		"user_id":      "u1",
		"phone":        phone,
		"preferred_at": preferred.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ticket := decodeBody[service.Ticket](t, resp)
	assert.Equal(t, models.CallbackStatusScheduled, ticket.Status)
	assert.True(t, preferred.Equal(ticket.PreferredAt))

	resp = env.do(t, http.MethodDelete, "/api/v1/callbacks/"+ticket.ID+"?user_id=u2", botKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/v1/callbacks/"+ticket.ID, botKey, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/v1/callbacks/"+ticket.ID+"?user_id=u1", botKey, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/callbacks/"+ticket.ID, botKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.CallbackStatusCancelled, decodeBody[service.Ticket](t, resp).Status)
}

func TestScheduleCallbackValidation(t *testing.T) {
	env := newTestEnv(t, testAPIConfig())
	late := env.rules.At(env.day, at(t, "20:00"))

	tests := []struct {
		name string
		body map[string]any
	}{
		{"MissingUser", map[string]any{"phone": phone, "preferred_at": late.Format(time.RFC3339)}},
		{"MissingTime", map[string]any{"user_id": "u1", "phone": phone}},
		{"OutsideHours", map[string]any{"user_id": "u1", "phone": phone, "preferred_at": late.Format(time.RFC3339)}},
		{"InThePast", map[string]any{"user_id": "u1", "phone": phone, "preferred_at": time.Now().Add(-time.Hour).Format(time.RFC3339)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/v1/callbacks", botKey, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	resp := env.do(t, http.MethodPost, "/api/v1/consultations", botKey, map[string]string{"user_id": "u1", "phone": "12345"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCallbackTimesAndUnknownStatus(t *testing.T) {
	env := newTestEnv(t, testAPIConfig())

	resp := env.do(t, http.MethodGet, "/api/v1/callbacks/times", botKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	times := decodeBody[map[string][]time.Time](t, resp)
	assert.NotEmpty(t, times["times"])

	resp = env.do(t, http.MethodGet, "/api/v1/callbacks/unknown-id", botKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
