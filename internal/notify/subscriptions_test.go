package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"zapis/internal/events"
	"zapis/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(_ context.Context, userID, text string) error {
	return m.Called(userID, text).Error(0)
}

func newTestSubscriber(sender *mockSender) *events.EventBus {
	logger := zerolog.Nop()
	bus := events.NewEventBus()
	NewSubscriber(sender, "admin", time.UTC, &logger).Register(bus)
	return bus
}

func TestSubscriberAppointmentCreated(t *testing.T) {
	sender := new(mockSender)
	bus := newTestSubscriber(sender)
	a := testAppointment()

	sender.On("Send", "123", RenderConfirmation(a)).Return(nil).Once()
	sender.On("Send", "admin", mock.AnythingOfType("string")).Return(nil).Once()

	require.NoError(t, bus.PublishJSON(events.EventAppointmentCreated, events.NewAppointmentPayload(a)))
	sender.AssertExpectations(t)
}

func TestSubscriberAppointmentCancelled(t *testing.T) {
	a := testAppointment()

	t.Run("ByUser", func(t *testing.T) {
		sender := new(mockSender)
		bus := newTestSubscriber(sender)
		sender.On("Send", "admin", mock.AnythingOfType("string")).Return(nil).Once()

		payload := events.NewAppointmentPayload(a)
		payload.CancelledBy = "user"
		require.NoError(t, bus.PublishJSON(events.EventAppointmentCancelled, payload))

		sender.AssertExpectations(t)
		sender.AssertNotCalled(t, "Send", "123", mock.Anything)
	})

	t.Run("ByAdmin", func(t *testing.T) {
		sender := new(mockSender)
		bus := newTestSubscriber(sender)
		sender.On("Send", "123", RenderCancellation(a)).Return(nil).Once()
		sender.On("Send", "admin", mock.AnythingOfType("string")).Return(nil).Once()

		payload := events.NewAppointmentPayload(a)
		payload.CancelledBy = "admin"
		require.NoError(t, bus.PublishJSON(events.EventAppointmentCancelled, payload))
		sender.AssertExpectations(t)
	})
}

func TestSubscriberCallbackRequested(t *testing.T) {
	c := &models.CallbackRequest{
		ID:          "cb-1",
		UserID:      "123",
		Kind:        models.CallbackKindConsultation,
		Phone:       "+972501234567",
		PreferredAt: time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC),
		Status:      models.CallbackStatusInQueue,
	}

	sender := new(mockSender)
	bus := newTestSubscriber(sender)
	sender.On("Send", "123", RenderCallbackQueued(c)).Return(nil).Once()
	sender.On("Send", "admin", RenderAdminCallback(c, time.UTC)).Return(nil).Once()

	require.NoError(t, bus.PublishJSON(events.EventCallbackRequested, events.NewCallbackPayload(c)))
	sender.AssertExpectations(t)
}

func TestSubscriberCallbackCancelled(t *testing.T) {
	c := &models.CallbackRequest{
		ID:          "cb-4",
		UserID:      "123",
		Kind:        models.CallbackKindCallback,
		FirstName:   "Dana",
		Phone:       "+972501234567",
		PreferredAt: time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC),
		Status:      models.CallbackStatusCancelled,
	}

	sender := new(mockSender)
	bus := newTestSubscriber(sender)
	sender.On("Send", "admin", RenderAdminCallbackCancelled(c, time.UTC)).Return(nil).Once()

	require.NoError(t, bus.PublishJSON(events.EventCallbackCancelled, events.NewCallbackPayload(c)))
	sender.AssertExpectations(t)
	sender.AssertNotCalled(t, "Send", "123", mock.Anything)
}

func TestSubscriberDeliveryFailureDoesNotFailPublish(t *testing.T) {
	sender := new(mockSender)
	bus := newTestSubscriber(sender)
	sender.On("Send", mock.Anything, mock.Anything).Return(errors.New("chat not found"))

	c := &models.CallbackRequest{ID: "cb-2", UserID: "123", Kind: models.CallbackKindCallback}
	assert.NoError(t, bus.PublishJSON(events.EventCallbackQueued, events.NewCallbackPayload(c)))
	sender.AssertNumberOfCalls(t, "Send", 1)
}

func TestSubscriberWithoutAdmin(t *testing.T) {
	logger := zerolog.Nop()
	sender := new(mockSender)
	bus := events.NewEventBus()
	NewSubscriber(sender, "", nil, &logger).Register(bus)

	c := &models.CallbackRequest{ID: "cb-3", UserID: "123", Kind: models.CallbackKindCallback}
	require.NoError(t, bus.PublishJSON(events.EventCallbackQueued, events.NewCallbackPayload(c)))
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}
