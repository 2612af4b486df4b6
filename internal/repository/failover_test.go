package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"zapis/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetSession(ctx context.Context, userID string) (*models.Session, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockRepo) SaveSession(ctx context.Context, session *models.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockRepo) DeleteSession(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func TestFailoverSessionRepository(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.New(io.Discard)
	errDown := errors.New("connection refused")

	t.Run("PrimaryHealthy", func(t *testing.T) {
		primary := new(mockRepo)
		fallback := NewMemorySessionRepository(time.Hour)
		repo := NewFailoverSessionRepository(primary, fallback, &logger)

		session := models.NewSession("1", time.Now())
		primary.On("SaveSession", ctx, session).Return(nil).Once()
		primary.On("GetSession", ctx, "1").Return(session, nil).Once()

		require.NoError(t, repo.SaveSession(ctx, session))
		got, err := repo.GetSession(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, session, got)
		assert.False(t, repo.IsDegraded())
		assert.Zero(t, fallback.Len())
		primary.AssertExpectations(t)
	})

	t.Run("FallbackWhenPrimaryFails", func(t *testing.T) {
		primary := new(mockRepo)
		fallback := NewMemorySessionRepository(time.Hour)
		repo := NewFailoverSessionRepository(primary, fallback, &logger)

		session := models.NewSession("2", time.Now())
		primary.On("SaveSession", ctx, session).Return(errDown).Once()

		require.NoError(t, repo.SaveSession(ctx, session))
		assert.True(t, repo.IsDegraded())

		// primary is not touched again until the recovery interval passes
		got, err := repo.GetSession(ctx, "2")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "2", got.UserID)

		require.NoError(t, repo.DeleteSession(ctx, "2"))
		got, _ = repo.GetSession(ctx, "2")
		assert.Nil(t, got)
		primary.AssertExpectations(t)
	})

	t.Run("Recovery", func(t *testing.T) {
		primary := new(mockRepo)
		fallback := NewMemorySessionRepository(time.Hour)
		repo := NewFailoverSessionRepository(primary, fallback, &logger)
		now := time.Now()
		repo.now = func() time.Time { return now }

		session := models.NewSession("3", now)
		primary.On("SaveSession", ctx, session).Return(errDown).Once()
		require.NoError(t, repo.SaveSession(ctx, session))
		require.True(t, repo.IsDegraded())

		now = now.Add(2 * time.Minute)
		primary.On("GetSession", ctx, "3").Return(nil, nil).Once()

		got, err := repo.GetSession(ctx, "3")
		require.NoError(t, err)
		require.NotNil(t, got, "session saved during the outage is still served")
		assert.False(t, repo.IsDegraded())
		primary.AssertExpectations(t)
	})
}
