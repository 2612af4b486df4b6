package service

import (
	"path/filepath"
	"testing"
	"time"

	"zapis/internal/calendar"
	"zapis/internal/database"
	"zapis/internal/events"
	"zapis/internal/models"
	"zapis/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var (
	testZone = time.FixedZone("IDT", 3*60*60)
	// Четверг, 08:00 по местному времени
	testNow   = time.Date(2026, time.October, 15, 8, 0, 0, 0, testZone)
	testToday = calendar.NewDay(2026, time.October, 15)
	// Вторник, через 5 дней
	bookingDay = calendar.NewDay(2026, time.October, 20)
	sunday     = calendar.NewDay(2026, time.October, 18)
)

func testRules() calendar.Rules {
	return calendar.Rules{
		Location: testZone,
		WorkingDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday,
			time.Thursday, time.Friday, time.Saturday,
		},
		Open:         calendar.NewClock(9, 0),
		Close:        calendar.NewClock(18, 0),
		LunchStart:   calendar.NewClock(13, 0),
		LunchEnd:     calendar.NewClock(14, 0),
		SlotInterval: 30 * time.Minute,
		HorizonDays:  30,
	}
}

func testServices() []models.Service {
	return []models.Service{
		{ID: "massage", Name: "Массаж", Price: 280, Currency: "ILS", DurationMinutes: 60, Available: true, SortOrder: 1},
		{ID: "bioscan", Name: "Биосканирование", Price: 220, Currency: "ILS", DurationMinutes: 30, Available: true, SortOrder: 2},
		{ID: "cupping", Name: "Баночный массаж", Price: 150, Currency: "ILS", DurationMinutes: 30, Available: false, SortOrder: 3},
	}
}

func at(s string) calendar.Clock {
	c, err := calendar.ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func fixedNow() time.Time { return testNow }

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type bookingFixture struct {
	svc      *BookingService
	db       *database.DB
	sessions *repository.MemorySessionRepository
	bus      *events.EventBus
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	logger := zerolog.Nop()
	db := setupTestDB(t)
	catalog := NewCatalogService(testServices())
	rules := testRules()

	availability := NewAvailabilityService(db, catalog, rules)
	availability.now = fixedNow

	sessions := repository.NewMemorySessionRepository(30 * time.Minute)
	bus := events.NewEventBus()

	svc, err := NewBookingService(sessions, db, db, catalog, availability, rules, bus, BookingOptions{
		DefaultFirstName: "Пациент",
		MaxNotesLength:   20,
		StoreTimeout:     time.Second,
	}, &logger)
	require.NoError(t, err)
	svc.now = fixedNow

	return &bookingFixture{svc: svc, db: db, sessions: sessions, bus: bus}
}

func clockStrings(slots []calendar.Clock) []string {
	out := make([]string, 0, len(slots))
	for _, c := range slots {
		out = append(out, c.String())
	}
	return out
}
