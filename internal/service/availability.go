package service

import (
	"context"
	"fmt"
	"time"

	"zapis/internal/calendar"
	"zapis/internal/domain"
)

// AvailabilityService derives free slot starts from calendar rules and the
// active appointments of a service. It only informs; the store guards commits.
type AvailabilityService struct {
	repo    domain.AppointmentRepository
	catalog domain.Catalog
	rules   calendar.Rules
	now     func() time.Time
}

func NewAvailabilityService(repo domain.AppointmentRepository, catalog domain.Catalog, rules calendar.Rules) *AvailabilityService {
	return &AvailabilityService{
		repo:    repo,
		catalog: catalog,
		rules:   rules,
		now:     time.Now,
	}
}

// ListSlots returns the free slot starts of the day in ascending order.
// Non-working days yield no slots; on the current day only future starts
// are returned.
func (s *AvailabilityService) ListSlots(ctx context.Context, serviceID string, day calendar.Day) ([]calendar.Clock, error) {
	svc, ok := s.catalog.Service(serviceID)
	if !ok || !svc.Available {
		return nil, fmt.Errorf("%w: unknown service %q", ErrValidation, serviceID)
	}
	if !s.rules.IsWorkingDay(day) {
		return []calendar.Clock{}, nil
	}

	today, nowClock := s.rules.Now(s.now())
	if day.Before(today) {
		return []calendar.Clock{}, nil
	}

	booked, err := s.repo.ListAppointmentsByServiceDate(ctx, serviceID, day)
	if err != nil {
		return nil, storeError(err)
	}
	taken := make(map[calendar.Clock]bool, len(booked))
	for _, a := range booked {
		taken[a.Time] = true
	}

	candidates := s.rules.CandidateSlots()
	free := make([]calendar.Clock, 0, len(candidates))
	for _, c := range candidates {
		if taken[c] {
			continue
		}
		if day == today && c <= nowClock {
			continue
		}
		free = append(free, c)
	}
	return free, nil
}

// BookableDays lists working days from today through the booking horizon.
func (s *AvailabilityService) BookableDays() []calendar.Day {
	return s.rules.WorkingDaysAhead(s.rules.Today(s.now()))
}
