package service

import (
	"sort"

	"zapis/internal/models"
)

// CatalogService serves the service catalog loaded at startup.
type CatalogService struct {
	byID   map[string]models.Service
	sorted []models.Service
}

func NewCatalogService(services []models.Service) *CatalogService {
	c := &CatalogService{byID: make(map[string]models.Service, len(services))}
	for _, s := range services {
		c.byID[s.ID] = s
		c.sorted = append(c.sorted, s)
	}
	sort.SliceStable(c.sorted, func(i, j int) bool {
		return c.sorted[i].SortOrder < c.sorted[j].SortOrder
	})
	return c
}

// Service returns the catalog entry regardless of availability.
func (c *CatalogService) Service(id string) (models.Service, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Services returns the bookable services in display order.
func (c *CatalogService) Services() []models.Service {
	result := make([]models.Service, 0, len(c.sorted))
	for _, s := range c.sorted {
		if s.Available {
			result = append(result, s)
		}
	}
	return result
}
