package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalogService(t *testing.T) {
	c := NewCatalogService(testServices())

	s, ok := c.Service("massage")
	assert.True(t, ok)
	assert.Equal(t, 60, s.DurationMinutes)

	s, ok = c.Service("cupping")
	assert.True(t, ok)
	assert.False(t, s.Available)

	_, ok = c.Service("unknown")
	assert.False(t, ok)

	ids := make([]string, 0)
	for _, svc := range c.Services() {
		ids = append(ids, svc.ID)
	}
	assert.Equal(t, []string{"massage", "bioscan"}, ids)
}
