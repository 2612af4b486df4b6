package config

import (
	"fmt"
	"os"

	"zapis/internal/models"

	"gopkg.in/yaml.v3"
)

// LoadCatalog reads the service catalog file. A missing or empty catalog is
// fatal because no booking can be made without it.
func LoadCatalog(path string) ([]models.Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read catalog %s: %v", ErrFatalConfig, path, err)
	}

	var catalog struct {
		Currency string           `yaml:"currency"`
		Services []models.Service `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("%w: parse catalog %s: %v", ErrFatalConfig, path, err)
	}

	for i := range catalog.Services {
		if catalog.Services[i].Currency == "" {
			catalog.Services[i].Currency = catalog.Currency
		}
	}

	if err := ValidateServices(catalog.Services); err != nil {
		return nil, err
	}
	return catalog.Services, nil
}

func ValidateServices(services []models.Service) error {
	if len(services) == 0 {
		return fmt.Errorf("%w: service catalog is empty", ErrFatalConfig)
	}

	ids := make(map[string]bool)
	for _, s := range services {
		if s.ID == "" {
			return fmt.Errorf("%w: service %q has empty id", ErrFatalConfig, s.Name)
		}
		if ids[s.ID] {
			return fmt.Errorf("%w: duplicate service id found: %s", ErrFatalConfig, s.ID)
		}
		if s.Available && s.DurationMinutes <= 0 {
			return fmt.Errorf("%w: service %s has no duration", ErrFatalConfig, s.ID)
		}
		ids[s.ID] = true
	}
	return nil
}
