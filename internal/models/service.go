package models

// Service is a catalog entry that can be booked.
type Service struct {
	ID              string `yaml:"id" json:"id"`
	Name            string `yaml:"name" json:"name"`
	Description     string `yaml:"description" json:"description"`
	Price           int64  `yaml:"price" json:"price"`
	Currency        string `yaml:"currency" json:"currency"`
	DurationMinutes int    `yaml:"duration_minutes" json:"duration_minutes"`
	Available       bool   `yaml:"available" json:"available"`
	SortOrder       int    `yaml:"sort_order" json:"sort_order"`
}
