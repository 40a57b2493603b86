package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dzoniops/condo-booking/models"
)

type propertyEntry struct {
	Slug        string `yaml:"slug"`
	Name        string `yaml:"name"`
	FeedURL     string `yaml:"feed_url"`
	Active      *bool  `yaml:"active"`
	MaxGuests   int    `yaml:"max_guests"`
	NightlyRate int64  `yaml:"nightly_rate"`
	CleaningFee int64  `yaml:"cleaning_fee"`
	Currency    string `yaml:"currency"`
}

type catalog struct {
	Properties []propertyEntry `yaml:"properties"`
}

// LoadProperties reads the YAML property catalog used to seed the store.
func LoadProperties(path string) ([]models.Property, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read properties file: %w", err)
	}
	return ParseProperties(data)
}

// ParseProperties decodes a catalog. Properties are active unless the
// entry says otherwise.
func ParseProperties(data []byte) ([]models.Property, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse properties file: %w", err)
	}
	out := make([]models.Property, 0, len(c.Properties))
	seen := make(map[string]bool, len(c.Properties))
	for i, e := range c.Properties {
		slug := strings.TrimSpace(e.Slug)
		if slug == "" {
			return nil, fmt.Errorf("property %d: slug is required", i)
		}
		if seen[slug] {
			return nil, fmt.Errorf("property %q listed twice", slug)
		}
		seen[slug] = true
		if e.NightlyRate < 0 || e.CleaningFee < 0 || e.MaxGuests < 0 {
			return nil, fmt.Errorf("property %q: amounts and guest limits must not be negative", slug)
		}
		p := models.Property{
			Slug:        slug,
			Name:        e.Name,
			FeedURL:     strings.TrimSpace(e.FeedURL),
			Active:      e.Active == nil || *e.Active,
			MaxGuests:   e.MaxGuests,
			NightlyRate: e.NightlyRate,
			CleaningFee: e.CleaningFee,
			Currency:    strings.ToUpper(e.Currency),
		}
		if p.Name == "" {
			p.Name = slug
		}
		if p.Currency == "" {
			p.Currency = "PHP"
		}
		out = append(out, p)
	}
	return out, nil
}
