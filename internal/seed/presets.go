package seed

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PetPreset pins one seeded profile.
type PetPreset struct {
	Name  string `yaml:"name"`
	Breed string `yaml:"breed"`
	Age   int    `yaml:"age"`
}

// Preset is a YAML seeding scenario. Zero fields keep the defaults.
type Preset struct {
	Name         string  `yaml:"name"`
	Users        int     `yaml:"users"`
	PostsPerUser int     `yaml:"posts_per_user"`
	MaxComments  int     `yaml:"max_comments"`
	MaxDays      int     `yaml:"max_days"`
	GeotagRatio  float64 `yaml:"geotag_ratio"`
	ImageRatio   float64 `yaml:"image_ratio"`
	LikeRatio    float64 `yaml:"like_ratio"`
	SpreadKm     float64 `yaml:"spread_km"`
	Center       *struct {
		Latitude  float64 `yaml:"latitude"`
		Longitude float64 `yaml:"longitude"`
	} `yaml:"center"`
	Pets []PetPreset `yaml:"pets"`
}

// LoadPreset reads and parses a preset file.
func LoadPreset(path string) (*Preset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset: %w", err)
	}
	return ParsePreset(b)
}

// ParsePreset decodes a preset, rejecting unknown keys.
func ParsePreset(b []byte) (*Preset, error) {
	var p Preset
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse preset: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Preset) validate() error {
	for _, r := range []float64{p.GeotagRatio, p.ImageRatio, p.LikeRatio} {
		if r < 0 || r > 1 {
			return errors.New("preset ratios must be between 0 and 1")
		}
	}
	if p.Users < 0 || p.PostsPerUser < 0 || p.MaxComments < 0 || p.MaxDays < 0 || p.SpreadKm < 0 {
		return errors.New("preset counts must not be negative")
	}
	for i, pet := range p.Pets {
		if pet.Name == "" {
			return fmt.Errorf("pet %d has no name", i)
		}
		if pet.Age < 0 {
			return fmt.Errorf("pet %q has a negative age", pet.Name)
		}
	}
	return nil
}

// Apply overlays the preset on opts. Users is raised to cover every pet.
func (p *Preset) Apply(opts Options) Options {
	if p.Users > 0 {
		opts.Users = p.Users
	}
	if len(p.Pets) > opts.Users {
		opts.Users = len(p.Pets)
	}
	if p.PostsPerUser > 0 {
		opts.PostsPerUser = p.PostsPerUser
	}
	if p.MaxComments > 0 {
		opts.MaxComments = p.MaxComments
	}
	if p.MaxDays > 0 {
		opts.MaxDays = p.MaxDays
	}
	if p.GeotagRatio > 0 {
		opts.GeotagRatio = p.GeotagRatio
	}
	if p.ImageRatio > 0 {
		opts.ImageRatio = p.ImageRatio
	}
	if p.LikeRatio > 0 {
		opts.LikeRatio = p.LikeRatio
	}
	if p.SpreadKm > 0 {
		opts.SpreadKm = p.SpreadKm
	}
	if p.Center != nil {
		opts.Center.Latitude = p.Center.Latitude
		opts.Center.Longitude = p.Center.Longitude
	}
	return opts
}
