package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrNoFeeds = errors.New("feeds file lists no feeds")

// FeedSource describes where one agency publishes its three feeds. BaseURL
// may be an http(s) URL or a local directory.
type FeedSource struct {
	Name             string            `yaml:"name" validate:"required"`
	BaseURL          string            `yaml:"baseURL"`
	TripUpdates      string            `yaml:"tripUpdates"`
	VehiclePositions string            `yaml:"vehiclePositions"`
	Alerts           string            `yaml:"alerts"`
	QuirkProfile     string            `yaml:"quirkProfile"`
	Headers          map[string]string `yaml:"headers"`
}

func (f *FeedSource) applyDefaults() {
	if f.TripUpdates == "" {
		f.TripUpdates = DefaultTripUpdatesPath
	}
	if f.VehiclePositions == "" {
		f.VehiclePositions = DefaultVehiclePositionsPath
	}
	if f.Alerts == "" {
		f.Alerts = DefaultAlertsPath
	}
}

type FeedsFile struct {
	Feeds []FeedSource `yaml:"feeds" validate:"dive"`
}

// LoadFeedsFile reads and validates a YAML feed-source list.
func LoadFeedsFile(path string) (*FeedsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}
	var ff FeedsFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse feeds file %s: %w", path, err)
	}
	if len(ff.Feeds) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoFeeds)
	}
	if err := validate.Struct(ff); err != nil {
		return nil, fmt.Errorf("invalid feeds file %s: %w", path, err)
	}
	return &ff, nil
}

// Select returns the named feed, or the first one when name is empty.
func (ff *FeedsFile) Select(name string) (FeedSource, error) {
	if name == "" {
		return ff.Feeds[0], nil
	}
	for _, f := range ff.Feeds {
		if f.Name == name {
			return f, nil
		}
	}
	return FeedSource{}, fmt.Errorf("feed %q not found in feeds file", name)
}
