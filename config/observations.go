package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ObservationEntry names one archive observation to process and the
// detector channels requested for it. Rate overrides the driver-level
// flare threshold when positive.
type ObservationEntry struct {
	ID          string   `yaml:"id"`
	Instruments []string `yaml:"instruments"`
	Rate        float64  `yaml:"rate"`
}

// Observations represents the batch file consumed by the driver.
type Observations struct {
	Observations []ObservationEntry `yaml:"observations"`
}

// LoadObservations loads the observation batch from the given path.
func LoadObservations(path string) (*Observations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read observations file: %w", err)
	}
	var obs Observations
	if err := yaml.Unmarshal(data, &obs); err != nil {
		return nil, fmt.Errorf("failed to parse observations file: %w", err)
	}
	for i, entry := range obs.Observations {
		if entry.ID == "" {
			return nil, fmt.Errorf("observations[%d]: id is required", i)
		}
		if _, err := Instruments(entry.Instruments); err != nil {
			return nil, fmt.Errorf("observations[%d]: %w", i, err)
		}
	}
	return &obs, nil
}
