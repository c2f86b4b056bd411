package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Limits holds the relay's runtime-tunable throttles. The file behind them
// can be rewritten while the relay is running; the watcher picks the change
// up without a restart.
type Limits struct {
	// Per-connection element op budget.
	OpBurst           float64 `yaml:"opBurst"`
	OpRefillPerSecond float64 `yaml:"opRefillPerSecond"`

	// Presence entries older than this are considered stale.
	PresenceTTLSeconds int `yaml:"presenceTTLSeconds"`

	Metadata LimitsMetadata `yaml:"metadata"`
}

// LimitsMetadata records provenance of the limits file.
type LimitsMetadata struct {
	Version   string    `yaml:"version"`
	UpdatedAt time.Time `yaml:"updatedAt"`
	UpdatedBy string    `yaml:"updatedBy"`
}

// DefaultLimits returns the limits used when no file is configured.
func DefaultLimits() *Limits {
	return &Limits{
		OpBurst:            100,
		OpRefillPerSecond:  50,
		PresenceTTLSeconds: 30,
	}
}

// PresenceTTL returns the presence staleness window as a duration.
func (l *Limits) PresenceTTL() time.Duration {
	return time.Duration(l.PresenceTTLSeconds) * time.Second
}

// Validate rejects limits that would stall or unbound the relay.
func (l *Limits) Validate() error {
	if l.OpBurst <= 0 {
		return fmt.Errorf("opBurst must be positive")
	}
	if l.OpRefillPerSecond <= 0 {
		return fmt.Errorf("opRefillPerSecond must be positive")
	}
	if l.PresenceTTLSeconds <= 0 {
		return fmt.Errorf("presenceTTLSeconds must be positive")
	}
	return nil
}

// LoadLimits reads and validates a limits file.
func LoadLimits(path string) (*Limits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read limits file: %w", err)
	}

	limits := DefaultLimits()
	if err := yaml.Unmarshal(data, limits); err != nil {
		return nil, fmt.Errorf("failed to parse limits file: %w", err)
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if limits.Metadata.Version == "" {
		limits.Metadata.Version = "1.0.0"
	}
	return limits, nil
}
