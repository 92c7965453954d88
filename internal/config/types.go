package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Config is the root of chimed's configuration file (YAML or JSON).
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Jobs      []JobConfig     `json:"jobs"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console *bool         `json:"console,omitempty"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	// Driver selects the persistence backend: "file", "sqlite", or
	// ""/"none" to disable.
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`
}

type SchedulerConfig struct {
	Workers         int      `json:"workers,omitempty"`
	QueueSize       int      `json:"queue_size,omitempty"`
	DefaultTimeout  Duration `json:"default_timeout,omitempty"`
	HistorySize     int      `json:"history_size,omitempty"`
	MaxStartsPerSec float64  `json:"max_starts_per_sec,omitempty"`
}

// JobConfig binds a trigger to a command.
type JobConfig struct {
	Name    string      `json:"name"`
	Command string      `json:"command"`
	Timeout Duration    `json:"timeout,omitempty"`
	Trigger TriggerSpec `json:"trigger"`
}

func (j JobConfig) validate() error {
	if strings.TrimSpace(j.Name) == "" {
		return fmt.Errorf("job name is required")
	}
	if strings.TrimSpace(j.Command) == "" {
		return fmt.Errorf("job %q: command is required", j.Name)
	}
	if err := j.Trigger.validate(); err != nil {
		return fmt.Errorf("job %q: %w", j.Name, err)
	}
	return nil
}

func (c *Config) validate() error {
	seen := map[string]bool{}
	for i := range c.Jobs {
		if err := c.Jobs[i].validate(); err != nil {
			return err
		}
		name := c.Jobs[i].Name
		if seen[name] {
			return fmt.Errorf("duplicate job name %q", name)
		}
		seen[name] = true
	}
	return nil
}

// Duration decodes either a number of seconds or a Go duration string
// ("90s", "2h30m"). Both spellings are common in hand-written schedules.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var secs float64
	if err := json.Unmarshal(data, &secs); err == nil {
		if secs < 0 {
			return fmt.Errorf("duration must not be negative, got %g", secs)
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("duration must be seconds or a duration string: %w", err)
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration must not be negative, got %s", parsed)
	}
	*d = Duration(parsed)
	return nil
}
