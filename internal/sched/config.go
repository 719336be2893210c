package sched

import (
	"os"

	yaml "github.com/goccy/go-yaml"
)

// Mode selects the dispatch discipline, fixed at construction time.
type Mode int

const (
	// Preemptive mode enforces the time slice and preempts the running task
	// whenever a strictly higher-priority task becomes Ready.
	Preemptive Mode = iota
	// Cooperative mode runs each task until it yields, blocks or finishes.
	Cooperative
)

func (m Mode) String() string {
	switch m {
	case Preemptive:
		return "preemptive"
	case Cooperative:
		return "cooperative"
	default:
		return "unknown"
	}
}

// Config mirrors config.yml
type Config struct {
	TickMS        int    `yaml:"tick_ms"`        // wall-clock ms per tick in Run (5 by default)
	SliceTicks    int    `yaml:"slice_ticks"`    // preemptive time quantum (5 by default)
	Mode          string `yaml:"mode"`           // "preemptive" or "cooperative"
	AgingTicks    int    `yaml:"aging_ticks"`    // 0 disables aging
	DeadlineSlack int    `yaml:"deadline_slack"` // allowed timer lateness before a miss
	MaxTasks      int    `yaml:"max_tasks"`      // task table capacity
	MaxTimers     int    `yaml:"max_timers"`     // timer pool capacity
	CSVLog        string `yaml:"csv_log"`        // event log path, empty disables
	LogLevel      string `yaml:"log_level"`
}

// SchedMode maps the config string onto a Mode; anything unrecognized is
// preemptive.
func (c Config) SchedMode() Mode {
	if c.Mode == "cooperative" {
		return Cooperative
	}
	return Preemptive
}

// If the config file is not found, we use default values
func defaultConfig() Config {
	return Config{
		TickMS:        5,
		SliceTicks:    5,
		Mode:          "preemptive",
		AgingTicks:    0,
		DeadlineSlack: 1,
		MaxTasks:      16,
		MaxTimers:     16,
		LogLevel:      "info",
	}
}

// Load reads YAML and overrides defaults; empty path = defaults only
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, &cfg)

	// sanity clamps
	if cfg.SliceTicks <= 0 {
		cfg.SliceTicks = 5
	}
	if cfg.TickMS <= 0 {
		cfg.TickMS = 5
	}
	if cfg.AgingTicks < 0 {
		cfg.AgingTicks = 0
	}
	if cfg.DeadlineSlack < 0 {
		cfg.DeadlineSlack = 0
	}
	if cfg.MaxTasks <= 0 {
		cfg.MaxTasks = 16
	}
	if cfg.MaxTimers <= 0 {
		cfg.MaxTimers = 16
	}

	return cfg
}
