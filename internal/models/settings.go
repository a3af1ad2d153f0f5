package models

// ProviderConfig holds configuration for a specific agent provider.
type ProviderConfig struct {
	Path string   `yaml:"path"` // empty = lookup in PATH, or absolute path
	Args []string `yaml:"args,omitempty"`
}

// SchedulerConfig holds batch scheduler settings.
type SchedulerConfig struct {
	MaxParallelPerLayer int `yaml:"max_parallel_per_layer"` // 0 = unlimited
}

// Settings represents global application settings.
// This corresponds to ~/.forgeline/settings.yaml.
type Settings struct {
	Version         int                        `yaml:"version"`
	Providers       map[string]*ProviderConfig `yaml:"providers"`
	DefaultProvider string                     `yaml:"default_provider"`
	Scheduler       SchedulerConfig            `yaml:"scheduler"`
	LogDir          string                     `yaml:"log_dir,omitempty"` // empty = ~/.forgeline/logs
}

// NewSettings creates settings with default values.
func NewSettings() *Settings {
	return &Settings{
		Version: 1,
		Providers: map[string]*ProviderConfig{
			"claude-code": {Path: ""}, // Empty means lookup in PATH
		},
		DefaultProvider: "claude-code",
		Scheduler: SchedulerConfig{
			MaxParallelPerLayer: 0,
		},
	}
}
