package tidy

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config drives the watcher daemon and the CLI. It is stored as YAML,
// by default at ~/.tidy.yaml.
type Config struct {
	WatchDirs       []string `yaml:"watch_dirs"`
	OrganizedDir    string   `yaml:"organized_dir"`
	TrashDir        string   `yaml:"trash_dir"`
	ArchiveDir      string   `yaml:"archive_dir"`
	DBPath          string   `yaml:"db_path"`
	VaultDir        string   `yaml:"vault_dir,omitempty"`
	RedisAddr       string   `yaml:"redis_addr"`
	CapturesChannel string   `yaml:"captures_channel"`
	DebounceSeconds int      `yaml:"debounce_seconds"`
	IgnorePatterns  []string `yaml:"ignore_patterns"`
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		WatchDirs:       []string{filepath.Join(home, "Desktop"), filepath.Join(home, "Downloads")},
		OrganizedDir:    filepath.Join(home, "Organized"),
		TrashDir:        filepath.Join(home, ".tidy", "trash"),
		ArchiveDir:      filepath.Join(home, "Organized", "Personal", "Archive"),
		DBPath:          filepath.Join(home, ".tidy", "plans.db"),
		RedisAddr:       "localhost:6379",
		CapturesChannel: "captures",
		DebounceSeconds: 5,
		IgnorePatterns:  []string{".DS_Store", ".localized", "*.tmp", "*.part", "*.crdownload", "Icon\r"},
	}
}

// DefaultConfigPath returns ~/.tidy.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".tidy.yaml")
}

// LoadConfig reads the config file at path. A missing file is not an
// error; the defaults are returned. Keys absent from the file keep their
// default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.DebounceSeconds <= 0 {
		cfg.DebounceSeconds = 5
	}
	return cfg, nil
}

// Save writes the config as YAML, creating parent directories as needed.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Debounce returns the settle window as a duration.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceSeconds) * time.Second
}
