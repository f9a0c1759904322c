package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// WorldServer holds all configuration for the world server.
type WorldServer struct {
	// Logging
	LogLevel string `yaml:"log_level"` // debug, info, warn, error

	// Database
	Database DatabaseConfig `yaml:"database"`

	// Instance lifecycle policy
	Instance InstanceConfig `yaml:"instance"`
}

// InstanceConfig holds instance save/reset policy knobs.
type InstanceConfig struct {
	// TickInterval is the cadence of the reset scheduler tick.
	TickInterval time.Duration `yaml:"tick_interval"`

	// ResetEpoch anchors cohort reset boundaries (RFC 3339) so servers
	// restarting at different times converge on the same wall-clock reset.
	ResetEpoch string `yaml:"reset_epoch"`

	// WarnOffsets are the lead times before a cohort reset at which
	// bound players are warned, descending.
	WarnOffsets []time.Duration `yaml:"warn_offsets"`

	// DungeonGrace is the delay between an ordinary dungeon instance
	// becoming unused and its expiry, allowing brief reuse.
	DungeonGrace time.Duration `yaml:"dungeon_grace"`

	// PackOnStartup renumbers persisted instance ids at startup.
	PackOnStartup bool `yaml:"pack_on_startup"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// DefaultWorldServer returns WorldServer config with sensible defaults.
func DefaultWorldServer() WorldServer {
	return WorldServer{
		LogLevel: "info",
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "realmgo",
			Password: "realmgo",
			DBName:   "realmgo",
			SSLMode:  "disable",
		},
		Instance: InstanceConfig{
			TickInterval:  time.Second,
			ResetEpoch:    "2005-01-01T04:00:00Z",
			WarnOffsets:   []time.Duration{time.Hour, 30 * time.Minute, 15 * time.Minute, 5 * time.Minute},
			DungeonGrace:  2 * time.Hour,
			PackOnStartup: false,
		},
	}
}

// ParsedResetEpoch returns the configured reset epoch as a time.Time.
func (c InstanceConfig) ParsedResetEpoch() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, c.ResetEpoch)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing reset_epoch %q: %w", c.ResetEpoch, err)
	}
	return t, nil
}

// LoadWorldServer loads world server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadWorldServer(path string) (WorldServer, error) {
	cfg := DefaultWorldServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
