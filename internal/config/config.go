package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	BookingSite struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"booking_site"`

	ScheduleAPI struct {
		BaseURL         string `yaml:"base_url"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"schedule_api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	// Rooms maps room ids to display names.
	Rooms map[int64]string `yaml:"rooms"`

	// Admins see phones and comments for every room.
	Admins []int64 `yaml:"admins"`

	// RoomAdmins see details for their rooms only.
	RoomAdmins map[int64][]int64 `yaml:"room_admins"`

	RateLimit struct {
		SubmissionsPerMinute float64 `yaml:"submissions_per_minute"`
		Burst                int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/bigzbot.db"
	}
	if cfg.BookingSite.BaseURL == "" {
		return nil, fmt.Errorf("booking_site.base_url is required")
	}
	if cfg.ScheduleAPI.BaseURL == "" {
		return nil, fmt.Errorf("schedule_api.base_url is required")
	}
	if cfg.RateLimit.SubmissionsPerMinute <= 0 {
		cfg.RateLimit.SubmissionsPerMinute = 3
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 3
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupRetention() time.Duration {
	if c.Backup.RetentionDays <= 0 {
		return 14 * 24 * time.Hour
	}
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}

// RoomName returns the display name for a room id.
func (c *Config) RoomName(id int64) string {
	if name, ok := c.Rooms[id]; ok {
		return name
	}
	return fmt.Sprintf("Зал %d", id)
}

// IsAdmin reports whether the user is a global admin or administers any room.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admins {
		if id == userID {
			return true
		}
	}
	for _, admins := range c.RoomAdmins {
		for _, id := range admins {
			if id == userID {
				return true
			}
		}
	}
	return false
}

// IsRoomAdmin reports whether the user administers the given room.
func (c *Config) IsRoomAdmin(userID, roomID int64) bool {
	for _, id := range c.Admins {
		if id == userID {
			return true
		}
	}
	for _, id := range c.RoomAdmins[roomID] {
		if id == userID {
			return true
		}
	}
	return false
}
