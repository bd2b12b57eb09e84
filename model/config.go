package model

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

// Config is the process-wide server configuration. Values load from a
// yaml file first, then environment variables override the tagged fields.
type Config struct {
	Server struct {
		Host           string `yaml:"host" env:"SERVER_HOST"`
		Port           int    `yaml:"port" env:"SERVER_PORT"`
		Authentication struct {
			Enable bool   `yaml:"enable" env:"AUTH_ENABLE"`
			Secret string `yaml:"secret" env:"SECRET_KEY"`
		} `yaml:"authentication"`
	} `yaml:"server"`
	Storage struct {
		Path string `yaml:"path" env:"STORAGE_PATH"`
	} `yaml:"storage"`
	Room struct {
		MinPlayers int    `yaml:"min_players"`
		MaxPlayers int    `yaml:"max_players"`
		Timers     Timers `yaml:"timers"`
		Roles      struct {
			Mafia     int `yaml:"mafia"`
			Doctor    int `yaml:"doctor"`
			Detective int `yaml:"detective"`
		} `yaml:"roles"`
		SelfHealAllowed       bool   `yaml:"self_heal_allowed"`
		MafiaMajorityRequired bool   `yaml:"mafia_majority_required"`
		TiePolicy             string `yaml:"tie_policy"`
		FinalizeDebounceMs    int    `yaml:"finalize_debounce_ms"`
	} `yaml:"room"`
	GameLogger struct {
		Enable    bool   `yaml:"enable" env:"GAME_LOGGER_ENABLE"`
		OutputDir string `yaml:"output_dir" env:"GAME_LOGGER_DIR"`
		Filename  string `yaml:"filename"`
	} `yaml:"game_logger"`
}

func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("failed to read config file", "path", path, "error", err)
		return nil, err
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		slog.Error("failed to parse config file", "path", path, "error", err)
		return nil, err
	}
	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}
	config.fillDefaults()
	return &config, nil
}

func (c *Config) fillDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 4100
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "mafia.db"
	}
	if c.Room.FinalizeDebounceMs == 0 {
		c.Room.FinalizeDebounceMs = 250
	}
	if c.GameLogger.Filename == "" {
		c.GameLogger.Filename = "{room}_{timestamp}"
	}
}

// RoomSettings builds the default per-room settings from the config,
// falling back to the built-in defaults for anything unset.
func (c *Config) RoomSettings() Settings {
	s := DefaultSettings()
	if c.Room.MinPlayers > 0 {
		s.MinPlayers = c.Room.MinPlayers
	}
	if c.Room.MaxPlayers > 0 {
		s.MaxPlayers = c.Room.MaxPlayers
	}
	if c.Room.Timers.NightSeconds > 0 {
		s.Timers = c.Room.Timers
	}
	if c.Room.Roles.Mafia > 0 {
		s.Roles = RoleCounts{
			Mafia:     c.Room.Roles.Mafia,
			Doctor:    c.Room.Roles.Doctor,
			Detective: c.Room.Roles.Detective,
		}
	}
	s.SelfHealAllowed = c.Room.SelfHealAllowed
	s.MafiaMajorityRequired = c.Room.MafiaMajorityRequired
	if tp := TiePolicy(c.Room.TiePolicy); tp == TiePolicyNoLynch || tp == TiePolicyRevote {
		s.TiePolicy = tp
	}
	return s
}
