package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Narrative data configuration
	Narrative NarrativeConfig `json:"narrative"`

	// Game configuration
	Game GameConfig `json:"game"`

	// Save storage configuration
	Storage StorageConfig `json:"storage"`
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	// Server port
	Port string `json:"port" env:"SINERGIA_PORT"`

	// Log level (debug, info, warn, error)
	LogLevel string `json:"log_level" env:"SINERGIA_LOG_LEVEL"`

	// Per-request timeout in seconds
	RequestTimeoutSeconds int `json:"request_timeout_seconds" env:"SINERGIA_REQUEST_TIMEOUT_SECONDS"`

	// Maximum number of live sessions; 0 is unbounded
	MaxSessions int `json:"max_sessions" env:"SINERGIA_MAX_SESSIONS"`

	// Minutes without a request before a session is evicted; 0 keeps sessions forever
	SessionIdleMinutes int `json:"session_idle_minutes" env:"SINERGIA_SESSION_IDLE_MINUTES"`
}

// NarrativeConfig holds where narrative trees come from
type NarrativeConfig struct {
	// Directory holding characters.json and narrative-trees/
	DataDir string `json:"data_dir" env:"SINERGIA_DATA_DIR"`

	// Base URL to fetch trees from; empty reads them from DataDir
	SourceURL string `json:"source_url" env:"SINERGIA_SOURCE_URL"`

	// Suffix appended to a character id to name its tree
	TreeSuffix string `json:"tree_suffix" env:"SINERGIA_TREE_SUFFIX"`

	// Preferred entry node of every tree
	StartNodeID string `json:"start_node_id" env:"SINERGIA_START_NODE_ID"`

	// HTTP fetch timeout in seconds
	FetchTimeoutSeconds int `json:"fetch_timeout_seconds" env:"SINERGIA_FETCH_TIMEOUT_SECONDS"`
}

// GameConfig holds game specific configuration
type GameConfig struct {
	// Order characters are met in
	CharacterSequence []string `json:"character_sequence" env:"SINERGIA_CHARACTER_SEQUENCE" envSeparator:","`

	// Delay before automatic nodes advance, in milliseconds
	AutoAdvanceMS int `json:"auto_advance_ms" env:"SINERGIA_AUTO_ADVANCE_MS"`

	// Duration of the transition between characters, in milliseconds
	TransitionMS int `json:"transition_ms" env:"SINERGIA_TRANSITION_MS"`

	// Number of progress updates during a transition
	TransitionSteps int `json:"transition_steps" env:"SINERGIA_TRANSITION_STEPS"`

	// Number of save slots
	MaxSaveSlots int `json:"max_save_slots" env:"SINERGIA_MAX_SAVE_SLOTS"`

	// Seed for variant selection; 0 seeds from crypto/rand
	RandomSeed uint64 `json:"random_seed" env:"SINERGIA_RANDOM_SEED"`
}

// StorageConfig holds save slot storage configuration
type StorageConfig struct {
	// Storage driver (file, sqlite, memory)
	Driver string `json:"driver" env:"SINERGIA_STORAGE_DRIVER"`

	// Directory for file saves or database path for sqlite
	Path string `json:"path" env:"SINERGIA_STORAGE_PATH"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:                  "8080",
			LogLevel:              "info",
			RequestTimeoutSeconds: 60,
			MaxSessions:           1000,
			SessionIdleMinutes:    30,
		},
		Narrative: NarrativeConfig{
			DataDir:             "./assets/data",
			SourceURL:           "",
			TreeSuffix:          "_dialogue",
			StartNodeID:         "start",
			FetchTimeoutSeconds: 10,
		},
		Game: GameConfig{
			CharacterSequence: []string{
				"carlos", "sara", "ana", "marcos", "rafael",
				"juliana", "roberto", "patricia", "lucas", "fernanda",
			},
			AutoAdvanceMS:   2000,
			TransitionMS:    1500,
			TransitionSteps: 10,
			MaxSaveSlots:    5,
			RandomSeed:      0,
		},
		Storage: StorageConfig{
			Driver: "file",
			Path:   "./data/saves",
		},
	}
}

// AutoAdvance returns the automatic node delay
func (g GameConfig) AutoAdvance() time.Duration {
	return time.Duration(g.AutoAdvanceMS) * time.Millisecond
}

// Transition returns the character transition duration
func (g GameConfig) Transition() time.Duration {
	return time.Duration(g.TransitionMS) * time.Millisecond
}

// RequestTimeout returns the per-request timeout
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// SessionIdle returns how long an unused session is kept
func (s ServerConfig) SessionIdle() time.Duration {
	return time.Duration(s.SessionIdleMinutes) * time.Minute
}

// FetchTimeout returns the HTTP tree fetch timeout
func (n NarrativeConfig) FetchTimeout() time.Duration {
	return time.Duration(n.FetchTimeoutSeconds) * time.Second
}

// TreesDir returns the directory narrative trees are read from
func (n NarrativeConfig) TreesDir() string {
	return filepath.Join(n.DataDir, "narrative-trees")
}

// Validate checks values that would break the game at runtime
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver != "memory" && c.Storage.Path == "" {
		return fmt.Errorf("storage path is required for driver %q", c.Storage.Driver)
	}
	if len(c.Game.CharacterSequence) == 0 {
		return fmt.Errorf("character sequence is empty")
	}
	if c.Game.MaxSaveSlots <= 0 {
		return fmt.Errorf("max save slots must be positive")
	}
	if c.Game.AutoAdvanceMS < 0 || c.Game.TransitionMS < 0 || c.Server.SessionIdleMinutes < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.Server.MaxSessions < 0 {
		return fmt.Errorf("max sessions must not be negative")
	}
	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Server.LogLevel)
	}
	return nil
}

// ParseEnv applies SINERGIA_* environment overrides to cfg
func ParseEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadConfig loads configuration from a file, creating it with defaults when
// missing, then applies environment overrides
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return config, err
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := SaveConfig(config, path); err != nil {
			return config, err
		}
	} else {
		file, err := os.Open(path)
		if err != nil {
			return config, err
		}
		defer file.Close()

		decoder := json.NewDecoder(file)
		if err := decoder.Decode(&config); err != nil {
			return config, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := ParseEnv(&config); err != nil {
		return config, err
	}
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// SaveConfig saves configuration to a file
func SaveConfig(config Config, path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Create or truncate file
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	// Write config to file
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return err
	}

	return nil
}
