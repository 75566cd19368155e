package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bryanchriswhite/Backdrop/internal/logger"
	"github.com/bryanchriswhite/Backdrop/internal/wallpaper"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// CurrentVersion is written to new config files
const CurrentVersion = 1

// ErrNotFound is returned for a wallpaper id that was never committed
var ErrNotFound = errors.New("wallpaper not found")

// Config is the persisted document
type Config struct {
	Version             int                         `json:"version" yaml:"version"`
	OpenWindowOnStartup bool                        `json:"open_window_on_startup" yaml:"open_window_on_startup"`
	ServerPort          int                         `json:"server_port" yaml:"server_port"`
	LogLevel            string                      `json:"log_level" yaml:"log_level"`
	Wallpapers          map[string]wallpaper.Record `json:"wallpapers" yaml:"wallpapers"`
}

// Manager handles configuration and is the baseline store for edit sessions
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/backdrop/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "backdrop", "config.yaml"), nil
}

// NewManager creates a new configuration manager. An empty configFile selects
// the default path; a missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = m.getDefaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Int("wallpapers", len(m.config.Wallpapers)).
		Msg("Config loaded")

	return m, nil
}

func (m *Manager) getDefaults() *Config {
	return &Config{
		Version:             CurrentVersion,
		OpenWindowOnStartup: true,
		ServerPort:          8080,
		LogLevel:            "info",
		Wallpapers:          map[string]wallpaper.Record{},
	}
}

// load reads the configuration from disk
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Wallpapers == nil {
		cfg.Wallpapers = map[string]wallpaper.Record{}
	}
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.ServerPort == 0 {
		cfg.ServerPort = 8080
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return m.getDefaults()
	}

	cfg := *m.config
	cfg.Wallpapers = make(map[string]wallpaper.Record, len(m.config.Wallpapers))
	for id, r := range m.config.Wallpapers {
		cfg.Wallpapers[id] = r.Clone()
	}
	return &cfg
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveLocked()
}

// saveLocked writes the config; the caller holds at least a read lock
func (m *Manager) saveLocked() error {
	cfg := m.config
	if cfg == nil {
		cfg = m.getDefaults()
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Int("wallpapers", len(cfg.Wallpapers)).
		Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Msg("Failed to marshal config")
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write then rename so a crash never leaves a truncated file
	tmp := m.configPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", tmp).
			Msg("Failed to write config")
		return err
	}
	if err := os.Rename(tmp, m.configPath); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// update applies fn to the config and saves it, restoring the previous
// document if the write fails
func (m *Manager) update(fn func(cfg *Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config == nil {
		m.config = m.getDefaults()
	}
	prev := *m.config
	prev.Wallpapers = make(map[string]wallpaper.Record, len(m.config.Wallpapers))
	for id, r := range m.config.Wallpapers {
		prev.Wallpapers[id] = r
	}

	fn(m.config)
	if err := m.saveLocked(); err != nil {
		m.config = &prev
		return err
	}
	return nil
}

// LoadBaseline returns the committed record for id, or nil if there is none
func (m *Manager) LoadBaseline(id string) (*wallpaper.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return nil, nil
	}
	r, ok := m.config.Wallpapers[id]
	if !ok {
		return nil, nil
	}
	c := r.Clone()
	return &c, nil
}

// Commit stores record as the baseline for id
func (m *Manager) Commit(id string, record wallpaper.Record) error {
	if id == "" {
		return fmt.Errorf("wallpaper id is required")
	}
	err := m.update(func(cfg *Config) {
		cfg.Wallpapers[id] = record.Clone()
	})
	if err != nil {
		return fmt.Errorf("failed to commit wallpaper %s: %w", id, err)
	}
	logger.WithRecord("config", id).Info().Str("name", record.Name).Msg("Wallpaper committed")
	return nil
}

// Remove deletes the record for id
func (m *Manager) Remove(id string) error {
	m.mu.RLock()
	_, ok := m.config.Wallpapers[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := m.update(func(cfg *Config) { delete(cfg.Wallpapers, id) }); err != nil {
		return fmt.Errorf("failed to remove wallpaper %s: %w", id, err)
	}
	logger.WithRecord("config", id).Info().Msg("Wallpaper removed")
	return nil
}

// Entry is a committed record with its id
type Entry struct {
	ID     string           `json:"id"`
	Record wallpaper.Record `json:"record"`
}

// List returns every committed record ordered by name, then id
func (m *Manager) List() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.config.Wallpapers))
	for id, r := range m.config.Wallpapers {
		out = append(out, Entry{ID: id, Record: r.Clone()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Record.Name != out[j].Record.Name {
			return out[i].Record.Name < out[j].Record.Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Records returns every committed record keyed by id
func (m *Manager) Records() map[string]wallpaper.Record {
	return m.Get().Wallpapers
}

// SetPort sets the server port
func (m *Manager) SetPort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}
	return m.update(func(cfg *Config) { cfg.ServerPort = port })
}

// GetPort gets the server port
func (m *Manager) GetPort() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.ServerPort
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) error {
	return m.update(func(cfg *Config) { cfg.LogLevel = level })
}

// GetLogLevel gets the log level
func (m *Manager) GetLogLevel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.LogLevel
}

// SetOpenWindowOnStartup toggles whether the editor opens when serve starts
func (m *Manager) SetOpenWindowOnStartup(open bool) error {
	return m.update(func(cfg *Config) { cfg.OpenWindowOnStartup = open })
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}

// GetViper returns a viper instance reading the config file, for dotted key
// lookups such as "wallpapers.<id>.opacity"
func (m *Manager) GetViper() (*viper.Viper, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v := viper.New()
	v.SetConfigFile(m.configPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", m.configPath, err)
	}
	return v, nil
}
