package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/WinPeek/internal/capture"
	"github.com/bryanchriswhite/WinPeek/internal/logger"
)

// Config is the on-disk configuration
type Config struct {
	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogPretty bool   `json:"log_pretty" yaml:"log_pretty"`
	LogFile   string `json:"log_file" yaml:"log_file"`

	Capture   CaptureConfig   `json:"capture" yaml:"capture"`
	Thumbnail ThumbnailConfig `json:"thumbnail" yaml:"thumbnail"`

	// UpdateBuffer is the capacity of the worker's update channel
	UpdateBuffer int `json:"update_buffer" yaml:"update_buffer"`
	// SettleTimeout is how long one-shot commands wait for the window list
	SettleTimeout time.Duration `json:"settle_timeout" yaml:"settle_timeout"`

	// CapturePatterns select the windows `watch` captures when no pattern
	// is given on the command line
	CapturePatterns []string `json:"capture_patterns" yaml:"capture_patterns"`
}

type CaptureConfig struct {
	PaintCursors bool `json:"paint_cursors" yaml:"paint_cursors"`
	// PreferDmabuf set to false negotiates shared memory before dmabuf
	PreferDmabuf   bool `json:"prefer_dmabuf" yaml:"prefer_dmabuf"`
	MaxFreeBuffers int  `json:"max_free_buffers" yaml:"max_free_buffers"`
}

// Options converts the capture section into session options
func (c CaptureConfig) Options() capture.Options {
	return capture.Options{PaintCursors: c.PaintCursors, ShmFirst: !c.PreferDmabuf}
}

type ThumbnailConfig struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Defaults returns the configuration written on first run
func Defaults() *Config {
	return &Config{
		LogLevel:  "info",
		LogPretty: true,
		Capture: CaptureConfig{
			PaintCursors:   false,
			PreferDmabuf:   true,
			MaxFreeBuffers: 2,
		},
		Thumbnail: ThumbnailConfig{
			Width:  320,
			Height: 180,
		},
		UpdateBuffer:    20,
		SettleTimeout:   500 * time.Millisecond,
		CapturePatterns: []string{},
	}
}

type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns ~/.config/winpeek/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "winpeek", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when empty, creating it
// with defaults if it does not exist
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	m := &Manager{
		configPath: path,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Int("capture_patterns", len(m.config.CapturePatterns)).
		Msg("Config loaded")

	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	// missing keys keep their defaults
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.CapturePatterns == nil {
		cfg.CapturePatterns = []string{}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", c.LogLevel)
	}
	if c.Capture.MaxFreeBuffers < 1 {
		return fmt.Errorf("capture.max_free_buffers must be at least 1")
	}
	if c.UpdateBuffer < 1 {
		return fmt.Errorf("update_buffer must be at least 1")
	}
	if c.Thumbnail.Width < 0 || c.Thumbnail.Height < 0 {
		return fmt.Errorf("thumbnail size must not be negative")
	}
	if c.SettleTimeout < 0 {
		return fmt.Errorf("settle_timeout must not be negative")
	}
	return nil
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	cfg.CapturePatterns = append([]string{}, m.config.CapturePatterns...)
	return &cfg
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Update validates and replaces the entire configuration
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// AddCapturePattern adds a window pattern; duplicates are ignored
func (m *Manager) AddCapturePattern(pattern string) error {
	m.mu.Lock()
	for _, p := range m.config.CapturePatterns {
		if p == pattern {
			m.mu.Unlock()
			return nil
		}
	}
	m.config.CapturePatterns = append(m.config.CapturePatterns, pattern)
	m.mu.Unlock()
	return m.Save()
}

// RemoveCapturePattern removes a window pattern
func (m *Manager) RemoveCapturePattern(pattern string) error {
	m.mu.Lock()
	filtered := make([]string, 0, len(m.config.CapturePatterns))
	for _, p := range m.config.CapturePatterns {
		if p != pattern {
			filtered = append(filtered, p)
		}
	}
	m.config.CapturePatterns = filtered
	m.mu.Unlock()
	return m.Save()
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
