// Package config loads engine settings from ~/.config/strop/config.json
// with STROP_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/justyntemme/strop/internal/conflict"
	"github.com/justyntemme/strop/internal/logging"
	"github.com/justyntemme/strop/internal/search"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all user-configurable settings.
type Config struct {
	Scanner    ScannerConfig    `mapstructure:"scanner"`
	Operations OperationsConfig `mapstructure:"operations"`
	Watcher    WatcherConfig    `mapstructure:"watcher"`
	Session    SessionConfig    `mapstructure:"session"`
	Search     SearchConfig     `mapstructure:"search"`
	Store      StoreConfig      `mapstructure:"store"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// ScannerConfig bounds directory scanning.
type ScannerConfig struct {
	Workers int `mapstructure:"workers"`
}

// OperationsConfig tunes the operation queue.
type OperationsConfig struct {
	MaxActive        int           `mapstructure:"maxActive"`
	ChunkSize        int           `mapstructure:"chunkSize"` // bytes per copy read
	MaxRenameProbes  int           `mapstructure:"maxRenameProbes"`
	DefaultPolicy    string        `mapstructure:"defaultPolicy"` // ask | overwrite | skip | rename
	ProgressInterval time.Duration `mapstructure:"progressInterval"`
}

// WatcherConfig tunes live updates.
type WatcherConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Debounce     time.Duration `mapstructure:"debounce"`
	PollInterval time.Duration `mapstructure:"pollInterval"` // 0 disables the polling fallback
	MaxWatches   int           `mapstructure:"maxWatches"`   // 0 means unlimited
}

// SessionConfig holds navigation settings.
type SessionConfig struct {
	MaxHistory int    `mapstructure:"maxHistory"`
	StartPath  string `mapstructure:"startPath"` // empty restores the last path, then home
	ShowHidden bool   `mapstructure:"showHidden"`
	MaxRecent  int    `mapstructure:"maxRecent"`
}

// SearchConfig tunes recursive find.
type SearchConfig struct {
	Tool  string `mapstructure:"tool"`  // builtin | ripgrep | ugrep | auto
	Depth int    `mapstructure:"depth"` // default depth when a query sets none
}

// StoreConfig locates the database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Logging converts to the logging package's config.
func (c LoggingConfig) Logging() logging.Config {
	return logging.Config{
		Level:      c.Level,
		Format:     c.Format,
		File:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
	}
}

// Policy returns the parsed default conflict policy.
func (c OperationsConfig) Policy() conflict.Policy {
	p, err := conflict.ParsePolicy(c.DefaultPolicy)
	if err != nil {
		return conflict.AlwaysAsk
	}
	return p
}

// Dir returns ~/.config/strop, the same on every platform.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "strop")
}

// DefaultPath returns ~/.config/strop/config.json.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.json")
}

// defaults is the single list of settings and their default values. Keys
// are what viper, the JSON file and STROP_* variables use.
func defaults() map[string]any {
	return map[string]any{
		"scanner.workers": 4,

		"operations.maxActive":        2,
		"operations.chunkSize":        1 << 20,
		"operations.maxRenameProbes":  conflict.DefaultMaxProbes,
		"operations.defaultPolicy":    conflict.AlwaysAsk.String(),
		"operations.progressInterval": "100ms",

		"watcher.enabled":      true,
		"watcher.debounce":     "200ms",
		"watcher.pollInterval": "2s",
		"watcher.maxWatches":   4096,

		"session.maxHistory": 50,
		"session.startPath":  "",
		"session.showHidden": false,
		"session.maxRecent":  20,

		"search.tool":  "auto",
		"search.depth": search.DefaultDepth,

		"store.path": filepath.Join(Dir(), "strop.db"),

		"logging.level":      "info",
		"logging.format":     "console",
		"logging.file":       "",
		"logging.maxSizeMB":  10,
		"logging.maxBackups": 3,

		"metrics.addr": "",
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("STROP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the built-in configuration, environment overrides
// included.
func Default() Config {
	cfg, err := decode(newViper())
	if err != nil {
		// Only reachable through a bad STROP_* variable.
		cfg, _ = decode(bare())
	}
	return cfg
}

func bare() *viper.Viper {
	v := viper.New()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}
	return v
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}
	check(c.Scanner.Workers >= 1, "scanner.workers must be at least 1, got %d", c.Scanner.Workers)
	check(c.Operations.MaxActive >= 1, "operations.maxActive must be at least 1, got %d", c.Operations.MaxActive)
	check(c.Operations.ChunkSize >= 512, "operations.chunkSize must be at least 512, got %d", c.Operations.ChunkSize)
	check(c.Operations.MaxRenameProbes >= 1, "operations.maxRenameProbes must be at least 1, got %d", c.Operations.MaxRenameProbes)
	_, perr := conflict.ParsePolicy(c.Operations.DefaultPolicy)
	check(perr == nil, "operations.defaultPolicy %q", c.Operations.DefaultPolicy)
	check(c.Operations.ProgressInterval >= 0, "operations.progressInterval is negative")
	check(c.Watcher.Debounce > 0, "watcher.debounce must be positive")
	check(c.Watcher.PollInterval >= 0, "watcher.pollInterval is negative")
	check(c.Watcher.MaxWatches >= 0, "watcher.maxWatches is negative")
	check(c.Session.MaxHistory >= 1, "session.maxHistory must be at least 1, got %d", c.Session.MaxHistory)
	check(c.Session.MaxRecent >= 1, "session.maxRecent must be at least 1, got %d", c.Session.MaxRecent)
	_, terr := search.ParseTool(c.Search.Tool)
	check(terr == nil, "search.tool %q", c.Search.Tool)
	check(c.Search.Depth >= 1, "search.depth must be at least 1, got %d", c.Search.Depth)
	var lvl zapcore.Level
	check(lvl.UnmarshalText([]byte(c.Logging.Level)) == nil, "logging.level %q", c.Logging.Level)
	check(c.Logging.Format == "console" || c.Logging.Format == "json", "logging.format %q", c.Logging.Format)
	return errors.Join(errs...)
}

// Manager handles loading, saving, and accessing configuration.
type Manager struct {
	mu       sync.RWMutex
	v        *viper.Viper
	config   Config
	path     string
	parseErr error // why the file was ignored, if it was
}

// NewManager returns a manager holding the defaults.
func NewManager() *Manager {
	return &Manager{v: newViper(), config: Default()}
}

// Load reads path, or DefaultPath when empty. A missing file is created
// with defaults. A file that fails to parse or validate is ignored: the
// defaults are used and the problem is kept for ParseError.
func (m *Manager) Load(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	log := logging.Named("config")

	m.mu.Lock()
	defer m.mu.Unlock()
	m.path = path
	m.parseErr = nil
	m.v = newViper()
	m.v.SetConfigFile(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Info("creating default config", zap.String("path", path))
		if err := m.v.WriteConfigAs(path); err != nil {
			return fmt.Errorf("config: write defaults: %w", err)
		}
		m.config = Default()
		return nil
	}

	if err := m.v.ReadInConfig(); err != nil {
		log.Warn("config parse error, using defaults", zap.String("path", path), zap.Error(err))
		m.parseErr = fmt.Errorf("%w: %v", ErrInvalid, err)
		m.v = newViper()
		m.v.SetConfigFile(path)
		m.config = Default()
		return nil
	}

	cfg, err := decode(m.v)
	if err != nil {
		log.Warn("config rejected, using defaults", zap.String("path", path), zap.Error(err))
		m.parseErr = err
		m.config = Default()
		return nil
	}

	log.Debug("config loaded", zap.String("path", path))
	m.config = cfg
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Path returns the file Load used.
func (m *Manager) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.path
}

// ParseError returns why the config file was ignored, or nil.
func (m *Manager) ParseError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.parseErr
}

// Override changes a setting for this process only, as command-line flags
// do. The new value must validate.
func (m *Manager) Override(key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setUnlocked(key, value)
}

// Set changes a setting and writes the file.
func (m *Manager) Set(key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.setUnlocked(key, value); err != nil {
		return err
	}
	if m.path == "" {
		return nil
	}
	if err := m.v.WriteConfigAs(m.path); err != nil {
		return fmt.Errorf("config: save: %w", err)
	}
	return nil
}

func (m *Manager) setUnlocked(key string, value any) error {
	if !knownKey(key) {
		return fmt.Errorf("%w: unknown setting %q", ErrInvalid, key)
	}
	prev := m.v.Get(key)
	m.v.Set(key, value)
	cfg, err := decode(m.v)
	if err != nil {
		m.v.Set(key, prev)
		return err
	}
	m.config = cfg
	return nil
}

// knownKey matches keys case-insensitively, as viper stores them.
func knownKey(key string) bool {
	for k := range defaults() {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// Keys lists every setting name, for help output.
func Keys() []string {
	d := defaults()
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
