// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for weighdesk.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.weighdesk/config.toml
//   - ~/.weighdesk/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/weighdesk-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete weighdesk configuration.
type Config struct {
	// Server connection
	Server ServerConfig `toml:"server" json:"server"`

	// Session expiration monitoring
	Session SessionConfig `toml:"session" json:"session"`

	// Login protections
	Security SecurityConfig `toml:"security" json:"security"`

	// Session audit trail
	Audit AuditConfig `toml:"audit" json:"audit"`

	// Application log
	Log LogConfig `toml:"log" json:"log"`

	// UI preferences
	UI UIConfig `toml:"ui" json:"ui"`
}

// ServerConfig contains weighbridge service settings.
type ServerConfig struct {
	// BaseURL is the service root, e.g. https://scale.example.com/api
	BaseURL string `toml:"base_url" json:"base_url"`
	// TimeoutSecs bounds each request
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// CAFile is an optional PEM bundle trusted in addition to the system roots
	CAFile string `toml:"ca_file" json:"ca_file"`
}

// SessionConfig contains expiration warning settings.
type SessionConfig struct {
	// WarningWindowSecs is how long before expiry the operator is asked to extend
	WarningWindowSecs int `toml:"warning_window_secs" json:"warning_window_secs"`
	// MinFireDelayMs is the delay used when the warning time has already passed
	MinFireDelayMs int `toml:"min_fire_delay_ms" json:"min_fire_delay_ms"`
}

// SecurityConfig contains client-side login protections.
type SecurityConfig struct {
	// MaxLoginAttempts is the number of rejected logins before lockout (0 = off)
	MaxLoginAttempts int `toml:"max_login_attempts" json:"max_login_attempts"`
	// LockoutMinutes is how long a lockout lasts
	LockoutMinutes int `toml:"lockout_minutes" json:"lockout_minutes"`
	// AuthRatePerSec throttles login and refresh requests
	AuthRatePerSec float64 `toml:"auth_rate_per_sec" json:"auth_rate_per_sec"`
	// AuthBurst is the burst allowance of the throttle
	AuthBurst int `toml:"auth_burst" json:"auth_burst"`
}

// AuditConfig contains audit trail settings.
type AuditConfig struct {
	// Enabled turns the SQLite audit trail on
	Enabled bool `toml:"enabled" json:"enabled"`
	// Path is the database file (empty = ~/.weighdesk/audit.db)
	Path string `toml:"path" json:"path"`
}

// LogConfig contains application log settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `toml:"level" json:"level"`
	// Format is "console" or "json"
	Format string `toml:"format" json:"format"`
	// Path is the log file (empty = ~/.weighdesk/weighdesk.log)
	Path string `toml:"path" json:"path"`
}

// UIConfig contains terminal UI preferences.
type UIConfig struct {
	// Theme is "dark" or "light"
	Theme string `toml:"theme" json:"theme"`
	// LastUser prefills the login form
	LastUser string `toml:"last_user" json:"last_user"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	DefaultTimeoutSecs       = 30
	DefaultWarningWindowSecs = 120
	DefaultMinFireDelayMs    = 1000
	DefaultMaxLoginAttempts  = 5
	DefaultLockoutMinutes    = 15
	DefaultAuthRatePerSec    = 2.0
	DefaultAuthBurst         = 5
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "console"
	DefaultTheme             = "dark"
)

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			TimeoutSecs: DefaultTimeoutSecs,
		},
		Session: SessionConfig{
			WarningWindowSecs: DefaultWarningWindowSecs,
			MinFireDelayMs:    DefaultMinFireDelayMs,
		},
		Security: SecurityConfig{
			MaxLoginAttempts: DefaultMaxLoginAttempts,
			LockoutMinutes:   DefaultLockoutMinutes,
			AuthRatePerSec:   DefaultAuthRatePerSec,
			AuthBurst:        DefaultAuthBurst,
		},
		Audit: AuditConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		UI: UIConfig{
			Theme: DefaultTheme,
		},
	}
}

// WarningWindow returns the warning window as a duration.
func (c *Config) WarningWindow() time.Duration {
	return time.Duration(c.Session.WarningWindowSecs) * time.Second
}

// MinFireDelay returns the minimal fire delay as a duration.
func (c *Config) MinFireDelay() time.Duration {
	return time.Duration(c.Session.MinFireDelayMs) * time.Millisecond
}

// RequestTimeout returns the per-request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSecs) * time.Second
}

// LockoutDuration returns the lockout duration.
func (c *Config) LockoutDuration() time.Duration {
	return time.Duration(c.Security.LockoutMinutes) * time.Minute
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the weighdesk configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".weighdesk"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ActivePath returns the config file Load would read, or the TOML path if
// none exists yet.
func ActivePath() (string, error) {
	tomlPath, err := ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	jsonPath, err := ConfigPathJSON()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, nil
	}
	return tomlPath, nil
}

// AuditPath returns the audit database path, defaulting into ConfigDir.
func (c *Config) AuditPath() (string, error) {
	if c.Audit.Path != "" {
		return c.Audit.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "audit.db"), nil
}

// LogPath returns the log file path, defaulting into ConfigDir.
func (c *Config) LogPath() (string, error) {
	if c.Log.Path != "" {
		return c.Log.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "weighdesk.log"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions checks and fixes permissions on config files.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	for _, candidate := range []struct {
		path func() (string, error)
		load func(*Config, string) error
		kind string
	}{
		{ConfigPathTOML, LoadTOML, "TOML"},
		{ConfigPathJSON, LoadJSON, "JSON"},
	} {
		path, err := candidate.path()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		if err := candidate.load(cfg, path); err != nil {
			loadErr = fmt.Errorf("failed to load %s config: %w", candidate.kind, err)
			cfg = Default()
			continue
		}
		return finish(cfg)
	}

	cfg, err := finish(cfg)
	if err != nil {
		return nil, err
	}
	// Defaults, with any load error for informational purposes
	return cfg, loadErr
}

// finish applies env overrides and defaults, then validates.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes path into cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes path into cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return finish(cfg)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf strings.Builder
	buf.WriteString("# weighdesk configuration file\n")
	buf.WriteString("# Generated by weighdesk - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, []byte(buf.String()), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Update applies fn to the settings stored in the file at path and writes
// them back in the same format. Environment overrides are not read, so
// they are never persisted. A missing file starts from defaults.
func Update(path string, fn func(*Config) error) error {
	cfg := Default()
	isJSON := strings.HasSuffix(path, ".json")
	if _, err := os.Stat(path); err == nil {
		load := LoadTOML
		if isJSON {
			load = LoadJSON
		}
		if err := load(cfg, path); err != nil {
			return err
		}
	}
	cfg.SetDefaults()

	if err := fn(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if isJSON {
		return SaveJSON(cfg, path)
	}
	return SaveTOML(cfg, path)
}

// SaveJSON saves the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
// An empty server.base_url is allowed; commands that need it check for it.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Server.BaseURL != "" {
		u, err := url.Parse(c.Server.BaseURL)
		switch {
		case err != nil:
			errs = append(errs, ValidationError{"server.base_url", "invalid URL: " + err.Error()})
		case u.Scheme != "http" && u.Scheme != "https":
			errs = append(errs, ValidationError{"server.base_url", "scheme must be http or https"})
		case u.Host == "":
			errs = append(errs, ValidationError{"server.base_url", "missing host"})
		}
	}
	if c.Server.TimeoutSecs < 1 || c.Server.TimeoutSecs > 300 {
		errs = append(errs, ValidationError{"server.timeout_secs", "must be between 1 and 300"})
	}
	if c.Server.CAFile != "" {
		if _, err := os.Stat(c.Server.CAFile); err != nil {
			errs = append(errs, ValidationError{"server.ca_file", "not readable: " + err.Error()})
		}
	}

	if c.Session.WarningWindowSecs < 0 || c.Session.WarningWindowSecs > 3600 {
		errs = append(errs, ValidationError{"session.warning_window_secs", "must be between 0 and 3600"})
	}
	if c.Session.MinFireDelayMs < 1 || c.Session.MinFireDelayMs > 60000 {
		errs = append(errs, ValidationError{"session.min_fire_delay_ms", "must be between 1 and 60000"})
	}

	if c.Security.MaxLoginAttempts < 0 || c.Security.MaxLoginAttempts > 100 {
		errs = append(errs, ValidationError{"security.max_login_attempts", "must be between 0 and 100"})
	}
	if c.Security.LockoutMinutes < 1 || c.Security.LockoutMinutes > 1440 {
		errs = append(errs, ValidationError{"security.lockout_minutes", "must be between 1 and 1440"})
	}
	if c.Security.AuthRatePerSec <= 0 {
		errs = append(errs, ValidationError{"security.auth_rate_per_sec", "must be positive"})
	}
	if c.Security.AuthBurst < 1 {
		errs = append(errs, ValidationError{"security.auth_burst", "must be at least 1"})
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{"log.level", "must be one of debug, info, warn, error"})
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		errs = append(errs, ValidationError{"log.format", "must be console or json"})
	}

	switch c.UI.Theme {
	case "dark", "light":
	default:
		errs = append(errs, ValidationError{"ui.theme", "must be dark or light"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values that have a meaningful default.
func (c *Config) SetDefaults() {
	c.Server.BaseURL = strings.TrimSpace(c.Server.BaseURL)
	if c.Server.TimeoutSecs == 0 {
		c.Server.TimeoutSecs = DefaultTimeoutSecs
	}
	if c.Session.MinFireDelayMs == 0 {
		c.Session.MinFireDelayMs = DefaultMinFireDelayMs
	}
	if c.Security.LockoutMinutes == 0 {
		c.Security.LockoutMinutes = DefaultLockoutMinutes
	}
	if c.Security.AuthRatePerSec == 0 {
		c.Security.AuthRatePerSec = DefaultAuthRatePerSec
	}
	if c.Security.AuthBurst == 0 {
		c.Security.AuthBurst = DefaultAuthBurst
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.UI.Theme == "" {
		c.UI.Theme = DefaultTheme
	}
}

// ApplyEnvOverrides applies WEIGHDESK_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	// WEIGHDESK_SERVER_URL
	if u := os.Getenv("WEIGHDESK_SERVER_URL"); u != "" {
		c.Server.BaseURL = u
	}

	// WEIGHDESK_WARNING_WINDOW_SECS
	if v := os.Getenv("WEIGHDESK_WARNING_WINDOW_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Session.WarningWindowSecs = secs
		}
	}

	// WEIGHDESK_LOG_LEVEL
	if level := os.Getenv("WEIGHDESK_LOG_LEVEL"); level != "" {
		c.Log.Level = strings.ToLower(level)
	}

	// WEIGHDESK_USER
	if user := os.Getenv("WEIGHDESK_USER"); user != "" {
		c.UI.LastUser = user
	}

	// WEIGHDESK_CA_FILE
	if ca := os.Getenv("WEIGHDESK_CA_FILE"); ca != "" {
		c.Server.CAFile = ca
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "session.warning_window_secs").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "server.base_url").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup resolves a dotted key to a leaf field.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"server.base_url",
		"server.timeout_secs",
		"server.ca_file",
		"session.warning_window_secs",
		"session.min_fire_delay_ms",
		"security.max_login_attempts",
		"security.lockout_minutes",
		"security.auth_rate_per_sec",
		"security.auth_burst",
		"audit.enabled",
		"audit.path",
		"log.level",
		"log.format",
		"log.path",
		"ui.theme",
		"ui.last_user",
	}
}

// Clone returns a copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the config as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
