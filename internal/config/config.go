// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/secchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete secchat configuration.
type Config struct {
	Version string `toml:"version"`

	// DataDir holds records, key files and logs. Default: ~/.secchat
	DataDir string `toml:"data_dir"`

	Keystore  KeystoreConfig  `toml:"keystore"`
	Storage   StorageConfig   `toml:"storage"`
	Local     LocalConfig     `toml:"local"`
	Segmenter SegmenterConfig `toml:"segmenter"`
	Log       LogConfig       `toml:"log"`
}

// KeystoreConfig selects where the conversation key lives.
type KeystoreConfig struct {
	// Backend is auto, os, file or memory.
	Backend string `toml:"backend"`
	// Service and Account name the entry in the platform credential store.
	Service string `toml:"service"`
	Account string `toml:"account"`
	// Dir holds key files for the file backend. Default: <data_dir>/keys
	Dir string `toml:"dir,omitempty"`
}

// StorageConfig selects the record backend and record names.
type StorageConfig struct {
	// Backend is badger, sqlite or file.
	Backend string `toml:"backend"`
	// Path overrides the backend's default location inside data_dir.
	Path      string `toml:"path,omitempty"`
	RecordKey string `toml:"record_key"`
	LegacyKey string `toml:"legacy_key"`
}

// LocalConfig configures the local model server.
type LocalConfig struct {
	OllamaURL   string `toml:"ollama_url"`
	OllamaModel string `toml:"model"`
	TimeoutSecs int    `toml:"timeout_secs"`
}

// SegmenterConfig tunes the reasoning/answer heuristics, in runes.
type SegmenterConfig struct {
	MinFallbackLength  int `toml:"min_fallback_length"`
	MinReasoningLength int `toml:"min_reasoning_length"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is trace, debug, info, warn or error.
	Level string `toml:"level"`
	// Format is auto, console or json.
	Format string `toml:"format"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	dataDir, err := DefaultDataDir()
	if err != nil {
		dataDir = ".secchat"
	}
	return &Config{
		Version: "1",
		DataDir: dataDir,
		Keystore: KeystoreConfig{
			Backend: "auto",
			Service: "secchat",
			Account: "conversation-encryption-key",
		},
		Storage: StorageConfig{
			Backend:   "badger",
			RecordKey: "conversations_encrypted",
			LegacyKey: "conversations",
		},
		Local: LocalConfig{
			OllamaURL:   "http://127.0.0.1:11434",
			OllamaModel: "qwen2.5:7b",
			TimeoutSecs: 300,
		},
		Segmenter: SegmenterConfig{
			MinFallbackLength:  400,
			MinReasoningLength: 100,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "auto",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// DefaultDataDir returns ~/.secchat.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".secchat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := DefaultDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// KeyDir returns the directory for file-backed keys.
func (c *Config) KeyDir() string {
	if c.Keystore.Dir != "" {
		return c.Keystore.Dir
	}
	return filepath.Join(c.DataDir, "keys")
}

// Timeout returns the model server request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Local.TimeoutSecs) * time.Second
}

// ensureSecurePermissions tightens a config file to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads ~/.secchat/config.toml. A missing file yields the defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from path with full validation. A
// missing file yields the defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Undecoded keys are rejected so
// typos do not silently fall back to defaults.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// fillDefaults restores defaults for fields a config file blanked out.
func (c *Config) fillDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Keystore.Backend == "" {
		c.Keystore.Backend = d.Keystore.Backend
	}
	if c.Keystore.Service == "" {
		c.Keystore.Service = d.Keystore.Service
	}
	if c.Keystore.Account == "" {
		c.Keystore.Account = d.Keystore.Account
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Storage.RecordKey == "" {
		c.Storage.RecordKey = d.Storage.RecordKey
	}
	if c.Storage.LegacyKey == "" {
		c.Storage.LegacyKey = d.Storage.LegacyKey
	}
	if c.Local.OllamaURL == "" {
		c.Local.OllamaURL = d.Local.OllamaURL
	}
	if c.Local.OllamaModel == "" {
		c.Local.OllamaModel = d.Local.OllamaModel
	}
	if c.Local.TimeoutSecs == 0 {
		c.Local.TimeoutSecs = d.Local.TimeoutSecs
	}
	if c.Segmenter.MinFallbackLength == 0 {
		c.Segmenter.MinFallbackLength = d.Segmenter.MinFallbackLength
	}
	if c.Segmenter.MinReasoningLength == 0 {
		c.Segmenter.MinReasoningLength = d.Segmenter.MinReasoningLength
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to the default config path.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg to path atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# secchat configuration file")
	fmt.Fprintln(&buf, "# Generated by secchat - edit with care")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
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
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return true
		}
	}
	return false
}

// Validate validates the configuration and returns ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if !oneOf(c.Keystore.Backend, "auto", "os", "file", "memory") {
		add("keystore.backend", "invalid backend '%s', must be one of: auto, os, file, memory", c.Keystore.Backend)
	}
	if strings.TrimSpace(c.Keystore.Account) == "" {
		add("keystore.account", "must not be empty")
	}

	if !oneOf(c.Storage.Backend, "badger", "sqlite", "file") {
		add("storage.backend", "invalid backend '%s', must be one of: badger, sqlite, file", c.Storage.Backend)
	}
	if c.Storage.RecordKey == c.Storage.LegacyKey {
		add("storage.legacy_key", "must differ from storage.record_key")
	}

	// The model server must stay on this machine; conversations are sent to it in clear.
	if err := validateLoopbackURL(c.Local.OllamaURL); err != nil {
		add("local.ollama_url", "%v", err)
	}
	if c.Local.TimeoutSecs <= 0 {
		add("local.timeout_secs", "must be positive, got %d", c.Local.TimeoutSecs)
	}

	if c.Segmenter.MinFallbackLength < 0 {
		add("segmenter.min_fallback_length", "must not be negative")
	}
	if c.Segmenter.MinReasoningLength < 0 {
		add("segmenter.min_reasoning_length", "must not be negative")
	}
	if c.Segmenter.MinReasoningLength >= c.Segmenter.MinFallbackLength && c.Segmenter.MinFallbackLength > 0 {
		add("segmenter.min_reasoning_length", "must be less than min_fallback_length")
	}

	if !oneOf(c.Log.Level, "trace", "debug", "info", "warn", "error", "disabled") {
		add("log.level", "invalid level '%s'", c.Log.Level)
	}
	if !oneOf(c.Log.Format, "auto", "console", "json") {
		add("log.format", "invalid format '%s', must be one of: auto, console, json", c.Log.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// validateLoopbackURL accepts http(s) URLs whose host is a loopback address.
func validateLoopbackURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got '%s'", u.Scheme)
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("host '%s' is not a loopback address", host)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - SECCHAT_DATA_DIR: overrides data_dir
//   - SECCHAT_KEYSTORE: overrides keystore.backend
//   - SECCHAT_STORAGE: overrides storage.backend
//   - SECCHAT_OLLAMA_URL: overrides local.ollama_url
//   - SECCHAT_MODEL: overrides local.model
//   - SECCHAT_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if dir := os.Getenv("SECCHAT_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if backend := os.Getenv("SECCHAT_KEYSTORE"); backend != "" {
		c.Keystore.Backend = backend
	}
	if backend := os.Getenv("SECCHAT_STORAGE"); backend != "" {
		c.Storage.Backend = backend
	}
	if u := os.Getenv("SECCHAT_OLLAMA_URL"); u != "" {
		c.Local.OllamaURL = u
	}
	if model := os.Getenv("SECCHAT_MODEL"); model != "" {
		c.Local.OllamaModel = model
	}
	if level := os.Getenv("SECCHAT_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Keys returns all configuration keys in dot notation.
func Keys() []string {
	return []string{
		"version",
		"data_dir",
		"keystore.backend",
		"keystore.service",
		"keystore.account",
		"keystore.dir",
		"storage.backend",
		"storage.path",
		"storage.record_key",
		"storage.legacy_key",
		"local.ollama_url",
		"local.model",
		"local.timeout_secs",
		"segmenter.min_fallback_length",
		"segmenter.min_reasoning_length",
		"log.level",
		"log.format",
	}
}

// Get retrieves a configuration value using dot notation (e.g., "local.model").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
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

// lookup resolves a dotted key by TOML tag.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("'%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("toml"), ",")[0]
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
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
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %v", err)
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
