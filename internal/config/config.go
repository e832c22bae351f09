/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package config loads the user-editable sitebuilder configuration.
// The YAML file lives in the per-user config directory; SB_* environment
// variables are read-only overrides applied at load time. The backend bearer
// token is never written to the file: it lives in the OS keychain.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sitebuilder/internal/backend"
)

// CurrentVersion is written as config_version; bump it on incompatible changes.
const CurrentVersion = 1

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
}

type BackendConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	TLSInsecure bool   `yaml:"tls_insecure"`
}

type EditorConfig struct {
	MaxHistory int    `yaml:"max_history"`
	IDScheme   string `yaml:"id_scheme"` // "counter" | "uuid"
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// AppConfig is the file schema.
type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Backend       BackendConfig `yaml:"backend"`
	Editor        EditorConfig  `yaml:"editor"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: CurrentVersion,
		Backend:       BackendConfig{BaseURL: "http://localhost:8080", TimeoutMs: int(backend.DefaultTimeout / time.Millisecond)},
		Editor:        EditorConfig{MaxHistory: 100, IDScheme: "counter"},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile       = "SB_CONFIG"
	EnvBackendURL       = "SB_BACKEND_URL"
	EnvBackendTimeoutMs = "SB_BACKEND_TIMEOUT_MS"
	EnvBackendTLSInsec  = "SB_TLS_INSECURE"
	EnvBackendToken     = "SB_BACKEND_TOKEN"
	EnvTelemetryOptIn   = "SB_TELEMETRY_OPT_IN"
	EnvMaxHistory       = "SB_MAX_HISTORY"
	EnvIDScheme         = "SB_ID_SCHEME"
	EnvLogLevel         = "SB_LOG_LEVEL"
	EnvLogFormat        = "SB_LOG_FORMAT"
	EnvLogSource        = "SB_LOG_SOURCE"
	EnvLogFile          = "SB_LOG_FILE"
)

// ConfigPath returns the per-user config file path. SB_CONFIG points elsewhere.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p, nil
	}
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "sitebuilder", "config.yaml"), nil
}

// Load reads the config file (if present), applies defaults and environment overrides,
// and returns the backend token from the keychain (or SB_BACKEND_TOKEN) separately.
// A missing file is not an error; a malformed one is.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", &FileError{Path: path, Err: err}
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, "", &FileError{Path: path, Err: err}
	}
	applyEnvOverrides(&cfg)

	tok := strings.TrimSpace(os.Getenv(EnvBackendToken))
	if tok == "" {
		tok, _ = LoadToken()
	}
	return cfg, tok, nil
}

// FileError reports an unreadable or malformed config file.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return "config " + e.Path + ": " + e.Err.Error() }
func (e *FileError) Unwrap() error { return e.Err }

// Save writes the config YAML and, when token is non-empty, stores it in the keychain.
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	cfg.ConfigVersion = CurrentVersion
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		return SaveToken(token)
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	if s := strings.TrimSpace(src.Backend.BaseURL); s != "" {
		dst.Backend.BaseURL = s
	}
	if src.Backend.TimeoutMs > 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	dst.Backend.TLSInsecure = src.Backend.TLSInsecure
	if src.Editor.MaxHistory > 0 {
		dst.Editor.MaxHistory = src.Editor.MaxHistory
	}
	if s := strings.ToLower(strings.TrimSpace(src.Editor.IDScheme)); s != "" {
		dst.Editor.IDScheme = s
	}
	if s := strings.ToLower(strings.TrimSpace(src.Logging.Level)); s != "" {
		dst.Logging.Level = s
	}
	if s := strings.ToLower(strings.TrimSpace(src.Logging.Format)); s != "" {
		dst.Logging.Format = s
	}
	dst.Logging.Source = src.Logging.Source
	if s := strings.TrimSpace(src.Logging.File); s != "" {
		dst.Logging.File = s
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v, ok := lookup(EnvBackendURL); ok {
		cfg.Backend.BaseURL = v
	}
	if v, ok := lookup(EnvBackendTimeoutMs); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Backend.TimeoutMs = n
		}
	}
	if v, ok := lookup(EnvBackendTLSInsec); ok {
		cfg.Backend.TLSInsecure = parseBool(v)
	}
	if v, ok := lookup(EnvTelemetryOptIn); ok {
		cfg.General.TelemetryOptIn = parseBool(v)
	}
	if v, ok := lookup(EnvMaxHistory); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Editor.MaxHistory = n
		}
	}
	if v, ok := lookup(EnvIDScheme); ok {
		cfg.Editor.IDScheme = strings.ToLower(v)
	}
	if v, ok := lookup(EnvLogLevel); ok {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v, ok := lookup(EnvLogFormat); ok {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v, ok := lookup(EnvLogSource); ok {
		cfg.Logging.Source = parseBool(v)
	}
	if v, ok := lookup(EnvLogFile); ok {
		cfg.Logging.File = v
	}
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// envKeys maps dotted config keys to the env var that overrides them.
var envKeys = map[string]string{
	"backend.base_url":         EnvBackendURL,
	"backend.timeout_ms":       EnvBackendTimeoutMs,
	"backend.tls_insecure":     EnvBackendTLSInsec,
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"editor.max_history":       EnvMaxHistory,
	"editor.id_scheme":         EnvIDScheme,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by the environment.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envKeys[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// OverridableKeys returns the dotted keys that have an environment override, sorted.
func OverridableKeys() []string {
	keys := make([]string, 0, len(envKeys))
	for k := range envKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Timeout returns the backend request timeout, falling back to the default.
func (b BackendConfig) Timeout() time.Duration {
	ms := b.TimeoutMs
	if ms <= 0 {
		ms = Defaults().Backend.TimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}
