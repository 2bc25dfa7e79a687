/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	applog "tweegee/internal/log"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type EngineConfig struct {
	DefaultDelayText string `yaml:"default_delay_text"`
	MaxStatements    int    `yaml:"max_statements"`
}

type ParserConfig struct {
	StartPassage string `yaml:"start_passage"`
}

type IndexConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Engine        EngineConfig  `yaml:"engine"`
	Parser        ParserConfig  `yaml:"parser"`
	Index         IndexConfig   `yaml:"index"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Engine:        EngineConfig{DefaultDelayText: "...", MaxStatements: 100},
		Parser:        ParserConfig{StartPassage: "Start"},
		Index:         IndexConfig{Path: "tweegee.sqlite"},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath       = "TWEEGEE_CONFIG"
	EnvDefaultDelayText = "TWEEGEE_DEFAULT_DELAY_TEXT"
	EnvMaxStatements    = "TWEEGEE_MAX_STATEMENTS"
	EnvStartPassage     = "TWEEGEE_START_PASSAGE"
	EnvIndexPath        = "TWEEGEE_INDEX_PATH"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "TWEEGEE_LOG_LEVEL"
	EnvLogFormat = "TWEEGEE_LOG_FORMAT"
	EnvLogSource = "TWEEGEE_LOG_SOURCE"
	EnvLogFile   = "TWEEGEE_LOG_FILE"
)

// overrides mirrors the env vars above. A nil field means the variable is unset.
type overrides struct {
	DefaultDelayText *string `env:"TWEEGEE_DEFAULT_DELAY_TEXT"`
	MaxStatements    *int    `env:"TWEEGEE_MAX_STATEMENTS"`
	StartPassage     *string `env:"TWEEGEE_START_PASSAGE"`
	IndexPath        *string `env:"TWEEGEE_INDEX_PATH"`
	LogLevel         *string `env:"TWEEGEE_LOG_LEVEL"`
	LogFormat        *string `env:"TWEEGEE_LOG_FORMAT"`
	LogSource        *bool   `env:"TWEEGEE_LOG_SOURCE"`
	LogFile          *string `env:"TWEEGEE_LOG_FILE"`
}

// envKeys maps config keys to the variable overriding them.
var envKeys = map[string]string{
	"engine.default_delay_text": EnvDefaultDelayText,
	"engine.max_statements":     EnvMaxStatements,
	"parser.start_passage":      EnvStartPassage,
	"index.path":                EnvIndexPath,
	"logging.level":             EnvLogLevel,
	"logging.format":            EnvLogFormat,
	"logging.source":            EnvLogSource,
	"logging.file":              EnvLogFile,
}

// ConfigPath returns the per-user config file path. TWEEGEE_CONFIG wins
// when set.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Tweegee")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Tweegee")
	default: // linux and others
		home := os.Getenv("HOME")
		if home == "" {
			return "", errors.New("cannot resolve config directory")
		}
		base = filepath.Join(home, ".config", "tweegee")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges
// environment overrides. A missing file is not an error.
func Load() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// an empty delay text is a valid choice, so only the key's presence would
	// tell; treat blank as unset like the other strings
	if src.Engine.DefaultDelayText != "" {
		dst.Engine.DefaultDelayText = src.Engine.DefaultDelayText
	}
	if src.Engine.MaxStatements > 0 {
		dst.Engine.MaxStatements = src.Engine.MaxStatements
	}
	if strings.TrimSpace(src.Parser.StartPassage) != "" {
		dst.Parser.StartPassage = strings.TrimSpace(src.Parser.StartPassage)
	}
	if strings.TrimSpace(src.Index.Path) != "" {
		dst.Index.Path = strings.TrimSpace(src.Index.Path)
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func applyEnvOverrides(cfg *AppConfig) error {
	ov, err := env.ParseAs[overrides]()
	if err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if ov.DefaultDelayText != nil {
		cfg.Engine.DefaultDelayText = *ov.DefaultDelayText
	}
	if ov.MaxStatements != nil && *ov.MaxStatements > 0 {
		cfg.Engine.MaxStatements = *ov.MaxStatements
	}
	if ov.StartPassage != nil && strings.TrimSpace(*ov.StartPassage) != "" {
		cfg.Parser.StartPassage = strings.TrimSpace(*ov.StartPassage)
	}
	if ov.IndexPath != nil && strings.TrimSpace(*ov.IndexPath) != "" {
		cfg.Index.Path = strings.TrimSpace(*ov.IndexPath)
	}
	// logging overrides
	if ov.LogLevel != nil && *ov.LogLevel != "" {
		cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*ov.LogLevel))
	}
	if ov.LogFormat != nil && *ov.LogFormat != "" {
		cfg.Logging.Format = strings.ToLower(strings.TrimSpace(*ov.LogFormat))
	}
	if ov.LogSource != nil {
		cfg.Logging.Source = *ov.LogSource
	}
	if ov.LogFile != nil && *ov.LogFile != "" {
		cfg.Logging.File = *ov.LogFile
	}
	return nil
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envKeys[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// Options converts the logging section for log.Init.
func (l LoggingConfig) Options() applog.Options {
	return applog.Options{Level: l.Level, Format: l.Format, AddSource: l.Source, File: l.File}
}
