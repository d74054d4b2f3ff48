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
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type NovelConfig struct {
	BaseDir     string `yaml:"base_dir"`
	EntryScript string `yaml:"entry_script"`
}

type PlaybackConfig struct {
	CharDelayMs  int `yaml:"char_delay_ms"`
	FrameRate    int `yaml:"frame_rate"`
	SkipPacingMs int `yaml:"skip_pacing_ms"`
	HistoryLimit int `yaml:"history_limit"`
}

type DisplayConfig struct {
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	DesignWidth  int     `yaml:"design_width"`
	DesignHeight int     `yaml:"design_height"`
	Padding      int     `yaml:"padding"`
	FontPath     string  `yaml:"font_path"`
	FontSize     float64 `yaml:"font_size"`
	ChoiceWidth  int     `yaml:"choice_width"`
	ChoiceHeight int     `yaml:"choice_height"`
	ChoiceGap    int     `yaml:"choice_spacing"`
}

type SavesConfig struct {
	Dir              string `yaml:"dir"`
	RollbackDepth    int    `yaml:"rollback_depth"`
	RollbackMaxBytes int    `yaml:"rollback_max_bytes"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int            `yaml:"config_version"`
	Novel         NovelConfig    `yaml:"novel"`
	Playback      PlaybackConfig `yaml:"playback"`
	Display       DisplayConfig  `yaml:"display"`
	Saves         SavesConfig    `yaml:"saves"`
	Logging       LoggingConfig  `yaml:"logging"`
}

// Defaults returns the application defaults. The design resolution is the
// 256x192 screen most novel packages were authored for.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Novel:         NovelConfig{BaseDir: ".", EntryScript: "main.scr"},
		Playback:      PlaybackConfig{CharDelayMs: 50, FrameRate: 60, SkipPacingMs: 300, HistoryLimit: 200},
		Display: DisplayConfig{
			Width: 800, Height: 600, DesignWidth: 256, DesignHeight: 192, Padding: 12,
			FontSize: 16, ChoiceWidth: 200, ChoiceHeight: 50, ChoiceGap: 10,
		},
		Saves:   SavesConfig{Dir: "save", RollbackDepth: 64, RollbackMaxBytes: 4 << 20},
		Logging: LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvBaseDir      = "GVN_BASE_DIR"
	EnvEntryScript  = "GVN_ENTRY_SCRIPT"
	EnvCharDelayMs  = "GVN_CHAR_DELAY_MS"
	EnvSkipPacingMs = "GVN_SKIP_PACING_MS"
	EnvSaveDir      = "GVN_SAVE_DIR"
	EnvFontPath     = "GVN_FONT_PATH"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "GVN_LOG_LEVEL"
	EnvLogFormat = "GVN_LOG_FORMAT"
	EnvLogSource = "GVN_LOG_SOURCE"
	EnvLogFile   = "GVN_LOG_FILE"
)

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "govn")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "govn")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "govn")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
func Load() (AppConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Defaults()
		applyEnvOverrides(&cfg)
		return cfg, err
	}
	return LoadFrom(path)
}

// LoadFrom is Load for an explicit file. A missing file yields defaults; a
// file that is not valid YAML is reported but defaults are still returned.
func LoadFrom(path string) (AppConfig, error) {
	cfg := Defaults()
	var perr error
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		} else {
			perr = err
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, perr
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg)
}

// SaveTo writes cfg as YAML to path, creating parent directories.
func SaveTo(path string, cfg AppConfig) error {
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
	if strings.TrimSpace(src.Novel.BaseDir) != "" {
		dst.Novel.BaseDir = strings.TrimSpace(src.Novel.BaseDir)
	}
	if strings.TrimSpace(src.Novel.EntryScript) != "" {
		dst.Novel.EntryScript = strings.TrimSpace(src.Novel.EntryScript)
	}
	// playback
	mergeInt(&dst.Playback.CharDelayMs, src.Playback.CharDelayMs)
	mergeInt(&dst.Playback.FrameRate, src.Playback.FrameRate)
	mergeInt(&dst.Playback.SkipPacingMs, src.Playback.SkipPacingMs)
	mergeInt(&dst.Playback.HistoryLimit, src.Playback.HistoryLimit)
	// display
	mergeInt(&dst.Display.Width, src.Display.Width)
	mergeInt(&dst.Display.Height, src.Display.Height)
	mergeInt(&dst.Display.DesignWidth, src.Display.DesignWidth)
	mergeInt(&dst.Display.DesignHeight, src.Display.DesignHeight)
	mergeInt(&dst.Display.Padding, src.Display.Padding)
	mergeInt(&dst.Display.ChoiceWidth, src.Display.ChoiceWidth)
	mergeInt(&dst.Display.ChoiceHeight, src.Display.ChoiceHeight)
	mergeInt(&dst.Display.ChoiceGap, src.Display.ChoiceGap)
	if src.Display.FontSize > 0 {
		dst.Display.FontSize = src.Display.FontSize
	}
	if strings.TrimSpace(src.Display.FontPath) != "" {
		dst.Display.FontPath = strings.TrimSpace(src.Display.FontPath)
	}
	// saves
	if strings.TrimSpace(src.Saves.Dir) != "" {
		dst.Saves.Dir = strings.TrimSpace(src.Saves.Dir)
	}
	mergeInt(&dst.Saves.RollbackDepth, src.Saves.RollbackDepth)
	mergeInt(&dst.Saves.RollbackMaxBytes, src.Saves.RollbackMaxBytes)
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

func mergeInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvBaseDir)); v != "" {
		cfg.Novel.BaseDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvEntryScript)); v != "" {
		cfg.Novel.EntryScript = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCharDelayMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Playback.CharDelayMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvSkipPacingMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Playback.SkipPacingMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvSaveDir)); v != "" {
		cfg.Saves.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvFontPath)); v != "" {
		cfg.Display.FontPath = v
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		lv := strings.ToLower(v)
		cfg.Logging.Source = lv == "1" || lv == "true" || lv == "on" || lv == "yes"
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	var env string
	switch key {
	case "novel.base_dir":
		env = EnvBaseDir
	case "novel.entry_script":
		env = EnvEntryScript
	case "playback.char_delay_ms":
		env = EnvCharDelayMs
	case "playback.skip_pacing_ms":
		env = EnvSkipPacingMs
	case "saves.dir":
		env = EnvSaveDir
	case "display.font_path":
		env = EnvFontPath
	case "logging.level":
		env = EnvLogLevel
	case "logging.format":
		env = EnvLogFormat
	case "logging.source":
		env = EnvLogSource
	case "logging.file":
		env = EnvLogFile
	default:
		return "", false
	}
	if os.Getenv(env) != "" {
		return env, true
	}
	return "", false
}

// CharDelay is the typewriter delay per revealed character.
func (p PlaybackConfig) CharDelay() time.Duration {
	return time.Duration(p.CharDelayMs) * time.Millisecond
}

// SkipPacing is the pause between text steps while skipping.
func (p PlaybackConfig) SkipPacing() time.Duration {
	return time.Duration(p.SkipPacingMs) * time.Millisecond
}

// EffectiveFrameRate guards against a zero or negative frame rate in user files.
func (p PlaybackConfig) EffectiveFrameRate() int {
	if p.FrameRate <= 0 {
		return Defaults().Playback.FrameRate
	}
	return p.FrameRate
}

// TextWidth is the width available to wrapped text, in device pixels.
func (d DisplayConfig) TextWidth() float64 {
	w := d.Width - 2*d.Padding
	if w <= 0 {
		return float64(d.Width)
	}
	return float64(w)
}

// SaveDir resolves the save directory against the novel base dir.
func (c AppConfig) SaveDir() string {
	if filepath.IsAbs(c.Saves.Dir) {
		return c.Saves.Dir
	}
	return filepath.Join(c.Novel.BaseDir, c.Saves.Dir)
}
