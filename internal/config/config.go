// Package config loads evalgrep's TOML settings file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/asheshgoplani/evalgrep/internal/logging"
)

const (
	// DirName is the per-user settings directory under $HOME.
	DirName = ".evalgrep"

	// FileName is the settings file inside DirName.
	FileName = "config.toml"

	// PathEnv overrides the settings file location.
	PathEnv = "EVALGREP_CONFIG"
)

// Config is the full settings file.
type Config struct {
	Search  SearchSettings  `toml:"search"`
	Output  OutputSettings  `toml:"output"`
	Logging LoggingSettings `toml:"logging"`
}

// SearchSettings tunes the scan itself.
type SearchSettings struct {
	// Threads is the number of archives scanned at once.
	// Default: 0 (one per CPU)
	Threads int `toml:"threads"`

	// IgnoreCase makes the sample and message patterns case-insensitive.
	IgnoreCase bool `toml:"ignore_case"`

	// FilesPerSecond throttles archive opens, e.g. on network storage.
	// Default: 0 (unlimited)
	FilesPerSecond float64 `toml:"files_per_second"`
}

// OutputSettings controls how matches are printed.
type OutputSettings struct {
	// Format is "text" or "json" (one object per line).
	Format string `toml:"format"`

	// Color is "auto", "always" or "never".
	Color string `toml:"color"`

	// Truncate limits each message to this many display columns.
	// Default: 0 (no limit)
	Truncate int `toml:"truncate"`

	// Progress is "auto" (terminal only), "always" or "never".
	Progress string `toml:"progress"`
}

// LoggingSettings maps onto logging.Config.
type LoggingSettings struct {
	// Debug logs to stderr when Dir is empty.
	Debug bool `toml:"debug"`

	// Dir receives evalgrep.log and crash dumps.
	Dir string `toml:"dir"`

	// Level is "debug", "info", "warn" or "error".
	Level string `toml:"level"`

	// Format is "json" or "text".
	Format string `toml:"format"`

	MaxSizeMB  int  `toml:"max_size_mb"`
	MaxBackups int  `toml:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days"`
	Compress   bool `toml:"compress"`

	// Pprof serves net/http/pprof on localhost:6060 while logging is active.
	Pprof bool `toml:"pprof"`
}

// Output formats and tri-state modes.
const (
	FormatText = "text"
	FormatJSON = "json"

	ModeAuto   = "auto"
	ModeAlways = "always"
	ModeNever  = "never"
)

// Default returns the settings used when no file exists.
func Default() *Config {
	return &Config{
		Output: OutputSettings{
			Format:   FormatText,
			Color:    ModeAuto,
			Progress: ModeAuto,
		},
		Logging: LoggingSettings{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 10,
			Compress:   true,
		},
	}
}

// Path returns the settings file location: $EVALGREP_CONFIG, else
// ~/.evalgrep/config.toml.
func Path() (string, error) {
	if p := os.Getenv(PathEnv); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, DirName, FileName), nil
}

// Load reads path on top of Default. A missing file is not an error; a
// malformed or invalid one is. Unknown keys are logged and ignored.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("%s parse error: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		logging.ForComponent(logging.CompConfig).Warn("config_unknown_keys",
			slog.String("path", path),
			slog.String("keys", strings.Join(keys, ",")))
	}

	if err := cfg.Validate(); err != nil {
		return Default(), fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enumerated and numeric fields.
func (c *Config) Validate() error {
	var errs []error
	if c.Search.Threads < 0 {
		errs = append(errs, fmt.Errorf("search.threads must be >= 0, got %d", c.Search.Threads))
	}
	if c.Search.FilesPerSecond < 0 {
		errs = append(errs, fmt.Errorf("search.files_per_second must be >= 0, got %g", c.Search.FilesPerSecond))
	}
	if c.Output.Truncate < 0 {
		errs = append(errs, fmt.Errorf("output.truncate must be >= 0, got %d", c.Output.Truncate))
	}
	if err := oneOf("output.format", c.Output.Format, FormatText, FormatJSON); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("output.color", c.Output.Color, ModeAuto, ModeAlways, ModeNever); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("output.progress", c.Output.Progress, ModeAuto, ModeAlways, ModeNever); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("logging.level", strings.ToLower(c.Logging.Level), "debug", "info", "warn", "warning", "error"); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("logging.format", c.Logging.Format, "json", "text"); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}

// LogConfig converts the logging section for logging.Init.
func (c *Config) LogConfig() logging.Config {
	l := c.Logging
	return logging.Config{
		LogDir:       expandHome(l.Dir),
		Level:        l.Level,
		Format:       l.Format,
		MaxSizeMB:    l.MaxSizeMB,
		MaxBackups:   l.MaxBackups,
		MaxAgeDays:   l.MaxAgeDays,
		Compress:     l.Compress,
		PprofEnabled: l.Pprof,
		Debug:        l.Debug,
	}
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
