package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for Config.
const (
	DefaultArtifact         = "app.wasm"
	DefaultSizeSuffix       = ".size"
	DefaultWatchdog         = 5 * time.Second
	DefaultSizeTimeout      = 10 * time.Second
	DefaultDownloadTimeout  = 10 * time.Minute
	DefaultDisplay          = DisplayAuto
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "console"
	DefaultOvershootAllowed = 0
)

// Display modes.
const (
	DisplayAuto     = "auto"
	DisplayTerminal = "terminal"
	DisplayLog      = "log"
)

// Config describes one page load.
type Config struct {
	// PageURL is the location the artifact is served from. The artifact and
	// its size resource resolve relative to it; its query carries lang.
	PageURL    string `yaml:"page_url"`
	Artifact   string `yaml:"artifact"`
	SizeSuffix string `yaml:"size_suffix"`
	// Lang, when set, overrides the lang parameter of the page query.
	Lang            string   `yaml:"lang"`
	Watchdog        Duration `yaml:"watchdog"`
	SizeTimeout     Duration `yaml:"size_timeout"`
	DownloadTimeout Duration `yaml:"download_timeout"`
	// OvershootTolerance is how many bytes past the expected size a
	// download may reach before progress stops being reported.
	OvershootTolerance int64     `yaml:"overshoot_tolerance"`
	Display            string    `yaml:"display"`
	Engine             Engine    `yaml:"engine"`
	Log                LogConfig `yaml:"log"`
}

// Engine configures the hosted runtime.
type Engine struct {
	MemoryLimitPages       uint32 `yaml:"memory_limit_pages"`
	RequireWasmContentType bool   `yaml:"require_wasm_content_type"`
	ProgramName            string `yaml:"program_name"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "5s", "2m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "5s" or "1m30s".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Artifact:           DefaultArtifact,
		SizeSuffix:         DefaultSizeSuffix,
		Watchdog:           Duration{DefaultWatchdog},
		SizeTimeout:        Duration{DefaultSizeTimeout},
		DownloadTimeout:    Duration{DefaultDownloadTimeout},
		OvershootTolerance: DefaultOvershootAllowed,
		Display:            DefaultDisplay,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Load reads the YAML file at path over the defaults. An empty path yields
// the defaults; a named file must exist.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // config path from CLI flag
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Artifact == "" {
		c.Artifact = d.Artifact
	}
	if c.SizeSuffix == "" {
		c.SizeSuffix = d.SizeSuffix
	}
	if c.Watchdog.Duration == 0 {
		c.Watchdog = d.Watchdog
	}
	if c.SizeTimeout.Duration == 0 {
		c.SizeTimeout = d.SizeTimeout
	}
	if c.DownloadTimeout.Duration == 0 {
		c.DownloadTimeout = d.DownloadTimeout
	}
	if c.Display == "" {
		c.Display = d.Display
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// Validate checks the configuration for a load.
func (c Config) Validate() error {
	if c.PageURL == "" {
		return ValidationError{Field: "page_url", Message: "required"}
	}
	u, err := url.Parse(c.PageURL)
	if err != nil {
		return ValidationError{Field: "page_url", Message: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ValidationError{Field: "page_url", Message: "scheme must be http or https"}
	}
	if c.Artifact == "" {
		return ValidationError{Field: "artifact", Message: "required"}
	}
	if c.Watchdog.Duration <= 0 {
		return ValidationError{Field: "watchdog", Message: "must be positive"}
	}
	if c.SizeTimeout.Duration < 0 {
		return ValidationError{Field: "size_timeout", Message: "must not be negative"}
	}
	if c.DownloadTimeout.Duration < 0 {
		return ValidationError{Field: "download_timeout", Message: "must not be negative"}
	}
	if c.OvershootTolerance < 0 {
		return ValidationError{Field: "overshoot_tolerance", Message: "must not be negative"}
	}
	switch c.Display {
	case DisplayAuto, DisplayTerminal, DisplayLog:
	default:
		return ValidationError{Field: "display", Message: fmt.Sprintf("unknown mode %q", c.Display)}
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return ValidationError{Field: "log.format", Message: fmt.Sprintf("unknown format %q", c.Log.Format)}
	}
	return nil
}

// Page returns the page URL with Lang applied to its query.
func (c Config) Page() (*url.URL, error) {
	u, err := url.Parse(c.PageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	if c.Lang != "" {
		q := u.Query()
		q.Set("lang", c.Lang)
		u.RawQuery = q.Encode()
	}
	return u, nil
}
