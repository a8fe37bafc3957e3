package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"icalmerge/internal/pipeline"
)

// Environment override names. Scalar settings from the config document can
// be overridden with these; EnvConfigPath overrides the document path itself
// and is consumed by the CLI before loading.
const (
	EnvConfigPath   = "ICAL_MERGE_CONFIG"
	envBind         = "ICAL_MERGE_BIND"
	envPort         = "ICAL_MERGE_PORT"
	envLogLevel     = "ICAL_MERGE_LOG_LEVEL"
	envPollInterval = "ICAL_MERGE_POLL_INTERVAL"
	envFetchTimeout = "ICAL_MERGE_FETCH_TIMEOUT"
)

const (
	defaultBind         = "127.0.0.1"
	defaultPort         = 8080
	defaultPollInterval = 2 * time.Second
	defaultFetchTimeout = 30 * time.Second
)

// Format selects the document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath detects the document format from the file extension.
// Unknown extensions decode as JSON, matching the default path config.json.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Duration wraps time.Duration to support strings like "2s" or "1m30s" in
// both YAML and JSON documents.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	return d.parse(raw)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	return d.parse(raw)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) parse(raw string) error {
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// SourceKind discriminates the two source variants.
type SourceKind int

const (
	SourceUnknown SourceKind = iota
	SourceURL
	SourceCalendar
)

// Source is one contributor to a virtual calendar: either a remote feed
// (url) or another virtual calendar (calendar). Exactly one of the two
// discriminating fields must be set; the decision is made while decoding,
// not by trial parsing.
type Source struct {
	URL      string                `yaml:"url,omitempty" json:"url,omitempty"`
	Calendar string                `yaml:"calendar,omitempty" json:"calendar,omitempty"`
	Steps    []pipeline.StepConfig `yaml:"steps,omitempty" json:"steps,omitempty"`

	// Kind is decided at decode time from which field is present.
	Kind SourceKind `yaml:"-" json:"-"`

	compiled *pipeline.Pipeline
}

func (s *Source) UnmarshalYAML(value *yaml.Node) error {
	type raw Source
	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}
	*s = Source(r)
	return s.decideKind()
}

func (s *Source) UnmarshalJSON(data []byte) error {
	type raw Source
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*s = Source(r)
	return s.decideKind()
}

func (s *Source) decideKind() error {
	switch {
	case s.URL != "" && s.Calendar != "":
		return errors.New("source must set exactly one of url or calendar, not both")
	case s.URL != "":
		s.Kind = SourceURL
	case s.Calendar != "":
		s.Kind = SourceCalendar
	default:
		return errors.New("source must set one of url or calendar")
	}
	return nil
}

// Identifier names this source in soft errors and logs: the feed address for
// URL sources, "calendar:<id>" for calendar references.
func (s *Source) Identifier() string {
	if s.Kind == SourceCalendar {
		return "calendar:" + s.Calendar
	}
	return s.URL
}

// Pipeline returns the compiled source-level steps. Valid after Validate.
func (s *Source) Pipeline() *pipeline.Pipeline {
	return s.compiled
}

// Calendar defines one virtual calendar: its ordered sources plus the steps
// applied to the concatenation of all source results.
type Calendar struct {
	Sources []Source              `yaml:"sources" json:"sources"`
	Steps   []pipeline.StepConfig `yaml:"steps,omitempty" json:"steps,omitempty"`

	compiled *pipeline.Pipeline
}

// Pipeline returns the compiled calendar-level steps. Valid after Validate.
func (c *Calendar) Pipeline() *pipeline.Pipeline {
	return c.compiled
}

// Config is the top-level configuration: server settings plus the virtual
// calendar map keyed by routing id.
type Config struct {
	Bind         string               `yaml:"bind,omitempty" json:"bind,omitempty"`
	Port         int                  `yaml:"port,omitempty" json:"port,omitempty"`
	LogLevel     string               `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	PollInterval Duration             `yaml:"poll_interval,omitempty" json:"poll_interval,omitempty"`
	FetchTimeout Duration             `yaml:"fetch_timeout,omitempty" json:"fetch_timeout,omitempty"`
	Calendars    map[string]*Calendar `yaml:"calendars" json:"calendars"`
}

// ListenAddr combines bind and port into a listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// Normalize fills in missing/zero values with defaults so partially-filled
// documents behave correctly.
func (c *Config) Normalize() {
	if c.Bind == "" {
		c.Bind = defaultBind
	}
	if c.Port <= 0 {
		c.Port = defaultPort
	}
	if c.PollInterval.Duration <= 0 {
		c.PollInterval.Duration = defaultPollInterval
	}
	if c.FetchTimeout.Duration <= 0 {
		c.FetchTimeout.Duration = defaultFetchTimeout
	}
	if c.Calendars == nil {
		c.Calendars = map[string]*Calendar{}
	}
}

// applyEnv overlays environment overrides onto document values.
func (c *Config) applyEnv() error {
	if v := os.Getenv(envBind); v != "" {
		c.Bind = v
	}
	if v := os.Getenv(envPort); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envPort, err)
		}
		c.Port = n
	}
	if v := os.Getenv(envLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(envPollInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envPollInterval, err)
		}
		c.PollInterval.Duration = d
	}
	if v := os.Getenv(envFetchTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envFetchTimeout, err)
		}
		c.FetchTimeout.Duration = d
	}
	return nil
}

// Parse decodes, normalizes and validates one configuration document.
// Validation is all-or-nothing: the returned Config is either fully usable
// (steps compiled, references and cycles checked) or nil with an error.
func Parse(data []byte, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and parses the configuration document at path, detecting the
// format from the file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, FormatFromPath(path))
}
