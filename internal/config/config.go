package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "meetcast.yml"

// Config models meetcast.yml.
type Config struct {
	Capabilities struct {
		Mode     string         `yaml:"mode"`
		Weather  RemoteWeather  `yaml:"weather"`
		Calendar RemoteCalendar `yaml:"calendar"`
	} `yaml:"capabilities"`
	Mock struct {
		Weather  MockWeather  `yaml:"weather"`
		Calendar MockCalendar `yaml:"calendar"`
	} `yaml:"mock"`
	Pipeline Pipeline `yaml:"pipeline"`
	Journal  struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"journal"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

type RemoteWeather struct {
	ForecastURL string  `yaml:"forecast_url"`
	GeocodeURL  string  `yaml:"geocode_url"`
	RatePerSec  float64 `yaml:"rate_per_sec"`
	CacheSize   int     `yaml:"cache_size"`
}

type RemoteCalendar struct {
	BaseURL    string  `yaml:"base_url"`
	Token      string  `yaml:"token"`
	RatePerSec float64 `yaml:"rate_per_sec"`
}

type MockWeather struct {
	BaseProb int            `yaml:"base_prob"`
	Keywords map[string]int `yaml:"keywords"`
	Windows  []MockWindow   `yaml:"windows"`
	Cities   map[string]int `yaml:"cities"`
	Fail     bool           `yaml:"fail"`
	Latency  Duration       `yaml:"latency"`
}

type MockWindow struct {
	Weekday  string `yaml:"weekday"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	ProbRain int    `yaml:"prob_rain"`
}

type MockCalendar struct {
	Blocks     []MockBlock `yaml:"blocks"`
	Fail       bool        `yaml:"fail"`
	FailCreate bool        `yaml:"fail_create"`
	Latency    Duration    `yaml:"latency"`
}

type MockBlock struct {
	Weekday     string `yaml:"weekday"`
	Start       string `yaml:"start"`
	DurationMin int    `yaml:"duration_min"`
}

type Pipeline struct {
	CallTimeout    Duration `yaml:"call_timeout"`
	RetryDelay     Duration `yaml:"retry_delay"`
	MaxRetries     int      `yaml:"max_retries"`
	RequestTimeout Duration `yaml:"request_timeout"`
	ProbeBudget    int      `yaml:"probe_budget"`
	ProbeStep      Duration `yaml:"probe_step"`
	MaxCandidates  int      `yaml:"max_candidates"`
	Timezone       string   `yaml:"timezone"`
}

// Duration reads Go duration strings such as "5s" or "30m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Location resolves pipeline.timezone, defaulting to the local zone.
func (p Pipeline) Location() (*time.Location, error) {
	if p.Timezone == "" || strings.EqualFold(p.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(p.Timezone)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with mc config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Capabilities.Mode {
	case "mock":
	case "remote":
		if c.Capabilities.Calendar.BaseURL == "" {
			return fmt.Errorf("config.capabilities.calendar.base_url is required in remote mode")
		}
	default:
		return fmt.Errorf("config.capabilities.mode must be 'mock' or 'remote'")
	}
	p := c.Pipeline
	if p.CallTimeout <= 0 {
		return fmt.Errorf("config.pipeline.call_timeout must be positive")
	}
	if p.RequestTimeout <= 0 {
		return fmt.Errorf("config.pipeline.request_timeout must be positive")
	}
	if p.RetryDelay < 0 {
		return fmt.Errorf("config.pipeline.retry_delay must not be negative")
	}
	if p.MaxRetries < 0 || p.MaxRetries > 1 {
		return fmt.Errorf("config.pipeline.max_retries must be 0 or 1")
	}
	if p.ProbeBudget < 1 {
		return fmt.Errorf("config.pipeline.probe_budget must be at least 1")
	}
	if p.ProbeStep <= 0 {
		return fmt.Errorf("config.pipeline.probe_step must be positive")
	}
	if p.MaxCandidates < 1 || p.MaxCandidates > 3 {
		return fmt.Errorf("config.pipeline.max_candidates must be between 1 and 3")
	}
	if _, err := p.Location(); err != nil {
		return fmt.Errorf("config.pipeline.timezone: %w", err)
	}
	for i, w := range c.Mock.Weather.Windows {
		if _, err := ParseWeekday(w.Weekday); err != nil {
			return fmt.Errorf("mock.weather.windows[%d]: %w", i, err)
		}
		start, err := ParseClock(w.Start)
		if err != nil {
			return fmt.Errorf("mock.weather.windows[%d].start: %w", i, err)
		}
		end, err := ParseClock(w.End)
		if err != nil {
			return fmt.Errorf("mock.weather.windows[%d].end: %w", i, err)
		}
		if end <= start {
			return fmt.Errorf("mock.weather.windows[%d] ends before it starts", i)
		}
		if w.ProbRain < 0 || w.ProbRain > 100 {
			return fmt.Errorf("mock.weather.windows[%d].prob_rain must be within 0-100", i)
		}
	}
	for word, p := range c.Mock.Weather.Keywords {
		if p < 0 || p > 100 {
			return fmt.Errorf("mock.weather.keywords.%s must be within 0-100", word)
		}
	}
	for city, p := range c.Mock.Weather.Cities {
		if p < 0 || p > 100 {
			return fmt.Errorf("mock.weather.cities.%s must be within 0-100", city)
		}
	}
	for i, b := range c.Mock.Calendar.Blocks {
		if _, err := ParseWeekday(b.Weekday); err != nil {
			return fmt.Errorf("mock.calendar.blocks[%d]: %w", i, err)
		}
		if _, err := ParseClock(b.Start); err != nil {
			return fmt.Errorf("mock.calendar.blocks[%d].start: %w", i, err)
		}
		if b.DurationMin <= 0 {
			return fmt.Errorf("mock.calendar.blocks[%d].duration_min must be positive", i)
		}
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("config.log.format must be 'json' or 'console'")
	}
	return nil
}

// ParseWeekday accepts full English weekday names in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(s)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// ParseClock converts "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted keys keep
// their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `capabilities:
  # mock | remote
  mode: mock
  weather:
    forecast_url: https://api.open-meteo.com
    geocode_url: https://geocoding-api.open-meteo.com
    rate_per_sec: 5
    cache_size: 128
  calendar:
    base_url: ""
    token: ""
    rate_per_sec: 5

mock:
  weather:
    base_prob: 15
    # request words that set the rain probability; 0 disables one
    keywords:
      rain: 70
    windows:
      - weekday: friday
        start: "14:00"
        end: "16:00"
        prob_rain: 65
    cities: {}
    fail: false
  calendar:
    blocks:
      - weekday: friday
        start: "15:00"
        duration_min: 30
    fail: false
    fail_create: false

pipeline:
  call_timeout: 5s
  retry_delay: 2s
  max_retries: 1
  request_timeout: 15s
  probe_budget: 6
  probe_step: 30m
  max_candidates: 3
  timezone: Local

journal:
  enabled: true

server:
  addr: 127.0.0.1:8080

log:
  level: info
  format: console
`
