// Package config loads the bridge configuration.
//
// Configuration is read from a single YAML file named by the --config flag
// or the SCBRIDGE_CONFIG environment variable. Fields missing from the file
// keep their defaults; with no file at all the defaults are used as is.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "SCBRIDGE_CONFIG"

// Spacing modes for the offline render clock.
const (
	// SpacingAfter translates each element at the current clock and then
	// advances the clock by the element's time, so an element's time is the
	// gap that follows it. Increments [0.5, 0, 1] place elements at
	// [0, 0.5, 0.5]. This is the default.
	SpacingAfter = "after"
	// SpacingBefore advances the clock first, so an element's time is the
	// gap that precedes it. Increments [0.5, 0, 1] place elements at
	// [0.5, 0.5, 1.5].
	SpacingBefore = "before"
)

// Config is the bridge configuration.
type Config struct {
	// Listen is the UDP address control surfaces send commands to.
	Listen string `yaml:"listen"`

	Engine  EngineConfig  `yaml:"engine"`
	NRT     NRTConfig     `yaml:"nrt"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`

	// FunnelTags are envelope tags whose contents are interpreted as if
	// each element had arrived on its own.
	FunnelTags []string `yaml:"funnel_tags"`

	// BPM is the tempo until a /set_bpm arrives.
	BPM float64 `yaml:"bpm"`

	// SamplerSynthdef is a file holding the sampler synth definition. Empty
	// uses the built-in one.
	SamplerSynthdef string `yaml:"sampler_synthdef"`
}

// EngineConfig holds the engine process endpoints.
type EngineConfig struct {
	// Reply is where the engine sends signals to the bridge.
	Reply       string `yaml:"reply"`
	Scsynth     string `yaml:"scsynth"`
	Sclang      string `yaml:"sclang"`
	Application string `yaml:"application"`

	// ServerName is the interpreter variable holding the server.
	ServerName string `yaml:"server_name"`

	Latency      Duration `yaml:"latency"`
	ReadyTimeout Duration `yaml:"ready_timeout"`
}

// NRTConfig configures offline rendering.
type NRTConfig struct {
	DoneAddress string   `yaml:"done_address"`
	Timeout     Duration `yaml:"timeout"`
	Spacing     string   `yaml:"spacing"`

	// Template is a score template file. Empty uses the built-in one.
	Template  string `yaml:"template"`
	OutputDir string `yaml:"output_dir"`
	Extension string `yaml:"extension"`

	// ReplySocket is the interpreter variable of the socket the render
	// script signals completion through.
	ReplySocket string `yaml:"reply_socket"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the HTTP address; empty disables the endpoint.
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

// UnmarshalYAML accepts strings such as "50ms" or "10s".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "line %d", value.Line)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen: "127.0.0.1:13331",
		Engine: EngineConfig{
			Reply:        "127.0.0.1:13338",
			Scsynth:      "127.0.0.1:13337",
			Sclang:       "127.0.0.1:13336",
			Application:  "127.0.0.1:13339",
			ServerName:   "s",
			Latency:      Duration(50 * time.Millisecond),
			ReadyTimeout: Duration(30 * time.Second),
		},
		NRT: NRTConfig{
			DoneAddress: "/nrt_done",
			Timeout:     Duration(10 * time.Second),
			Spacing:     SpacingAfter,
			OutputDir:   ".",
			Extension:   ".scd",
			ReplySocket: "o",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		FunnelTags: []string{"batch-send"},
		BPM:        120,
	}
}

// Load reads the file named by path, or by SCBRIDGE_CONFIG when path is
// empty. With neither set it returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	for name, addr := range map[string]string{
		"listen":             c.Listen,
		"engine.reply":       c.Engine.Reply,
		"engine.scsynth":     c.Engine.Scsynth,
		"engine.sclang":      c.Engine.Sclang,
		"engine.application": c.Engine.Application,
	} {
		if addr == "" {
			return errors.Errorf("config: %s must not be empty", name)
		}
	}
	if c.Engine.Latency < 0 {
		return errors.New("config: engine.latency must not be negative")
	}
	if c.Engine.ReadyTimeout <= 0 {
		return errors.New("config: engine.ready_timeout must be positive")
	}
	if c.NRT.Timeout <= 0 {
		return errors.New("config: nrt.timeout must be positive")
	}
	if c.NRT.Spacing != SpacingAfter && c.NRT.Spacing != SpacingBefore {
		return errors.Errorf("config: nrt.spacing must be %q or %q, got %q", SpacingAfter, SpacingBefore, c.NRT.Spacing)
	}
	if c.NRT.DoneAddress == "" || c.NRT.DoneAddress[0] != '/' {
		return errors.Errorf("config: nrt.done_address must be an OSC address, got %q", c.NRT.DoneAddress)
	}
	if c.BPM <= 0 {
		return errors.New("config: bpm must be positive")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
