package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Bridge          string                  `yaml:"bridge"`  // Default entry of the bridge registry
	Bridges         map[string]BridgeConfig `yaml:"bridges"` // Bridge registry: name -> address/username
	Gateway         GatewayConfig           `yaml:"gateway"`
	Database        DatabaseConfig          `yaml:"database"`
	Journal         JournalConfig           `yaml:"journal"`
	Log             LogConfig               `yaml:"log"`
	EventBus        EventBusConfig          `yaml:"eventbus"`
	Effects         EffectsConfig           `yaml:"effects"`
	ShutdownTimeout Duration                `yaml:"shutdown_timeout"` // Time allowed to drain the event bus on exit
}

// BridgeConfig is one entry of the bridge registry
type BridgeConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
}

// GatewayConfig contains Hue bridge client settings
type GatewayConfig struct {
	AppName      string   `yaml:"app_name"`       // Device type used when pairing
	Timeout      Duration `yaml:"timeout"`        // HTTP timeout for bridge requests
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // Max light commands per second
	NameCacheTTL Duration `yaml:"name_cache_ttl"` // How long light name -> id lookups are kept
	PairAttempts int      `yaml:"pair_attempts"`  // Link button polls during register
	PairInterval Duration `yaml:"pair_interval"`
}

// DatabaseConfig contains journal database settings
type DatabaseConfig struct {
	Path string `yaml:"path"` // ":memory:" keeps the journal for the lifetime of the process only
}

// JournalConfig contains journal retention settings
type JournalConfig struct {
	Retention       Duration `yaml:"retention"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RecentLimit     int      `yaml:"recent_limit"` // Entries shown by the state command
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 2)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 2
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// EffectsConfig holds the default tuning values of every effect.
// JSON parameters passed on the command line override them per run.
type EffectsConfig struct {
	Breathe BreatheConfig `yaml:"breathe"`
	Slide   SlideConfig   `yaml:"slide"`
	Dim     DimConfig     `yaml:"dim"`
	Random  RandomConfig  `yaml:"random"`
	Alert   AlertConfig   `yaml:"alert"`
}

type BreatheConfig struct {
	BriRange []int `yaml:"bri_range"`
}

type SlideConfig struct {
	Speed int `yaml:"speed"`
}

type DimConfig struct {
	Factor float64 `yaml:"factor"`
}

type RandomConfig struct {
	HueRange []int `yaml:"hue_range"`
	SatRange []int `yaml:"sat_range"`
	BriRange []int `yaml:"bri_range"`
}

type AlertConfig struct {
	Hue  *int     `yaml:"hue"` // Nil until defaulted; 0 is red
	Hold Duration `yaml:"hold"` // Pause between the alert push and the restore push
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// LoadOrDefault behaves like Load but returns the defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse parses YAML configuration data
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = ":memory:"
	}
	if cfg.Bridges == nil {
		cfg.Bridges = make(map[string]BridgeConfig)
	}

	// Gateway defaults
	if cfg.Gateway.AppName == "" {
		cfg.Gateway.AppName = "lightfx"
	}
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = Duration(10 * time.Second)
	}
	if cfg.Gateway.RateLimitRPS == 0 {
		cfg.Gateway.RateLimitRPS = 10.0 // the bridge handles about 10 light commands per second
	}
	if cfg.Gateway.NameCacheTTL == 0 {
		cfg.Gateway.NameCacheTTL = Duration(5 * time.Minute)
	}
	if cfg.Gateway.PairAttempts == 0 {
		cfg.Gateway.PairAttempts = 12
	}
	if cfg.Gateway.PairInterval == 0 {
		cfg.Gateway.PairInterval = Duration(5 * time.Second)
	}

	// Journal defaults
	if cfg.Journal.Retention == 0 {
		cfg.Journal.Retention = Duration(24 * time.Hour)
	}
	if cfg.Journal.CleanupInterval == 0 {
		cfg.Journal.CleanupInterval = Duration(time.Hour)
	}
	if cfg.Journal.RecentLimit == 0 {
		cfg.Journal.RecentLimit = 10
	}

	// Effect defaults
	if len(cfg.Effects.Breathe.BriRange) == 0 {
		cfg.Effects.Breathe.BriRange = []int{100, 180}
	}
	if cfg.Effects.Slide.Speed == 0 {
		cfg.Effects.Slide.Speed = 1000
	}
	if cfg.Effects.Dim.Factor == 0 {
		cfg.Effects.Dim.Factor = 0.8
	}
	if len(cfg.Effects.Random.HueRange) == 0 {
		cfg.Effects.Random.HueRange = []int{0, 65535}
	}
	if len(cfg.Effects.Random.SatRange) == 0 {
		cfg.Effects.Random.SatRange = []int{150, 240}
	}
	if len(cfg.Effects.Random.BriRange) == 0 {
		cfg.Effects.Random.BriRange = []int{220, 255}
	}
	if cfg.Effects.Alert.Hue == nil {
		hue := 50142
		cfg.Effects.Alert.Hue = &hue
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

func (c *Config) validate() error {
	ranges := map[string][]int{
		"effects.breathe.bri_range": c.Effects.Breathe.BriRange,
		"effects.random.hue_range":  c.Effects.Random.HueRange,
		"effects.random.sat_range":  c.Effects.Random.SatRange,
		"effects.random.bri_range":  c.Effects.Random.BriRange,
	}
	for key, r := range ranges {
		if len(r) != 2 {
			return fmt.Errorf("%s: expected [low, high], got %v", key, r)
		}
	}
	if hue := *c.Effects.Alert.Hue; hue < 0 || hue > 65535 {
		return fmt.Errorf("effects.alert.hue: expected a value in [0, 65535], got %d", hue)
	}
	if c.Bridge != "" {
		if _, ok := c.Bridges[c.Bridge]; !ok {
			return fmt.Errorf("bridge %q is not in the bridges registry", c.Bridge)
		}
	}
	return nil
}

// ResolveBridge returns the registry entry for name (or the default bridge when
// name is empty) with address and username overridden when non-empty.
func (c *Config) ResolveBridge(name, address, username string) (BridgeConfig, error) {
	if name == "" {
		name = c.Bridge
	}

	var bridge BridgeConfig
	if name != "" {
		entry, ok := c.Bridges[name]
		if !ok {
			return BridgeConfig{}, fmt.Errorf("bridge %q is not in the bridges registry", name)
		}
		bridge = entry
	}

	if address != "" {
		bridge.Address = address
	}
	if username != "" {
		bridge.Username = username
	}
	return bridge, nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

