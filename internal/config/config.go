package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRouterHost     = "192.168.8.1"
	DefaultRouterPort     = 22
	DefaultRouterUser     = "root"
	DefaultTransport      = TransportSSH
	DefaultDialTimeout    = 10 * time.Second
	DefaultCommandTimeout = 15 * time.Second

	DefaultMaxInterfaces  = 2
	DefaultCapacityMbps   = 1000.0
	DefaultSampleInterval = time.Second
	DefaultPingTimeoutSec = 1
	DefaultStatsCount     = 4
	DefaultRating         = 5.0
	DefaultCycleTimeout   = 30 * time.Second

	DefaultListen         = "0.0.0.0:5000"
	DefaultRateLimit      = 2.0
	DefaultRateBurst      = 4
	DefaultStreamInterval = 5 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

const (
	TransportSSH   = "ssh"
	TransportLocal = "local"
)

// DefaultInterfaceMap translates mwan3 logical names to kernel devices on the
// stock router profile.
func DefaultInterfaceMap() map[string]string {
	return map[string]string{
		"wan":  "eth0",
		"wwan": "apcli0",
	}
}

// Config holds every setting of the collector process.
type Config struct {
	Router    RouterConfig    `yaml:"router"`
	Collector CollectorConfig `yaml:"collector"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
}

// RouterConfig describes how to reach the router's shell.
type RouterConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password,omitempty"`
	KeyPath        string        `yaml:"key_path,omitempty"`
	KnownHosts     string        `yaml:"known_hosts,omitempty"`
	Transport      string        `yaml:"transport"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// CollectorConfig tunes one collection cycle.
type CollectorConfig struct {
	MaxInterfaces     int                `yaml:"max_interfaces"`
	CapacityMbps      float64            `yaml:"capacity_mbps"`
	CapacityOverrides map[string]float64 `yaml:"capacity_overrides,omitempty"`
	InterfaceMap      map[string]string  `yaml:"interface_map"`
	SampleInterval    time.Duration      `yaml:"sample_interval"`
	PingTimeoutSec    int                `yaml:"ping_timeout_sec"`
	StatsCount        int                `yaml:"stats_count"`
	Rating            float64            `yaml:"rating"`
	Concurrent        bool               `yaml:"concurrent"`
	CycleTimeout      time.Duration      `yaml:"cycle_timeout"`
}

// APIConfig is used by `wanwatch serve`.
type APIConfig struct {
	Listen         string        `yaml:"listen"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	JWTSecret      string        `yaml:"jwt_secret,omitempty"`
	RateLimit      float64       `yaml:"rate_limit"`
	RateBurst      int           `yaml:"rate_burst"`
	StreamInterval time.Duration `yaml:"stream_interval"`
}

// LogConfig selects logger level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses a YAML config file, applies environment overrides and
// fills defaults. An empty path yields a default config with env applied.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	switch cfg.Router.Transport {
	case TransportSSH:
		if cfg.Router.Host == "" {
			return fmt.Errorf("router.host is required")
		}
		if cfg.Router.User == "" {
			return fmt.Errorf("router.user is required")
		}
	case TransportLocal:
	default:
		return fmt.Errorf("router.transport must be %q or %q, got %q", TransportSSH, TransportLocal, cfg.Router.Transport)
	}
	if cfg.Collector.MaxInterfaces < 1 {
		return fmt.Errorf("collector.max_interfaces must be >= 1")
	}
	if cfg.Collector.CapacityMbps <= 0 {
		return fmt.Errorf("collector.capacity_mbps must be > 0")
	}
	for name, c := range cfg.Collector.CapacityOverrides {
		if c <= 0 {
			return fmt.Errorf("collector.capacity_overrides.%s must be > 0", name)
		}
	}
	if cfg.Collector.SampleInterval <= 0 {
		return fmt.Errorf("collector.sample_interval must be > 0")
	}
	if cfg.Collector.PingTimeoutSec < 1 || cfg.Collector.PingTimeoutSec > 5 {
		return fmt.Errorf("collector.ping_timeout_sec must be between 1 and 5")
	}
	if cfg.Collector.StatsCount < 1 {
		return fmt.Errorf("collector.stats_count must be >= 1")
	}
	return nil
}

// ValidateAPI checks the settings only `serve` needs.
func ValidateAPI(cfg APIConfig) error {
	if cfg.Listen == "" {
		return fmt.Errorf("api.listen is required")
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must be >= 0")
	}
	if cfg.StreamInterval <= 0 {
		return fmt.Errorf("api.stream_interval must be > 0")
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	r := &cfg.Router
	if r.Transport == "" {
		r.Transport = DefaultTransport
	}
	if r.Host == "" && r.Transport == TransportSSH {
		r.Host = DefaultRouterHost
	}
	if r.Port == 0 {
		r.Port = DefaultRouterPort
	}
	if r.User == "" {
		r.User = DefaultRouterUser
	}
	if r.DialTimeout == 0 {
		r.DialTimeout = DefaultDialTimeout
	}
	if r.CommandTimeout == 0 {
		r.CommandTimeout = DefaultCommandTimeout
	}

	c := &cfg.Collector
	if c.MaxInterfaces == 0 {
		c.MaxInterfaces = DefaultMaxInterfaces
	}
	if c.CapacityMbps == 0 {
		c.CapacityMbps = DefaultCapacityMbps
	}
	if c.InterfaceMap == nil {
		c.InterfaceMap = DefaultInterfaceMap()
	}
	if c.SampleInterval == 0 {
		c.SampleInterval = DefaultSampleInterval
	}
	if c.PingTimeoutSec == 0 {
		c.PingTimeoutSec = DefaultPingTimeoutSec
	}
	if c.StatsCount == 0 {
		c.StatsCount = DefaultStatsCount
	}
	if c.Rating == 0 {
		c.Rating = DefaultRating
	}
	if c.CycleTimeout == 0 {
		c.CycleTimeout = DefaultCycleTimeout
	}

	a := &cfg.API
	if a.Listen == "" {
		a.Listen = DefaultListen
	}
	if len(a.AllowedOrigins) == 0 {
		a.AllowedOrigins = []string{"*"}
	}
	if a.RateLimit == 0 {
		a.RateLimit = DefaultRateLimit
	}
	if a.RateBurst == 0 {
		a.RateBurst = DefaultRateBurst
	}
	if a.StreamInterval == 0 {
		a.StreamInterval = DefaultStreamInterval
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// Capacity returns the configured link capacity for a logical interface.
func (c CollectorConfig) Capacity(iface string) float64 {
	if v, ok := c.CapacityOverrides[strings.ToLower(iface)]; ok {
		return v
	}
	return c.CapacityMbps
}
