package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

// Duration accepts "30s"/"5m" style YAML values as well as plain integer
// seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return err
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Addr        string          `yaml:"addr"`
	AdminKey    string          `yaml:"admin_key"`   // key exchanged for a gateway JWT
	AuthSecret  string          `yaml:"auth_secret"` // HMAC secret; empty disables auth
	AuthTTL     Duration        `yaml:"auth_ttl"`
	CORSOrigins []string        `yaml:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	Prompts int      `yaml:"prompts"` // prompts per window per session; 0 disables
	Window  Duration `yaml:"window"`
}

type RedisConfig struct {
	URL      string `yaml:"url"` // empty -> in-memory settings store
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"` // 16/24/32 bytes, encrypts stored API keys
}

type OnDeviceConfig struct {
	Enabled  bool `yaml:"enabled"`
	Simulate bool `yaml:"simulate"` // use the simulated runtime
}

type WebGPUConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Simulate     bool   `yaml:"simulate"`
	DefaultModel string `yaml:"default_model"` // catalog id loaded on initialize
}

type RemoteConfig struct {
	Flavor   string `yaml:"flavor"` // openai | anthropic | ollama
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint"` // override; empty -> flavor default
}

type ProvidersConfig struct {
	OnDevice OnDeviceConfig `yaml:"ondevice"`
	WebGPU   WebGPUConfig   `yaml:"webgpu"`
	Remote   RemoteConfig   `yaml:"remote"`
}

type ProbeConfig struct {
	Interval Duration `yaml:"interval"` // availability gauge refresh; 0 disables
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Security  SecurityConfig  `yaml:"security"`
	Providers ProvidersConfig `yaml:"providers"`
	Probe     ProbeConfig     `yaml:"probe"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.AuthTTL <= 0 {
		cfg.Server.AuthTTL = Duration(30 * time.Minute)
	}
	if cfg.Server.RateLimit.Prompts > 0 && cfg.Server.RateLimit.Window <= 0 {
		cfg.Server.RateLimit.Window = Duration(time.Minute)
	}
	if cfg.Providers.Remote.Flavor == "" {
		cfg.Providers.Remote.Flavor = "ollama"
	}
}
