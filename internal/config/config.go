package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	pkgconfig "posagent/pkg/config"
)

// ClassifierConfig points at the language-understanding collaborator.
type ClassifierConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Timezone       string `yaml:"timezone"`
}

func (c ClassifierConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StoreConfig points at the external document store.
type StoreConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	CollectionID   string `yaml:"collection_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (c StoreConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// HandlerConfig points at one downstream handler. Timeouts absorb handler
// cold starts; defaults sit in the 6-35s band.
type HandlerConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (c HandlerConfig) Timeout(def time.Duration) time.Duration {
	if c.TimeoutSeconds <= 0 {
		return def
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// HandlersConfig lists every downstream handler collaborator.
type HandlersConfig struct {
	Calendar   HandlerConfig `yaml:"calendar"`
	Email      HandlerConfig `yaml:"email"`
	Research   HandlerConfig `yaml:"research"`
	Message    HandlerConfig `yaml:"message"`
	Experience HandlerConfig `yaml:"experience"`
}

// AgentConfig holds routing policy knobs.
type AgentConfig struct {
	SourceTag       string `yaml:"source_tag"`
	FallbackEmail   string `yaml:"fallback_email"`
	EmailLinkBase   string `yaml:"email_link_base"`
	DedupTTLSeconds int    `yaml:"dedup_ttl_seconds"`
}

func (c AgentConfig) DedupTTL() time.Duration {
	if c.DedupTTLSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.DedupTTLSeconds) * time.Second
}

// Config is built once in main and passed into each component.
type Config struct {
	Server     pkgconfig.ServerConfig `yaml:"server"`
	Classifier ClassifierConfig       `yaml:"classifier"`
	Store      StoreConfig            `yaml:"store"`
	Handlers   HandlersConfig         `yaml:"handlers"`
	Agent      AgentConfig            `yaml:"agent"`
	DB         pkgconfig.DBConfig     `yaml:"db"`
	Redis      pkgconfig.RedisConfig  `yaml:"redis"`
	MQ         pkgconfig.MQConfig     `yaml:"mq"`
	JWT        pkgconfig.JWTConfig    `yaml:"jwt"`
}

// AuditEnabled reports whether the Postgres audit journal is configured.
func (c *Config) AuditEnabled() bool { return c.DB.Host != "" }

// DedupEnabled reports whether the redis replay guard is configured.
func (c *Config) DedupEnabled() bool { return c.Redis.Addr != "" }

// EventsEnabled reports whether resolved-intent publishing is configured.
func (c *Config) EventsEnabled() bool { return c.MQ.URL != "" }

// AuthEnabled reports whether the bearer-token gate is configured.
func (c *Config) AuthEnabled() bool { return c.JWT.Secret != "" }

// Load reads config/base.yaml plus the CONFIG_ENV overlay, converts the
// merged map into the typed Config, then applies env-var overrides.
func Load() (*Config, error) {
	env := pkgconfig.GetConfigEnv()
	configDir := pkgconfig.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := pkgconfig.LoadConfig(env, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var cfg Config
	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	pkgconfig.OverrideServerFromEnv(&cfg.Server)
	pkgconfig.OverrideDBFromEnv(&cfg.DB)
	pkgconfig.OverrideRedisFromEnv(&cfg.Redis)
	pkgconfig.OverrideMQFromEnv(&cfg.MQ)
	pkgconfig.OverrideJWTFromEnv(&cfg.JWT)
	overrideClassifierFromEnv(&cfg.Classifier)
	overrideStoreFromEnv(&cfg.Store)

	applyDefaults(&cfg)

	if cfg.Classifier.BaseURL == "" {
		return nil, fmt.Errorf("classifier.base_url is required")
	}
	if cfg.Store.BaseURL == "" {
		return nil, fmt.Errorf("store.base_url is required")
	}

	return &cfg, nil
}

func overrideClassifierFromEnv(cfg *ClassifierConfig) {
	if url := os.Getenv("CLASSIFIER_BASE_URL"); url != "" {
		cfg.BaseURL = url
	}
	if key := os.Getenv("CLASSIFIER_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if model := os.Getenv("CLASSIFIER_MODEL"); model != "" {
		cfg.Model = model
	}
}

func overrideStoreFromEnv(cfg *StoreConfig) {
	if url := os.Getenv("STORE_BASE_URL"); url != "" {
		cfg.BaseURL = url
	}
	if token := os.Getenv("STORE_TOKEN"); token != "" {
		cfg.Token = token
	}
	if id := os.Getenv("STORE_COLLECTION_ID"); id != "" {
		cfg.CollectionID = id
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = "llama3-8b-8192"
	}
	if cfg.Classifier.Timezone == "" {
		cfg.Classifier.Timezone = "Asia/Kolkata"
	}
	if cfg.Agent.SourceTag == "" {
		cfg.Agent.SourceTag = "parent-agent"
	}
	if cfg.Agent.EmailLinkBase == "" {
		cfg.Agent.EmailLinkBase = "https://mail.google.com/mail/u/0/#all/"
	}
}
