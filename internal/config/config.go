package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every tunable of a running Agent: buffer sizing, adapter
// transport timeouts, the embedded REST/MQTT servers, and upstream ingest.
// Precedence on Load: CLI flags > environment variables > .env file >
// struct defaults, same chain as the teacher's loader.
type Config struct {
	// Identity
	DeviceName string `env:"DEVICE_NAME" envDefault:"DefaultDevice"`
	Sender     string `env:"SENDER" envDefault:"mtcagent"`
	Version    string `env:"AGENT_VERSION" envDefault:"1.7"`

	// Buffers (§4.5, §4.6)
	BufferSize          int `env:"BUFFER_SIZE" envDefault:"131072"`
	CheckpointInterval  int `env:"CHECKPOINT_INTERVAL" envDefault:"1000"`
	MaxAssets           int `env:"MAX_ASSETS" envDefault:"1024"`

	// REST server (C11/C12)
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":5000"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	AllowPut     bool          `env:"ALLOW_PUT" envDefault:"false"`

	CORSOrigins    string  `env:"CORS_ORIGINS"` // comma-separated allowed origins; empty = allow all (*)
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"100"`
	LogLevel       string  `env:"LOG_LEVEL" envDefault:"info"`

	// SHDR TCP adapter (C9, §4.8)
	AdapterHost           string        `env:"ADAPTER_HOST" envDefault:"localhost"`
	AdapterPort           int           `env:"ADAPTER_PORT" envDefault:"7878"`
	AdapterConnectTimeout time.Duration `env:"ADAPTER_CONNECT_TIMEOUT" envDefault:"5s"`
	AdapterHeartbeat      time.Duration `env:"ADAPTER_HEARTBEAT" envDefault:"10s"`
	AdapterReconnectDelay time.Duration `env:"ADAPTER_RECONNECT_DELAY" envDefault:"10s"`
	AdapterLegacyTimeout  time.Duration `env:"ADAPTER_LEGACY_TIMEOUT" envDefault:"60s"`

	// MQTT-sourced adapter (C9-alt)
	MQTTAdapterBrokerURL string `env:"MQTT_ADAPTER_BROKER_URL"`
	MQTTAdapterTopic     string `env:"MQTT_ADAPTER_TOPIC"`
	MQTTAdapterClientID  string `env:"MQTT_ADAPTER_CLIENT_ID" envDefault:"mtcagent-adapter"`
	MQTTAdapterUsername  string `env:"MQTT_ADAPTER_USERNAME"`
	MQTTAdapterPassword  string `env:"MQTT_ADAPTER_PASSWORD"`

	// Upstream agent ingest (C10, §4.9)
	UpstreamBaseURL    string        `env:"UPSTREAM_BASE_URL"`
	UpstreamPollPeriod time.Duration `env:"UPSTREAM_POLL_PERIOD" envDefault:"2s"`

	// Embedded MQTT document broker (§6.3)
	MQTTServerEnabled    bool   `env:"MQTT_SERVER_ENABLED" envDefault:"false"`
	MQTTServerAddr       string `env:"MQTT_SERVER_ADDR" envDefault:":1883"`
	MQTTServerQoS        byte   `env:"MQTT_SERVER_QOS" envDefault:"0"`
	ProbeTopic           string `env:"MQTT_PROBE_TOPIC" envDefault:"MTConnect/Probe"`
	CurrentTopic         string `env:"MQTT_CURRENT_TOPIC" envDefault:"MTConnect/Current"`
	SampleTopic          string `env:"MQTT_SAMPLE_TOPIC" envDefault:"MTConnect/Sample"`
	AssetTopic           string `env:"MQTT_ASSET_TOPIC" envDefault:"MTConnect/Asset"`
	DeviceTopic          string `env:"MQTT_DEVICE_TOPIC" envDefault:"MTConnect/Device"`
	ObservationTopic     string `env:"MQTT_OBSERVATION_TOPIC" envDefault:"MTConnect/Observation"`
	MQTTPublishPeriod    time.Duration `env:"MQTT_PUBLISH_PERIOD" envDefault:"2s"`

	// Live config/plugin watch (§6.5)
	ConfigPath string `env:"MTC_CONFIG_PATH" envDefault:"agent.cfg"`
	DataPath   string `env:"MTC_DATA_PATH" envDefault:"."`
	PluginPath string `env:"MTC_PLUGIN_PATH"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// Validate checks invariants Load cannot enforce field-by-field: at least one
// ingest source must be configured, or the agent would sit buffered-empty
// forever.
func (c *Config) Validate() error {
	if c.AdapterHost == "" && c.MQTTAdapterBrokerURL == "" && c.UpstreamBaseURL == "" {
		return fmt.Errorf("at least one of ADAPTER_HOST, MQTT_ADAPTER_BROKER_URL, or UPSTREAM_BASE_URL must be set")
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("BUFFER_SIZE must be positive")
	}
	return nil
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	ConfigPath  string
	HTTPAddr    string
	LogLevel    string
	AdapterHost string
	AdapterPort int
}

// Load reads configuration from a .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file > struct
// defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.ConfigPath != "" {
		cfg.ConfigPath = overrides.ConfigPath
	}
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.AdapterHost != "" {
		cfg.AdapterHost = overrides.AdapterHost
	}
	if overrides.AdapterPort != 0 {
		cfg.AdapterPort = overrides.AdapterPort
	}

	return cfg, nil
}
