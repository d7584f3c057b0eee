// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/k256-xyz/gateway-go/pkg/backoff"
)

/*
   --------------------------------------------------------------------------
   СТРУКТУРЫ
   --------------------------------------------------------------------------
*/

// Config — все настройки коллектора.
type Config struct {
	ServiceName    string        `mapstructure:"service_name"`
	ServiceVersion string        `mapstructure:"service_version"`
	Gateway        GatewayConfig `mapstructure:"gateway"`
	Kafka          KafkaConfig   `mapstructure:"kafka"`
	Telemetry      Telemetry     `mapstructure:"telemetry"`
	Logging        Logging       `mapstructure:"logging"`
	HTTP           HTTPConfig    `mapstructure:"http"`
}

// GatewayConfig хранит настройки подключения к шлюзу рыночных данных.
type GatewayConfig struct {
	Endpoint          string         `mapstructure:"endpoint"`
	APIKey            string         `mapstructure:"api_key"`
	Channels          []string       `mapstructure:"channels"`
	Protocols         []string       `mapstructure:"protocols"`
	PriceTokens       []string       `mapstructure:"price_tokens"`
	PriceThresholdBps int            `mapstructure:"price_threshold_bps"`
	BufferSize        int            `mapstructure:"buffer_size"`
	HandshakeTimeout  time.Duration  `mapstructure:"handshake_timeout"`
	PingInterval      time.Duration  `mapstructure:"ping_interval"`
	ReadTimeout       time.Duration  `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration  `mapstructure:"write_timeout"`
	Backoff           backoff.Config `mapstructure:"backoff"`
}

// KafkaConfig хранит настройки Kafka и имена топиков по каналам.
type KafkaConfig struct {
	Brokers        []string       `mapstructure:"brokers"`
	PoolsTopic     string         `mapstructure:"pools_topic"`
	FeesTopic      string         `mapstructure:"fees_topic"`
	BlockhashTopic string         `mapstructure:"blockhash_topic"`
	PricesTopic    string         `mapstructure:"prices_topic"`
	Timeout        time.Duration  `mapstructure:"timeout"`
	Acks           string         `mapstructure:"acks"`
	Compression    string         `mapstructure:"compression"`
	FlushFrequency time.Duration  `mapstructure:"flush_frequency"`
	FlushMessages  int            `mapstructure:"flush_messages"`
	Backoff        backoff.Config `mapstructure:"backoff"`
}

// Telemetry хранит настройки OpenTelemetry.
type Telemetry struct {
	OTLPEndpoint string `mapstructure:"otel_endpoint"`
	Insecure     bool   `mapstructure:"insecure"`
}

// Logging хранит настройки логгера.
type Logging struct {
	Level   string `mapstructure:"level"`
	DevMode bool   `mapstructure:"dev_mode"`
}

// HTTPConfig хранит конфигурацию HTTP-/metrics-сервера.
type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MetricsPath     string        `mapstructure:"metrics_path"`
	HealthzPath     string        `mapstructure:"healthz_path"`
	ReadyzPath      string        `mapstructure:"readyz_path"`
}

/*
   --------------------------------------------------------------------------
   LOADER
   --------------------------------------------------------------------------
*/

// Load загружает и валидирует конфиг. Если path пустой — читаются
// только ENV и defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	// ---------- 1) Defaults ----------
	v.SetDefault("service_name", "gateway-collector")
	v.SetDefault("service_version", "v0.1.0")

	// Gateway
	v.SetDefault("gateway.endpoint", "wss://gateway.k256.xyz/v1/ws")
	v.SetDefault("gateway.channels", []string{"pools", "priority_fees", "blockhash"})
	v.SetDefault("gateway.handshake_timeout", "10s")
	v.SetDefault("gateway.ping_interval", "30s")
	v.SetDefault("gateway.read_timeout", "90s")
	v.SetDefault("gateway.write_timeout", "10s")
	v.SetDefault("gateway.price_threshold_bps", 50)
	v.SetDefault("gateway.buffer_size", 1024)

	// Kafka
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.pools_topic", "solana.pools")
	v.SetDefault("kafka.fees_topic", "solana.fees")
	v.SetDefault("kafka.blockhash_topic", "solana.blockhash")
	v.SetDefault("kafka.prices_topic", "solana.prices")
	v.SetDefault("kafka.acks", "all")
	v.SetDefault("kafka.timeout", "15s")
	v.SetDefault("kafka.compression", "none")
	v.SetDefault("kafka.flush_frequency", "0s")
	v.SetDefault("kafka.flush_messages", 0)

	// Telemetry
	v.SetDefault("telemetry.otel_endpoint", "otel-collector:4317")
	v.SetDefault("telemetry.insecure", false)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dev_mode", false)

	// HTTP server defaults
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.shutdown_timeout", "5s")
	v.SetDefault("http.metrics_path", "/metrics")
	v.SetDefault("http.healthz_path", "/healthz")
	v.SetDefault("http.readyz_path", "/readyz")

	// ---------- 2) ENV ----------
	v.SetEnvPrefix("GATEWAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// ---------- 3) Optional file ----------
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", v.ConfigFileUsed(), err)
		}
	}

	// ---------- 4) Decode ----------
	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		stringToBoolHook,
	)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "mapstructure",
		Result:     &cfg,
		DecodeHook: decodeHook,
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// ---------- 5) Validation ----------
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// stringToBoolHook разбирает true/false, иначе отдаёт исходные данные.
func stringToBoolHook(f, t reflect.Kind, data interface{}) (interface{}, error) {
	if f == reflect.String && t == reflect.Bool {
		return strconv.ParseBool(data.(string))
	}
	return data, nil
}

/*
   --------------------------------------------------------------------------
   VALIDATION
   --------------------------------------------------------------------------
*/

func (c *Config) Validate() error {
	// Service
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version is required")
	}

	// Gateway
	if c.Gateway.Endpoint == "" {
		return fmt.Errorf("gateway.endpoint is required")
	}
	if len(c.Gateway.Channels) == 0 && len(c.Gateway.PriceTokens) == 0 {
		return fmt.Errorf("gateway.channels or gateway.price_tokens must contain at least one entry")
	}
	if c.Gateway.PriceThresholdBps < 0 {
		return fmt.Errorf("gateway.price_threshold_bps must be >= 0")
	}
	if c.Gateway.BufferSize <= 0 {
		return fmt.Errorf("gateway.buffer_size must be > 0")
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	if c.Kafka.PoolsTopic == "" || c.Kafka.FeesTopic == "" ||
		c.Kafka.BlockhashTopic == "" || c.Kafka.PricesTopic == "" {
		return fmt.Errorf("kafka topic names are required")
	}
	switch strings.ToLower(c.Kafka.Acks) {
	case "all", "leader", "none":
	default:
		return fmt.Errorf("kafka.acks must be one of [all, leader, none]")
	}
	switch strings.ToLower(c.Kafka.Compression) {
	case "none", "gzip", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("kafka.compression must be one of [none, gzip, snappy, lz4, zstd]")
	}

	// Telemetry
	if c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry.otel_endpoint is required")
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error]")
	}

	// HTTP
	return validateHTTP(&c.HTTP)
}

func validateHTTP(h *HTTPConfig) error {
	if h.Port <= 0 || h.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535")
	}
	durations := map[string]time.Duration{
		"http.read_timeout":     h.ReadTimeout,
		"http.write_timeout":    h.WriteTimeout,
		"http.idle_timeout":     h.IdleTimeout,
		"http.shutdown_timeout": h.ShutdownTimeout,
	}
	for k, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", k)
		}
	}
	paths := map[string]string{
		"http.metrics_path": h.MetricsPath,
		"http.healthz_path": h.HealthzPath,
		"http.readyz_path":  h.ReadyzPath,
	}
	for k, p := range paths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with '/'", k)
		}
	}
	return nil
}

/*
   --------------------------------------------------------------------------
   DEBUG PRINT
   --------------------------------------------------------------------------
*/

// Print выводит текущий конфиг в JSON (удобно в DevMode).
// API-ключ маскируется.
func (c *Config) Print() {
	masked := *c
	if masked.Gateway.APIKey != "" {
		masked.Gateway.APIKey = "***"
	}
	b, _ := json.MarshalIndent(masked, "", "  ")
	fmt.Println("Loaded configuration:\n", string(b))
}
