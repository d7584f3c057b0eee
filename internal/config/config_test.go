// internal/config/config_test.go
package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/k256-xyz/gateway-go/internal/config"
)

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load with defaults failed: %v", err)
	}
	if cfg.Gateway.Endpoint != "wss://gateway.k256.xyz/v1/ws" {
		t.Errorf("unexpected default endpoint: %q", cfg.Gateway.Endpoint)
	}
	if cfg.Gateway.BufferSize != 1024 {
		t.Errorf("unexpected default buffer_size: %d", cfg.Gateway.BufferSize)
	}
	if cfg.Gateway.HandshakeTimeout != 10*time.Second {
		t.Errorf("unexpected handshake_timeout: %v", cfg.Gateway.HandshakeTimeout)
	}
	if cfg.Kafka.PoolsTopic != "solana.pools" {
		t.Errorf("unexpected pools topic: %q", cfg.Kafka.PoolsTopic)
	}
	if got := len(cfg.Gateway.Channels); got != 3 {
		t.Errorf("expected 3 default channels, got %d: %v", got, cfg.Gateway.Channels)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		t.Error("expected a default kafka broker")
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := strings.Join([]string{
		"gateway:",
		"  endpoint: wss://example.test/ws",
		"  channels: [pools]",
		"  buffer_size: 16",
		"kafka:",
		"  brokers: [localhost:9092]",
		"  compression: snappy",
		"logging:",
		"  level: debug",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%s) failed: %v", path, err)
	}
	if cfg.Gateway.Endpoint != "wss://example.test/ws" {
		t.Errorf("endpoint not overridden: %q", cfg.Gateway.Endpoint)
	}
	if cfg.Gateway.BufferSize != 16 {
		t.Errorf("buffer_size not overridden: %d", cfg.Gateway.BufferSize)
	}
	if cfg.Kafka.Compression != "snappy" {
		t.Errorf("compression not overridden: %q", cfg.Kafka.Compression)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level not overridden: %q", cfg.Logging.Level)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		yaml []string
	}{
		{"bad acks", []string{"kafka:", "  acks: maybe"}},
		{"bad compression", []string{"kafka:", "  compression: brotli"}},
		{"bad log level", []string{"logging:", "  level: loud"}},
		{"zero buffer", []string{"gateway:", "  buffer_size: 0"}},
		{"no subscriptions", []string{"gateway:", "  channels: []", "  price_tokens: []"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(strings.Join(tc.yaml, "\n")+"\n"), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := config.Load(path); err == nil {
				t.Errorf("expected validation error for %s", tc.name)
			}
		})
	}
}
