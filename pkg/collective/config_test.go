package collective

import (
	"errors"
	"testing"
	"time"

	"github.com/dd0wney/cluso-kmeans/pkg/validation"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"distributed worker", func(c *Config) { c.Size, c.Rank = 4, 3 }, false},
		{"rank out of range", func(c *Config) { c.Size, c.Rank = 2, 2 }, true},
		{"negative rank", func(c *Config) { c.Rank = -1 }, true},
		{"zero size", func(c *Config) { c.Size = 0 }, true},
		{"unknown transport", func(c *Config) { c.Transport = "grpc" }, true},
		{"bad address", func(c *Config) { c.Size, c.Address = 2, "localhost:7070" }, true},
		{"inproc address", func(c *Config) { c.Size, c.Address = 2, "inproc://run" }, false},
		{"single worker ignores address", func(c *Config) { c.Address = "" }, false},
		{"bad progress address", func(c *Config) { c.ProgressAddress = "http://x" }, true},
		{"negative timeout", func(c *Config) { c.OpTimeout = -time.Second }, true},
		{"secret needs ttl", func(c *Config) { c.JoinSecret, c.TokenTTL = "x", 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Transport != TransportNNG || cfg.Size != 1 || cfg.CompressThreshold != DefaultCompressThreshold {
		t.Errorf("ApplyDefaults() = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaulted config invalid: %v", err)
	}
}

func TestNewSocketFactory(t *testing.T) {
	if _, err := NewSocketFactory(""); err != nil {
		t.Errorf("default transport: %v", err)
	}
	if _, err := NewSocketFactory(TransportNNG); err != nil {
		t.Errorf("nng transport: %v", err)
	}
	if _, err := NewSocketFactory("carrier-pigeon"); !errors.Is(err, ErrUnsupportedTransport) {
		t.Errorf("unknown transport error = %v", err)
	}
}

func TestLocalAddress(t *testing.T) {
	if err := validation.ValidateAddress(LocalAddress("abc")); err != nil {
		t.Errorf("LocalAddress is not a valid address: %v", err)
	}
}
