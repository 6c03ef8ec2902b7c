package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default mode is api",
			check:  func(c *Config) bool { return c.Mode == "api" },
			expect: "api",
		},
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 8080",
			check:  func(c *Config) bool { return c.Port == 8080 },
			expect: "8080",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "default metrics path",
			check:  func(c *Config) bool { return c.MetricsPath == "/metrics" },
			expect: "/metrics",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" },
			expect: "0.0.0.0:8080",
		},
		{
			name:   "default batch size is 50",
			check:  func(c *Config) bool { return c.BatchSize == 50 },
			expect: "50",
		},
		{
			name:   "default flush interval is 5s",
			check:  func(c *Config) bool { return c.FlushInterval == 5*time.Second },
			expect: "5s",
		},
		{
			name:   "default jwt algorithm is HS256",
			check:  func(c *Config) bool { return c.JWTAlgorithm == "HS256" },
			expect: "HS256",
		},
		{
			name:   "default profile threshold is 0.8",
			check:  func(c *Config) bool { return c.ProfileThreshold == 0.8 },
			expect: "0.8",
		},
		{
			name:   "default kafka identities topic",
			check:  func(c *Config) bool { return c.KafkaIdentitiesTopic == "cloud_identities" },
			expect: "cloud_identities",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}
