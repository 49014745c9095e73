package lyreclient

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"missing base url", func(c *Config) { c.API.BaseURL = " " }, false},
		{"negative timeout", func(c *Config) { c.API.Timeout = -time.Second }, false},
		{"warning exceeds timeout", func(c *Config) {
			c.Session.Timeout = 10 * time.Minute
			c.Session.Warning = 10 * time.Minute
		}, false},
		{"negative rate limit", func(c *Config) {
			c.RateLimit.Login = RateLimitRule{MaxAttempts: -1}
		}, false},
		{"custom limits", func(c *Config) {
			c.RateLimit.Login = RateLimitRule{MaxAttempts: 10, Window: time.Hour, BlockDuration: time.Hour}
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("invalid config accepted")
			}
		})
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New()
	c, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("second Build accepted")
	}
}
