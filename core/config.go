package core

import (
	"fmt"
	"strings"
	"time"
)

type DisconnectPolicy string

const (
	// DisconnectRetain keeps stored credentials after disconnect.
	DisconnectRetain DisconnectPolicy = "retain"
	// DisconnectPurge deletes every namespaced credential on disconnect.
	DisconnectPurge DisconnectPolicy = "purge"
)

func (p DisconnectPolicy) Valid() bool {
	return p == DisconnectRetain || p == DisconnectPurge
}

type RetryConfig struct {
	MaxAttempts int   `koanf:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMs int64 `koanf:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMs  int64 `koanf:"max_delay_ms" mapstructure:"max_delay_ms"`
}

func (c RetryConfig) Options() RetryOptions {
	return RetryOptions{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   time.Duration(c.BaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.MaxDelayMs) * time.Millisecond,
	}
}

type FailoverConfig struct {
	Conditions []string `koanf:"conditions" mapstructure:"conditions"`
}

func (c FailoverConfig) FailoverConditions() []FailoverCondition {
	out := make([]FailoverCondition, 0, len(c.Conditions))
	for _, raw := range c.Conditions {
		condition := FailoverCondition(strings.ToLower(strings.TrimSpace(raw)))
		if condition.Valid() {
			out = append(out, condition)
		}
	}
	return out
}

type CredentialsConfig struct {
	DisconnectPolicy string `koanf:"disconnect_policy" mapstructure:"disconnect_policy"`
	TTLSeconds       int64  `koanf:"ttl_seconds" mapstructure:"ttl_seconds"`
}

func (c CredentialsConfig) Policy() DisconnectPolicy {
	policy := DisconnectPolicy(strings.ToLower(strings.TrimSpace(c.DisconnectPolicy)))
	if policy == "" {
		return DisconnectRetain
	}
	return policy
}

func (c CredentialsConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	Retry       RetryConfig       `koanf:"retry" mapstructure:"retry"`
	Failover    FailoverConfig    `koanf:"failover" mapstructure:"failover"`
	Credentials CredentialsConfig `koanf:"credentials" mapstructure:"credentials"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "integrations",
		Retry: RetryConfig{
			MaxAttempts: DefaultRetryMaxAttempts,
			BaseDelayMs: DefaultRetryBaseDelay.Milliseconds(),
			MaxDelayMs:  DefaultRetryMaxDelay.Milliseconds(),
		},
		Failover: FailoverConfig{
			Conditions: []string{
				string(FailoverServiceUnavailable),
				string(FailoverRateLimit),
				string(FailoverTimeout),
			},
		},
		Credentials: CredentialsConfig{
			DisconnectPolicy: string(DisconnectRetain),
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("core: retry.max_attempts must be at least 1")
	}
	if err := c.Retry.Options().Validate(); err != nil {
		return fmt.Errorf("core: invalid retry config: %w", err)
	}
	for _, raw := range c.Failover.Conditions {
		if !FailoverCondition(strings.ToLower(strings.TrimSpace(raw))).Valid() {
			return fmt.Errorf("core: unknown failover condition %q", raw)
		}
	}
	if !c.Credentials.Policy().Valid() {
		return fmt.Errorf("core: unknown disconnect_policy %q", c.Credentials.DisconnectPolicy)
	}
	if c.Credentials.TTLSeconds < 0 {
		return fmt.Errorf("core: credentials.ttl_seconds must not be negative")
	}
	return nil
}
