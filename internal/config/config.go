// Package config loads process configuration from an optional YAML file,
// environment variables, and defaults: environment values override file
// values and defaults fill whatever is still zero, a
// file->env->defaults three-pass structure, narrowed to the variables the
// radio coordination service actually needs at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full set of tunables the service exposes at startup.
type Config struct {
	Port            int      `yaml:"port"`
	RobloxServerKey string   `yaml:"roblox_server_key"`
	WebTokenSecret  string   `yaml:"web_token_secret"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	MaxSSEPerUser   int      `yaml:"max_sse_per_user"`
	MaxSSEPerIP     int      `yaml:"max_sse_per_ip"`

	SessionTTLMS    int64 `yaml:"session_ttl_ms"`
	RadioTTLMS      int64 `yaml:"radio_ttl_ms"`
	StateTTLMS      int64 `yaml:"state_ttl_ms"`
	StateMinGapMS   int64 `yaml:"state_min_gap_ms"`
	WebTokenTTLMS   int64 `yaml:"web_token_ttl_ms"`
	JoinDedupMS     int64 `yaml:"join_dedup_ms"`
	MuteDedupMS     int64 `yaml:"mute_dedup_ms"`
	PushHeartbeatMS int64 `yaml:"push_heartbeat_ms"`
}

// Load reads an optional YAML file at path (missing file is not an error),
// applies environment overrides, validates, then fills defaults — mirroring
// lobby's Load/applyEnvOverrides/validate/setDefaults pipeline.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envStringSlice(key string, dst *[]string) {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
		*dst = origins
	}
}

func (c *Config) applyEnvOverrides() {
	envInt("PORT", &c.Port)
	envString("ROBLOX_SERVER_KEY", &c.RobloxServerKey)
	envString("WEB_TOKEN_SECRET", &c.WebTokenSecret)
	envStringSlice("ALLOWED_ORIGINS", &c.AllowedOrigins)
	envInt("MAX_SSE_PER_USER", &c.MaxSSEPerUser)
	envInt("MAX_SSE_PER_IP", &c.MaxSSEPerIP)
}

func (c *Config) validate() error {
	if c.Port < 0 {
		return fmt.Errorf("port must be >= 0")
	}
	if c.MaxSSEPerUser < 0 {
		return fmt.Errorf("max_sse_per_user must be >= 0")
	}
	if c.MaxSSEPerIP < 0 {
		return fmt.Errorf("max_sse_per_ip must be >= 0")
	}
	return nil
}

// setDefaults fills every field a bare PORT-only deployment would otherwise
// leave zero. The TTL/window constants are only overridable via the config
// file, not individually by environment variable.
func (c *Config) setDefaults() {
	if c.Port == 0 {
		c.Port = 3000
	}
	if c.MaxSSEPerUser == 0 {
		c.MaxSSEPerUser = 3
	}
	if c.MaxSSEPerIP == 0 {
		c.MaxSSEPerIP = 10
	}
	if c.SessionTTLMS == 0 {
		c.SessionTTLMS = 120_000
	}
	if c.RadioTTLMS == 0 {
		c.RadioTTLMS = 300_000
	}
	if c.StateTTLMS == 0 {
		c.StateTTLMS = 25_000
	}
	if c.StateMinGapMS == 0 {
		c.StateMinGapMS = 700
	}
	if c.WebTokenTTLMS == 0 {
		c.WebTokenTTLMS = 600_000
	}
	if c.JoinDedupMS == 0 {
		c.JoinDedupMS = 10_000
	}
	if c.MuteDedupMS == 0 {
		c.MuteDedupMS = 1_500
	}
	if c.PushHeartbeatMS == 0 {
		c.PushHeartbeatMS = 20_000
	}
}

// Addr returns the listen address for http.Server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
