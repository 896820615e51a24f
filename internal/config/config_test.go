package config

import "testing"

func TestLoadDefaultsWithNoFileOrEnv(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 3000 {
		t.Fatalf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.MaxSSEPerUser != 3 || cfg.MaxSSEPerIP != 10 {
		t.Fatalf("unexpected SSE caps: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("AllowedOrigins = %v, want empty (allow-any)", cfg.AllowedOrigins)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("ROBLOX_SERVER_KEY", "secret-key")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.RobloxServerKey != "secret-key" {
		t.Fatalf("RobloxServerKey = %q", cfg.RobloxServerKey)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://a.example" {
		t.Fatalf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadRejectsNegativeSSECap(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_SSE_PER_USER", "-1")

	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for negative MAX_SSE_PER_USER")
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "ROBLOX_SERVER_KEY", "WEB_TOKEN_SECRET", "ALLOWED_ORIGINS", "MAX_SSE_PER_USER", "MAX_SSE_PER_IP"} {
		t.Setenv(key, "")
	}
}
