package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with defaults: %v", err)
	}
	if cfg.Port != "3000" {
		t.Fatalf("unexpected default port: %q", cfg.Port)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("unexpected default gin mode: %q", cfg.GinMode)
	}
	if cfg.APIBasePath != "/api" {
		t.Fatalf("unexpected default api base: %q", cfg.APIBasePath)
	}
	if cfg.Pay.InvoiceLifetime != 120*time.Second {
		t.Fatalf("unexpected default invoice lifetime: %v", cfg.Pay.InvoiceLifetime)
	}
	if cfg.PageSize < 1 {
		t.Fatalf("unexpected default page size: %d", cfg.PageSize)
	}
}

func TestLoad_EnvOverridesAndNormalization(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("LOG_LEVEL", "WARNING") // normalized to warn
	t.Setenv("GIN_MODE", "bogus")    // coerced to release
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("PAY_INVOICE_LIFETIME", "90s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("PORT override ignored: %q", cfg.Port)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected warn, got %q", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("expected release coercion, got %q", cfg.GinMode)
	}
	if cfg.APIBasePath != "/api/v2" {
		t.Fatalf("base path not normalized: %q", cfg.APIBasePath)
	}
	if cfg.Pay.InvoiceLifetime != 90*time.Second {
		t.Fatalf("invoice lifetime override ignored: %v", cfg.Pay.InvoiceLifetime)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"LOG_LEVEL":            "verbose",
		"PAGE_SIZE":            "0",
		"RATE_BURST":           "0",
		"INVOICE_POLL_MAX":     "-5s",
		"PAY_INVOICE_LIFETIME": "-1s",
	}
	for key, bad := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, bad)
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error for %s=%q", key, bad)
			}
		})
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":        "/",
		"/":       "/",
		"api":     "/api",
		"/api/":   "/api",
		"/api/v1": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
