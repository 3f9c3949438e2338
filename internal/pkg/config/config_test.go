package config

import (
	"strings"
	"testing"
	"time"

	"github.com/samirrijal/servezone/internal/core/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("servezone-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Geolocation.TTLSeconds != 1800 {
		t.Errorf("expected ttl 1800, got %d", cfg.Geolocation.TTLSeconds)
	}
	if cfg.Geolocation.LowAccuracyTimeoutMs != 20000 || cfg.Geolocation.HighAccuracyTimeoutMs != 30000 {
		t.Errorf("unexpected timeouts %+v", cfg.Geolocation)
	}
	if !cfg.Geolocation.PreferLowAccuracyFirst {
		t.Error("expected low accuracy first by default")
	}
	if cfg.Telemetry.ServiceName != "servezone-test" {
		t.Errorf("expected service name from argument, got %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SERVEZONE_GEOLOCATION_TTL_SECONDS", "60")
	t.Setenv("SERVEZONE_GEOLOCATION_PREFER_LOW_ACCURACY_FIRST", "false")
	t.Setenv("SERVEZONE_GEOCODER_REGION", "in")

	cfg, err := Load("servezone-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Geolocation.TTL() != time.Minute {
		t.Errorf("expected 1m ttl, got %v", cfg.Geolocation.TTL())
	}
	if cfg.Geolocation.PreferLowAccuracyFirst {
		t.Error("expected env to disable low accuracy first")
	}
	if cfg.Geocoder.Region != "in" {
		t.Errorf("expected region in, got %q", cfg.Geocoder.Region)
	}
}

func TestLoad_InvalidEnvFailsValidation(t *testing.T) {
	t.Setenv("SERVEZONE_GEOLOCATION_LOW_ACCURACY_TIMEOUT_MS", "0")
	if _, err := Load("servezone-test"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestGeolocationConfig_AcquireOptions(t *testing.T) {
	g := GeolocationConfig{
		PreferLowAccuracyFirst: true,
		LowAccuracyTimeoutMs:   20000,
		HighAccuracyTimeoutMs:  30000,
		MaxStalenessMs:         1500,
	}
	want := domain.AcquireOptions{
		TierOrder:           domain.TierOrderLowFirst,
		LowAccuracyTimeout:  20 * time.Second,
		HighAccuracyTimeout: 30 * time.Second,
		MaxStaleness:        1500 * time.Millisecond,
	}
	if got := g.AcquireOptions(); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.port", "database.host", "nats.url", "geolocation.ttl_seconds", "temporal.audit_interval_minutes"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in error:\n%s", want, err)
		}
	}
}
