package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("CRM_BASE_URL", " https://crm.example.com/ ")

	cfg := Load()
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "https://crm.example.com", cfg.CRM.BaseURL)
	assert.Equal(t, DefaultCountryCode, cfg.Lead.DefaultCountryCode)
	assert.Equal(t, 72*time.Hour, cfg.Geolocation.CacheTTL)
	assert.True(t, cfg.Attribution.SecureCookie)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.Interval)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoadParsesDurationsAndLists(t *testing.T) {
	t.Setenv("GEOLOCATION_CACHE_TTL", "3600")
	t.Setenv("CRM_TIMEOUT", "5s")
	t.Setenv("ROTATION_LOCK_TTL", "-3")
	t.Setenv("SCHEDULER_JOBS", "connection_check, ,campaign_warmup")
	t.Setenv("RATE_LIMIT_ENABLED", "off")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.10")

	cfg := Load()
	assert.Equal(t, time.Hour, cfg.Geolocation.CacheTTL)
	assert.Equal(t, 5*time.Second, cfg.CRM.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Rotation.LockTTL)
	assert.Equal(t, []string{"connection_check", "campaign_warmup"}, cfg.Scheduler.Jobs)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.10"}, cfg.TrustedProxies)
}
