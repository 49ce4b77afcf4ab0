package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 300*time.Second, cfg.Sessions.TTL)
	assert.Equal(t, 45, cfg.Sessions.DefaultClassSize)
	assert.True(t, cfg.Sessions.DeviceCheck)
	assert.Equal(t, "ams_global_sync", cfg.Realtime.Channel)
	assert.Equal(t, 1500*time.Millisecond, cfg.Realtime.Debounce)
	assert.Equal(t, time.Minute, cfg.Presence.HeartbeatInterval)
	assert.Equal(t, 30*time.Second, cfg.Presence.StatusCacheTTL)
	assert.Equal(t, int64(5*1024*1024), cfg.Roster.MaxUploadBytes)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("SESSION_TTL", "2m")
	v.Set("SESSION_DEFAULT_CLASS_SIZE", 0)
	v.Set("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	cfg := fromViper(v)

	assert.Equal(t, 2*time.Minute, cfg.Sessions.TTL)
	assert.Equal(t, 45, cfg.Sessions.DefaultClassSize)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Second, parseDuration("", time.Second))
	assert.Equal(t, time.Second, parseDuration("soon", time.Second))
	assert.Equal(t, 3*time.Minute, parseDuration("3m", time.Second))
}
