package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpiration(t *testing.T) {
	d, err := ParseExpiration("7d")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	d, err = ParseExpiration("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	for _, bad := range []string{"", "xd", "0d", "-5m", "soon"} {
		_, err := ParseExpiration(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("ALLOWED_ORIGINS", " http://a.test , ,http://b.test")
	t.Setenv("JWT_EXPIRATION", "2d")
	t.Setenv("FRONTEND_URL", "http://portal.test/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, 48*time.Hour, cfg.JWTExpiration)
	assert.Equal(t, "http://portal.test", cfg.FrontendURL)
	assert.Equal(t, 24*time.Hour, cfg.ResetTokenTTL)
	assert.False(t, cfg.IsProduction())
}

func TestLoadProductionRequiresSecrets(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DATABASE_URL", "postgres://localhost/incidents")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestLoadRejectsBadExpiration(t *testing.T) {
	t.Setenv("JWT_EXPIRATION", "forever")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsNonPositiveDurations(t *testing.T) {
	for _, key := range []string{"RESET_SWEEP_INTERVAL", "RESET_TOKEN_TTL"} {
		for _, val := range []string{"0s", "-1m"} {
			t.Run(key+"="+val, func(t *testing.T) {
				t.Setenv(key, val)
				_, err := Load()
				assert.ErrorContains(t, err, key)
			})
		}
	}
}
