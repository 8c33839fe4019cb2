package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "INR", cfg.Payment.Currency)
	assert.Equal(t, 20*time.Second, cfg.Payment.Timeout())
	assert.Equal(t, "token", cfg.Auth.CookieName)
	assert.Equal(t, 30*time.Second, cfg.Business.PlacementLockTTL())
}

func TestValidateRequiresSecretsOutsideDevelopment(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Env: "production"},
		Payment:  PaymentConfig{TimeoutSeconds: 20},
		Business: BusinessConfig{PlacementLockSeconds: 30, OrderTimeoutSeconds: 1800, SweepIntervalSeconds: 60},
	}
	assert.Error(t, cfg.Validate())

	cfg.Payment.KeyID = "rzp_live_x"
	cfg.Payment.KeySecret = "secret"
	assert.Error(t, cfg.Validate())

	cfg.Auth.JWTSecret = "jwt"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveTimeout(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Env: "development"},
		Payment:  PaymentConfig{TimeoutSeconds: 0},
		Business: BusinessConfig{PlacementLockSeconds: 30},
	}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsPaymentTimeoutOutlivingLock(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Env: "development"},
		Payment:  PaymentConfig{TimeoutSeconds: 30},
		Business: BusinessConfig{PlacementLockSeconds: 30, OrderTimeoutSeconds: 1800, SweepIntervalSeconds: 60},
	}
	assert.Error(t, cfg.Validate())

	cfg.Payment.TimeoutSeconds = 29
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsZeroSweepInterval(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Env: "development"},
		Payment:  PaymentConfig{TimeoutSeconds: 20},
		Business: BusinessConfig{PlacementLockSeconds: 30, OrderTimeoutSeconds: 1800},
	}
	assert.Error(t, cfg.Validate())
}
