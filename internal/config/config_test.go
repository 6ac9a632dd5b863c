package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates that defaults are applied and required secrets are enforced.
// Scope: Unit Test
// Expected: Load fails without DB_PASSWORD / AUTH_VERIFICATION_SECRET and succeeds with them.
// Test Case ID: CFG-01
func TestConfig_Load_Defaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("AUTH_VERIFICATION_SECRET", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("AUTH_VERIFICATION_SECRET", "link-secret")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 3, cfg.OTP.MaxResends)
	assert.Equal(t, "", cfg.SMS.Provider, "empty SMS provider means log-only delivery")
	assert.Equal(t, 14, cfg.Subscription.DefaultTrialDays)
	assert.Equal(t, "log", cfg.Mail.Provider)
}

// TestPurpose: Validates provider selectors are checked against their required settings.
// Scope: Unit Test
// Expected: gateway SMS without URL, unknown SMS provider and sendgrid without key are rejected.
// Test Case ID: CFG-02
func TestConfig_Validate_Providers(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database: DatabaseConfig{Password: "x"},
			Auth:     AuthConfig{VerificationSecret: "y"},
			Mail:     MailConfig{Provider: "log"},
		}
	}

	c := base()
	c.SMS.Provider = "gateway"
	assert.Error(t, c.Validate())

	c.SMS.GatewayURL = "https://sms.example.com/send"
	assert.NoError(t, c.Validate())

	c = base()
	c.SMS.Provider = "pigeon"
	assert.Error(t, c.Validate())

	c = base()
	c.Mail.Provider = "sendgrid"
	assert.Error(t, c.Validate())
}

func TestParseDuration_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_DURATION", "not-a-duration")
	assert.Equal(t, 5*time.Second, parseDuration("SOME_DURATION", "5s"))
}
