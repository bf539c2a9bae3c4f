package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	auth "github.com/txnjournal/go-txn-auth"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("NEXT_PUBLIC_SUPABASE_URL", "https://proj.supabase.co/")
	t.Setenv("SUPABASE_ANON_KEY", "")
	t.Setenv("NEXT_PUBLIC_SUPABASE_ANON_KEY", "anon")
	t.Setenv("KAFKA_BROKERS", " broker-1:9092, ,broker-2:9092")
	t.Setenv("PERMISSION_CHECK_TIMEOUT", "not-a-duration")
	t.Setenv("RETRY_MAX_ATTEMPTS", "-1")
	t.Setenv("ACTIVITY_CHANNEL", "")

	cfg := auth.ConfigFromEnv()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://proj.supabase.co", cfg.SupabaseURL)
	assert.Equal(t, "anon", cfg.SupabaseAnonKey)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, auth.DefaultPermissionCheckTimeout, cfg.PermissionCheckTimeout)
	assert.Equal(t, auth.DefaultRetryMaxAttempts, cfg.RetryMaxAttempts)
	assert.Equal(t, auth.LocaleEnglish, cfg.Locale)
	assert.Equal(t, "txn-auth", cfg.ActivityChannel)
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://direct.example.com")
	t.Setenv("NEXT_PUBLIC_SUPABASE_URL", "https://ignored.example.com")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("PERMISSION_CHECK_TIMEOUT", "3s")
	t.Setenv("RETRY_INITIAL_INTERVAL", "250ms")
	t.Setenv("APP_LOCALE", auth.LocaleTraditionalChinese)

	cfg := auth.ConfigFromEnv()
	assert.Equal(t, "https://direct.example.com", cfg.SupabaseURL)
	assert.Equal(t, 3*time.Second, cfg.PermissionCheckTimeout)
	assert.Equal(t, auth.LocaleTraditionalChinese, cfg.Locale)

	policy := cfg.RetryPolicy()
	assert.Equal(t, 250*time.Millisecond, policy.InitialInterval)
	assert.Equal(t, auth.DefaultRetryMaxAttempts, policy.MaxAttempts)
}

func TestLoadConfigMissing(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("NEXT_PUBLIC_SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "anon")

	_, err := auth.LoadConfig()
	assert.True(t, auth.IsConfigMissing(err))
}

func TestLoadConfigBadEnvFile(t *testing.T) {
	_, err := auth.LoadConfig("testdata/does-not-exist.env")
	assert.True(t, auth.IsConfigMissing(err))
}
