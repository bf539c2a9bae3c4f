package auth

import (
	"os"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
)

const (
	DefaultPermissionCheckTimeout = 8 * time.Second
	DefaultRetryMaxAttempts       = 3
	DefaultRetryInitialInterval   = time.Second
)

// Config holds the runtime settings of the service.
type Config struct {
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	JWTSecret          string
	JWKSURL            string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	KafkaBrokers       []string
	KafkaTopic         string
	ActivityChannel    string
	HTTPAddr           string
	Locale             string

	PermissionCheckTimeout time.Duration
	RetryMaxAttempts       int
	RetryInitialInterval   time.Duration
	SignInAttemptLimit     int
	SignInAttemptWindow    time.Duration
}

// LoadConfig loads optional .env files then reads the environment.
// A missing .env file is not an error.
func LoadConfig(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && len(files) > 0 {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to load env files").
			WithTextCode(TextCodeConfigMissing)
	}
	cfg := ConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigFromEnv reads the environment without validating it.
func ConfigFromEnv() *Config {
	return &Config{
		SupabaseURL:            strings.TrimRight(getEnv("SUPABASE_URL", getEnv("NEXT_PUBLIC_SUPABASE_URL", "")), "/"),
		SupabaseAnonKey:        getEnv("SUPABASE_ANON_KEY", getEnv("NEXT_PUBLIC_SUPABASE_ANON_KEY", "")),
		SupabaseServiceKey:     getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		JWTSecret:              getEnv("SUPABASE_JWT_SECRET", ""),
		JWKSURL:                getEnv("SUPABASE_JWKS_URL", ""),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		RedisAddr:              getEnv("REDIS_ADDR", ""),
		RedisPassword:          getEnv("REDIS_PASS", ""),
		KafkaBrokers:           splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:             getEnv("KAFKA_TOPIC", "txn.auth.activity"),
		ActivityChannel:        getEnv("ACTIVITY_CHANNEL", "txn-auth"),
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		Locale:                 getEnv("APP_LOCALE", LocaleEnglish),
		PermissionCheckTimeout: durationOrDefault(getEnv("PERMISSION_CHECK_TIMEOUT", ""), DefaultPermissionCheckTimeout),
		RetryMaxAttempts:       atoiOrDefault(getEnv("RETRY_MAX_ATTEMPTS", ""), DefaultRetryMaxAttempts),
		RetryInitialInterval:   durationOrDefault(getEnv("RETRY_INITIAL_INTERVAL", ""), DefaultRetryInitialInterval),
		SignInAttemptLimit:     atoiOrDefault(getEnv("SIGNIN_ATTEMPT_LIMIT", ""), 5),
		SignInAttemptWindow:    durationOrDefault(getEnv("SIGNIN_ATTEMPT_WINDOW", ""), 15*time.Minute),
	}
}

// Validate reports missing required settings with CONFIG_MISSING, which is
// distinct from any error raised by a reachable but failing endpoint.
func (c *Config) Validate() error {
	missing := []string{}
	if c.SupabaseURL == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if c.SupabaseAnonKey == "" {
		missing = append(missing, "SUPABASE_ANON_KEY")
	}
	if len(missing) == 0 {
		return nil
	}
	return goerrors.New("missing required configuration: "+strings.Join(missing, ", "), goerrors.CategoryBadInput).
		WithTextCode(TextCodeConfigMissing).
		WithCode(goerrors.CodeInternal).
		WithMetadata(map[string]any{"missing": missing})
}

// IsConfigMissing reports whether err is a missing configuration error.
func IsConfigMissing(err error) bool {
	return HasTextCode(err, TextCodeConfigMissing)
}

// RetryPolicy derives the retry settings from the config.
func (c *Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     c.RetryMaxAttempts,
		InitialInterval: c.RetryInitialInterval,
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func atoiOrDefault(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil || i <= 0 {
		return def
	}
	return i
}

func durationOrDefault(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
