package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENVIRONMENT", "HTTP_ADDR", "DATABASE_URL", "STORE_DRIVER", "JWT_SECRET", "JWT_ISS",
		"JWT_AUD", "JWT_EXPIRY", "TIMEZONE", "RESERVATION_MAX_ATTEMPTS", "RESERVATION_RETRY_BASE",
		"RESERVATION_PARALLELISM", "HISTORY_WRITE_TIMEOUT", "ENABLE_METRICS", "LOG_LEVEL",
		"LOG_FORMAT", "INTAKE_MAPPING", "CONFIG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func validConfig() *Config {
	cfg := defaults()
	cfg.JWTSecret = "valid-secret-that-is-long-enough-for-testing"
	cfg.JWTIssuer = "test-issuer"
	cfg.JWTAudience = "test-audience"
	cfg.JWTExpiry = time.Hour
	return cfg
}

func TestLoad(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.JWTSecret != defaultJWTSecret {
		t.Errorf("Expected default JWT_SECRET, got %s", cfg.JWTSecret)
	}
	if cfg.JWTIssuer != "stage-inventory-api" {
		t.Errorf("Expected default JWT_ISS, got %s", cfg.JWTIssuer)
	}
	if cfg.JWTExpiry != 24*time.Hour {
		t.Errorf("Expected default JWT_EXPIRY, got %v", cfg.JWTExpiry)
	}
	if cfg.StoreDriver != "postgres" {
		t.Errorf("Expected default STORE_DRIVER postgres, got %s", cfg.StoreDriver)
	}
	if cfg.Reservation.MaxAttempts != 5 || cfg.Reservation.Parallelism != 4 {
		t.Errorf("Unexpected reservation defaults: %+v", cfg.Reservation)
	}
	if cfg.EnableMetrics {
		t.Error("Metrics should be disabled by default")
	}
}

func TestLoadWithEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "test-secret-key")
	t.Setenv("JWT_EXPIRY", "2h")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("TIMEZONE", "America/Argentina/Buenos_Aires")
	t.Setenv("RESERVATION_MAX_ATTEMPTS", "9")
	t.Setenv("RESERVATION_RETRY_BASE", "25ms")
	t.Setenv("ENABLE_METRICS", "true")
	t.Setenv("RESERVATION_PARALLELISM", "not-a-number")

	cfg := Load()

	if cfg.JWTSecret != "test-secret-key" {
		t.Errorf("Expected JWT_SECRET from env, got %s", cfg.JWTSecret)
	}
	if cfg.JWTExpiry != 2*time.Hour {
		t.Errorf("Expected JWT_EXPIRY from env, got %v", cfg.JWTExpiry)
	}
	if cfg.StoreDriver != "memory" {
		t.Errorf("Expected lower-cased STORE_DRIVER, got %s", cfg.StoreDriver)
	}
	if cfg.Timezone != "America/Argentina/Buenos_Aires" {
		t.Errorf("Expected TIMEZONE from env, got %s", cfg.Timezone)
	}
	if cfg.Reservation.MaxAttempts != 9 {
		t.Errorf("Expected 9 attempts, got %d", cfg.Reservation.MaxAttempts)
	}
	if cfg.Reservation.RetryBase != 25*time.Millisecond {
		t.Errorf("Expected 25ms retry base, got %v", cfg.Reservation.RetryBase)
	}
	if cfg.Reservation.Parallelism != 4 {
		t.Errorf("Unparseable parallelism should keep the default, got %d", cfg.Reservation.Parallelism)
	}
	if !cfg.EnableMetrics {
		t.Error("Expected metrics enabled")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "memory store needs no database", mutate: func(c *Config) { c.StoreDriver = "memory"; c.DatabaseURL = "" }},
		{name: "empty secret", mutate: func(c *Config) { c.JWTSecret = "" }, expectError: true},
		{name: "secret too short", mutate: func(c *Config) { c.JWTSecret = "short" }, expectError: true},
		{name: "empty issuer", mutate: func(c *Config) { c.JWTIssuer = "" }, expectError: true},
		{name: "empty audience", mutate: func(c *Config) { c.JWTAudience = "" }, expectError: true},
		{name: "zero expiry", mutate: func(c *Config) { c.JWTExpiry = 0 }, expectError: true},
		{name: "expiry too long", mutate: func(c *Config) { c.JWTExpiry = 31 * 24 * time.Hour }, expectError: true},
		{name: "unknown store driver", mutate: func(c *Config) { c.StoreDriver = "mongo" }, expectError: true},
		{name: "postgres without dsn", mutate: func(c *Config) { c.DatabaseURL = "" }, expectError: true},
		{name: "bad timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }, expectError: true},
		{name: "zero attempts", mutate: func(c *Config) { c.Reservation.MaxAttempts = 0 }, expectError: true},
		{name: "zero parallelism", mutate: func(c *Config) { c.Reservation.Parallelism = 0 }, expectError: true},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, expectError: true},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.expectError {
				t.Errorf("Validate() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}

func TestValidateResolvesLocation(t *testing.T) {
	cfg := validConfig()
	cfg.Timezone = "Europe/Madrid"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if cfg.Location().String() != "Europe/Madrid" {
		t.Errorf("Expected Europe/Madrid, got %s", cfg.Location())
	}
}

func TestLoadAndValidate(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "test-secret-key-that-is-long-enough-for-testing")
	t.Setenv("JWT_EXPIRY", "1h")

	cfg, err := LoadAndValidate()
	if err != nil {
		t.Errorf("LoadAndValidate() failed with valid config: %v", err)
	}
	if cfg == nil {
		t.Error("LoadAndValidate() returned nil config with valid config")
	}

	t.Setenv("JWT_SECRET", "short")
	if _, err := LoadAndValidate(); err == nil {
		t.Error("LoadAndValidate() should fail with invalid config")
	}
}

func TestLoadAndValidateWithConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
store_driver: memory
jwt_secret: file-secret-that-is-long-enough-for-tests
timezone: Europe/Rome
reservation:
  max_attempts: 7
  retry_base: 50ms
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := LoadAndValidate()
	if err != nil {
		t.Fatalf("LoadAndValidate() failed: %v", err)
	}
	if cfg.StoreDriver != "memory" {
		t.Errorf("Expected store driver from file, got %s", cfg.StoreDriver)
	}
	if cfg.Reservation.MaxAttempts != 7 || cfg.Reservation.RetryBase != 50*time.Millisecond {
		t.Errorf("Expected reservation settings from file, got %+v", cfg.Reservation)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("Environment should override the file, got %s", cfg.Timezone)
	}
	if cfg.Reservation.Parallelism != 4 {
		t.Errorf("Keys missing from the file keep defaults, got %d", cfg.Reservation.Parallelism)
	}
}

func TestLoadAndValidateMissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("JWT_SECRET", "test-secret-key-that-is-long-enough-for-testing")

	if _, err := LoadAndValidate(); err == nil {
		t.Error("LoadAndValidate() should fail when CONFIG_FILE cannot be read")
	}
}

func TestProductionSecretValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", defaultJWTSecret)

	if err := Load().Validate(); err == nil {
		t.Error("Production validation should fail with default secret")
	}

	t.Setenv("JWT_SECRET", "proper-production-secret-that-is-long-enough")
	if err := Load().Validate(); err != nil {
		t.Errorf("Production validation should pass with proper secret: %v", err)
	}
}
