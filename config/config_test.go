package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func chdirTemp(t *testing.T) string {
	t.Helper()

	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd failed: %v", err)
	}
	tmp := t.TempDir()
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(origDir)
	})
	return tmp
}

func TestPasswordPolicyValidate(t *testing.T) {
	policy := PasswordPolicy{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumber:    true,
		RequireSpecial:   true,
	}

	if err := policy.Validate("short"); err == nil {
		t.Fatalf("expected error for short password")
	}
	if err := policy.Validate("lowercase1!"); err == nil {
		t.Fatalf("expected error for missing uppercase")
	}
	if err := policy.Validate("UPPERCASE1!"); err == nil {
		t.Fatalf("expected error for missing lowercase")
	}
	if err := policy.Validate("NoNumber!"); err == nil {
		t.Fatalf("expected error for missing number")
	}
	if err := policy.Validate("NoSpecial1"); err == nil {
		t.Fatalf("expected error for missing special")
	}
	if err := policy.Validate("GoodPass1!"); err != nil {
		t.Fatalf("expected valid password, got %v", err)
	}
}

func TestDefaultPasswordPolicyOnlyChecksLength(t *testing.T) {
	policy := loadPasswordPolicy()
	if err := policy.Validate("pw123"); err == nil {
		t.Fatalf("expected error below 6 characters")
	}
	if err := policy.Validate("pw1234"); err != nil {
		t.Fatalf("expected 6 characters to pass, got %v", err)
	}
}

func TestPasswordPolicyRejectsBeyondBcryptLimit(t *testing.T) {
	policy := PasswordPolicy{MinLength: 6}
	if err := policy.Validate(strings.Repeat("a", MaxPasswordBytes)); err != nil {
		t.Fatalf("expected %d bytes to pass, got %v", MaxPasswordBytes, err)
	}
	if err := policy.Validate(strings.Repeat("a", MaxPasswordBytes+1)); err == nil {
		t.Fatalf("expected error above %d bytes", MaxPasswordBytes)
	}
	// Multi-byte runes count by encoded length.
	if err := policy.Validate(strings.Repeat("é", 37)); err == nil {
		t.Fatalf("expected error for 74 encoded bytes")
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "value")
	if got := getEnv("TEST_STRING", "default"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
	if got := getEnv("MISSING_STRING", "default"); got != "default" {
		t.Fatalf("expected default, got %q", got)
	}

	t.Setenv("TEST_DURATION", "30")
	if got := getDurationEnv("TEST_DURATION", 5*time.Minute); got != 30*time.Minute {
		t.Fatalf("expected 30m, got %v", got)
	}
	t.Setenv("TEST_DURATION", "36h")
	if got := getDurationEnv("TEST_DURATION", 5*time.Minute); got != 36*time.Hour {
		t.Fatalf("expected 36h, got %v", got)
	}
	t.Setenv("TEST_DURATION", "invalid")
	if got := getDurationEnv("TEST_DURATION", 5*time.Minute); got != 5*time.Minute {
		t.Fatalf("expected default duration, got %v", got)
	}

	t.Setenv("TEST_BOOL", "true")
	if got := getBoolEnv("TEST_BOOL", false); got != true {
		t.Fatalf("expected true, got %v", got)
	}
	t.Setenv("TEST_BOOL", "invalid")
	if got := getBoolEnv("TEST_BOOL", true); got != true {
		t.Fatalf("expected default bool, got %v", got)
	}

	t.Setenv("TEST_INT", "42")
	if got := getIntEnv("TEST_INT", 5); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	t.Setenv("TEST_INT", "invalid")
	if got := getIntEnv("TEST_INT", 5); got != 5 {
		t.Fatalf("expected default int, got %d", got)
	}

	t.Setenv("TEST_LIST", " a, ,b ")
	if got := getListEnv("TEST_LIST"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected list: %#v", got)
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	chdirTemp(t)

	t.Setenv("JWT_SECRET", "")
	t.Setenv("MYSQL_DSN", "")
	if cfg, err := Load(); err == nil || cfg != nil {
		t.Fatalf("expected error when JWT_SECRET is missing")
	}
}

func TestLoadRequiresMySQLDSN(t *testing.T) {
	chdirTemp(t)

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("STORAGE_DRIVER", "mysql")
	if cfg, err := Load(); err == nil || cfg != nil {
		t.Fatalf("expected error when MYSQL_DSN is missing")
	}
}

func TestLoadMemoryDriverNeedsNoDSN(t *testing.T) {
	chdirTemp(t)

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("STORAGE_DRIVER", "memory")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Storage.Driver != StorageMemory {
		t.Fatalf("unexpected driver %q", cfg.Storage.Driver)
	}
}

func TestLoadRejectsPlaceholderSecretInProduction(t *testing.T) {
	chdirTemp(t)

	t.Setenv("JWT_SECRET", placeholderSecret)
	t.Setenv("APP_ENV", EnvProduction)
	t.Setenv("STORAGE_DRIVER", "memory")
	if _, err := Load(); err == nil {
		t.Fatalf("expected placeholder secret to be rejected")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"HTTP_PORT":          "99999",
		"GRPC_PORT":          "abc",
		"PASSWORD_HASH_COST": "64",
		"STORAGE_DRIVER":     "postgres",
		"RESET_TOKEN_TTL":    "-5",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			chdirTemp(t)
			t.Setenv("JWT_SECRET", "secret")
			t.Setenv("STORAGE_DRIVER", "memory")
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected %s=%s to be rejected", key, value)
			}
		})
	}
}

func TestLoadSuccess(t *testing.T) {
	chdirTemp(t)

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MYSQL_DSN", "user:pass@tcp(db:3306)/accounts?parseTime=true")
	t.Setenv("STORAGE_DRIVER", "mysql")
	t.Setenv("HTTP_PORT", "8081")
	t.Setenv("GRPC_PORT", "9091")
	t.Setenv("JWT_ACCESS_TOKEN_TTL", "20")
	t.Setenv("VERIFICATION_TOKEN_TTL", "120")
	t.Setenv("RESET_TOKEN_TTL", "30")
	t.Setenv("REFRESH_TOKEN_TTL", "720h")
	t.Setenv("PASSWORD_HASH_COST", "12")
	t.Setenv("PASSWORD_MIN_LENGTH", "10")
	t.Setenv("REGISTRATION_RECLAIM_UNVERIFIED_EMAIL", "false")
	t.Setenv("FRONTEND_URL", "https://app.example.com/")
	t.Setenv("INTERNAL_API_KEYS", "k1,k2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTP.Port != "8081" || cfg.GRPC.Port != "9091" {
		t.Fatalf("unexpected ports: %s %s", cfg.HTTP.Port, cfg.GRPC.Port)
	}
	if cfg.DSN() != "user:pass@tcp(db:3306)/accounts?parseTime=true" {
		t.Fatalf("unexpected mysql dsn: %s", cfg.DSN())
	}
	if cfg.JWT.AccessTokenTTL != 20*time.Minute {
		t.Fatalf("unexpected access ttl: %v", cfg.JWT.AccessTokenTTL)
	}
	if cfg.Tokens.VerificationTTL != 120*time.Minute || cfg.Tokens.ResetTTL != 30*time.Minute || cfg.Tokens.RefreshTTL != 720*time.Hour {
		t.Fatalf("unexpected token ttl: %+v", cfg.Tokens)
	}
	if cfg.Password.HashCost != 12 || cfg.Password.Policy.MinLength != 10 {
		t.Fatalf("unexpected password config: %+v", cfg.Password)
	}
	if cfg.Registration.ReclaimUnverifiedEmail {
		t.Fatalf("expected reclaim to be disabled")
	}
	if cfg.App.FrontendURL != "https://app.example.com" {
		t.Fatalf("expected trailing slash to be trimmed, got %q", cfg.App.FrontendURL)
	}
	if len(cfg.GRPC.APIKeys) != 2 {
		t.Fatalf("unexpected api keys: %#v", cfg.GRPC.APIKeys)
	}
}

func TestLoadUsesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/accounts?parseTime=true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.JWT.AccessTokenTTL != 7*24*time.Hour {
		t.Fatalf("expected 7 day access tokens, got %v", cfg.JWT.AccessTokenTTL)
	}
	if cfg.Tokens.VerificationTTL != 24*time.Hour || cfg.Tokens.ResetTTL != time.Hour || cfg.Tokens.RefreshTTL != 30*24*time.Hour {
		t.Fatalf("unexpected default token ttl: %+v", cfg.Tokens)
	}
	if cfg.Password.HashCost != 10 {
		t.Fatalf("expected hash cost 10, got %d", cfg.Password.HashCost)
	}
	if !cfg.Registration.ReclaimUnverifiedEmail {
		t.Fatalf("expected reclaim to default to true")
	}
	if cfg.SMTP.Enabled() {
		t.Fatalf("expected smtp to be disabled without a host")
	}
}

func TestLoadRespectsEnvFileLocation(t *testing.T) {
	tmp := chdirTemp(t)

	for _, key := range []string{"JWT_SECRET", "MYSQL_DSN", "HTTP_PORT", "STORAGE_DRIVER"} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	envPath := filepath.Join(tmp, ".env")
	if err := os.WriteFile(envPath, []byte("JWT_SECRET=envfile-secret\nMYSQL_DSN=user:pass@tcp(localhost:3306)/accounts?parseTime=true\nHTTP_PORT=9099\n"), 0600); err != nil {
		t.Fatalf("write .env failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.JWT.Secret != "envfile-secret" || cfg.HTTP.Port != "9099" {
		t.Fatalf("expected env file values, got %s %s", cfg.JWT.Secret, cfg.HTTP.Port)
	}
}
