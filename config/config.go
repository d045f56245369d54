package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"

	EnvProduction = "production"

	placeholderSecret = "change-me"
)

type Config struct {
	App          AppConfig
	HTTP         HTTPConfig
	GRPC         GRPCConfig
	MySQL        MySQLConfig
	Storage      StorageConfig
	JWT          JWTConfig
	Tokens       TokensConfig
	Password     PasswordConfig
	Registration RegistrationConfig
	SMTP         SMTPConfig
	Admin        AdminConfig
	Log          LogConfig
}

type AppConfig struct {
	Env         string
	FrontendURL string
}

type HTTPConfig struct {
	Host string
	Port string
}

func (c HTTPConfig) Address() string {
	return c.Host + ":" + c.Port
}

type GRPCConfig struct {
	Host    string
	Port    string
	APIKeys []string
}

func (c GRPCConfig) Address() string {
	return c.Host + ":" + c.Port
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type StorageConfig struct {
	Driver string
}

type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

type TokensConfig struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	RefreshTTL      time.Duration
}

type PasswordConfig struct {
	HashCost int
	Policy   PasswordPolicy
}

type RegistrationConfig struct {
	// ReclaimUnverifiedEmail lets a new registration take over an email held by
	// an account that never verified it. When false such collisions are rejected.
	ReclaimUnverifiedEmail bool
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	UseTLS   bool
	UseSSL   bool
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type AdminConfig struct {
	APIKey string
}

type LogConfig struct {
	Level  string
	Format string
}

// MaxPasswordBytes is bcrypt's input limit; longer passwords cannot be hashed.
const MaxPasswordBytes = 72

type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return fmt.Errorf("password must be at least %d characters long", p.MinLength)
	}
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("password must be at most %d bytes long", MaxPasswordBytes)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasNumber = true
		case unicode.IsPunct(ch) || unicode.IsSymbol(ch):
			hasSpecial = true
		}
	}

	var missing []string
	if p.RequireUppercase && !hasUpper {
		missing = append(missing, "uppercase letter")
	}
	if p.RequireLowercase && !hasLower {
		missing = append(missing, "lowercase letter")
	}
	if p.RequireNumber && !hasNumber {
		missing = append(missing, "number")
	}
	if p.RequireSpecial && !hasSpecial {
		missing = append(missing, "special character")
	}

	if len(missing) > 0 {
		return fmt.Errorf("password must contain at least one: %s", strings.Join(missing, ", "))
	}

	return nil
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignores error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Env:         getEnv("APP_ENV", "development"),
			FrontendURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		},
		HTTP: HTTPConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: GRPCConfig{
			Host:    getEnv("GRPC_HOST", "0.0.0.0"),
			Port:    getEnv("GRPC_PORT", "9090"),
			APIKeys: getListEnv("INTERNAL_API_KEYS"),
		},
		MySQL: MySQLConfig{
			DSN:             os.Getenv("MYSQL_DSN"),
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("MYSQL_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(getEnv("STORAGE_DRIVER", StorageMySQL)),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			AccessTokenTTL: getDurationEnv("JWT_ACCESS_TOKEN_TTL", 7*24*time.Hour),
		},
		Tokens: TokensConfig{
			VerificationTTL: getDurationEnv("VERIFICATION_TOKEN_TTL", 24*time.Hour),
			ResetTTL:        getDurationEnv("RESET_TOKEN_TTL", time.Hour),
			RefreshTTL:      getDurationEnv("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		},
		Password: PasswordConfig{
			HashCost: getIntEnv("PASSWORD_HASH_COST", bcrypt.DefaultCost),
			Policy:   loadPasswordPolicy(),
		},
		Registration: RegistrationConfig{
			ReclaimUnverifiedEmail: getBoolEnv("REGISTRATION_RECLAIM_UNVERIFIED_EMAIL", true),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getIntEnv("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
			FromName: os.Getenv("SMTP_FROM_NAME"),
			UseTLS:   getBoolEnv("SMTP_USE_TLS", true),
			UseSSL:   getBoolEnv("SMTP_USE_SSL", false),
		},
		Admin: AdminConfig{
			APIKey: os.Getenv("ADMIN_API_KEY"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if c.App.Env == EnvProduction && c.JWT.Secret == placeholderSecret {
		return errors.New("JWT_SECRET must be changed from the placeholder value in production")
	}

	switch c.Storage.Driver {
	case StorageMySQL:
		if c.MySQL.DSN == "" {
			return errors.New("MYSQL_DSN environment variable is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if err := validatePort("HTTP_PORT", c.HTTP.Port); err != nil {
		return err
	}
	if err := validatePort("GRPC_PORT", c.GRPC.Port); err != nil {
		return err
	}

	if c.Password.HashCost < bcrypt.MinCost || c.Password.HashCost > bcrypt.MaxCost {
		return fmt.Errorf("PASSWORD_HASH_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	if c.JWT.AccessTokenTTL <= 0 || c.Tokens.VerificationTTL <= 0 || c.Tokens.ResetTTL <= 0 || c.Tokens.RefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}

	return nil
}

func (c *Config) DSN() string {
	return c.MySQL.DSN
}

func validatePort(key, value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%s must be a port number between 1 and 65535", key)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv reads a bare integer as minutes, otherwise a Go duration string.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func loadPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        getIntEnv("PASSWORD_MIN_LENGTH", 6),
		RequireUppercase: getBoolEnv("PASSWORD_REQUIRE_UPPERCASE", false),
		RequireLowercase: getBoolEnv("PASSWORD_REQUIRE_LOWERCASE", false),
		RequireNumber:    getBoolEnv("PASSWORD_REQUIRE_NUMBER", false),
		RequireSpecial:   getBoolEnv("PASSWORD_REQUIRE_SPECIAL", false),
	}
}
