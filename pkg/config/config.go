package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Billing      BillingConfig
	Registry     RegistryConfig
	Verification VerificationConfig
	Documents    DocumentsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// BillingConfig fixes the per-certificate issuance cost captured at approval.
type BillingConfig struct {
	IssuanceCost float64
	Currency     string
}

// RegistryConfig targets the national accreditation registry mirror.
type RegistryConfig struct {
	Enabled bool
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// VerificationConfig tunes the public verification endpoint.
type VerificationConfig struct {
	CacheTTL time.Duration
}

// DocumentsConfig controls certificate document storage and signed links.
type DocumentsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	VerifyBaseURL   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Billing = BillingConfig{
		IssuanceCost: v.GetFloat64("CERTIFICATE_ISSUANCE_COST"),
		Currency:     v.GetString("BILLING_CURRENCY"),
	}

	cfg.Registry = RegistryConfig{
		Enabled: v.GetBool("REGISTRY_ENABLED"),
		BaseURL: v.GetString("REGISTRY_BASE_URL"),
		APIKey:  v.GetString("REGISTRY_API_KEY"),
		Timeout: parseDuration(v.GetString("REGISTRY_TIMEOUT"), 10*time.Second),
	}

	cfg.Verification = VerificationConfig{
		CacheTTL: parseDuration(v.GetString("VERIFICATION_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Documents = DocumentsConfig{
		StorageDir:      v.GetString("DOCUMENTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("DOCUMENTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("DOCUMENTS_SIGNED_URL_TTL"), 30*time.Minute),
		VerifyBaseURL:   v.GetString("DOCUMENTS_VERIFY_BASE_URL"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "ukcas_accreditation")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CERTIFICATE_ISSUANCE_COST", 50)
	v.SetDefault("BILLING_CURRENCY", "GBP")

	v.SetDefault("REGISTRY_ENABLED", false)
	v.SetDefault("REGISTRY_BASE_URL", "")
	v.SetDefault("REGISTRY_API_KEY", "")
	v.SetDefault("REGISTRY_TIMEOUT", "10s")

	v.SetDefault("VERIFICATION_CACHE_TTL", "5m")

	v.SetDefault("DOCUMENTS_STORAGE_DIR", "./documents")
	v.SetDefault("DOCUMENTS_SIGNED_URL_SECRET", "dev_documents_secret")
	v.SetDefault("DOCUMENTS_SIGNED_URL_TTL", "30m")
	v.SetDefault("DOCUMENTS_VERIFY_BASE_URL", "https://verify.ukcas.org.uk")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
