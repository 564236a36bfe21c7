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
	Requests     RequestsConfig
	Certificates CertificatesConfig
	Sweep        SweepConfig
	Balance      BalanceConfig
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

// RequestsConfig tunes request lifecycle policy knobs.
type RequestsConfig struct {
	// TutorDecisionLimitDays is the largest leave request (in days) a tutor may
	// approve or reject without forwarding to an admin.
	TutorDecisionLimitDays float64
	// ODAdminDelay hides freshly created pending OD requests from admin
	// listings so tutors get the first look.
	ODAdminDelay time.Duration
}

// CertificatesConfig controls OD certificate storage and deadlines.
type CertificatesConfig struct {
	StorageDir       string
	UploadGraceDays  int
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// SweepConfig drives the scheduled certificate sweep.
type SweepConfig struct {
	Enabled  bool
	Schedule string
}

// BalanceConfig tunes the cached leave-balance read model.
type BalanceConfig struct {
	CacheTTL time.Duration
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

	cfg.Requests = RequestsConfig{
		TutorDecisionLimitDays: v.GetFloat64("TUTOR_DECISION_LIMIT_DAYS"),
		ODAdminDelay:           parseDuration(v.GetString("OD_ADMIN_VISIBILITY_DELAY"), time.Hour),
	}

	maxCertSize := v.GetInt64("CERT_MAX_FILE_SIZE")
	if maxCertSize <= 0 {
		maxCertSize = 5 * 1024 * 1024
	}
	cfg.Certificates = CertificatesConfig{
		StorageDir:       v.GetString("CERT_STORAGE_DIR"),
		UploadGraceDays:  v.GetInt("CERT_UPLOAD_GRACE_DAYS"),
		MaxFileSizeBytes: maxCertSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("CERT_ALLOWED_MIME_TYPES")),
	}

	cfg.Sweep = SweepConfig{
		Enabled:  v.GetBool("ENABLE_CERT_SWEEP"),
		Schedule: v.GetString("CERT_SWEEP_SCHEDULE"),
	}

	cfg.Balance = BalanceConfig{
		CacheTTL: parseDuration(v.GetString("BALANCE_CACHE_TTL"), 5*time.Minute),
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
	v.SetDefault("DB_NAME", "sma_leave")
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

	v.SetDefault("TUTOR_DECISION_LIMIT_DAYS", 2)
	v.SetDefault("OD_ADMIN_VISIBILITY_DELAY", "1h")

	v.SetDefault("CERT_STORAGE_DIR", "./certificates")
	v.SetDefault("CERT_UPLOAD_GRACE_DAYS", 3)
	v.SetDefault("CERT_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("CERT_ALLOWED_MIME_TYPES", "application/pdf,image/jpeg,image/png")

	v.SetDefault("ENABLE_CERT_SWEEP", true)
	v.SetDefault("CERT_SWEEP_SCHEDULE", "0 1 * * *")

	v.SetDefault("BALANCE_CACHE_TTL", "5m")
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
