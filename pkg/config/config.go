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

// Email providers understood by the mailer factory.
const (
	EmailProviderNone     = "none"
	EmailProviderSES      = "ses"
	EmailProviderSendGrid = "sendgrid"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Email     EmailConfig
	Scoring   ScoringConfig
	Admission AdmissionConfig
	Bootstrap BootstrapConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Issuer            string
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

// EmailConfig selects the outbound mail transport and its dispatch queue.
type EmailConfig struct {
	Provider       string
	From           string
	FromName       string
	AWSRegion      string
	SendGridAPIKey string
	Workers        int
	QueueSize      int
	MaxRetries     int
}

// Configured reports whether a real transport was selected.
func (e EmailConfig) Configured() bool {
	switch e.Provider {
	case EmailProviderSES, EmailProviderSendGrid:
		return e.From != ""
	default:
		return false
	}
}

// ScoringConfig tunes recommendation, merit list and prediction behaviour.
type ScoringConfig struct {
	CacheTTL             time.Duration
	RecommendationLimit  int
	MeritListLimit       int
	PredictionMinHistory int
}

// AdmissionConfig holds admission cycle settings.
type AdmissionConfig struct {
	// CycleDeadline anchors the early submission bonus. Zero means "now".
	CycleDeadline time.Time
}

// BootstrapConfig optionally seeds the first administrator at start-up.
type BootstrapConfig struct {
	AdminEmail    string
	AdminPassword string
	AdminName     string
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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
		Enabled:  v.GetBool("CACHE_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Email = EmailConfig{
		Provider:       strings.ToLower(strings.TrimSpace(v.GetString("EMAIL_PROVIDER"))),
		From:           v.GetString("EMAIL_FROM"),
		FromName:       v.GetString("EMAIL_FROM_NAME"),
		AWSRegion:      v.GetString("AWS_REGION"),
		SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
		Workers:        v.GetInt("EMAIL_WORKERS"),
		QueueSize:      v.GetInt("EMAIL_QUEUE_SIZE"),
		MaxRetries:     v.GetInt("EMAIL_MAX_RETRIES"),
	}

	cfg.Scoring = ScoringConfig{
		CacheTTL:             parseDuration(v.GetString("SCORING_CACHE_TTL"), 5*time.Minute),
		RecommendationLimit:  v.GetInt("RECOMMENDATION_LIMIT"),
		MeritListLimit:       v.GetInt("MERIT_LIST_DEFAULT_LIMIT"),
		PredictionMinHistory: v.GetInt("PREDICTION_MIN_HISTORY"),
	}

	cfg.Admission = AdmissionConfig{
		CycleDeadline: parseDate(v.GetString("ADMISSION_CYCLE_DEADLINE")),
	}

	cfg.Bootstrap = BootstrapConfig{
		AdminEmail:    v.GetString("ADMIN_BOOTSTRAP_EMAIL"),
		AdminPassword: v.GetString("ADMIN_BOOTSTRAP_PASSWORD"),
		AdminName:     v.GetString("ADMIN_BOOTSTRAP_NAME"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "admission_portal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "admission-portal")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("EMAIL_PROVIDER", EmailProviderNone)
	v.SetDefault("EMAIL_FROM", "")
	v.SetDefault("EMAIL_FROM_NAME", "Admissions Office")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("EMAIL_WORKERS", 2)
	v.SetDefault("EMAIL_QUEUE_SIZE", 100)
	v.SetDefault("EMAIL_MAX_RETRIES", 0)

	v.SetDefault("SCORING_CACHE_TTL", "5m")
	v.SetDefault("RECOMMENDATION_LIMIT", 5)
	v.SetDefault("MERIT_LIST_DEFAULT_LIMIT", 100)
	v.SetDefault("PREDICTION_MIN_HISTORY", 10)
	v.SetDefault("ADMISSION_CYCLE_DEADLINE", "")

	v.SetDefault("ADMIN_BOOTSTRAP_EMAIL", "")
	v.SetDefault("ADMIN_BOOTSTRAP_PASSWORD", "")
	v.SetDefault("ADMIN_BOOTSTRAP_NAME", "Administrator")
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

// parseDate accepts RFC3339 or a plain calendar date; anything else yields the zero time.
func parseDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
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

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}
