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

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Enrollment EnrollmentConfig
	Control    EnrollmentControlConfig
	Sync       SyncStateConfig
	Programs   ProgramCacheConfig
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
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// EnrollmentConfig sizes the fetch worker pool and the workflow lifecycle.
type EnrollmentConfig struct {
	Workers      int
	BufferSize   int
	FetchTimeout time.Duration
	IdleTTL      time.Duration
	SweepEvery   time.Duration
}

// EnrollmentControlConfig toggles the attribute-based program filter stage.
type EnrollmentControlConfig struct {
	Enabled   bool
	Namespace string
	Key       string
}

// SyncStateConfig names the Redis sets maintained by the download subsystem.
type SyncStateConfig struct {
	DownloadingKey string
	DownloadedKey  string
}

// ProgramCacheConfig governs caching of program reference data.
type ProgramCacheConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
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
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	workers := v.GetInt("ENROLLMENT_WORKERS")
	if workers <= 0 {
		workers = 4
	}
	cfg.Enrollment = EnrollmentConfig{
		Workers:      workers,
		BufferSize:   v.GetInt("ENROLLMENT_BUFFER"),
		FetchTimeout: parseDuration(v.GetString("ENROLLMENT_FETCH_TIMEOUT"), 15*time.Second),
		IdleTTL:      parseDuration(v.GetString("ENROLLMENT_WORKFLOW_IDLE_TTL"), 30*time.Minute),
		SweepEvery:   parseDuration(v.GetString("ENROLLMENT_WORKFLOW_SWEEP_INTERVAL"), time.Minute),
	}

	cfg.Control = EnrollmentControlConfig{
		Enabled:   v.GetBool("ENABLE_ENROLLMENT_CONTROL"),
		Namespace: v.GetString("WORKFLOW_NAMESPACE"),
		Key:       v.GetString("WORKFLOW_KEY"),
	}

	cfg.Sync = SyncStateConfig{
		DownloadingKey: v.GetString("SYNC_DOWNLOADING_KEY"),
		DownloadedKey:  v.GetString("SYNC_DOWNLOADED_KEY"),
	}

	cfg.Programs = ProgramCacheConfig{
		CacheEnabled: v.GetBool("ENABLE_PROGRAM_CACHE"),
		CacheTTL:     parseDuration(v.GetString("PROGRAM_CACHE_TTL"), 10*time.Minute),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "program_enrollment")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENROLLMENT_WORKERS", 4)
	v.SetDefault("ENROLLMENT_BUFFER", 0)
	v.SetDefault("ENROLLMENT_FETCH_TIMEOUT", "15s")
	v.SetDefault("ENROLLMENT_WORKFLOW_IDLE_TTL", "30m")
	v.SetDefault("ENROLLMENT_WORKFLOW_SWEEP_INTERVAL", "1m")

	v.SetDefault("ENABLE_ENROLLMENT_CONTROL", false)
	v.SetDefault("WORKFLOW_NAMESPACE", "community_redesign")
	v.SetDefault("WORKFLOW_KEY", "workflow")

	v.SetDefault("SYNC_DOWNLOADING_KEY", "sync:programs:downloading")
	v.SetDefault("SYNC_DOWNLOADED_KEY", "sync:programs:downloaded")

	v.SetDefault("ENABLE_PROGRAM_CACHE", true)
	v.SetDefault("PROGRAM_CACHE_TTL", "10m")
}

// isMissingFile reports a missing .env file, which viper surfaces as a plain fs error
// when SetConfigFile is used.
func isMissingFile(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file or directory")
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
