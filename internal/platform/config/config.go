package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Webhooks  WebhooksConfig  `mapstructure:"webhooks"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Global GlobalDBConfig `mapstructure:"global"`
	Tenant TenantDBConfig `mapstructure:"tenant"`
}

type GlobalDBConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type TenantDBConfig struct {
	BasePath             string `mapstructure:"base_path"`
	MaxConnectionsPerOrg int    `mapstructure:"max_connections_per_org"`
}

type JWTConfig struct {
	Secret          string        `mapstructure:"secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// RateLimitConfig covers the REST surface. The per-session message
// admission ceilings live under AdmissionConfig.
type RateLimitConfig struct {
	APIReadPerMinute  int `mapstructure:"api_read_per_minute"`
	APIWritePerMinute int `mapstructure:"api_write_per_minute"`
	SendPerMinute     int `mapstructure:"send_per_minute"`
}

type AdmissionConfig struct {
	PerMinute          int           `mapstructure:"per_minute"`
	PerHour            int           `mapstructure:"per_hour"`
	PerDay             int           `mapstructure:"per_day"`
	OutcomeWindow      int           `mapstructure:"outcome_window"`
	FailureRatio       float64       `mapstructure:"failure_ratio"`
	SuspicionThreshold int           `mapstructure:"suspicion_threshold"`
	SuspicionCooldown  time.Duration `mapstructure:"suspicion_cooldown"`
	BlockedKeywords    []string      `mapstructure:"blocked_keywords"`
	BlockedSchemes     []string      `mapstructure:"blocked_schemes"`
	MaxRepeatRun       int           `mapstructure:"max_repeat_run"`
}

type WebhooksConfig struct {
	WorkerCount      int           `mapstructure:"worker_count"`
	QueueSize        int           `mapstructure:"queue_size"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	FailureWindow    time.Duration `mapstructure:"failure_window"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
