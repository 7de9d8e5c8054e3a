package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "READING"
	maxNodeID = 1023
)

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

// PaystackConfig holds the payment provider credentials.
type PaystackConfig struct {
	SecretKey string
	BaseURL   string
}

// JobsConfig holds the scheduled job intervals.
type JobsConfig struct {
	SweepInterval   time.Duration
	RankInterval    time.Duration
	CleanupInterval time.Duration
}

// RedisConfig enables distributed job locks when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level       string
	Development bool
	File        string
}

// Config captures environment driven configuration values for readingd.
type Config struct {
	HTTPPort           int
	Database           DatabaseConfig
	TokenSecret        string
	TokenTTL           time.Duration
	Paystack           PaystackConfig
	PaymentCurrency    string
	FirstUserFree      bool
	MinSessionDuration time.Duration
	SessionRetention   time.Duration
	Jobs               JobsConfig
	Redis              RedisConfig
	Log                LogConfig

	// NodeID seeds the snowflake generator for log entry ids. Replicas
	// sharing a database need distinct values.
	NodeID int
}

var defaults = map[string]string{
	"http_port":            "8080",
	"db_driver":            "sqlite",
	"db_dsn":               "file:reading.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate",
	"db_max_open_conns":    "4",
	"token_ttl":            "24h",
	"paystack_base_url":    "https://api.paystack.co",
	"payment_currency":     "NGN",
	"first_user_free":      "true",
	"min_session_duration": "60m",
	"session_retention":    "720h",
	"sweep_interval":       "1m",
	"rank_interval":        "1h",
	"cleanup_interval":     "24h",
	"log_level":            "info",
	"log_dev":              "false",
	"node_id":              "1",
}

// Load parses configuration values from the current process environment.
func Load() (Config, error) {
	return LoadFrom(NewViper())
}

// NewViper returns a viper instance bound to READING_* environment variables
// with every default applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

// LoadFrom reads configuration from v. Missing required values and invalid
// values are collected and reported together.
func LoadFrom(v *viper.Viper) (Config, error) {
	p := parser{v: v}

	cfg := Config{
		HTTPPort: p.positiveInt("http_port"),
		Database: DatabaseConfig{
			Driver:       strings.ToLower(p.str("db_driver")),
			DSN:          p.str("db_dsn"),
			MaxOpenConns: p.positiveInt("db_max_open_conns"),
		},
		TokenSecret: p.required("token_secret"),
		TokenTTL:    p.duration("token_ttl"),
		Paystack: PaystackConfig{
			SecretKey: p.required("paystack_secret_key"),
			BaseURL:   strings.TrimRight(p.str("paystack_base_url"), "/"),
		},
		PaymentCurrency:    strings.ToUpper(p.str("payment_currency")),
		FirstUserFree:      p.boolean("first_user_free"),
		MinSessionDuration: p.duration("min_session_duration"),
		SessionRetention:   p.duration("session_retention"),
		Jobs: JobsConfig{
			SweepInterval:   p.duration("sweep_interval"),
			RankInterval:    p.duration("rank_interval"),
			CleanupInterval: p.duration("cleanup_interval"),
		},
		Redis: RedisConfig{
			Addr:     p.str("redis_addr"),
			Password: p.str("redis_password"),
		},
		Log: LogConfig{
			Level:       p.str("log_level"),
			Development: p.boolean("log_dev"),
			File:        p.str("log_file"),
		},
		NodeID: p.positiveInt("node_id"),
	}

	if cfg.Database.Driver != "sqlite" && cfg.Database.Driver != "postgres" {
		p.invalid = append(p.invalid, envName("db_driver"))
	}
	if cfg.NodeID > maxNodeID {
		p.invalid = append(p.invalid, envName("node_id"))
	}

	if len(p.missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(p.missing, ", "))
	}
	if len(p.invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(p.invalid, ", "))
	}
	return cfg, nil
}

type parser struct {
	v       *viper.Viper
	missing []string
	invalid []string
}

func (p *parser) str(key string) string {
	return strings.TrimSpace(p.v.GetString(key))
}

func (p *parser) required(key string) string {
	value := p.str(key)
	if value == "" {
		p.missing = append(p.missing, envName(key))
	}
	return value
}

func (p *parser) positiveInt(key string) int {
	value, err := strconv.Atoi(p.str(key))
	if err != nil || value <= 0 {
		p.invalid = append(p.invalid, envName(key))
		return 0
	}
	return value
}

func (p *parser) duration(key string) time.Duration {
	value, err := time.ParseDuration(p.str(key))
	if err != nil || value <= 0 {
		p.invalid = append(p.invalid, envName(key))
		return 0
	}
	return value
}

func (p *parser) boolean(key string) bool {
	value, err := strconv.ParseBool(p.str(key))
	if err != nil {
		p.invalid = append(p.invalid, envName(key))
		return false
	}
	return value
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(key)
}
