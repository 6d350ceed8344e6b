package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nexuscrm/workflow/internal/infrastructure/database"
)

// Store drivers
const (
	StoreMemory = "memory"
	StoreMySQL  = "mysql"
)

// Config holds the configuration for the server and the CLI.
type Config struct {
	HTTP struct {
		Port    int    `mapstructure:"port"`
		GinMode string `mapstructure:"gin_mode"`
	} `mapstructure:"http"`
	Store struct {
		Driver string `mapstructure:"driver"`
	} `mapstructure:"store"`
	DB struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		User            string        `mapstructure:"user"`
		Password        string        `mapstructure:"password"`
		Name            string        `mapstructure:"name"`
		TLS             bool          `mapstructure:"tls"`
		MaxOpenConns    int           `mapstructure:"max_open_conns"`
		ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	} `mapstructure:"db"`
	Redis struct {
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		RoleTTL  time.Duration `mapstructure:"role_ttl"`
	} `mapstructure:"redis"`
	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`
	Sweep struct {
		Enabled       bool          `mapstructure:"enabled"`
		Schedule      string        `mapstructure:"schedule"`
		Timeout       time.Duration `mapstructure:"timeout"`
		Concurrency   int           `mapstructure:"concurrency"`
		RatePerSecond float64       `mapstructure:"rate_per_second"`
	} `mapstructure:"sweep"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.gin_mode", "release")
	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("db.host", "127.0.0.1")
	v.SetDefault("db.port", 4000)
	v.SetDefault("db.user", "root")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "workflow")
	v.SetDefault("db.tls", false)
	v.SetDefault("db.max_open_conns", 50)
	v.SetDefault("db.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.role_ttl", time.Minute)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.schedule", "@every 1m")
	v.SetDefault("sweep.timeout", 5*time.Minute)
	v.SetDefault("sweep.concurrency", 8)
	v.SetDefault("sweep.rate_per_second", 0)
}

// Load reads configuration from defaults, an optional YAML file and the
// environment (WORKFLOW_ prefix, e.g. WORKFLOW_DB_HOST). An empty path
// searches ./config.yaml and ./config/config.yaml; a missing file is fine.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Println("📁 Loaded .env")
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Printf("⚠️ Could not load .env: %v", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("WORKFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreMySQL:
	default:
		return fmt.Errorf("unknown store driver %q (want %s or %s)", c.Store.Driver, StoreMemory, StoreMySQL)
	}
	if c.Sweep.Concurrency < 1 {
		return fmt.Errorf("sweep.concurrency must be at least 1")
	}
	return nil
}

// Database converts the db section for the connection layer.
func (c *Config) Database() database.Config {
	return database.Config{
		Host:            c.DB.Host,
		Port:            c.DB.Port,
		User:            c.DB.User,
		Password:        c.DB.Password,
		Database:        c.DB.Name,
		TLS:             c.DB.TLS,
		MaxOpenConns:    c.DB.MaxOpenConns,
		ConnMaxLifetime: c.DB.ConnMaxLifetime,
	}
}
