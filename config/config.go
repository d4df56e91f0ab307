// Package config loads application settings from the environment, an
// optional .env file and an optional config.yml.
package config

import (
	"errors"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultSecret = "change-me-in-production"

// Config holds application configuration values.
type Config struct {
	AppEnv            string `mapstructure:"APP_ENV"`
	Port              string `mapstructure:"PORT"`
	SecretKey         string `mapstructure:"SECRET_KEY"`
	SessionSecret     string `mapstructure:"SESSION_SECRET"`
	DBDriver          string `mapstructure:"DB_DRIVER"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	AdminEmail        string `mapstructure:"APP_ADMIN"`
	Domain            string `mapstructure:"DOMAIN"`
	MailSubjectPrefix string `mapstructure:"MAIL_SUBJECT_PREFIX"`
	MailSender        string `mapstructure:"MAIL_SENDER"`
	SMTPHost          string `mapstructure:"SMTP_HOST"`
	SMTPPort          int    `mapstructure:"SMTP_PORT"`
	SMTPUser          string `mapstructure:"SMTP_USER"`
	SMTPPassword      string `mapstructure:"SMTP_PASSWORD"`
	PostsPerPage      int    `mapstructure:"POSTS_PER_PAGE"`
	CommentsPerPage   int    `mapstructure:"COMMENTS_PER_PAGE"`
	FollowersPerPage  int    `mapstructure:"FOLLOWERS_PER_PAGE"`
	RedisURL          string `mapstructure:"REDIS_URL"`
	TokenRateLimit    int    `mapstructure:"TOKEN_RATE_LIMIT"`
}

var defaults = map[string]any{
	"APP_ENV":             "development",
	"PORT":                "8080",
	"SECRET_KEY":          defaultSecret,
	"SESSION_SECRET":      "",
	"DB_DRIVER":           "sqlite",
	"DATABASE_URL":        "inkwell.sqlite",
	"APP_ADMIN":           "",
	"DOMAIN":              "http://localhost:8080",
	"MAIL_SUBJECT_PREFIX": "[Inkwell]",
	"MAIL_SENDER":         "Inkwell Admin <no-reply@inkwell.local>",
	"SMTP_HOST":           "",
	"SMTP_PORT":           587,
	"SMTP_USER":           "",
	"SMTP_PASSWORD":       "",
	"POSTS_PER_PAGE":      20,
	"COMMENTS_PER_PAGE":   30,
	"FOLLOWERS_PER_PAGE":  50,
	"REDIS_URL":           "",
	"TOKEN_RATE_LIMIT":    10,
}

// Load reads .env (if present), config.yml (if present) and the process
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded:", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config.yml: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = cfg.SecretKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// IsProduction reports whether APP_ENV names a production profile.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production" || c.AppEnv == "prod"
}

// Validate checks required values and production-only constraints.
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return errors.New("SECRET_KEY is required")
	}
	switch c.DBDriver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.PostsPerPage <= 0 || c.CommentsPerPage <= 0 || c.FollowersPerPage <= 0 {
		return errors.New("page sizes must be positive")
	}

	if c.IsProduction() {
		if c.SecretKey == defaultSecret {
			return errors.New("SECRET_KEY must be changed from the default value in production")
		}
		if len(c.SecretKey) < 32 {
			return errors.New("SECRET_KEY must be at least 32 characters in production")
		}
	} else if len(c.SecretKey) < 32 {
		log.Println("WARNING: SECRET_KEY is shorter than 32 characters")
	}
	return nil
}
