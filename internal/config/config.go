// Package config loads runtime settings.
//
// Sources, highest precedence first: process environment, a .env file in the
// working directory, an optional config.yaml (./ or /etc/job-portal/), then
// the defaults below.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppEnv   string `mapstructure:"APP_ENV" validate:"oneof=development production test"`
	Port     int    `mapstructure:"PORT" validate:"min=1,max=65535"`
	LogLevel string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`

	JWTSecret string `mapstructure:"JWT_SECRET" validate:"required,min=16"`

	StoreDriver   string `mapstructure:"STORE_DRIVER" validate:"oneof=sqlite mongo"`
	DBPath        string `mapstructure:"DB_PATH"`
	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`

	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `mapstructure:"GOOGLE_REDIRECT_URL"`
	FrontendURL        string `mapstructure:"FRONTEND_URL"`

	MediaDriver        string `mapstructure:"MEDIA_DRIVER" validate:"oneof=cloudinary s3"`
	CloudinaryURL      string `mapstructure:"CLOUDINARY_URL"`
	S3Endpoint         string `mapstructure:"S3_ENDPOINT"`
	S3Region           string `mapstructure:"S3_REGION"`
	S3Bucket           string `mapstructure:"S3_BUCKET"`
	S3AccessKey        string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey        string `mapstructure:"S3_SECRET_KEY"`
	MediaPublicBaseURL string `mapstructure:"MEDIA_PUBLIC_BASE_URL"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// TrustedProxies lists the addresses or CIDR ranges whose X-Forwarded-For
	// and X-Real-IP headers are believed. Empty means the API is reached
	// directly and only the connection address counts.
	TrustedProxies []string `mapstructure:"TRUSTED_PROXIES" validate:"dive,cidr|ip"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
}

// keys without a default still need binding so Unmarshal sees them.
var unboundDefaults = []string{
	"JWT_SECRET",
	"MONGO_URI",
	"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_REDIRECT_URL",
	"CLOUDINARY_URL",
	"S3_ENDPOINT", "S3_REGION", "S3_BUCKET", "S3_ACCESS_KEY", "S3_SECRET_KEY",
	"MEDIA_PUBLIC_BASE_URL",
	"REDIS_ADDR", "REDIS_PASSWORD",
	"TRUSTED_PROXIES",
}

// Load reads and validates the configuration. There is no default signing
// secret: a missing JWT_SECRET is an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", 8000)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", "sqlite")
	v.SetDefault("DB_PATH", "data/portal.db")
	v.SetDefault("MONGO_DATABASE", "jobportal")
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")
	v.SetDefault("MEDIA_DRIVER", "cloudinary")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")

	v.AutomaticEnv()
	for _, key := range unboundDefaults {
		_ = v.BindEnv(key)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/job-portal/")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.AppEnv = strings.ToLower(strings.TrimSpace(c.AppEnv))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.MediaDriver = strings.ToLower(strings.TrimSpace(c.MediaDriver))
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")

	origins := c.CORSOrigins[:0]
	for _, o := range c.CORSOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSOrigins = origins

	proxies := c.TrustedProxies[:0]
	for _, p := range c.TrustedProxies {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, p)
		}
	}
	c.TrustedProxies = proxies
}

// Validate checks field rules and the settings each driver needs.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Field() == "JWTSecret" {
				return errors.New("config: JWT_SECRET must be set to at least 16 characters")
			}
			return fmt.Errorf("config: invalid %s (rule %q)", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}

	switch c.StoreDriver {
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("config: MONGO_URI is required when STORE_DRIVER=mongo")
		}
	case "sqlite":
		if c.DBPath == "" {
			return errors.New("config: DB_PATH is required when STORE_DRIVER=sqlite")
		}
	}

	switch c.MediaDriver {
	case "cloudinary":
		if c.CloudinaryURL == "" {
			return errors.New("config: CLOUDINARY_URL is required when MEDIA_DRIVER=cloudinary")
		}
	case "s3":
		if c.S3Bucket == "" || c.MediaPublicBaseURL == "" {
			return errors.New("config: S3_BUCKET and MEDIA_PUBLIC_BASE_URL are required when MEDIA_DRIVER=s3")
		}
	}

	if (c.GoogleClientSecret != "" || c.GoogleRedirectURL != "") && c.GoogleClientID == "" {
		return errors.New("config: GOOGLE_CLIENT_ID is required when the Google redirect flow is configured")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GoogleEnabled reports whether Google sign-in can be offered at all.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != ""
}
