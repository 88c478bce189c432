package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"dukapay-billing-api/services/email"
)

type Config struct {
	Daraja  DarajaConfig
	Server  ServerConfig
	Redis   RedisConfig
	Auth    AuthConfig
	SMTP    email.SMTPConfig
	Billing BillingConfig
}

type DarajaConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Environment    string // "sandbox" or "production"
}

type ServerConfig struct {
	Port string
}

type RedisConfig struct {
	URL               string
	WorkerConcurrency int
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	SharedKey string
}

type BillingConfig struct {
	// ResetOnSuccess clears the failure tracker when a push is accepted.
	// Off by default: historically a past failure was never forgotten.
	ResetOnSuccess bool

	// NoticeContact receives grace-period and suspension emails.
	NoticeContact string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	workerConcurrency := 2

	cfg := &Config{
		Daraja: DarajaConfig{
			ConsumerKey:    os.Getenv("DARAJA_CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("DARAJA_CONSUMER_SECRET"),
			ShortCode:      os.Getenv("DARAJA_SHORTCODE"),
			Passkey:        os.Getenv("DARAJA_PASSKEY"),
			CallbackURL:    os.Getenv("DARAJA_CALLBACK_URL"),
			Environment:    os.Getenv("DARAJA_ENVIRONMENT"),
		},
		Server: ServerConfig{
			Port: os.Getenv("SERVER_PORT"),
		},
		Redis: RedisConfig{
			URL:               os.Getenv("REDIS_URL"),
			WorkerConcurrency: workerConcurrency,
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			Issuer:    "dukapay-billing-api",
			SharedKey: os.Getenv("API_SHARED_KEY"),
		},
		SMTP: email.SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     os.Getenv("SMTP_PORT"),
			Username: os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
		Billing: BillingConfig{
			ResetOnSuccess: os.Getenv("BILLING_RESET_ON_SUCCESS") == "true",
			NoticeContact:  os.Getenv("BILLING_NOTICE_EMAIL"),
		},
	}

	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}

	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
		log.Printf("Warning: REDIS_URL not set, using default: %s", cfg.Redis.URL)
	}

	if cfg.Daraja.Environment == "" {
		cfg.Daraja.Environment = "sandbox"
	}

	return cfg
}
