// Package config содержит логику чтения конфигурации сервиса продаж.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса продаж.
type Config struct {
	RunAddress        string `env:"RUN_ADDRESS"`
	DatabaseURI       string `env:"DATABASE_URI"`
	AuthSecret        string `env:"AUTH_SECRET"`
	WhatsAppAddress   string `env:"WA_API_URL"`
	WhatsAppAPIKey    string `env:"WA_API_KEY"`
	WhatsAppInstance  string `env:"WA_INSTANCE_NAME"`
	SentryDSN         string `env:"SENTRY_DSN"`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Значения из окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envValues := *cfg

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret key for signing auth tokens")
	flag.StringVar(&cfg.WhatsAppAddress, "w", "", "WhatsApp API address")
	flag.StringVar(&cfg.WhatsAppAPIKey, "k", "", "WhatsApp API key")
	flag.StringVar(&cfg.WhatsAppInstance, "i", "", "WhatsApp instance name")

	flag.Parse()

	if envValues.RunAddress != "" {
		cfg.RunAddress = envValues.RunAddress
	}
	if envValues.DatabaseURI != "" {
		cfg.DatabaseURI = envValues.DatabaseURI
	}
	if envValues.AuthSecret != "" {
		cfg.AuthSecret = envValues.AuthSecret
	}
	if envValues.WhatsAppAddress != "" {
		cfg.WhatsAppAddress = envValues.WhatsAppAddress
	}
	if envValues.WhatsAppAPIKey != "" {
		cfg.WhatsAppAPIKey = envValues.WhatsAppAPIKey
	}
	if envValues.WhatsAppInstance != "" {
		cfg.WhatsAppInstance = envValues.WhatsAppInstance
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
