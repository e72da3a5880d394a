// Package config содержит логику чтения конфигурации сервиса приёма заказов.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/caarlos0/env/v11"
)

// Режимы развёртывания сервиса.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config содержит параметры конфигурации сервиса приёма заказов.
type Config struct {
	RunAddress     string   `env:"RUN_ADDRESS"`
	DatabaseURI    string   `env:"DATABASE_URI"`
	CatalogAddress string   `env:"CATALOG_ADDRESS"`
	AuthSecret     string   `env:"AUTH_SECRET"`
	Environment    string   `env:"ENVIRONMENT"`
	LogLevel       string   `env:"LOG_LEVEL"`
	AdminUIDs      []string `env:"ADMIN_UIDS" envSeparator:","`

	// TrustOnCatalogOutage определяет политику при недоступности каталога:
	// принимать заказы с ценами клиента (true) или отклонять их (false).
	TrustOnCatalogOutage bool
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Значения из окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envCatalogAddress := cfg.CatalogAddress
	envAuthSecret := cfg.AuthSecret
	envEnvironment := cfg.Environment
	envLogLevel := cfg.LogLevel

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.CatalogAddress, "c", "", "product catalog address")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for bearer token verification")
	flag.StringVar(&cfg.Environment, "e", EnvDevelopment, "deployment environment (production or development)")
	flag.StringVar(&cfg.LogLevel, "l", "info", "log level")
	flag.BoolVar(&cfg.TrustOnCatalogOutage, "trust-on-catalog-outage", true, "accept client-declared totals when the catalog is unreachable")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envCatalogAddress != "" {
		cfg.CatalogAddress = envCatalogAddress
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envEnvironment != "" {
		cfg.Environment = envEnvironment
	}
	if envLogLevel != "" {
		cfg.LogLevel = envLogLevel
	}

	if v, ok := os.LookupEnv("TRUST_ON_CATALOG_OUTAGE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("parse TRUST_ON_CATALOG_OUTAGE: %w", err)
		}
		cfg.TrustOnCatalogOutage = b
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.Environment == "" {
		cfg.Environment = EnvDevelopment
	}

	if cfg.Environment != EnvProduction && cfg.Environment != EnvDevelopment {
		return nil, fmt.Errorf("unknown environment %q", cfg.Environment)
	}

	if cfg.Environment == EnvProduction && cfg.AuthSecret == "" {
		return nil, fmt.Errorf("auth secret is required in production")
	}

	return cfg, nil
}

// Production сообщает, работает ли сервис в производственном режиме.
func (c *Config) Production() bool {
	return c.Environment == EnvProduction
}
