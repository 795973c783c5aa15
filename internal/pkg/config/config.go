package config

import (
	"fmt"
	"os"
)

type UpstreamConfig struct {
	BaseURL        string
	ContentBaseURL string
	PartnerID      string
	APIKey         string
}

type Config struct {
	Upstream    UpstreamConfig
	DatabaseURL string
	ServerPort  string
	MetricsPort string
	MapboxToken string
}

func Load() (*Config, error) {
	cfg := &Config{
		Upstream: UpstreamConfig{
			BaseURL:        getEnvOrDefault("UPSTREAM_BASE_URL", "https://api.worldota.net/api/b2b/v3"),
			ContentBaseURL: getEnvOrDefault("UPSTREAM_CONTENT_BASE_URL", "https://api.worldota.net/api/content/v1"),
			PartnerID:      os.Getenv("UPSTREAM_PARTNER_ID"),
			APIKey:         os.Getenv("UPSTREAM_API_KEY"),
		},
		DatabaseURL: os.Getenv("DATABASE_URL"),
		ServerPort:  getEnvOrDefault("PORT", "8080"),
		MetricsPort: getEnvOrDefault("METRICS_PORT", "9092"),
		MapboxToken: os.Getenv("MAPBOX_TOKEN"),
	}

	if cfg.Upstream.PartnerID == "" || cfg.Upstream.APIKey == "" {
		return nil, fmt.Errorf("UPSTREAM_PARTNER_ID and UPSTREAM_API_KEY environment variables are required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
