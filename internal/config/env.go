package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvFile is read, when present, before the process environment is consulted.
const EnvFile = ".env"

// ApplyEnv overrides cfg from WANWATCH_* environment variables. Values from
// EnvFile are loaded first and never replace variables already set.
func ApplyEnv(cfg *Config) error {
	if _, err := os.Stat(EnvFile); err == nil {
		if err := godotenv.Load(EnvFile); err != nil {
			return fmt.Errorf("load %s: %w", EnvFile, err)
		}
	}

	if v := os.Getenv("WANWATCH_ROUTER_HOST"); v != "" {
		cfg.Router.Host = v
	}
	if v := os.Getenv("WANWATCH_ROUTER_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WANWATCH_ROUTER_PORT: %w", err)
		}
		cfg.Router.Port = p
	}
	if v := os.Getenv("WANWATCH_ROUTER_USER"); v != "" {
		cfg.Router.User = v
	}
	if v := os.Getenv("WANWATCH_ROUTER_PASSWORD"); v != "" {
		cfg.Router.Password = v
	}
	if v := os.Getenv("WANWATCH_ROUTER_KEY"); v != "" {
		cfg.Router.KeyPath = v
	}
	if v := os.Getenv("WANWATCH_TRANSPORT"); v != "" {
		cfg.Router.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("WANWATCH_MAX_INTERFACES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WANWATCH_MAX_INTERFACES: %w", err)
		}
		cfg.Collector.MaxInterfaces = n
	}
	if v := os.Getenv("WANWATCH_CAPACITY_MBPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("WANWATCH_CAPACITY_MBPS: %w", err)
		}
		cfg.Collector.CapacityMbps = f
	}
	if v := os.Getenv("WANWATCH_API_LISTEN"); v != "" {
		cfg.API.Listen = v
	}
	if v := os.Getenv("WANWATCH_ALLOWED_ORIGINS"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.API.AllowedOrigins = parts
	}
	if v := os.Getenv("WANWATCH_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}
	if v := os.Getenv("WANWATCH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}
