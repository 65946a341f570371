package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/utils"
)

type Config struct {
	ServiceName    string
	Environment    string
	AppVersion     string
	Port           string
	AllowedOrigins []string

	JWTSecretKey   string
	AccessTokenTTL time.Duration

	DispatchWorkers   int
	DispatchQueueSize int
}

// fileConfig is the optional yaml overlay (CONFIG_FILE). Environment
// variables win over the file; the file wins over built-in defaults.
type fileConfig struct {
	ServiceName       string   `yaml:"service_name"`
	Environment       string   `yaml:"environment"`
	Port              string   `yaml:"port"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
	AccessTokenTTL    int      `yaml:"access_token_ttl_seconds"`
	DispatchWorkers   int      `yaml:"dispatch_workers"`
	DispatchQueueSize int      `yaml:"dispatch_queue_size"`
}

func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		ServiceName:       "attestra",
		Environment:       "development",
		AppVersion:        "1.0.0",
		Port:              "8080",
		AllowedOrigins:    []string{"http://localhost:3000"},
		AccessTokenTTL:    time.Hour,
		DispatchWorkers:   4,
		DispatchQueueSize: 256,
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if fc.ServiceName != "" {
			cfg.ServiceName = fc.ServiceName
		}
		if fc.Environment != "" {
			cfg.Environment = fc.Environment
		}
		if fc.Port != "" {
			cfg.Port = fc.Port
		}
		if len(fc.AllowedOrigins) > 0 {
			cfg.AllowedOrigins = fc.AllowedOrigins
		}
		if fc.AccessTokenTTL > 0 {
			cfg.AccessTokenTTL = time.Duration(fc.AccessTokenTTL) * time.Second
		}
		if fc.DispatchWorkers > 0 {
			cfg.DispatchWorkers = fc.DispatchWorkers
		}
		if fc.DispatchQueueSize > 0 {
			cfg.DispatchQueueSize = fc.DispatchQueueSize
		}
		log.Info("Loaded config overlay", "path", path)
	}

	cfg.ServiceName = utils.GetEnv("SERVICE_NAME", cfg.ServiceName, log)
	cfg.Environment = utils.GetEnv("APP_ENV", cfg.Environment, log)
	cfg.AppVersion = utils.GetEnv("APP_VERSION", cfg.AppVersion, log)
	cfg.Port = utils.GetEnv("PORT", cfg.Port, log)
	if origins := utils.GetEnv("ALLOWED_ORIGINS", "", log); origins != "" {
		parts := strings.Split(origins, ",")
		cfg.AllowedOrigins = cfg.AllowedOrigins[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, p)
			}
		}
	}

	cfg.JWTSecretKey = utils.GetEnv("JWT_SECRET_KEY", "", log)
	if cfg.JWTSecretKey == "" {
		return Config{}, fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if ttl := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 0, log); ttl > 0 {
		cfg.AccessTokenTTL = time.Duration(ttl) * time.Second
	}
	if workers := utils.GetEnvAsInt("DISPATCH_WORKERS", 0, log); workers > 0 {
		cfg.DispatchWorkers = workers
	}
	if size := utils.GetEnvAsInt("DISPATCH_QUEUE_SIZE", 0, log); size > 0 {
		cfg.DispatchQueueSize = size
	}
	return cfg, nil
}
