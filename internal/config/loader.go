package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/fusion"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "fusion.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "FUSION_PORT")
	setString(&cfg.Server.CORSOrigin, "FUSION_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "FUSION_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "FUSION_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "FUSION_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "FUSION_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "FUSION_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "FUSION_LOG_LEVEL")
	setString(&cfg.Logging.Service, "FUSION_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "FUSION_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "FUSION_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "FUSION_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.L1MaxSizeMB, "FUSION_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "FUSION_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "FUSION_CACHE_L2_TTL")
	setString(&cfg.Audit.Backend, "FUSION_AUDIT_BACKEND")
	setString(&cfg.Audit.Dir, "FUSION_AUDIT_DIR")
	setString(&cfg.Calibration.Path, "FUSION_CALIBRATION_PATH")
	setDuration(&cfg.DocumentTimeout, "FUSION_DOCUMENT_TIMEOUT")

	// Ensemble knobs commonly tuned per environment.
	setEnsembleMode(&cfg.Ensemble.Mode, "FUSION_ENSEMBLE_MODE")
	setString(&cfg.Ensemble.PrimaryProvider, "FUSION_PRIMARY_PROVIDER")
	setFloat64(&cfg.Ensemble.LowConfThreshold, "FUSION_LOW_CONF_THRESHOLD")
	setFloat64(&cfg.Ensemble.AgreementBoost, "FUSION_AGREEMENT_BOOST")
	setDuration(&cfg.Ensemble.EscalationTimeout, "FUSION_ESCALATION_TIMEOUT")
	setInt(&cfg.Ensemble.MaxParallel, "FUSION_MAX_PARALLEL")
}

// validate checks that required fields are set. Ensemble validation happens
// separately at run start, where the candidate providers are known.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	switch cfg.Audit.Backend {
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case "ndjson":
		if cfg.Audit.Dir == "" {
			return errors.New("audit.dir is required for ndjson backend")
		}
	default:
		return fmt.Errorf("audit.backend must be postgres or ndjson, got %q", cfg.Audit.Backend)
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.DocumentTimeout <= 0 {
		return errors.New("document_timeout must be > 0")
	}
	if err := cfg.Ensemble.Validate(); err != nil {
		return fmt.Errorf("ensemble: %w", err)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setEnsembleMode(dst *fusion.Mode, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = fusion.Mode(v)
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
