package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// YAMLConfig mirrors the on-disk excore.yaml layout; zero values are
// left unset so mergo only overrides what the user actually specified.
type YAMLConfig struct {
	Concurrency *ConcurrencyConfig                `yaml:"concurrency"`
	TaskLimits  *TaskLimitsConfig                 `yaml:"task_limits"`
	Search      *SearchConfig                     `yaml:"search"`
	Academic    map[string]AcademicProviderConfig `yaml:"academic"`
	Engines     map[string]SERPEngineConfig       `yaml:"engines"`
	Chrome      *ChromeConfig                     `yaml:"chrome"`
	Collaborators *CollaboratorsConfig            `yaml:"collaborators"`
}

// Load reads excore.yaml (if present) from configDir, a .env file from
// the same directory, applies database/HTTP settings from the
// environment, merges everything onto the built-in defaults, and
// validates the result.
func Load(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)

	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Warn("no .env file loaded, using existing environment", "path", envPath, "error", err)
	}

	cfg := Default()

	yamlPath := filepath.Join(configDir, "excore.yaml")
	if data, err := os.ReadFile(yamlPath); err == nil {
		var user YAMLConfig
		if err := yaml.Unmarshal(data, &user); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", yamlPath, err)
		}
		if err := mergeUserYAML(cfg, &user); err != nil {
			return nil, fmt.Errorf("config: merging %s: %w", yamlPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: reading %s: %w", yamlPath, err)
	}

	dbCfg, err := loadDatabaseFromEnv(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("config: database settings: %w", err)
	}
	cfg.Database = dbCfg

	cfg.HTTP.Port = getEnvOrDefault("HTTP_PORT", cfg.HTTP.Port)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	_ = ctx
	return cfg, nil
}

func mergeUserYAML(cfg *Config, user *YAMLConfig) error {
	if user.Concurrency != nil {
		if err := mergo.Merge(&cfg.Concurrency, user.Concurrency, mergo.WithOverride); err != nil {
			return err
		}
	}
	if user.TaskLimits != nil {
		if err := mergo.Merge(&cfg.TaskLimits, user.TaskLimits, mergo.WithOverride); err != nil {
			return err
		}
	}
	if user.Search != nil {
		if err := mergo.Merge(&cfg.Search, user.Search, mergo.WithOverride); err != nil {
			return err
		}
	}
	if user.Chrome != nil {
		if err := mergo.Merge(&cfg.Chrome, user.Chrome, mergo.WithOverride); err != nil {
			return err
		}
	}
	if user.Collaborators != nil {
		if err := mergo.Merge(&cfg.Collaborators, user.Collaborators, mergo.WithOverride); err != nil {
			return err
		}
	}
	for name, p := range user.Academic {
		cfg.Academic[name] = p
	}
	for name, e := range user.Engines {
		cfg.Engines[name] = e
	}
	return nil
}

func loadDatabaseFromEnv(base DatabaseConfig) (DatabaseConfig, error) {
	cfg := base
	cfg.Host = getEnvOrDefault("DB_HOST", cfg.Host)
	cfg.User = getEnvOrDefault("DB_USER", cfg.User)
	cfg.Database = getEnvOrDefault("DB_NAME", cfg.Database)
	cfg.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.SSLMode)
	cfg.Password = os.Getenv("DB_PASSWORD")

	if v := os.Getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
		}
		cfg.MaxConns = int32(n)
	}
	return cfg, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
