package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env    string `yaml:"env"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text | json
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	RabbitMQ struct {
		URL      string `yaml:"url"`
		Prefetch int    `yaml:"prefetch"`
	} `yaml:"rabbitmq"`
	Quiz struct {
		Mode         string   `yaml:"mode"` // balanced | uniform
		BankTTL      string   `yaml:"bank_ttl"`
		TTL          string   `yaml:"ttl"`
		ModulesCount int      `yaml:"modules_count"`
		BankFiles    []string `yaml:"bank_files"`
	} `yaml:"quiz"`
	Directory struct {
		SeedFile string `yaml:"seed_file"` // classes, students and enrollments for memory mode
	} `yaml:"directory"`
	Ranking struct {
		BatchSize          int    `yaml:"batch_size"`
		BatchPause         string `yaml:"batch_pause"`
		MaxConflictRetries int    `yaml:"max_conflict_retries"`
		Concurrency        int    `yaml:"concurrency"`
	} `yaml:"ranking"`
}

// Load reads YAML config from path, then applies a local .env file (if any) and
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Postgres.URL = getEnv("POSTGRES_URL", cfg.Postgres.URL)
	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.Directory.SeedFile = getEnv("DIRECTORY_SEED_FILE", cfg.Directory.SeedFile)
	if raw := os.Getenv("QUIZ_MODULES_COUNT"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			cfg.Quiz.ModulesCount = n
		}
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
