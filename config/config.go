// Package config loads the creditd daemon configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

// Journal drivers.
const (
	JournalSQLite   = "sqlite"
	JournalPostgres = "postgres"
)

// EnvPrefix namespaces the environment overrides.
const EnvPrefix = "CREDITD_"

const defaultJournalDSN = "file:creditd-journal.db?cache=shared"

// Config is the creditd daemon configuration.
type Config struct {
	ListenAddress string          `yaml:"listen_address"`
	Storage       StorageConfig   `yaml:"storage"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Journal       JournalConfig   `yaml:"journal"`
	Logging       LoggingConfig   `yaml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	Protocol      ProtocolConfig  `yaml:"protocol"`
}

// Default returns the configuration used when a field is left empty.
func Default() Config {
	return Config{
		ListenAddress: ":8650",
		Storage:       StorageConfig{Backend: BackendMemory},
		RateLimit:     RateLimitConfig{RequestsPerSecond: 20, Burst: 40},
		Journal:       JournalConfig{Driver: JournalSQLite, DSN: defaultJournalDSN},
		Logging:       LoggingConfig{Env: "local", Level: "info"},
		Telemetry:     TelemetryConfig{SampleRatio: 1},
		Protocol:      ProtocolConfig{Namespace: "main"},
	}
}

// Load reads the YAML configuration at path, applies CREDITD_* environment
// overrides and validates the result. Relative file references resolve
// against the directory of path.
func Load(path string) (Config, error) {
	cfg := Default()
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.normalize(filepath.Dir(path))
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("LISTEN_ADDRESS", &cfg.ListenAddress)
	str("DATA_DIR", &cfg.Storage.DataDir)
	str("STORAGE_BACKEND", &cfg.Storage.Backend)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("JOURNAL_DRIVER", &cfg.Journal.Driver)
	str("JOURNAL_DSN", &cfg.Journal.DSN)
	str("MISSION_FILE", &cfg.Protocol.MissionFile)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("OTEL_ENDPOINT", &cfg.Telemetry.Endpoint)

	if v, ok := lookup(EnvPrefix + "RATE_LIMIT_RPS"); ok {
		rps, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT_RPS: %w", EnvPrefix, err)
		}
		cfg.RateLimit.RequestsPerSecond = rps
	}
	if v, ok := lookup(EnvPrefix + "RATE_LIMIT_BURST"); ok {
		burst, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT_BURST: %w", EnvPrefix, err)
		}
		cfg.RateLimit.Burst = burst
	}
	return nil
}

func (cfg *Config) normalize(baseDir string) {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendMemory
	}
	cfg.Storage.DataDir = resolve(baseDir, cfg.Storage.DataDir)
	cfg.Auth.JWTSecret = strings.TrimSpace(cfg.Auth.JWTSecret)
	cfg.Journal.Driver = strings.ToLower(strings.TrimSpace(cfg.Journal.Driver))
	if cfg.Journal.Driver == "" {
		cfg.Journal.Driver = JournalSQLite
	}
	cfg.Journal.DSN = strings.TrimSpace(cfg.Journal.DSN)
	if cfg.Journal.DSN == "" && cfg.Journal.Driver == JournalSQLite {
		cfg.Journal.DSN = defaultJournalDSN
	}
	cfg.Logging.File = resolve(baseDir, cfg.Logging.File)
	cfg.Protocol.MissionFile = resolve(baseDir, cfg.Protocol.MissionFile)
	cfg.Protocol.Namespace = strings.TrimSpace(cfg.Protocol.Namespace)
	if cfg.Protocol.Namespace == "" {
		cfg.Protocol.Namespace = "main"
	}
	pauses := make([]string, 0, len(cfg.Protocol.Pauses))
	for _, module := range cfg.Protocol.Pauses {
		if trimmed := strings.ToLower(strings.TrimSpace(module)); trimmed != "" {
			pauses = append(pauses, trimmed)
		}
	}
	cfg.Protocol.Pauses = pauses
}

func resolve(baseDir, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
