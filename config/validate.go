package config

import (
	"fmt"
	"strings"
)

// MinJWTSecretLength bounds the HS256 key size.
var MinJWTSecretLength = 32

func (cfg Config) validate() error {
	if cfg.ListenAddress == "" {
		return fmt.Errorf("listen_address is required")
	}
	switch cfg.Storage.Backend {
	case BackendMemory:
	case BackendLevelDB, BackendBolt:
		if cfg.Storage.DataDir == "" {
			return fmt.Errorf("storage: data_dir is required for %s", cfg.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
	if len(cfg.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth: jwt_secret must be at least %d bytes", MinJWTSecretLength)
	}
	if cfg.Auth.ClockSkewSeconds < 0 {
		return fmt.Errorf("auth: clock_skew_seconds must not be negative")
	}
	if cfg.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit: requests_per_second must not be negative")
	}
	if cfg.RateLimit.Enabled() && cfg.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit: burst must be positive")
	}
	switch cfg.Journal.Driver {
	case JournalSQLite:
	case JournalPostgres:
		if cfg.Journal.DSN == "" {
			return fmt.Errorf("journal: dsn is required for postgres")
		}
	default:
		return fmt.Errorf("journal: unknown driver %q", cfg.Journal.Driver)
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0,1]")
	}
	if strings.TrimSpace(cfg.Protocol.MissionFile) == "" {
		return fmt.Errorf("protocol: mission_file is required")
	}
	if cfg.Protocol.BlockIntervalSeconds < 0 {
		return fmt.Errorf("protocol: block_interval_seconds must not be negative")
	}
	if _, err := cfg.Protocol.SeedPrices(); err != nil {
		return err
	}
	return nil
}
