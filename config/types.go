package config

// StorageConfig selects the key/value backend of the protocol state.
type StorageConfig struct {
	// Backend is one of memory, leveldb or bolt.
	Backend string `yaml:"backend"`
	DataDir string `yaml:"data_dir"`
}

// AuthConfig controls caller authentication on write routes.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
	// ClockSkewSeconds is the leeway applied to exp and nbf claims.
	ClockSkewSeconds int `yaml:"clock_skew_seconds"`
}

// RateLimitConfig throttles requests per client.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Enabled reports whether requests are throttled at all.
func (r RateLimitConfig) Enabled() bool {
	return r.RequestsPerSecond > 0
}

// JournalConfig points the event journal at a database.
type JournalConfig struct {
	// Driver is sqlite or postgres.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LoggingConfig mirrors logging.Options.
type LoggingConfig struct {
	Env        string `yaml:"env"`
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`

	// FullAddresses disables abbreviation of account addresses.
	FullAddresses bool `yaml:"full_addresses"`
}

// TelemetryConfig mirrors the OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	Traces      bool              `yaml:"traces"`
	Metrics     bool              `yaml:"metrics"`
	SampleRatio float64           `yaml:"sample_ratio"`
}

// ProtocolConfig describes the deployment the daemon serves.
type ProtocolConfig struct {
	// MissionFile is the TOML file holding the protocol parameters.
	MissionFile string `yaml:"mission_file"`
	Namespace   string `yaml:"namespace"`
	MaxPriceAge uint64 `yaml:"max_price_age"`
	// Prices seeds the manual price feed. Keys are asset addresses and
	// values are decimal USD prices of one whole unit scaled by 1e18.
	Prices map[string]string `yaml:"prices"`
	// Pauses lists the modules that start paused.
	Pauses []string `yaml:"pauses"`
	// BlockIntervalSeconds advances the block height on a timer. Zero
	// leaves block production to the admin route.
	BlockIntervalSeconds int `yaml:"block_interval_seconds"`
}
