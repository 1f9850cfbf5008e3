package config

import "time"

// Config represents the complete windsurf-mcp configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	API       APIConfig       `yaml:"api"`
	State     StateConfig     `yaml:"state"`
	Resources ResourcesConfig `yaml:"resources"`
	Security  SecurityConfig  `yaml:"security"`
	CLI       CLIConfig       `yaml:"cli"`

	// Logging is the legacy mcp_config.json section. When set, its values
	// take precedence over service.log_level and service.log_file.
	Logging *LoggingConfig `yaml:"logging,omitempty"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// LogFile, when set, receives a copy of every log line.
	LogFile string `yaml:"log_file"`
	// TickInterval paces background maintenance such as allocation expiry.
	TickInterval time.Duration `yaml:"tick_interval"`
}

// LoggingConfig is the legacy logging block.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen       string        `yaml:"listen"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	Auth         APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings. With neither an APIKey
// nor Tokens the API is unauthenticated.
type APIAuthConfig struct {
	// APIKey is the legacy single bearer token (admin/full access).
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// ResourcesConfig configures context storage and resource accounting.
type ResourcesConfig struct {
	ContextDirectory string        `yaml:"context_directory"`
	DiskPath         string        `yaml:"disk_path"`
	AllocationTTL    time.Duration `yaml:"allocation_ttl"`
	Limits           LimitsConfig  `yaml:"limits"`
}

// LimitsConfig caps what allocate_resources may hand out. A zero CPUCores
// means "all CPUs".
type LimitsConfig struct {
	CPUCores float64 `yaml:"cpu_cores"`
	MemoryMB int64   `yaml:"memory_mb"`
	DiskMB   int64   `yaml:"disk_mb"`
}

// SecurityConfig defines the password policy.
type SecurityConfig struct {
	MinPasswordLength int `yaml:"min_password_length"`
	BcryptCost        int `yaml:"bcrypt_cost"`
}

// CLIConfig bounds execute_cli.
type CLIConfig struct {
	MaxReadBytes int64 `yaml:"max_read_bytes"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:         "windsurf-mcp",
			LogLevel:     "info",
			LogFormat:    "json",
			TickInterval: time.Minute,
		},
		API: APIConfig{
			Listen:       "localhost:8001",
			MaxBodyBytes: 10 << 20,
		},
		State: StateConfig{
			Path: "./data/state.db",
		},
		Resources: ResourcesConfig{
			ContextDirectory: "./context",
			DiskPath:         ".",
			AllocationTTL:    time.Hour,
			Limits: LimitsConfig{
				MemoryMB: 4096,
				DiskMB:   10240,
			},
		},
		Security: SecurityConfig{
			MinPasswordLength: 8,
			BcryptCost:        10,
		},
		CLI: CLIConfig{
			MaxReadBytes: 10 << 20,
		},
	}
}
