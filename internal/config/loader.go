package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. WINDSURF_LOG_LEVEL.
const EnvPrefix = "WINDSURF"

// ConfigPathEnv names an explicit config file location.
const ConfigPathEnv = "WINDSURF_MCP_CONFIG"

// ErrNoConfig is returned by DiscoverConfigPath when no candidate exists.
var ErrNoConfig = errors.New("no config found")

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, interpolates, overrides and validates the config at configPath.
// YAML and JSON files are both accepted. When a .checksums manifest sits next
// to the file, the file must match its recorded hash.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	if err := VerifyConfigHash(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", absPath, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", absPath, err)
	}
	cfg.SourcePath = absPath

	applyLegacyLogging(cfg)
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	resolvePaths(cfg, filepath.Dir(absPath))

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromEnv builds a config from Defaults and environment overrides only. It is
// used when no config file is present.
func FromEnv() (*Config, error) {
	cfg := Defaults()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DiscoverConfigPath finds the config file to load.
// Priority order: flagPath, $WINDSURF_MCP_CONFIG, ~/.codeium/windsurf/mcp_config.json, ./config.yaml
func DiscoverConfigPath(flagPath string) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p, nil
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(homeDir, ".codeium", "windsurf", "mcp_config.json")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml", nil
	}

	return "", fmt.Errorf("%w (checked: --config, $%s, ~/.codeium/windsurf/mcp_config.json, ./config.yaml)", ErrNoConfig, ConfigPathEnv)
}

// envOverrides maps WINDSURF_* variables onto config fields. Field names are
// split on word boundaries: AllocationTTL reads WINDSURF_ALLOCATION_TTL.
type envOverrides struct {
	LogLevel         string        `split_words:"true"`
	LogFormat        string        `split_words:"true"`
	LogFile          string        `split_words:"true"`
	TickInterval     time.Duration `split_words:"true"`
	APIListen        string        `split_words:"true"`
	APIKey           string        `split_words:"true"`
	StatePath        string        `split_words:"true"`
	ContextDirectory string        `split_words:"true"`
	DiskPath         string        `split_words:"true"`
	AllocationTTL    time.Duration `split_words:"true"`
	BcryptCost       int           `split_words:"true"`
	MaxReadBytes     int64         `split_words:"true"`
}

func applyEnvOverrides(cfg *Config) error {
	o := envOverrides{
		LogLevel:         cfg.Service.LogLevel,
		LogFormat:        cfg.Service.LogFormat,
		LogFile:          cfg.Service.LogFile,
		TickInterval:     cfg.Service.TickInterval,
		APIListen:        cfg.API.Listen,
		APIKey:           cfg.API.Auth.APIKey,
		StatePath:        cfg.State.Path,
		ContextDirectory: cfg.Resources.ContextDirectory,
		DiskPath:         cfg.Resources.DiskPath,
		AllocationTTL:    cfg.Resources.AllocationTTL,
		BcryptCost:       cfg.Security.BcryptCost,
		MaxReadBytes:     cfg.CLI.MaxReadBytes,
	}
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}

	cfg.Service.LogLevel = o.LogLevel
	cfg.Service.LogFormat = o.LogFormat
	cfg.Service.LogFile = o.LogFile
	cfg.Service.TickInterval = o.TickInterval
	cfg.API.Listen = o.APIListen
	cfg.API.Auth.APIKey = o.APIKey
	cfg.State.Path = o.StatePath
	cfg.Resources.ContextDirectory = o.ContextDirectory
	cfg.Resources.DiskPath = o.DiskPath
	cfg.Resources.AllocationTTL = o.AllocationTTL
	cfg.Security.BcryptCost = o.BcryptCost
	cfg.CLI.MaxReadBytes = o.MaxReadBytes
	return nil
}

func applyLegacyLogging(cfg *Config) {
	if cfg.Logging == nil {
		return
	}
	if cfg.Logging.Level != "" {
		cfg.Service.LogLevel = cfg.Logging.Level
	}
	if cfg.Logging.File != "" {
		cfg.Service.LogFile = cfg.Logging.File
	}
}

// resolvePaths anchors relative paths at the config file's directory and
// expands a leading "~/".
func resolvePaths(cfg *Config, baseDir string) {
	for _, p := range []*string{
		&cfg.State.Path,
		&cfg.Resources.ContextDirectory,
		&cfg.Resources.DiskPath,
		&cfg.Service.LogFile,
	} {
		*p = resolvePath(*p, baseDir)
	}
}

func resolvePath(p, baseDir string) string {
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir, p)
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is so validation can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate reports every problem it finds, not just the first.
func validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		add("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := cfg.Service.LogFormat; f != "json" && f != "text" {
		add("service.log_format must be json or text (got %q)", f)
	}

	if cfg.API.Listen == "" {
		add("api.listen is required")
	}
	if cfg.API.MaxBodyBytes <= 0 {
		add("api.max_body_bytes must be positive")
	}
	if name, ok := unresolvedVar(cfg.API.Auth.APIKey); ok {
		add("api.auth.api_key: environment variable ${%s} is not set", name)
	}
	for i, tok := range cfg.API.Auth.Tokens {
		if tok.Token == "" {
			add("api.auth.tokens[%d].token is required", i)
		} else if name, ok := unresolvedVar(tok.Token); ok {
			add("api.auth.tokens[%d].token: environment variable ${%s} is not set", i, name)
		}
		if len(tok.Scopes) == 0 {
			add("api.auth.tokens[%d].scopes must be non-empty", i)
		}
	}

	if cfg.Service.TickInterval <= 0 {
		add("service.tick_interval must be positive")
	}

	if cfg.State.Path == "" {
		add("state.path is required")
	}

	if cfg.Resources.ContextDirectory == "" {
		add("resources.context_directory is required")
	}
	if cfg.Resources.AllocationTTL <= 0 {
		add("resources.allocation_ttl must be positive")
	}
	l := cfg.Resources.Limits
	if l.CPUCores < 0 || l.MemoryMB < 0 || l.DiskMB < 0 {
		add("resources.limits must not be negative")
	}

	if n := cfg.Security.MinPasswordLength; n < 1 || n > 72 {
		add("security.min_password_length must be between 1 and 72 (got %d)", n)
	}
	if c := cfg.Security.BcryptCost; c < bcrypt.MinCost || c > bcrypt.MaxCost {
		add("security.bcrypt_cost must be between %d and %d (got %d)", bcrypt.MinCost, bcrypt.MaxCost, c)
	}

	if cfg.CLI.MaxReadBytes <= 0 {
		add("cli.max_read_bytes must be positive")
	}

	return errors.Join(errs...)
}

func unresolvedVar(s string) (string, bool) {
	m := envVarPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}
