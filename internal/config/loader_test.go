package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "empty file keeps defaults",
			file: "config.yaml",
			body: "",
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.API.Listen != "localhost:8001" {
					t.Errorf("api.listen = %q", cfg.API.Listen)
				}
				if cfg.Resources.AllocationTTL != time.Hour {
					t.Errorf("allocation_ttl = %v", cfg.Resources.AllocationTTL)
				}
				if cfg.Service.TickInterval != time.Minute {
					t.Errorf("tick_interval = %v", cfg.Service.TickInterval)
				}
				if cfg.Security.MinPasswordLength != 8 {
					t.Errorf("min_password_length = %d", cfg.Security.MinPasswordLength)
				}
			},
		},
		{
			name: "yaml sections",
			file: "config.yaml",
			body: `
service:
  log_level: DEBUG
  log_format: text
api:
  listen: 127.0.0.1:9000
resources:
  allocation_ttl: 15m
  limits:
    cpu_cores: 2
    memory_mb: 512
security:
  min_password_length: 12
  bcrypt_cost: 4
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.LogLevel != "debug" {
					t.Errorf("log_level = %q, want lowercased debug", cfg.Service.LogLevel)
				}
				if cfg.API.Listen != "127.0.0.1:9000" {
					t.Errorf("api.listen = %q", cfg.API.Listen)
				}
				if cfg.Resources.AllocationTTL != 15*time.Minute {
					t.Errorf("allocation_ttl = %v", cfg.Resources.AllocationTTL)
				}
				if cfg.Resources.Limits.CPUCores != 2 || cfg.Resources.Limits.MemoryMB != 512 {
					t.Errorf("limits = %+v", cfg.Resources.Limits)
				}
				if cfg.Resources.Limits.DiskMB != 10240 {
					t.Errorf("limits.disk_mb default lost: %d", cfg.Resources.Limits.DiskMB)
				}
				if cfg.Security.BcryptCost != 4 {
					t.Errorf("bcrypt_cost = %d", cfg.Security.BcryptCost)
				}
			},
		},
		{
			name: "legacy json config",
			file: "mcp_config.json",
			body: `{
  "logging": {"level": "WARN", "file": "mcp_server.log"},
  "resources": {"context_directory": "/srv/context"},
  "security": {"min_password_length": 10}
}`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.LogLevel != "warn" {
					t.Errorf("log_level = %q", cfg.Service.LogLevel)
				}
				if filepath.Base(cfg.Service.LogFile) != "mcp_server.log" || !filepath.IsAbs(cfg.Service.LogFile) {
					t.Errorf("log_file = %q, want absolute path", cfg.Service.LogFile)
				}
				if cfg.Resources.ContextDirectory != "/srv/context" {
					t.Errorf("context_directory = %q", cfg.Resources.ContextDirectory)
				}
				if cfg.Security.MinPasswordLength != 10 {
					t.Errorf("min_password_length = %d", cfg.Security.MinPasswordLength)
				}
			},
		},
		{
			name: "env var interpolation",
			file: "config.yaml",
			body: `
api:
  auth:
    api_key: ${TEST_WINDSURF_KEY}
state:
  path: ${TEST_WINDSURF_DB}
`,
			env: map[string]string{
				"TEST_WINDSURF_KEY": "secret123",
				"TEST_WINDSURF_DB":  "/tmp/windsurf/state.db",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.API.Auth.APIKey != "secret123" {
					t.Errorf("api_key = %q", cfg.API.Auth.APIKey)
				}
				if cfg.State.Path != "/tmp/windsurf/state.db" {
					t.Errorf("state.path = %q", cfg.State.Path)
				}
			},
		},
		{
			name: "environment overrides win over file",
			file: "config.yaml",
			body: `
service:
  log_level: info
resources:
  allocation_ttl: 1h
`,
			env: map[string]string{
				"WINDSURF_LOG_LEVEL":      "error",
				"WINDSURF_API_LISTEN":     ":7000",
				"WINDSURF_ALLOCATION_TTL": "90s",
				"WINDSURF_BCRYPT_COST":    "5",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.LogLevel != "error" {
					t.Errorf("log_level = %q", cfg.Service.LogLevel)
				}
				if cfg.API.Listen != ":7000" {
					t.Errorf("api.listen = %q", cfg.API.Listen)
				}
				if cfg.Resources.AllocationTTL != 90*time.Second {
					t.Errorf("allocation_ttl = %v", cfg.Resources.AllocationTTL)
				}
				if cfg.Security.BcryptCost != 5 {
					t.Errorf("bcrypt_cost = %d", cfg.Security.BcryptCost)
				}
			},
		},
		{
			name:    "unresolved api key",
			file:    "config.yaml",
			body:    "api:\n  auth:\n    api_key: ${TEST_WINDSURF_UNSET_VAR}\n",
			wantErr: "${TEST_WINDSURF_UNSET_VAR} is not set",
		},
		{
			name: "all problems reported",
			file: "config.yaml",
			body: `
service:
  log_level: loud
security:
  min_password_length: 0
cli:
  max_read_bytes: -1
`,
			wantErr: "service.log_level",
		},
		{
			name:    "token without scopes",
			file:    "config.yaml",
			body:    "api:\n  auth:\n    tokens:\n      - token: abc\n",
			wantErr: "api.auth.tokens[0].scopes must be non-empty",
		},
		{
			name:    "zero tick interval",
			file:    "config.yaml",
			body:    "service:\n  tick_interval: 0s\n",
			wantErr: "service.tick_interval must be positive",
		},
		{
			name:    "malformed yaml",
			file:    "config.yaml",
			body:    "service: [",
			wantErr: "failed to parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeConfig(t, tt.file, tt.body)

			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Load() error = nil, want %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want substring %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.SourcePath != path {
				t.Errorf("SourcePath = %q, want %q", cfg.SourcePath, path)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Service.LogLevel = "loud"
	cfg.Security.MinPasswordLength = 0
	cfg.CLI.MaxReadBytes = -1

	err := validate(cfg)
	if err == nil {
		t.Fatal("validate() = nil, want error")
	}
	for _, want := range []string{"service.log_level", "security.min_password_length", "cli.max_read_bytes"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validate() error missing %q: %v", want, err)
		}
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	path := writeConfig(t, "config.yaml", "state:\n  path: data/state.db\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := filepath.Join(filepath.Dir(path), "data", "state.db")
	if cfg.State.Path != want {
		t.Errorf("state.path = %q, want %q", cfg.State.Path, want)
	}
}

func TestLoadDirectoryUsesConfigYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", "api:\n  listen: :9100\n")

	cfg, err := Load(filepath.Dir(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Listen != ":9100" {
		t.Errorf("api.listen = %q", cfg.API.Listen)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("WINDSURF_STATE_PATH", "/var/lib/windsurf/state.db")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.State.Path != "/var/lib/windsurf/state.db" {
		t.Errorf("state.path = %q", cfg.State.Path)
	}
}

func TestDiscoverConfigPath(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		t.Setenv(ConfigPathEnv, "/from/env.yaml")
		got, err := DiscoverConfigPath("/from/flag.yaml")
		if err != nil || got != "/from/flag.yaml" {
			t.Fatalf("DiscoverConfigPath() = %q, %v", got, err)
		}
	})

	t.Run("env before home", func(t *testing.T) {
		t.Setenv(ConfigPathEnv, "/from/env.yaml")
		got, err := DiscoverConfigPath("")
		if err != nil || got != "/from/env.yaml" {
			t.Fatalf("DiscoverConfigPath() = %q, %v", got, err)
		}
	})

	t.Run("home mcp_config.json", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)
		t.Setenv(ConfigPathEnv, "")
		p := filepath.Join(home, ".codeium", "windsurf", "mcp_config.json")
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
		got, err := DiscoverConfigPath("")
		if err != nil || got != p {
			t.Fatalf("DiscoverConfigPath() = %q, %v", got, err)
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		t.Setenv(ConfigPathEnv, "")
		t.Chdir(t.TempDir())
		_, err := DiscoverConfigPath("")
		if !errors.Is(err, ErrNoConfig) {
			t.Fatalf("DiscoverConfigPath() error = %v, want ErrNoConfig", err)
		}
	})
}
