package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultConfig(t *testing.T) {
	// Test loading with non-existent file (should use defaults)
	cfg, err := Load("non-existent-config.yaml")
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected log level 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.Language != "en" {
		t.Errorf("Expected language 'en', got '%s'", cfg.Language)
	}
	if cfg.Schedule.Interval != 30*time.Minute {
		t.Errorf("Expected schedule interval 30m, got %v", cfg.Schedule.Interval)
	}
	if cfg.Storage.Driver != "file" {
		t.Errorf("Expected storage driver 'file', got '%s'", cfg.Storage.Driver)
	}
	if cfg.Storage.Path != "/data" {
		t.Errorf("Expected storage path '/data', got '%s'", cfg.Storage.Path)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected server port 8080, got %d", cfg.Server.Port)
	}
	if len(cfg.Backends) != 0 {
		t.Errorf("Expected no seeded backends, got %d", len(cfg.Backends))
	}
}

func TestLoad_FromFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	configContent := `
log_level: debug
language: zh-CN
schedule:
  enabled: true
  interval: 2h
  timeout: 10m
storage:
  driver: sqlite
  path: /custom/data
server:
  port: 9090
backends:
  - key: webdav_home
    label: Home NAS
    kind: webdav
    target: "https://nas.local/dav"
    username: alice
    password: secret
  - key: gist_main
    kind: gist
    password: ghp_token
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config from file: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got '%s'", cfg.LogLevel)
	}
	if cfg.Language != "zh-CN" {
		t.Errorf("Expected language 'zh-CN', got '%s'", cfg.Language)
	}
	if cfg.Schedule.Interval != 2*time.Hour {
		t.Errorf("Expected schedule interval 2h, got %v", cfg.Schedule.Interval)
	}
	if cfg.Schedule.Timeout != 10*time.Minute {
		t.Errorf("Expected schedule timeout 10m, got %v", cfg.Schedule.Timeout)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Expected storage driver 'sqlite', got '%s'", cfg.Storage.Driver)
	}
	if cfg.Storage.Path != "/custom/data" {
		t.Errorf("Expected storage path '/custom/data', got '%s'", cfg.Storage.Path)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if len(cfg.Backends) != 2 {
		t.Fatalf("Expected 2 backends, got %d", len(cfg.Backends))
	}
	if cfg.Backends[0].Target != "https://nas.local/dav" {
		t.Errorf("Expected backend target 'https://nas.local/dav', got '%s'", cfg.Backends[0].Target)
	}
	if cfg.Backends[1].Kind != "gist" {
		t.Errorf("Expected backend kind 'gist', got '%s'", cfg.Backends[1].Kind)
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("TABSTASH_LOG_LEVEL", "warn")
	t.Setenv("TABSTASH_STORAGE_PATH", "/env/storage")
	t.Setenv("TABSTASH_STORAGE_DRIVER", "sqlite")
	t.Setenv("TABSTASH_PORT", "7070")
	t.Setenv("TABSTASH_LANGUAGE", "zh-CN")

	cfg, err := Load("non-existent-config.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("Expected log level 'warn', got '%s'", cfg.LogLevel)
	}
	if cfg.Storage.Path != "/env/storage" {
		t.Errorf("Expected storage path '/env/storage', got '%s'", cfg.Storage.Path)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Expected storage driver 'sqlite', got '%s'", cfg.Storage.Driver)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Expected port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Language != "zh-CN" {
		t.Errorf("Expected language 'zh-CN', got '%s'", cfg.Language)
	}
}

func TestLoad_InvalidPortEnvironment(t *testing.T) {
	t.Setenv("TABSTASH_PORT", "not-a-port")

	if _, err := Load("non-existent-config.yaml"); err == nil {
		t.Errorf("Expected error for invalid port, got none")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "invalid-config.yaml")

	invalidYAML := `
log_level: debug
schedule:
  interval: 2h
  invalid: [unclosed list
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("Failed to write invalid config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Errorf("Expected error for invalid YAML, got none")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid",
			cfg: Config{
				Schedule: ScheduleConfig{Enabled: true, Interval: time.Minute},
				Storage:  StorageConfig{Driver: "file"},
				Backends: []BackendConfig{{Key: "a"}, {Key: "b"}},
			},
		},
		{
			name: "unknown driver",
			cfg: Config{
				Storage: StorageConfig{Driver: "redis"},
			},
			wantErr: true,
		},
		{
			name: "zero interval with schedule enabled",
			cfg: Config{
				Schedule: ScheduleConfig{Enabled: true},
				Storage:  StorageConfig{Driver: "sqlite"},
			},
			wantErr: true,
		},
		{
			name: "zero interval with schedule disabled",
			cfg: Config{
				Storage: StorageConfig{Driver: "sqlite"},
			},
		},
		{
			name: "backend without key",
			cfg: Config{
				Storage:  StorageConfig{Driver: "file"},
				Backends: []BackendConfig{{Label: "nameless"}},
			},
			wantErr: true,
		},
		{
			name: "duplicate backend keys",
			cfg: Config{
				Storage:  StorageConfig{Driver: "file"},
				Backends: []BackendConfig{{Key: "a"}, {Key: "a"}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("Expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	if result := getEnv("TEST_VAR", "default"); result != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", result)
	}

	if result := getEnv("NON_EXISTING_VAR", "default"); result != "default" {
		t.Errorf("Expected 'default', got '%s'", result)
	}

	t.Setenv("EMPTY_VAR", "")
	if result := getEnv("EMPTY_VAR", "default"); result != "default" {
		t.Errorf("Expected 'default' for empty env var, got '%s'", result)
	}
}
